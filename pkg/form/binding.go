package form

import (
	"context"
	"fmt"

	"github.com/goliatone/go-formstate/pkg/rules"
)

// Binding connects the input events of one field to its engine.
type Binding struct {
	engine *Engine
	name   string
}

// Name returns the registered field path.
func (b *Binding) Name() string { return b.name }

// Focus is accepted for input symmetry. Receiving focus changes no state;
// the field only counts as touched once it is blurred.
func (b *Binding) Focus() {}

// Change stores raw input. Strings pass through the configured sanitiser,
// then the field's ValueAs coercion applies. Validation runs when the
// current mode reacts to changes.
func (b *Binding) Change(ctx context.Context, raw any) error {
	return b.engine.change(ctx, b.name, raw)
}

// Blur marks the field touched and validates when the current mode reacts
// to blur events.
func (b *Binding) Blur(ctx context.Context) error {
	return b.engine.blur(ctx, b.name)
}

// Value returns the current value, nil while the field is disabled.
func (b *Binding) Value() any {
	return b.engine.GetValue(b.name)
}

// Error returns the active violation of the field.
func (b *Binding) Error() (rules.Violation, bool) {
	state := b.engine.State()
	v, ok := state.Errors[b.name]
	return v, ok
}

// Disabled reports whether the field is currently disabled.
func (b *Binding) Disabled() bool {
	return b.engine.IsDisabled(b.name)
}

type event int

const (
	eventChange event = iota
	eventBlur
)

func modeFires(mode Mode, ev event, touched bool) bool {
	switch mode {
	case ModeAll:
		return true
	case ModeOnChange:
		return ev == eventChange
	case ModeOnBlur:
		return ev == eventBlur
	case ModeOnTouched:
		return ev == eventBlur || touched
	default:
		return false
	}
}

func (e *Engine) firesLocked(name string, ev event) bool {
	if e.submitted {
		return modeFires(e.reValidateMode, ev, e.touched[name])
	}
	return modeFires(e.mode, ev, e.touched[name])
}

func (e *Engine) change(ctx context.Context, name string, raw any) error {
	if err := e.usable(); err != nil {
		return err
	}

	e.mu.Lock()
	f, ok := e.fields[name]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	if s, isString := raw.(string); isString && e.sanitizer != nil {
		raw = e.sanitizer.Sanitize(name, s)
	}
	value := f.rules.ValueAs.Coerce(raw)
	if _, err := e.writeLocked(name, value); err != nil {
		e.mu.Unlock()
		return err
	}
	e.refreshDirtyLocked(name)
	validate := e.firesLocked(name, eventChange)
	p := e.commitLocked(&Change{Name: name, Kind: ChangeValue})
	e.mu.Unlock()

	p.dispatch()
	if !validate {
		return nil
	}
	_, err := e.validateField(ctx, name)
	return err
}

func (e *Engine) blur(ctx context.Context, name string) error {
	if err := e.usable(); err != nil {
		return err
	}

	e.mu.Lock()
	if _, ok := e.fields[name]; !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	e.touched[name] = true
	validate := e.firesLocked(name, eventBlur)
	p := e.commitLocked(nil)
	e.mu.Unlock()

	p.dispatch()
	if !validate {
		return nil
	}
	_, err := e.validateField(ctx, name)
	return err
}
