package form

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	jsonpatch "github.com/evanphx/json-patch/v5"
	"go.uber.org/zap"

	"github.com/goliatone/go-formstate/internal/valuepath"
)

// SetValue writes value at name without going through a binding. Nested
// objects ("social") and whole arrays ("phNumbers") may be written at once;
// every registered field at or beneath the path is affected. Each option
// applies independently.
func (e *Engine) SetValue(ctx context.Context, name string, value any, opts SetValueOptions) error {
	if err := e.usable(); err != nil {
		return err
	}
	path, err := valuepath.Normalize(name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidName, err)
	}

	e.mu.Lock()
	if err := valuepath.Check(e.values, path); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrInvalidPath, err)
	}
	affected, err := e.writeLocked(path, value)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	for _, fieldName := range affected {
		if opts.ShouldTouch {
			e.touched[fieldName] = true
		}
		if opts.ShouldDirty {
			e.refreshDirtyLocked(fieldName)
		}
	}
	if opts.ShouldDirty {
		if _, isArray := e.arrays[path]; isArray {
			e.refreshDirtyLocked(path)
		}
	}
	p := e.commitLocked(&Change{Name: path, Kind: ChangeValue})
	e.mu.Unlock()

	p.dispatch()
	if !opts.ShouldValidate || len(affected) == 0 {
		return nil
	}
	_, err = e.Trigger(ctx, affected...)
	return err
}

// GetValues returns a deep copy of the current value tree. Values of
// disabled fields are absent.
func (e *Engine) GetValues() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.visibleValuesLocked()
}

// GetValue returns a copy of the value at name, nil if missing or disabled.
func (e *Engine) GetValue(name string) any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return lookup(e.visibleValuesLocked(), name)
}

// GetValuesOf returns the values at names in the requested order.
func (e *Engine) GetValuesOf(names ...string) []any {
	e.mu.Lock()
	visible := e.visibleValuesLocked()
	e.mu.Unlock()

	out := make([]any, len(names))
	for i, name := range names {
		out[i] = lookup(visible, name)
	}
	return out
}

// DefaultValues returns a copy of the initial snapshot.
func (e *Engine) DefaultValues() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return valuepath.CloneMap(e.initial)
}

// Changes encodes the difference between the initial snapshot and the
// current values as an RFC 7386 JSON merge patch.
func (e *Engine) Changes() ([]byte, error) {
	e.mu.Lock()
	initial := valuepath.JSONSafe(e.initial)
	current := valuepath.JSONSafe(e.visibleValuesLocked())
	e.mu.Unlock()

	original, err := sonic.Marshal(initial)
	if err != nil {
		return nil, fmt.Errorf("form: encode initial values: %w", err)
	}
	modified, err := sonic.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("form: encode current values: %w", err)
	}
	patch, err := jsonpatch.CreateMergePatch(original, modified)
	if err != nil {
		return nil, fmt.Errorf("form: build merge patch: %w", err)
	}
	e.logger.Debug("computed change patch", zap.Int("bytes", len(patch)))
	return patch, nil
}

func lookup(values map[string]any, name string) any {
	value, ok := valuepath.Get(values, name)
	if !ok {
		return nil
	}
	return valuepath.Clone(value)
}

func withinEither(a, b string) bool {
	return valuepath.Within(a, b) || valuepath.Within(b, a)
}
