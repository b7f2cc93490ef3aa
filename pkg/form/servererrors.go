package form

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-formstate/internal/valuepath"
	"github.com/goliatone/go-formstate/pkg/errmap"
	"github.com/goliatone/go-formstate/pkg/rules"
)

// SetError records a violation for name. The name need not be registered;
// errors on unregistered names are dropped by the next submission. A
// missing kind defaults to rules.KindManual.
func (e *Engine) SetError(name string, v rules.Violation) error {
	path, err := valuepath.Normalize(name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidName, err)
	}
	if v.Kind == "" {
		v.Kind = rules.KindManual
	}

	e.mu.Lock()
	e.errors[path] = v
	p := e.commitLocked(nil)
	e.mu.Unlock()
	p.dispatch()
	return nil
}

// ClearErrors removes the errors of the named fields and the fields beneath
// them. Without names every error, including form-level ones, is cleared.
func (e *Engine) ClearErrors(names ...string) {
	e.mu.Lock()
	if len(names) == 0 {
		e.errors = make(map[string]rules.Violation)
		e.formErrors = nil
	} else {
		for path := range e.errors {
			for _, name := range names {
				if valuepath.Within(path, name) {
					delete(e.errors, path)
					break
				}
			}
		}
	}
	p := e.commitLocked(nil)
	e.mu.Unlock()
	p.dispatch()
}

// ApplyServerErrors records a mapped server payload: field messages become
// KindServer violations and form messages are appended to FormErrors.
func (e *Engine) ApplyServerErrors(mapping errmap.Mapping) {
	if mapping.Empty() {
		return
	}
	e.mu.Lock()
	for _, name := range mapping.FieldNames() {
		e.errors[name] = rules.Violation{
			Kind:    rules.KindServer,
			Message: strings.Join(mapping.Fields[name], "; "),
		}
	}
	e.formErrors = errmap.Merge(e.formErrors, mapping.Form...)
	p := e.commitLocked(nil)
	e.mu.Unlock()
	p.dispatch()
}

// ApplyServerPayload maps a raw server payload onto the registered fields and
// applies it. The mapping is returned so callers can inspect what landed.
func (e *Engine) ApplyServerPayload(payload map[string][]string) errmap.Mapping {
	mapping := errmap.Map(e.FieldNames(), payload)
	e.ApplyServerErrors(mapping)
	return mapping
}
