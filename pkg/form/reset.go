package form

import (
	"go.uber.org/zap"

	"github.com/goliatone/go-formstate/internal/valuepath"
	"github.com/goliatone/go-formstate/pkg/rules"
)

// Reset restores the form. A nil map restores the initial snapshot; any
// other map becomes the new initial snapshot. Errors, touched and dirty
// flags and the submitted flags are cleared. SubmitCount is kept.
func (e *Engine) Reset(values map[string]any) error {
	if err := e.usable(); err != nil {
		return err
	}

	e.mu.Lock()
	if values != nil {
		e.initial = valuepath.NormalizeTree(values)
	}
	e.resetLocked(valuepath.CloneMap(e.initial))
	p := e.commitLocked(&Change{Kind: ChangeReset})
	e.mu.Unlock()

	p.dispatch()
	e.logger.Debug("form reset", zap.Bool("replaced", values != nil))
	return nil
}

// resetLocked installs values and clears every per-field flag. Field arrays
// get fresh identity keys sized to the new values.
func (e *Engine) resetLocked(values map[string]any) {
	e.values = values
	e.errors = make(map[string]rules.Violation)
	e.formErrors = nil
	e.touched = make(map[string]bool)
	e.dirty = make(map[string]bool)
	e.submitted = false
	e.successful = false
	for _, f := range e.fields {
		f.gen++
		f.validated = false
	}
	for name, arr := range e.arrays {
		arr.keys = nil
		e.syncArrayLocked(name, arr)
	}
}
