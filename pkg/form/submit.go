package form

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/goliatone/go-formstate/internal/valuepath"
)

// ValidFunc receives the submitted values once every field passed.
type ValidFunc func(ctx context.Context, values map[string]any) error

// InvalidFunc receives the error map of a submission that failed validation.
type InvalidFunc func(ctx context.Context, errs Errors)

// SubmitFunc runs one submission attempt.
type SubmitFunc func(ctx context.Context) error

// HandleSubmit builds a submit handler. Each invocation validates every
// field, then calls onInvalid with the error map or onValid with the
// current values. Validation failures are reported to onInvalid and return
// nil; an onValid failure is returned as a *SubmitError. SubmitCount only
// advances when onValid succeeds.
func (e *Engine) HandleSubmit(onValid ValidFunc, onInvalid InvalidFunc) SubmitFunc {
	return func(ctx context.Context) error {
		if err := e.usable(); err != nil {
			return err
		}

		e.mu.Lock()
		if e.submitting {
			e.mu.Unlock()
			return ErrSubmitInProgress
		}
		e.submitting = true
		e.successful = false
		e.clearExternalErrorsLocked()
		p := e.commitLocked(nil)
		e.mu.Unlock()
		p.dispatch()

		valid, err := e.Trigger(ctx)
		if err != nil {
			e.finishSubmit(false)
			return fmt.Errorf("form: validate before submit: %w", err)
		}

		if !valid {
			e.mu.Lock()
			errs := e.visibleErrorsLocked()
			e.mu.Unlock()
			e.finishSubmit(false)
			e.logger.Debug("submit rejected", zap.Int("errors", len(errs)))
			if onInvalid != nil {
				onInvalid(ctx, errs)
			}
			return nil
		}

		values := e.GetValues()
		if onValid != nil {
			if err := callValid(ctx, onValid, values); err != nil {
				e.finishSubmit(false)
				e.logger.Warn("submit handler failed", zap.Error(err))
				return &SubmitError{Err: err}
			}
		}
		e.finishSubmit(true)
		e.logger.Debug("submit succeeded")

		if e.resetOnSuccess {
			e.resetAfterSubmit()
		}
		return nil
	}
}

func callValid(ctx context.Context, fn ValidFunc, values map[string]any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in submit handler: %v", r)
		}
	}()
	return fn(ctx, values)
}

func (e *Engine) finishSubmit(success bool) {
	e.mu.Lock()
	e.submitting = false
	e.submitted = true
	e.successful = success
	if success {
		e.submitCount++
	}
	p := e.commitLocked(nil)
	e.mu.Unlock()
	p.dispatch()
}

// clearExternalErrorsLocked drops form-level messages and errors recorded
// for names no registered field validates.
func (e *Engine) clearExternalErrorsLocked() {
	e.formErrors = nil
	for name := range e.errors {
		if _, ok := e.fields[name]; !ok {
			delete(e.errors, name)
		}
	}
}

// resetAfterSubmit restores the initial snapshot exactly like Reset(nil).
// State subscribers have already observed the successful outcome.
func (e *Engine) resetAfterSubmit() {
	e.mu.Lock()
	e.resetLocked(valuepath.CloneMap(e.initial))
	p := e.commitLocked(&Change{Kind: ChangeReset})
	e.mu.Unlock()
	p.dispatch()
}
