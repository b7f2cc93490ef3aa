package form

import (
	"context"
	"errors"
	"fmt"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/goliatone/go-formstate/internal/valuepath"
	"github.com/goliatone/go-formstate/pkg/rules"
)

// Trigger validates the named fields, or every registered field when no
// names are given. Distinct fields validate concurrently; the predicates of
// one field always run in sequence. A name may address a group ("social")
// or an array ("phNumbers"), which expands to the fields beneath it.
//
// Without names the result is the validity of the whole form; with names it
// is the combined result of those fields.
func (e *Engine) Trigger(ctx context.Context, names ...string) (bool, error) {
	if err := e.usable(); err != nil {
		return false, err
	}
	targets, err := e.expandTargets(names)
	if err != nil {
		return false, err
	}

	results := make([]bool, len(targets))
	errs := make([]error, len(targets))
	var wg conc.WaitGroup
	for i, name := range targets {
		wg.Go(func() {
			results[i], errs[i] = e.validateField(ctx, name)
		})
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return false, err
	}
	if len(names) == 0 {
		e.mu.Lock()
		valid := e.validLocked()
		e.mu.Unlock()
		return valid, nil
	}
	for _, ok := range results {
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (e *Engine) expandTargets(names []string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(names) == 0 {
		return append([]string(nil), e.order...), nil
	}

	var out []string
	seen := make(map[string]struct{})
	for _, name := range names {
		matched := false
		for _, path := range e.order {
			if !valuepath.Within(path, name) {
				continue
			}
			matched = true
			if _, dup := seen[path]; !dup {
				seen[path] = struct{}{}
				out = append(out, path)
			}
		}
		if !matched {
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
		}
	}
	return out, nil
}

// validateField runs the rule set of one field and applies the outcome
// unless a newer write or validation superseded it in the meantime.
func (e *Engine) validateField(ctx context.Context, name string) (bool, error) {
	e.mu.Lock()
	f, ok := e.fields[name]
	if !ok {
		e.mu.Unlock()
		return false, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	if e.disabledLocked(name) {
		delete(e.errors, name)
		f.validated = true
		p := e.commitLocked(nil)
		e.mu.Unlock()
		p.dispatch()
		return true, nil
	}

	f.gen++
	gen := f.gen
	set := f.rules
	value := lookup(e.values, name)
	f.pending++
	var started publication
	if set.HasAsync() {
		started = e.commitLocked(nil)
	}
	opts := rules.RunOptions{Timeout: e.timeout, Tags: e.tags}
	e.mu.Unlock()
	started.dispatch()

	violation, runErr := set.Run(ctx, value, opts)

	e.mu.Lock()
	f.pending--
	if runErr != nil {
		p := e.commitLocked(nil)
		e.mu.Unlock()
		p.dispatch()
		return false, fmt.Errorf("form: validate %q: %w", name, runErr)
	}
	if e.fields[name] != f || f.gen != gen {
		_, failing := e.errors[name]
		current := f.validated && !failing
		p := e.commitLocked(nil)
		e.mu.Unlock()
		p.dispatch()
		e.logger.Debug("discarded stale validation result", zap.String("field", name))
		return current, nil
	}

	if violation != nil {
		e.errors[name] = *violation
	} else {
		delete(e.errors, name)
	}
	f.validated = true
	p := e.commitLocked(nil)
	e.mu.Unlock()
	p.dispatch()

	if violation != nil {
		fields := []zap.Field{
			zap.String("field", name),
			zap.String("kind", string(violation.Kind)),
			zap.String("rule", violation.Rule),
		}
		switch {
		case violation.Kind == rules.KindTimeout:
			e.logger.Warn("validator timed out", fields...)
		case violation.Cause != nil:
			e.logger.Warn("validator failed", append(fields, zap.Error(violation.Cause))...)
		default:
			e.logger.Debug("field invalid", fields...)
		}
		return false, nil
	}
	e.logger.Debug("field valid", zap.String("field", name))
	return true, nil
}
