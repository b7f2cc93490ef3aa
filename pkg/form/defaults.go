package form

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/goliatone/go-formstate/internal/valuepath"
)

// Provider resolves the initial value snapshot of a form.
type Provider interface {
	DefaultValues(ctx context.Context) (map[string]any, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (map[string]any, error)

// DefaultValues calls f.
func (f ProviderFunc) DefaultValues(ctx context.Context) (map[string]any, error) {
	return f(ctx)
}

func (e *Engine) resolveDefaults(ctx context.Context) {
	values, err := e.provider.DefaultValues(ctx)

	e.mu.Lock()
	e.loading = false
	if err != nil {
		e.initErr = fmt.Errorf("%w: %w", ErrDefaultsFailed, err)
		p := e.commitLocked(nil)
		close(e.ready)
		e.mu.Unlock()

		e.logger.Error("default values failed", zap.Error(err))
		p.dispatch()
		return
	}

	e.initial = valuepath.NormalizeTree(values)
	e.resetLocked(valuepath.CloneMap(e.initial))
	p := e.commitLocked(&Change{Kind: ChangeDefaults})
	close(e.ready)
	e.mu.Unlock()

	e.logger.Debug("default values resolved", zap.Int("keys", len(values)))
	p.dispatch()
}

// Ready blocks until default values are resolved. It returns the wrapped
// ErrDefaultsFailed if resolution failed, or ctx.Err() if ctx ends first.
func (e *Engine) Ready(ctx context.Context) error {
	select {
	case <-e.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initErr
}

// Err reports the defaults failure, if any. It is nil while loading.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initErr
}
