package form

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/goliatone/go-formstate/pkg/condition"
)

// Mode selects which field events run validation.
type Mode string

const (
	// ModeOnSubmit validates only when the form is submitted.
	ModeOnSubmit Mode = "onSubmit"
	// ModeOnBlur validates a field when it loses focus.
	ModeOnBlur Mode = "onBlur"
	// ModeOnChange validates a field on every value change.
	ModeOnChange Mode = "onChange"
	// ModeOnTouched validates on the first blur and on every change after.
	ModeOnTouched Mode = "onTouched"
	// ModeAll validates on both blur and change.
	ModeAll Mode = "all"
)

// ParseMode maps a configuration string onto a Mode. Unknown values yield
// ModeOnSubmit and false.
func ParseMode(raw string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "onsubmit", "submit", "":
		return ModeOnSubmit, true
	case "onblur", "blur":
		return ModeOnBlur, true
	case "onchange", "change":
		return ModeOnChange, true
	case "ontouched", "touched":
		return ModeOnTouched, true
	case "all":
		return ModeAll, true
	default:
		return ModeOnSubmit, false
	}
}

// DefaultValidatorTimeout bounds asynchronous predicates unless overridden.
const DefaultValidatorTimeout = 30 * time.Second

// Sanitizer cleans raw string input delivered through bindings.
type Sanitizer interface {
	Sanitize(field, raw string) string
}

// Option configures an Engine.
type Option func(*Engine)

// WithDefaults seeds the initial value snapshot synchronously.
func WithDefaults(values map[string]any) Option {
	return func(e *Engine) {
		e.seed = values
	}
}

// WithDefaultsProvider resolves the initial snapshot asynchronously. The
// engine reports IsLoading until the provider returns.
func WithDefaultsProvider(provider Provider) Option {
	return func(e *Engine) {
		if provider != nil {
			e.provider = provider
		}
	}
}

// WithLoadContext sets the context handed to the defaults provider.
func WithLoadContext(ctx context.Context) Option {
	return func(e *Engine) {
		if ctx != nil {
			e.loadCtx = ctx
		}
	}
}

// WithMode selects the validation mode used before the first submission.
func WithMode(mode Mode) Option {
	return func(e *Engine) {
		if mode != "" {
			e.mode = mode
		}
	}
}

// WithReValidateMode selects the validation mode used after a submission
// attempt.
func WithReValidateMode(mode Mode) Option {
	return func(e *Engine) {
		if mode != "" {
			e.reValidateMode = mode
		}
	}
}

// WithValidatorTimeout bounds each asynchronous predicate. Zero disables the
// bound.
func WithValidatorTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout >= 0 {
			e.timeout = timeout
		}
	}
}

// WithLogger attaches a zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithKeyGenerator overrides how field array identity keys are minted.
// Generators must never repeat a key.
func WithKeyGenerator(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newKey = fn
		}
	}
}

// WithSanitizer cleans string input received through bindings.
func WithSanitizer(s Sanitizer) Option {
	return func(e *Engine) {
		e.sanitizer = s
	}
}

// WithConditionEvaluator replaces the evaluator used for DisabledWhen rules.
func WithConditionEvaluator(evaluator condition.Evaluator) Option {
	return func(e *Engine) {
		if evaluator != nil {
			e.conditions = evaluator
		}
	}
}

// WithConditionExtras exposes extra values to DisabledWhen expressions under
// the "extras." prefix.
func WithConditionExtras(extras map[string]any) Option {
	return func(e *Engine) {
		e.extras = extras
	}
}

// WithTagValidator sets the go-playground validator used by Tag rules, so
// callers can register custom tags.
func WithTagValidator(v *validator.Validate) Option {
	return func(e *Engine) {
		if v != nil {
			e.tags = v
		}
	}
}

// WithResetOnSubmitSuccess resets the form to its initial snapshot after
// every successful submission.
func WithResetOnSubmitSuccess(enabled bool) Option {
	return func(e *Engine) {
		e.resetOnSuccess = enabled
	}
}
