package rules

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// RunOptions tunes a single evaluation.
type RunOptions struct {
	// Timeout bounds each asynchronous predicate. Zero waits indefinitely.
	Timeout time.Duration
	// Tags evaluates Tag rules. A nil value uses a shared default validator.
	Tags *validator.Validate
}

var defaultTags = validator.New()

// ErrPredicatePanic is the Cause of a violation recorded for a predicate or
// tag validator that panicked.
var ErrPredicatePanic = errors.New("rules: predicate panicked")

// Run evaluates the set against value and returns the first violation, or
// nil when every rule passes. The error return is reserved for cancellation
// of ctx; validation failures are always reported as violations.
//
// Run does not consult Disabled or DisabledWhen: callers resolve the disabled
// policy before invoking it.
func (s Set) Run(ctx context.Context, value any, opts RunOptions) (*Violation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if IsEmpty(value) {
		if s.Required != nil {
			return &Violation{Kind: KindRequired, Message: messageOr(s.Required.Message, "value is required")}, nil
		}
		return nil, nil
	}

	if v := s.checkBounds(value); v != nil {
		return v, nil
	}
	if v := s.checkLength(value); v != nil {
		return v, nil
	}
	if s.Pattern != nil && s.Pattern.Value != nil {
		if !s.Pattern.Value.MatchString(stringify(value)) {
			return &Violation{Kind: KindPattern, Rule: s.Pattern.Value.String(), Message: messageOr(s.Pattern.Message, "value has an invalid format")}, nil
		}
	}
	if s.Tag != nil && s.Tag.Value != "" {
		tags := opts.Tags
		if tags == nil {
			tags = defaultTags
		}
		if err := checkTag(tags, value, s.Tag.Value); err != nil {
			if errors.Is(err, ErrPredicatePanic) {
				return &Violation{Kind: KindTag, Rule: s.Tag.Value, Message: err.Error(), Cause: err}, nil
			}
			var invalid *validator.InvalidValidationError
			if errors.As(err, &invalid) {
				return &Violation{Kind: KindTag, Rule: s.Tag.Value, Message: err.Error(), Cause: err}, nil
			}
			return &Violation{Kind: KindTag, Rule: s.Tag.Value, Message: messageOr(s.Tag.Message, fmt.Sprintf("value must satisfy %q", s.Tag.Value))}, nil
		}
	}

	for _, named := range s.Validate {
		v, err := runNamed(ctx, named, value, opts.Timeout)
		if err != nil {
			return nil, err
		}
		if v != nil {
			return v, nil
		}
	}
	return nil, nil
}

func (s Set) checkBounds(value any) *Violation {
	if s.Min == nil && s.Max == nil {
		return nil
	}
	n, ok := toFloat(value)
	if !ok {
		bound := s.Min
		kind := KindMin
		if bound == nil {
			bound, kind = s.Max, KindMax
		}
		return &Violation{Kind: kind, Message: messageOr(bound.Message, "value must be a number")}
	}
	if s.Min != nil && n < s.Min.Value {
		return &Violation{Kind: KindMin, Rule: formatFloat(s.Min.Value), Message: messageOr(s.Min.Message, "value must be at least "+formatFloat(s.Min.Value))}
	}
	if s.Max != nil && n > s.Max.Value {
		return &Violation{Kind: KindMax, Rule: formatFloat(s.Max.Value), Message: messageOr(s.Max.Message, "value must be at most "+formatFloat(s.Max.Value))}
	}
	return nil
}

func (s Set) checkLength(value any) *Violation {
	if s.MinLength == nil && s.MaxLength == nil {
		return nil
	}
	n := length(value)
	if s.MinLength != nil && n < s.MinLength.Value {
		return &Violation{Kind: KindMinLength, Rule: strconv.Itoa(s.MinLength.Value), Message: messageOr(s.MinLength.Message, fmt.Sprintf("value must be at least %d long", s.MinLength.Value))}
	}
	if s.MaxLength != nil && n > s.MaxLength.Value {
		return &Violation{Kind: KindMaxLength, Rule: strconv.Itoa(s.MaxLength.Value), Message: messageOr(s.MaxLength.Message, fmt.Sprintf("value must be at most %d long", s.MaxLength.Value))}
	}
	return nil
}

// checkTag runs one validator tag. Unknown tags and panicking custom
// validations surface as ErrPredicatePanic.
func checkTag(tags *validator.Validate, value any, tag string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: tag %q: %v", ErrPredicatePanic, tag, r)
		}
	}()
	return tags.Var(value, tag)
}

type asyncResult struct {
	verdict Verdict
	err     error
}

func callSync(named Named, value any) (v *Violation) {
	defer func() {
		if r := recover(); r != nil {
			v = panicViolation(named.Name, r)
		}
	}()
	return verdictViolation(named.Name, named.Sync(value))
}

func panicViolation(name string, r any) *Violation {
	err := fmt.Errorf("%w: %s: %v", ErrPredicatePanic, name, r)
	return &Violation{Kind: KindValidate, Rule: name, Message: err.Error(), Cause: err}
}

func runNamed(ctx context.Context, named Named, value any, timeout time.Duration) (*Violation, error) {
	switch {
	case named.Sync != nil:
		return callSync(named, value), nil
	case named.Async == nil:
		return nil, nil
	}

	callCtx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	done := make(chan asyncResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- asyncResult{err: fmt.Errorf("%w: %s: %v", ErrPredicatePanic, named.Name, r)}
			}
		}()
		verdict, err := named.Async(callCtx, value)
		done <- asyncResult{verdict: verdict, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.Is(res.err, context.DeadlineExceeded) && callCtx.Err() != nil {
				return timeoutViolation(named.Name, timeout), nil
			}
			return &Violation{Kind: KindValidate, Rule: named.Name, Message: res.err.Error(), Cause: res.err}, nil
		}
		return verdictViolation(named.Name, res.verdict), nil
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return timeoutViolation(named.Name, timeout), nil
	}
}

func verdictViolation(name string, verdict Verdict) *Violation {
	if verdict.OK() {
		return nil
	}
	return &Violation{Kind: KindValidate, Rule: name, Message: messageOr(verdict.Message(), name+" failed")}
}

func timeoutViolation(name string, timeout time.Duration) *Violation {
	return &Violation{
		Kind:    KindTimeout,
		Rule:    name,
		Message: fmt.Sprintf("%s did not finish within %s", name, timeout),
		Cause:   context.DeadlineExceeded,
	}
}

// IsEmpty reports whether value counts as absent for the Required rule: nil,
// the empty string, NaN, the zero time and empty slices or maps.
func IsEmpty(value any) bool {
	switch typed := value.(type) {
	case nil:
		return true
	case string:
		return typed == ""
	case float64:
		return math.IsNaN(typed)
	case float32:
		return math.IsNaN(float64(typed))
	case time.Time:
		return typed.IsZero()
	case bool:
		return false
	case []any:
		return len(typed) == 0
	case map[string]any:
		return len(typed) == 0
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// Coerce converts raw input according to kind. Number coercion yields NaN
// for unparsable input and date coercion yields the zero time, so both end
// up empty for the Required rule.
func (k ValueKind) Coerce(raw any) any {
	switch k {
	case ValueAsNumber:
		if n, ok := toFloat(raw); ok {
			return n
		}
		return math.NaN()
	case ValueAsDate:
		switch typed := raw.(type) {
		case time.Time:
			return typed
		case string:
			return parseDate(typed)
		default:
			return time.Time{}
		}
	default:
		return raw
	}
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, time.RFC3339Nano}

func parseDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

func toFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, !math.IsNaN(typed)
	case float32:
		return float64(typed), !math.IsNaN(float64(typed))
	case int:
		return float64(typed), true
	case int8:
		return float64(typed), true
	case int16:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case uint:
		return float64(typed), true
	case uint8:
		return float64(typed), true
	case uint16:
		return float64(typed), true
	case uint32:
		return float64(typed), true
	case uint64:
		return float64(typed), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil || math.IsNaN(n) {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func length(value any) int {
	switch typed := value.(type) {
	case string:
		return utf8.RuneCountInString(typed)
	case []any:
		return len(typed)
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		return rv.Len()
	}
	return utf8.RuneCountInString(stringify(value))
}

func stringify(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case time.Time:
		return typed.Format("2006-01-02")
	case float64:
		return formatFloat(typed)
	default:
		return fmt.Sprint(value)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func messageOr(message, fallback string) string {
	if strings.TrimSpace(message) == "" {
		return fallback
	}
	return message
}
