package rules

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Kind enumerates the rule kinds understood by the interpreter. The kind is
// also recorded on every Violation so callers can tell which rule failed.
type Kind string

const (
	KindRequired  Kind = "required"
	KindMin       Kind = "min"
	KindMax       Kind = "max"
	KindMinLength Kind = "minLength"
	KindMaxLength Kind = "maxLength"
	KindPattern   Kind = "pattern"
	KindTag       Kind = "tag"
	KindValidate  Kind = "validate"
	KindTimeout   Kind = "timeout"
	KindManual    Kind = "manual"
	KindServer    Kind = "server"
)

// ValueKind selects how raw input is coerced before it is stored.
type ValueKind string

const (
	ValueAsString ValueKind = ""
	ValueAsNumber ValueKind = "number"
	ValueAsDate   ValueKind = "date"
)

// Violation is a recorded validation failure. Rule carries the predicate
// name for KindValidate failures and the tag for KindTag failures.
type Violation struct {
	Kind    Kind   `json:"type"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
	// Cause is set when a predicate returned a Go error or panicked instead
	// of returning a verdict.
	Cause error `json:"-"`
}

func (v Violation) String() string {
	if v.Rule != "" {
		return fmt.Sprintf("%s(%s): %s", v.Kind, v.Rule, v.Message)
	}
	return fmt.Sprintf("%s: %s", v.Kind, v.Message)
}

// Requirement marks a field as required.
type Requirement struct {
	Message string
}

// Bound is a numeric limit used by Min and Max.
type Bound struct {
	Value   float64
	Message string
}

// Length is a length limit used by MinLength and MaxLength. Strings are
// measured in runes, slices in entries.
type Length struct {
	Value   int
	Message string
}

// Pattern requires non-empty values to match Value.
type Pattern struct {
	Value   *regexp.Regexp
	Message string
}

// Tag runs a go-playground/validator tag expression such as "email" or
// "url" against non-empty values.
type Tag struct {
	Value   string
	Message string
}

// Verdict is the outcome of a custom predicate: either valid, or invalid with
// a message.
type Verdict struct {
	invalid bool
	message string
}

// Pass reports a valid value.
func Pass() Verdict { return Verdict{} }

// Fail reports an invalid value with message.
func Fail(message string) Verdict { return Verdict{invalid: true, message: message} }

// Check passes when ok holds and fails with message otherwise.
func Check(ok bool, message string) Verdict {
	if ok {
		return Pass()
	}
	return Fail(message)
}

// OK reports whether the verdict is valid.
func (v Verdict) OK() bool { return !v.invalid }

// Message returns the failure message, empty for valid verdicts.
func (v Verdict) Message() string { return v.message }

// SyncFunc is a synchronous custom predicate.
type SyncFunc func(value any) Verdict

// AsyncFunc is a predicate that may block (network checks, lookups). It must
// honour ctx; a returned error is recorded as a violation.
type AsyncFunc func(ctx context.Context, value any) (Verdict, error)

// Named is one entry of a field's ordered validate list. Exactly one of Sync
// or Async is set.
type Named struct {
	Name  string
	Sync  SyncFunc
	Async AsyncFunc
}

// Sync builds a synchronous named predicate.
func Sync(name string, fn SyncFunc) Named {
	return Named{Name: name, Sync: fn}
}

// Async builds an asynchronous named predicate.
func Async(name string, fn AsyncFunc) Named {
	return Named{Name: name, Async: fn}
}

// IsAsync reports whether the predicate may block.
func (n Named) IsAsync() bool { return n.Async != nil }

// Set is the full rule set of a field. Rules run in a fixed order: Required,
// Min/Max, MinLength/MaxLength, Pattern, Tag, then Validate in declaration
// order.
type Set struct {
	Required  *Requirement
	Min       *Bound
	Max       *Bound
	MinLength *Length
	MaxLength *Length
	Pattern   *Pattern
	Tag       *Tag
	Validate  []Named

	// Disabled excludes the field from validation and submission.
	Disabled bool
	// DisabledWhen is a condition expression evaluated against the current
	// values; when it holds the field behaves as Disabled.
	DisabledWhen string

	ValueAs ValueKind
}

// IsZero reports whether the set carries no validation rules at all. Such
// fields are always valid.
func (s Set) IsZero() bool {
	return s.Required == nil && s.Min == nil && s.Max == nil &&
		s.MinLength == nil && s.MaxLength == nil && s.Pattern == nil &&
		s.Tag == nil && len(s.Validate) == 0
}

// HasAsync reports whether any validate predicate is asynchronous.
func (s Set) HasAsync() bool {
	for _, named := range s.Validate {
		if named.IsAsync() {
			return true
		}
	}
	return false
}

// Required returns a requirement with message.
func Required(message string) *Requirement {
	return &Requirement{Message: message}
}

// Min returns a lower numeric bound.
func Min(value float64, message string) *Bound {
	return &Bound{Value: value, Message: message}
}

// Max returns an upper numeric bound.
func Max(value float64, message string) *Bound {
	return &Bound{Value: value, Message: message}
}

// MinLength returns a lower length bound.
func MinLength(value int, message string) *Length {
	return &Length{Value: value, Message: message}
}

// MaxLength returns an upper length bound.
func MaxLength(value int, message string) *Length {
	return &Length{Value: value, Message: message}
}

// MatchPattern compiles expr into a Pattern rule.
func MatchPattern(expr, message string) (*Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("rules: compile pattern %q: %w", expr, err)
	}
	return &Pattern{Value: re, Message: message}, nil
}

// MustPattern is MatchPattern that panics on invalid expressions. Useful for
// package-level rule declarations.
func MustPattern(expr, message string) *Pattern {
	p, err := MatchPattern(expr, message)
	if err != nil {
		panic(err)
	}
	return p
}

// ValidatorTag returns a Tag rule.
func ValidatorTag(tag, message string) *Tag {
	return &Tag{Value: strings.TrimSpace(tag), Message: message}
}
