package form

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidName is returned for empty or malformed field names.
	ErrInvalidName = errors.New("form: invalid field name")
	// ErrInvalidPath is returned when a field path would traverse a scalar
	// value in the current value tree.
	ErrInvalidPath = errors.New("form: invalid field path")
	// ErrInvalidRule is returned when a rule set cannot be evaluated, for
	// example a malformed DisabledWhen expression.
	ErrInvalidRule = errors.New("form: invalid rule")
	// ErrUnknownField is returned when an operation names a field that was
	// never registered.
	ErrUnknownField = errors.New("form: unknown field")
	// ErrNotReady is returned by mutating operations while default values
	// are still being resolved.
	ErrNotReady = errors.New("form: not ready")
	// ErrDefaultsFailed wraps the provider error when default values could
	// not be resolved. The engine stays unusable afterwards.
	ErrDefaultsFailed = errors.New("form: default values failed")
	// ErrSubmitInProgress is returned when a submit handler is invoked while
	// a previous submission is still running.
	ErrSubmitInProgress = errors.New("form: submit in progress")
	// ErrIndexOutOfRange is returned by field array operations given an
	// index outside the current entries. The array is left untouched.
	ErrIndexOutOfRange = errors.New("form: index out of range")
	// ErrNotArray is returned when a field array is bound to a value that is
	// not a list.
	ErrNotArray = errors.New("form: value is not an array")
)

// SubmitError reports a failure raised by the onValid handler of a
// submission. Validation failures never produce a SubmitError.
type SubmitError struct {
	Err error
}

func (e *SubmitError) Error() string {
	if e == nil || e.Err == nil {
		return "form: submit failed"
	}
	return fmt.Sprintf("form: submit failed: %v", e.Err)
}

func (e *SubmitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
