package form

import (
	"sort"

	"github.com/goliatone/go-formstate/pkg/rules"
)

// Errors maps field names to their active violation.
type Errors map[string]rules.Violation

// Has reports whether name carries a violation.
func (e Errors) Has(name string) bool {
	_, ok := e[name]
	return ok
}

// Message returns the violation message for name, or "".
func (e Errors) Message(name string) string {
	return e[name].Message
}

// Messages flattens the map into name -> message.
func (e Errors) Messages() map[string]string {
	if len(e) == 0 {
		return nil
	}
	out := make(map[string]string, len(e))
	for name, v := range e {
		out[name] = v.Message
	}
	return out
}

// State is an immutable snapshot of the engine's derived flags.
type State struct {
	Errors        Errors   `json:"errors,omitempty"`
	FormErrors    []string `json:"formErrors,omitempty"`
	DirtyFields   []string `json:"dirtyFields,omitempty"`
	TouchedFields []string `json:"touchedFields,omitempty"`
	Validating    []string `json:"validating,omitempty"`

	IsDirty            bool `json:"isDirty"`
	IsValid            bool `json:"isValid"`
	IsValidating       bool `json:"isValidating"`
	IsLoading          bool `json:"isLoading"`
	IsReady            bool `json:"isReady"`
	IsSubmitting       bool `json:"isSubmitting"`
	IsSubmitted        bool `json:"isSubmitted"`
	IsSubmitSuccessful bool `json:"isSubmitSuccessful"`
	SubmitCount        int  `json:"submitCount"`

	// Revision increments with every state change of this engine.
	Revision uint64 `json:"revision"`
}

// Touched reports whether name is in TouchedFields.
func (s State) Touched(name string) bool { return contains(s.TouchedFields, name) }

// Dirty reports whether name is in DirtyFields.
func (s State) Dirty(name string) bool { return contains(s.DirtyFields, name) }

func contains(sorted []string, name string) bool {
	i := sort.SearchStrings(sorted, name)
	return i < len(sorted) && sorted[i] == name
}

// ChangeKind classifies a watch notification.
type ChangeKind string

const (
	ChangeValue    ChangeKind = "value"
	ChangeArray    ChangeKind = "array"
	ChangeReset    ChangeKind = "reset"
	ChangeDefaults ChangeKind = "defaults"
)

// Change describes the mutation behind a watch notification. Name is empty
// for form-wide changes.
type Change struct {
	Name string     `json:"name,omitempty"`
	Kind ChangeKind `json:"kind"`
}

// WatchFunc receives a value snapshot after every value change.
type WatchFunc func(values map[string]any, change Change)

// StateFunc receives a State snapshot after every state change.
type StateFunc func(State)

// Unsubscribe stops a subscription. Calling it more than once is a no-op.
type Unsubscribe func()

// SetValueOptions controls the side effects of SetValue.
type SetValueOptions struct {
	ShouldValidate bool
	ShouldTouch    bool
	ShouldDirty    bool
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k, ok := range set {
		if ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
