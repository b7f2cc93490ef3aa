// Package form implements a form state engine: it owns field values,
// validation results, dirty and touched flags and the submission lifecycle
// of one form instance.
//
// Fields are registered by dotted path ("social.twitter",
// "phNumbers.0.number") with a rules.Set. Input arrives through bindings
// (Change, Blur) or programmatically through SetValue; the engine's Mode
// decides which events validate. Every registered field is validated before
// a submission, and the submit handler only runs when all of them pass.
//
// The engine serialises state changes behind one lock. Validators, default
// providers, submit handlers and subscribers run outside it, so a slow
// asynchronous predicate never blocks other fields. When a field changes
// while an earlier validation of it is still running, the earlier result is
// discarded.
package form
