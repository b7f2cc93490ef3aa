// Package condition defines the contract used to evaluate rule conditions such
// as `disabledWhen: channel == ""` against the live values of a form.
package condition

// Evaluator decides whether a condition holds for the field at fieldPath.
type Evaluator interface {
	Eval(fieldPath, rule string, ctx Context) (bool, error)
}

// Context carries the inputs of an evaluation. Values is the current value
// tree of the form; Extras lets callers inject flags or roles reachable
// through the `extras.` prefix.
type Context struct {
	Values map[string]any
	Extras map[string]any
}

// EvaluatorFunc adapts a function into an Evaluator.
type EvaluatorFunc func(fieldPath, rule string, ctx Context) (bool, error)

// Eval delegates to the underlying function.
func (fn EvaluatorFunc) Eval(fieldPath, rule string, ctx Context) (bool, error) {
	return fn(fieldPath, rule, ctx)
}
