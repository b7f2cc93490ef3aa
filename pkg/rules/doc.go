// Package rules models field validation rules as a closed set of kinds
// (required, numeric bounds, length bounds, pattern, validator tag and custom
// predicates) and evaluates them with a fixed-order interpreter.
//
// Evaluation short-circuits on the first failure. An empty value only ever
// fails the Required rule; every other rule is skipped for empty input.
// Custom predicates run strictly in declaration order, asynchronous ones are
// awaited one at a time, and a predicate is never started once an earlier one
// has failed. Asynchronous predicates are bounded by RunOptions.Timeout; an
// expired predicate produces a KindTimeout violation rather than hanging the
// field.
package rules
