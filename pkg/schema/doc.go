// Package schema describes forms declaratively. A Definition lists fields,
// field arrays, their rules and default values; it can be loaded from YAML or
// JSON, or derived from an OpenAPI request body, and then applied to a
// form.Engine. Custom predicates are referenced by name and resolved through
// a Registry.
package schema
