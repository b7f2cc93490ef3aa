// Package formstate is the entry point of the module. It re-exports the
// engine types callers touch most and offers one-call constructors; the
// full surface lives in pkg/form, pkg/rules and pkg/schema.
package formstate

import (
	"context"
	"fmt"

	"github.com/goliatone/go-formstate/pkg/form"
	"github.com/goliatone/go-formstate/pkg/schema"
)

// Engine owns values, validation state and submission flags of one form.
type Engine = form.Engine

// Option configures an Engine.
type Option = form.Option

// State is an immutable snapshot of an engine's flags and errors.
type State = form.State

// Errors maps field names to violations.
type Errors = form.Errors

// Definition is a declarative form description.
type Definition = schema.Definition

// Registry resolves named predicates referenced by definitions.
type Registry = schema.Registry

// Attached holds the bindings and field arrays registered from a definition.
type Attached = schema.Attached

// New constructs an Engine.
func New(opts ...Option) *Engine {
	return form.New(opts...)
}

// FromDefinition builds an engine configured by def and registers its fields.
// opts apply after the definition's own settings, so they take precedence.
func FromDefinition(def *Definition, registry *Registry, opts ...Option) (*Engine, *Attached, error) {
	if def == nil {
		return nil, nil, fmt.Errorf("%w: definition is nil", schema.ErrInvalidDefinition)
	}
	base, err := def.EngineOptions()
	if err != nil {
		return nil, nil, err
	}
	engine := form.New(append(base, opts...)...)
	attached, err := def.Apply(engine, registry)
	if err != nil {
		return nil, nil, err
	}
	return engine, attached, nil
}

// FromYAML loads a definition from raw and builds its engine.
func FromYAML(raw []byte, registry *Registry, opts ...Option) (*Engine, *Attached, error) {
	def, err := schema.Load(raw)
	if err != nil {
		return nil, nil, err
	}
	return FromDefinition(def, registry, opts...)
}

// FromOpenAPI derives a definition from the request body of operationID and
// builds its engine.
func FromOpenAPI(ctx context.Context, raw []byte, operationID string, registry *Registry, opts ...Option) (*Engine, *Attached, error) {
	def, err := schema.FromOpenAPI(ctx, raw, operationID)
	if err != nil {
		return nil, nil, err
	}
	return FromDefinition(def, registry, opts...)
}
