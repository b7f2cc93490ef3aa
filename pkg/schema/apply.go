package schema

import (
	"fmt"

	"github.com/goliatone/go-formstate/internal/valuepath"
	"github.com/goliatone/go-formstate/pkg/form"
	"github.com/goliatone/go-formstate/pkg/rules"
)

// Attached holds what Apply registered, keyed by field or array name.
type Attached struct {
	Fields map[string]*form.Binding
	Arrays map[string]*form.FieldArray
}

// EngineOptions translates the definition's settings into engine options.
// Callers append their own options after these to override them.
func (d *Definition) EngineOptions() ([]form.Option, error) {
	mode, ok := form.ParseMode(d.Mode)
	if !ok {
		return nil, fmt.Errorf("%w: mode %q is not recognised", ErrInvalidDefinition, d.Mode)
	}
	opts := []form.Option{form.WithMode(mode)}
	if d.ReValidateMode != "" {
		reMode, ok := form.ParseMode(d.ReValidateMode)
		if !ok {
			return nil, fmt.Errorf("%w: reValidateMode %q is not recognised", ErrInvalidDefinition, d.ReValidateMode)
		}
		opts = append(opts, form.WithReValidateMode(reMode))
	}
	if d.Defaults != nil {
		opts = append(opts, form.WithDefaults(d.Defaults))
	}
	return opts, nil
}

// Apply registers every field and array of the definition on engine.
// Predicate names resolve against registry.
func (d *Definition) Apply(engine *form.Engine, registry *Registry) (*Attached, error) {
	if engine == nil {
		return nil, fmt.Errorf("schema: engine is nil")
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	out := &Attached{
		Fields: make(map[string]*form.Binding, len(d.Fields)),
		Arrays: make(map[string]*form.FieldArray, len(d.Arrays)),
	}
	for _, spec := range d.Fields {
		set, err := spec.RuleSet(registry)
		if err != nil {
			return nil, fmt.Errorf("schema: field %s: %w", spec.Name, err)
		}
		binding, err := engine.Register(spec.Name, set)
		if err != nil {
			return nil, fmt.Errorf("schema: field %s: %w", spec.Name, err)
		}
		out.Fields[binding.Name()] = binding
	}
	for _, arr := range d.Arrays {
		item := make(map[string]rules.Set, len(arr.Item))
		for _, spec := range arr.Item {
			sub, _ := itemName(spec.Name)
			set, err := spec.RuleSet(registry)
			if err != nil {
				return nil, fmt.Errorf("schema: array %s item %q: %w", arr.Name, sub, err)
			}
			item[sub] = set
		}
		fa, err := engine.FieldArray(arr.Name, item)
		if err != nil {
			return nil, fmt.Errorf("schema: array %s: %w", arr.Name, err)
		}
		name, _ := valuepath.Normalize(arr.Name)
		out.Arrays[name] = fa
	}
	return out, nil
}
