package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-formstate/internal/valuepath"
	"github.com/goliatone/go-formstate/pkg/form"
	"github.com/goliatone/go-formstate/pkg/rules"
)

var (
	// ErrInvalidDefinition wraps structural problems found while loading.
	ErrInvalidDefinition = errors.New("schema: invalid definition")
	// ErrUnknownPredicate is returned when a field names a predicate the
	// registry does not hold.
	ErrUnknownPredicate = errors.New("schema: unknown predicate")
)

// Definition is a declarative form: engine settings, default values, plain
// fields and field arrays.
type Definition struct {
	ID             string         `yaml:"id" json:"id"`
	Title          string         `yaml:"title,omitempty" json:"title,omitempty"`
	Mode           string         `yaml:"mode,omitempty" json:"mode,omitempty"`
	ReValidateMode string         `yaml:"reValidateMode,omitempty" json:"reValidateMode,omitempty"`
	Defaults       map[string]any `yaml:"defaults,omitempty" json:"defaults,omitempty"`
	Fields         []FieldSpec    `yaml:"fields" json:"fields"`
	Arrays         []ArraySpec    `yaml:"arrays,omitempty" json:"arrays,omitempty"`
}

// FieldSpec declares one field and its rules. Inside an ArraySpec the name is
// relative to the entry, and an empty name addresses the entry itself.
type FieldSpec struct {
	Name         string          `yaml:"name" json:"name"`
	Label        string          `yaml:"label,omitempty" json:"label,omitempty"`
	Help         string          `yaml:"help,omitempty" json:"help,omitempty"`
	Required     *RequiredSpec   `yaml:"required,omitempty" json:"required,omitempty"`
	Min          *Limit[float64] `yaml:"min,omitempty" json:"min,omitempty"`
	Max          *Limit[float64] `yaml:"max,omitempty" json:"max,omitempty"`
	MinLength    *Limit[int]     `yaml:"minLength,omitempty" json:"minLength,omitempty"`
	MaxLength    *Limit[int]     `yaml:"maxLength,omitempty" json:"maxLength,omitempty"`
	Pattern      *Limit[string]  `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Tag          *Limit[string]  `yaml:"tag,omitempty" json:"tag,omitempty"`
	Validate     []string        `yaml:"validate,omitempty" json:"validate,omitempty"`
	Disabled     bool            `yaml:"disabled,omitempty" json:"disabled,omitempty"`
	DisabledWhen string          `yaml:"disabledWhen,omitempty" json:"disabledWhen,omitempty"`
	ValueAs      string          `yaml:"valueAs,omitempty" json:"valueAs,omitempty"`
}

// ArraySpec declares a dynamic list and the fields of each entry.
type ArraySpec struct {
	Name  string      `yaml:"name" json:"name"`
	Label string      `yaml:"label,omitempty" json:"label,omitempty"`
	Item  []FieldSpec `yaml:"item" json:"item"`
}

// Limit is a rule argument with an optional message. It decodes from either
// a bare scalar (`minLength: 3`) or a mapping (`{value: 3, message: ...}`).
type Limit[T any] struct {
	Value   T      `yaml:"value" json:"value"`
	Message string `yaml:"message,omitempty" json:"message,omitempty"`
}

func (l *Limit[T]) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.MappingNode {
		var raw struct {
			Value   T      `yaml:"value"`
			Message string `yaml:"message"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		l.Value, l.Message = raw.Value, raw.Message
		return nil
	}
	return node.Decode(&l.Value)
}

// RequiredSpec decodes `required: true`, `required: "Message"` or
// `required: {value: true, message: "Message"}`.
type RequiredSpec struct {
	Value   bool   `yaml:"value" json:"value"`
	Message string `yaml:"message,omitempty" json:"message,omitempty"`
}

func (r *RequiredSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		raw := struct {
			Value   *bool  `yaml:"value"`
			Message string `yaml:"message"`
		}{}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		r.Value = raw.Value == nil || *raw.Value
		r.Message = raw.Message
		return nil
	case yaml.ScalarNode:
		if node.ShortTag() == "!!bool" {
			return node.Decode(&r.Value)
		}
		r.Value = true
		r.Message = node.Value
		return nil
	default:
		return fmt.Errorf("schema: required must be a bool, string or mapping (line %d)", node.Line)
	}
}

// Load decodes a YAML or JSON definition and validates it. Unknown keys are
// rejected.
func Load(raw []byte) (*Definition, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: document is empty", ErrInvalidDefinition)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadFS reads and decodes name from fsys.
func LoadFS(fsys fs.FS, name string) (*Definition, error) {
	if fsys == nil {
		return nil, errors.New("schema: file system is nil")
	}
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", name, err)
	}
	def, err := Load(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return def, nil
}

// Validate checks names, modes, value kinds and patterns.
func (d *Definition) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: definition is nil", ErrInvalidDefinition)
	}
	var problems []error
	if _, ok := form.ParseMode(d.Mode); !ok {
		problems = append(problems, fmt.Errorf("mode %q is not recognised", d.Mode))
	}
	if d.ReValidateMode != "" {
		if _, ok := form.ParseMode(d.ReValidateMode); !ok {
			problems = append(problems, fmt.Errorf("reValidateMode %q is not recognised", d.ReValidateMode))
		}
	}

	seen := make(map[string]struct{})
	claim := func(name string) {
		if _, dup := seen[name]; dup {
			problems = append(problems, fmt.Errorf("field %q is declared twice", name))
		}
		seen[name] = struct{}{}
	}

	for _, spec := range d.Fields {
		name, err := valuepath.Normalize(spec.Name)
		if err != nil || name == "" {
			problems = append(problems, fmt.Errorf("field name %q is invalid", spec.Name))
			continue
		}
		claim(name)
		problems = append(problems, spec.check(name)...)
	}
	for _, arr := range d.Arrays {
		name, err := valuepath.Normalize(arr.Name)
		if err != nil || name == "" {
			problems = append(problems, fmt.Errorf("array name %q is invalid", arr.Name))
			continue
		}
		claim(name)
		items := make(map[string]struct{})
		for _, spec := range arr.Item {
			sub, err := itemName(spec.Name)
			if err != nil {
				problems = append(problems, fmt.Errorf("%s: item name %q is invalid", name, spec.Name))
				continue
			}
			if _, dup := items[sub]; dup {
				problems = append(problems, fmt.Errorf("%s: item %q is declared twice", name, sub))
			}
			items[sub] = struct{}{}
			problems = append(problems, spec.check(valuepath.Join(name+".*", sub))...)
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidDefinition, errors.Join(problems...))
}

// itemName normalises an array item name; the empty name stays empty.
func itemName(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	return valuepath.Normalize(raw)
}

func (s FieldSpec) check(label string) []error {
	var problems []error
	switch rules.ValueKind(strings.TrimSpace(s.ValueAs)) {
	case rules.ValueAsString, rules.ValueAsNumber, rules.ValueAsDate:
	default:
		problems = append(problems, fmt.Errorf("%s: valueAs %q is not recognised", label, s.ValueAs))
	}
	if s.Pattern != nil {
		if _, err := rules.MatchPattern(s.Pattern.Value, s.Pattern.Message); err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", label, err))
		}
	}
	if s.Tag != nil && strings.TrimSpace(s.Tag.Value) == "" {
		problems = append(problems, fmt.Errorf("%s: tag is empty", label))
	}
	return problems
}

// RuleSet compiles the spec into a rules.Set, resolving predicate names
// against registry.
func (s FieldSpec) RuleSet(registry *Registry) (rules.Set, error) {
	set := rules.Set{
		Disabled:     s.Disabled,
		DisabledWhen: strings.TrimSpace(s.DisabledWhen),
		ValueAs:      rules.ValueKind(strings.TrimSpace(s.ValueAs)),
	}
	if s.Required != nil && s.Required.Value {
		set.Required = rules.Required(s.Required.Message)
	}
	if s.Min != nil {
		set.Min = rules.Min(s.Min.Value, s.Min.Message)
	}
	if s.Max != nil {
		set.Max = rules.Max(s.Max.Value, s.Max.Message)
	}
	if s.MinLength != nil {
		set.MinLength = rules.MinLength(s.MinLength.Value, s.MinLength.Message)
	}
	if s.MaxLength != nil {
		set.MaxLength = rules.MaxLength(s.MaxLength.Value, s.MaxLength.Message)
	}
	if s.Pattern != nil {
		pattern, err := rules.MatchPattern(s.Pattern.Value, s.Pattern.Message)
		if err != nil {
			return rules.Set{}, err
		}
		set.Pattern = pattern
	}
	if s.Tag != nil {
		set.Tag = rules.ValidatorTag(s.Tag.Value, s.Tag.Message)
	}
	for _, name := range s.Validate {
		named, ok := registry.Lookup(name)
		if !ok {
			return rules.Set{}, fmt.Errorf("%w: %q", ErrUnknownPredicate, name)
		}
		set.Validate = append(set.Validate, named)
	}
	return set, nil
}

// Field returns the spec declared under name, searching plain fields and
// array items (`phNumbers.*.number` style lookups use the array name plus the
// item name).
func (d *Definition) Field(name string) (FieldSpec, bool) {
	for _, spec := range d.Fields {
		if spec.Name == name {
			return spec, true
		}
	}
	for _, arr := range d.Arrays {
		for _, spec := range arr.Item {
			if valuepath.Join(arr.Name+".*", spec.Name) == name {
				return spec, true
			}
		}
	}
	return FieldSpec{}, false
}
