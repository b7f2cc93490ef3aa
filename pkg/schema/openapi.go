package schema

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/goliatone/go-formstate/internal/valuepath"
)

// ErrOperationNotFound is returned when the document lacks the requested
// operation or its request body schema.
var ErrOperationNotFound = errors.New("schema: operation not found")

// formatTags maps OpenAPI string formats onto validator tags.
var formatTags = map[string]string{
	"email": "email",
	"uri":   "url",
	"url":   "url",
	"uuid":  "uuid",
	"ipv4":  "ipv4",
	"ipv6":  "ipv6",
}

// FromOpenAPI builds a definition from the JSON request body schema of the
// operation identified by operationID. Nested objects become dotted fields,
// arrays become field arrays, `required` lists become required rules and
// schema defaults seed the default values.
func FromOpenAPI(ctx context.Context, raw []byte, operationID string) (*Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errors.New("schema: openapi document is empty")
	}

	loader := &openapi3.Loader{Context: ctx}
	doc, err := loader.LoadFromData(raw)
	if err != nil {
		return nil, fmt.Errorf("schema: load openapi document: %w", err)
	}

	op := findOperation(doc, operationID)
	if op == nil {
		return nil, fmt.Errorf("%w: %q", ErrOperationNotFound, operationID)
	}
	body := requestSchema(op)
	if body == nil {
		return nil, fmt.Errorf("%w: %q has no request body schema", ErrOperationNotFound, operationID)
	}

	def := &Definition{ID: operationID, Title: op.Summary}
	b := &openAPIBuilder{def: def, defaults: map[string]any{}}
	b.object("", body, nil)
	if len(b.defaults) > 0 {
		def.Defaults = b.defaults
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

func findOperation(doc *openapi3.T, operationID string) *openapi3.Operation {
	if doc.Paths == nil {
		return nil
	}
	paths := doc.Paths.Map()
	keys := make([]string, 0, len(paths))
	for path := range paths {
		keys = append(keys, path)
	}
	sort.Strings(keys)
	for _, path := range keys {
		item := paths[path]
		if item == nil {
			continue
		}
		for _, op := range []*openapi3.Operation{item.Post, item.Put, item.Patch, item.Get, item.Delete} {
			if op != nil && op.OperationID == operationID {
				return op
			}
		}
	}
	return nil
}

func requestSchema(op *openapi3.Operation) *openapi3.Schema {
	if op.RequestBody == nil || op.RequestBody.Value == nil {
		return nil
	}
	content := op.RequestBody.Value.Content
	for _, mediaType := range []string{"application/json", "application/x-www-form-urlencoded", "multipart/form-data"} {
		if mt, ok := content[mediaType]; ok && mt.Schema != nil && mt.Schema.Value != nil {
			return mt.Schema.Value
		}
	}
	return nil
}

type openAPIBuilder struct {
	def      *Definition
	defaults map[string]any
}

func (b *openAPIBuilder) object(prefix string, src *openapi3.Schema, target *[]FieldSpec) {
	required := make(map[string]bool, len(src.Required))
	for _, name := range src.Required {
		required[name] = true
	}
	names := make([]string, 0, len(src.Properties))
	for name := range src.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ref := src.Properties[name]
		if ref == nil || ref.Value == nil {
			continue
		}
		prop := ref.Value
		path := valuepath.Join(prefix, name)

		switch {
		case prop.Type.Is(openapi3.TypeObject) && len(prop.Properties) > 0:
			b.object(path, prop, target)
		case prop.Type.Is(openapi3.TypeArray) && target == nil:
			b.array(path, prop, required[name])
		default:
			spec := fieldFromSchema(path, prop, required[name])
			if target != nil {
				*target = append(*target, spec)
			} else {
				b.def.Fields = append(b.def.Fields, spec)
				if prop.Default != nil {
					_ = valuepath.Set(b.defaults, path, prop.Default)
				}
			}
		}
	}
}

func (b *openAPIBuilder) array(path string, src *openapi3.Schema, required bool) {
	arr := ArraySpec{Name: path, Label: labelFor(path, src)}
	if src.Items != nil && src.Items.Value != nil {
		item := src.Items.Value
		if item.Type.Is(openapi3.TypeObject) && len(item.Properties) > 0 {
			b.object("", item, &arr.Item)
		} else {
			arr.Item = append(arr.Item, fieldFromSchema("", item, required))
		}
	}
	b.def.Arrays = append(b.def.Arrays, arr)
	if src.Default != nil {
		_ = valuepath.Set(b.defaults, path, src.Default)
	}
}

func fieldFromSchema(path string, src *openapi3.Schema, required bool) FieldSpec {
	label := labelFor(path, src)
	spec := FieldSpec{Name: path, Label: label, Help: src.Description}
	if required {
		spec.Required = &RequiredSpec{Value: true, Message: label + " is required"}
	}
	if src.Type.Is(openapi3.TypeNumber) || src.Type.Is(openapi3.TypeInteger) {
		spec.ValueAs = "number"
	}
	if src.Min != nil {
		spec.Min = &Limit[float64]{Value: *src.Min}
	}
	if src.Max != nil {
		spec.Max = &Limit[float64]{Value: *src.Max}
	}
	if src.MinLength > 0 {
		spec.MinLength = &Limit[int]{Value: clampInt(src.MinLength)}
	}
	if src.MaxLength != nil {
		spec.MaxLength = &Limit[int]{Value: clampInt(*src.MaxLength)}
	}
	if src.Pattern != "" {
		spec.Pattern = &Limit[string]{Value: src.Pattern}
	}
	switch format := strings.ToLower(src.Format); format {
	case "date", "date-time":
		spec.ValueAs = "date"
	default:
		if tag, ok := formatTags[format]; ok {
			spec.Tag = &Limit[string]{Value: tag, Message: "Invalid " + format}
		}
	}
	if src.ReadOnly {
		spec.Disabled = true
	}
	return spec
}

func labelFor(path string, src *openapi3.Schema) string {
	if src.Title != "" {
		return src.Title
	}
	segments := valuepath.Split(path)
	if len(segments) == 0 {
		return "Value"
	}
	last := segments[len(segments)-1]
	return strings.ToUpper(last[:1]) + last[1:]
}

func clampInt(v uint64) int {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}
