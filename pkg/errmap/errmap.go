// Package errmap translates server-side validation payloads into the dotted
// field names a form engine registers. Payload keys may use JSON pointers
// ("/body/social/twitter"), bracket indices ("phNumbers[1].number") or
// request wrappers ("data.email"); anything that cannot be matched to a
// registered field is kept as a form-level message.
package errmap

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

// ErrInvalidPayload is returned by Decode for bodies that are not error maps.
var ErrInvalidPayload = errors.New("errmap: invalid payload")

// Mapping holds messages split into field-level and form-level buckets.
type Mapping struct {
	Fields map[string][]string `json:"fields,omitempty"`
	Form   []string            `json:"form,omitempty"`
}

// Empty reports whether the mapping carries no messages.
func (m Mapping) Empty() bool {
	return len(m.Fields) == 0 && len(m.Form) == 0
}

// FieldNames returns the mapped field names in sorted order.
func (m Mapping) FieldNames() []string {
	names := make([]string, 0, len(m.Fields))
	for name := range m.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Map resolves every payload key against fields. The longest registered
// prefix wins, so "phNumbers.1.number.format" lands on "phNumbers.1.number".
func Map(fields []string, payload map[string][]string) Mapping {
	mapping := Mapping{Fields: make(map[string][]string)}
	if len(payload) == 0 {
		mapping.Fields = nil
		return mapping
	}

	known := make(map[string]struct{}, len(fields))
	for _, name := range fields {
		if name = strings.TrimSpace(name); name != "" {
			known[name] = struct{}{}
		}
	}

	keys := make([]string, 0, len(payload))
	for key := range payload {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		messages := dedupe(payload[key])
		if len(messages) == 0 {
			continue
		}
		target, ok := resolve(key, known)
		if !ok {
			mapping.Form = append(mapping.Form, messages...)
			continue
		}
		mapping.Fields[target] = dedupe(append(mapping.Fields[target], messages...))
	}

	if len(mapping.Fields) == 0 {
		mapping.Fields = nil
	}
	mapping.Form = dedupe(mapping.Form)
	return mapping
}

// Decode parses a JSON error body. Both {"field": "msg"} and
// {"field": ["msg", ...]} shapes are accepted, optionally under an "errors"
// envelope.
func Decode(raw []byte) (map[string][]string, error) {
	var body map[string]any
	if err := sonic.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if nested, ok := body["errors"].(map[string]any); ok {
		body = nested
	}

	out := make(map[string][]string, len(body))
	for key, value := range body {
		switch typed := value.(type) {
		case string:
			out[key] = []string{typed}
		case []any:
			for _, item := range typed {
				msg, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("%w: %q holds a non-string message", ErrInvalidPayload, key)
				}
				out[key] = append(out[key], msg)
			}
		default:
			return nil, fmt.Errorf("%w: %q holds %T", ErrInvalidPayload, key, value)
		}
	}
	return out, nil
}

// Merge appends extra form-level messages, trimming and de-duplicating while
// preserving order.
func Merge(existing []string, extras ...string) []string {
	combined := make([]string, 0, len(existing)+len(extras))
	combined = append(combined, existing...)
	combined = append(combined, extras...)
	return dedupe(combined)
}

func resolve(raw string, known map[string]struct{}) (string, bool) {
	if formLevel(raw) {
		return "", false
	}
	segments := segmentsOf(raw)
	if len(segments) == 0 {
		return "", false
	}

	best := ""
	for _, candidate := range variants(segments) {
		match := longestPrefix(candidate, known)
		if strings.Count(match, ".") > strings.Count(best, ".") || (best == "" && match != "") {
			best = match
		}
	}
	return best, best != ""
}

func segmentsOf(path string) []string {
	clean := strings.TrimSpace(path)
	clean = strings.TrimLeft(clean, "#$/.")
	clean = strings.NewReplacer("[", ".", "]", "").Replace(clean)

	parts := strings.FieldsFunc(clean, func(r rune) bool { return r == '.' || r == '/' })
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		part = strings.ReplaceAll(part, "~1", "/")
		part = strings.ReplaceAll(part, "~0", "~")
		out = append(out, part)
	}
	return out
}

var wrappers = map[string]struct{}{
	"body":       {},
	"request":    {},
	"payload":    {},
	"data":       {},
	"attributes": {},
}

// variants yields the raw segments first, then the segments without leading
// request wrappers. Indices are kept: array entries are distinct fields here.
func variants(segments []string) [][]string {
	out := [][]string{segments}
	trimmed := segments
	for len(trimmed) > 0 {
		if _, ok := wrappers[strings.ToLower(trimmed[0])]; !ok {
			break
		}
		trimmed = trimmed[1:]
	}
	if len(trimmed) != len(segments) && len(trimmed) > 0 {
		out = append(out, trimmed)
	}
	if collapsed := collapseIndices(trimmed); len(collapsed) > 0 && len(collapsed) != len(trimmed) {
		out = append(out, collapsed)
	}
	return out
}

// collapseIndices drops numeric segments so "tags.0" can still land on an
// array field registered as "tags".
func collapseIndices(segments []string) []string {
	out := make([]string, 0, len(segments))
	for _, segment := range segments {
		if _, err := strconv.Atoi(segment); err == nil {
			continue
		}
		out = append(out, segment)
	}
	return out
}

func longestPrefix(segments []string, known map[string]struct{}) string {
	for end := len(segments); end > 0; end-- {
		candidate := strings.Join(segments[:end], ".")
		if _, ok := known[candidate]; ok {
			return candidate
		}
	}
	return ""
}

func dedupe(messages []string) []string {
	if len(messages) == 0 {
		return nil
	}
	out := make([]string, 0, len(messages))
	seen := make(map[string]struct{}, len(messages))
	for _, message := range messages {
		trimmed := strings.TrimSpace(message)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func formLevel(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "", ".", "/", "#", "$", "form", "base", "__all__", "non_field_errors", "non-field-errors":
		return true
	default:
		return false
	}
}
