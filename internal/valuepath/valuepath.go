// Package valuepath reads and writes dotted field paths ("social.twitter",
// "phNumbers.0.number") against map[string]any value trees.
package valuepath

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// ErrInvalidPath is returned when a path is malformed or traverses a scalar.
var ErrInvalidPath = errors.New("valuepath: invalid path")

// Split breaks a dotted path into its segments. Bracket indices
// ("phNumbers[0].number") are accepted and normalised to dotted form.
func Split(path string) []string {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return nil
	}
	clean = strings.NewReplacer("[", ".", "]", "").Replace(clean)
	return strings.Split(clean, ".")
}

// Normalize returns the canonical dotted form of path, or an error when a
// segment is empty.
func Normalize(path string) (string, error) {
	segments := Split(path)
	if len(segments) == 0 {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	for _, segment := range segments {
		if strings.TrimSpace(segment) == "" || segment != strings.TrimSpace(segment) {
			return "", fmt.Errorf("%w: %q has an empty or padded segment", ErrInvalidPath, path)
		}
	}
	return strings.Join(segments, "."), nil
}

// Join concatenates two paths, skipping empty parts.
func Join(parent, child string) string {
	switch {
	case parent == "":
		return child
	case child == "":
		return parent
	default:
		return parent + "." + child
	}
}

// Within reports whether path equals prefix or sits beneath it.
func Within(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+".")
}

// Get resolves path inside root.
func Get(root map[string]any, path string) (any, bool) {
	segments := Split(path)
	if root == nil || len(segments) == 0 {
		return nil, false
	}
	var current any = root
	for _, segment := range segments {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, ok := parseIndex(segment)
			if !ok || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// Set writes value at path, creating intermediate maps and slices. Numeric
// segments create slices; anything else creates maps.
func Set(root map[string]any, path string, value any) error {
	if root == nil {
		return fmt.Errorf("%w: root map is nil", ErrInvalidPath)
	}
	segments := Split(path)
	if len(segments) == 0 {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	_, err := setIn(root, segments, value, path)
	return err
}

func setIn(node any, segments []string, value any, path string) (any, error) {
	if len(segments) == 0 {
		return value, nil
	}
	segment := segments[0]
	switch typed := node.(type) {
	case map[string]any:
		child, err := setIn(typed[segment], segments[1:], value, path)
		if err != nil {
			return nil, err
		}
		typed[segment] = child
		return typed, nil
	case []any:
		idx, ok := parseIndex(segment)
		if !ok {
			return nil, fmt.Errorf("%w: %q expects an index at %q", ErrInvalidPath, path, segment)
		}
		if idx >= len(typed) {
			typed = append(typed, make([]any, idx+1-len(typed))...)
		}
		child, err := setIn(typed[idx], segments[1:], value, path)
		if err != nil {
			return nil, err
		}
		typed[idx] = child
		return typed, nil
	case nil:
		if idx, ok := parseIndex(segment); ok {
			return setIn(make([]any, idx+1), segments, value, path)
		}
		return setIn(make(map[string]any), segments, value, path)
	default:
		return nil, fmt.Errorf("%w: %q traverses a %T at %q", ErrInvalidPath, path, node, segment)
	}
}

// Check verifies that path could be written into root without replacing a
// scalar. Missing branches are fine.
func Check(root map[string]any, path string) error {
	segments := Split(path)
	if len(segments) == 0 {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	var current any = root
	for _, segment := range segments {
		switch node := current.(type) {
		case nil:
			return nil
		case map[string]any:
			current = node[segment]
		case []any:
			idx, ok := parseIndex(segment)
			if !ok {
				return fmt.Errorf("%w: %q expects an index at %q", ErrInvalidPath, path, segment)
			}
			if idx >= len(node) {
				return nil
			}
			current = node[idx]
		default:
			return fmt.Errorf("%w: %q traverses a %T at %q", ErrInvalidPath, path, node, segment)
		}
	}
	return nil
}

// Delete removes the leaf at path. Slice entries are set to nil so sibling
// positions stay stable.
func Delete(root map[string]any, path string) bool {
	segments := Split(path)
	if root == nil || len(segments) == 0 {
		return false
	}
	parent := any(root)
	if len(segments) > 1 {
		var ok bool
		parent, ok = Get(root, strings.Join(segments[:len(segments)-1], "."))
		if !ok {
			return false
		}
	}
	leaf := segments[len(segments)-1]
	switch node := parent.(type) {
	case map[string]any:
		if _, ok := node[leaf]; !ok {
			return false
		}
		delete(node, leaf)
		return true
	case []any:
		idx, ok := parseIndex(leaf)
		if !ok || idx >= len(node) {
			return false
		}
		node[idx] = nil
		return true
	default:
		return false
	}
}

// IndexUnder splits a path that lives beneath the array at prefix into its
// entry index and the remainder ("phNumbers.2.number" -> 2, "number").
func IndexUnder(path, prefix string) (int, string, bool) {
	if !strings.HasPrefix(path, prefix+".") {
		return 0, "", false
	}
	tail := path[len(prefix)+1:]
	head, rest, _ := strings.Cut(tail, ".")
	idx, ok := parseIndex(head)
	if !ok {
		return 0, "", false
	}
	return idx, rest, true
}

// AtIndex builds the path of entry idx beneath prefix, appending rest.
func AtIndex(prefix string, idx int, rest string) string {
	return Join(prefix+"."+strconv.Itoa(idx), rest)
}

// CloneMap deep copies a value tree. A nil map yields an empty one.
func CloneMap(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = Clone(v)
	}
	return out
}

// Clone deep copies maps and slices; other values are returned as-is.
func Clone(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return CloneMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, v := range typed {
			out[i] = Clone(v)
		}
		return out
	default:
		return typed
	}
}

// NormalizeTree converts typed maps and slices (map[string]string, []string,
// []map[string]any, ...) into the map[string]any / []any shapes the rest of
// the package understands. Byte slices are left alone.
func NormalizeTree(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = NormalizeValue(v)
	}
	return out
}

// NormalizeValue is the single-value form of NormalizeTree.
func NormalizeValue(value any) any {
	switch typed := value.(type) {
	case nil:
		return nil
	case map[string]any:
		return NormalizeTree(typed)
	case []any:
		out := make([]any, len(typed))
		for i, v := range typed {
			out[i] = NormalizeValue(v)
		}
		return out
	case []byte:
		return typed
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return value
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = NormalizeValue(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = NormalizeValue(rv.Index(i).Interface())
		}
		return out
	default:
		return value
	}
}

func parseIndex(segment string) (int, bool) {
	if segment == "" {
		return 0, false
	}
	for _, r := range segment {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	idx, err := strconv.Atoi(segment)
	if err != nil {
		return 0, false
	}
	return idx, true
}

// JSONSafe returns a copy of src with values JSON encoders reject (NaN and
// infinities) replaced by nil.
func JSONSafe(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = jsonSafe(v)
	}
	return out
}

func jsonSafe(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return JSONSafe(typed)
	case []any:
		out := make([]any, len(typed))
		for i, v := range typed {
			out[i] = jsonSafe(v)
		}
		return out
	case float64:
		if math.IsNaN(typed) || math.IsInf(typed, 0) {
			return nil
		}
		return typed
	case float32:
		if math.IsNaN(float64(typed)) || math.IsInf(float64(typed), 0) {
			return nil
		}
		return typed
	default:
		return typed
	}
}
