package form

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/goliatone/go-formstate/internal/valuepath"
	"github.com/goliatone/go-formstate/pkg/rules"
)

// ArrayEntry is one entry of a field array. Key identifies the entry
// independently of its position and is never reused by the engine.
type ArrayEntry struct {
	Key   string
	Index int
	Value any
}

// FieldArray manipulates an ordered list of field groups stored at one path.
type FieldArray struct {
	engine *Engine
	name   string
}

type arrayState struct {
	keys []string
	// item maps sub-paths of one entry to their rules. The empty sub-path
	// addresses the entry itself for lists of scalars.
	item map[string]rules.Set
}

// FieldArray binds the list at name. Item rules are registered for every
// entry, now and after each insertion, as name.<index>.<sub-path>. Binding
// the same name again replaces the item rules and keeps the entry keys.
func (e *Engine) FieldArray(name string, item map[string]rules.Set) (*FieldArray, error) {
	path, err := valuepath.Normalize(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidName, err)
	}

	e.mu.Lock()
	if current, ok := valuepath.Get(e.values, path); ok && current != nil {
		if _, isList := current.([]any); !isList {
			e.mu.Unlock()
			return nil, fmt.Errorf("%w: %q holds %T", ErrNotArray, path, current)
		}
	}
	arr, ok := e.arrays[path]
	if !ok {
		arr = &arrayState{}
		e.arrays[path] = arr
	}
	arr.item = item
	e.syncArrayLocked(path, arr)
	for i := range arr.keys {
		for sub, set := range item {
			e.registerLocked(valuepath.AtIndex(path, i, sub), set)
		}
	}
	p := e.commitLocked(nil)
	e.mu.Unlock()

	p.dispatch()
	return &FieldArray{engine: e, name: path}, nil
}

// Name returns the array path.
func (a *FieldArray) Name() string { return a.name }

// Fields returns the current entries in order.
func (a *FieldArray) Fields() []ArrayEntry {
	e := a.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	arr := e.arrays[a.name]
	list := e.listLocked(a.name)
	out := make([]ArrayEntry, len(list))
	for i, value := range list {
		out[i] = ArrayEntry{Key: arr.keys[i], Index: i, Value: valuepath.Clone(value)}
	}
	return out
}

// Len returns the number of entries.
func (a *FieldArray) Len() int {
	e := a.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listLocked(a.name))
}

// Append adds value as the last entry under a fresh key.
func (a *FieldArray) Append(value any) error {
	return a.mutate("append", func(list []any, keys []string, fresh func() string) ([]any, []string, remapFunc, error) {
		return append(list, valuepath.NormalizeValue(value)), append(keys, fresh()), nil, nil
	})
}

// Prepend adds value as the first entry under a fresh key.
func (a *FieldArray) Prepend(value any) error {
	return a.Insert(0, value)
}

// Insert places value at index, shifting later entries up by one.
func (a *FieldArray) Insert(index int, value any) error {
	return a.mutate("insert", func(list []any, keys []string, fresh func() string) ([]any, []string, remapFunc, error) {
		if index < 0 || index > len(list) {
			return nil, nil, nil, fmt.Errorf("%w: insert at %d with %d entries", ErrIndexOutOfRange, index, len(list))
		}
		list = append(list[:index:index], append([]any{valuepath.NormalizeValue(value)}, list[index:]...)...)
		keys = append(keys[:index:index], append([]string{fresh()}, keys[index:]...)...)
		return list, keys, func(i int) (int, bool) {
			if i >= index {
				return i + 1, true
			}
			return i, true
		}, nil
	})
}

// Remove deletes the entry at index. Later entries shift down and keep
// their keys.
func (a *FieldArray) Remove(index int) error {
	return a.mutate("remove", func(list []any, keys []string, _ func() string) ([]any, []string, remapFunc, error) {
		if index < 0 || index >= len(list) {
			return nil, nil, nil, fmt.Errorf("%w: remove %d with %d entries", ErrIndexOutOfRange, index, len(list))
		}
		list = append(list[:index:index], list[index+1:]...)
		keys = append(keys[:index:index], keys[index+1:]...)
		return list, keys, func(i int) (int, bool) {
			switch {
			case i == index:
				return 0, false
			case i > index:
				return i - 1, true
			default:
				return i, true
			}
		}, nil
	})
}

// Move relocates the entry at from to position to.
func (a *FieldArray) Move(from, to int) error {
	return a.mutate("move", func(list []any, keys []string, _ func() string) ([]any, []string, remapFunc, error) {
		if from < 0 || from >= len(list) || to < 0 || to >= len(list) {
			return nil, nil, nil, fmt.Errorf("%w: move %d to %d with %d entries", ErrIndexOutOfRange, from, to, len(list))
		}
		remap := func(i int) (int, bool) {
			switch {
			case i == from:
				return to, true
			case from < to && i > from && i <= to:
				return i - 1, true
			case to < from && i >= to && i < from:
				return i + 1, true
			default:
				return i, true
			}
		}
		movedList := make([]any, len(list))
		movedKeys := make([]string, len(keys))
		for i := range list {
			n, _ := remap(i)
			movedList[n] = list[i]
			movedKeys[n] = keys[i]
		}
		return movedList, movedKeys, remap, nil
	})
}

// remapFunc maps an old entry index to its new one; false drops the entry.
type remapFunc func(int) (int, bool)

type arrayOp func(list []any, keys []string, fresh func() string) ([]any, []string, remapFunc, error)

func (a *FieldArray) mutate(op string, apply arrayOp) error {
	e := a.engine
	if err := e.usable(); err != nil {
		return err
	}

	e.mu.Lock()
	arr, ok := e.arrays[a.name]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownField, a.name)
	}
	list := append([]any(nil), e.listLocked(a.name)...)
	keys := append([]string(nil), arr.keys...)
	list, keys, remap, err := apply(list, keys, e.newKey)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if err := valuepath.Set(e.values, a.name, list); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrInvalidPath, err)
	}
	arr.keys = keys
	if remap != nil {
		e.remapLocked(a.name, remap)
	}
	e.syncArrayLocked(a.name, arr)
	e.refreshDirtyLocked(a.name)
	for _, path := range e.order {
		if valuepath.Within(path, a.name) && path != a.name {
			e.refreshDirtyLocked(path)
		}
	}
	p := e.commitLocked(&Change{Name: a.name, Kind: ChangeArray})
	e.mu.Unlock()

	p.dispatch()
	e.logger.Debug("field array changed", zap.String("array", a.name), zap.String("op", op), zap.Int("entries", len(list)))
	return nil
}

func (e *Engine) listLocked(name string) []any {
	current, _ := valuepath.Get(e.values, name)
	list, _ := current.([]any)
	return list
}

// syncArraysLocked resynchronises every field array affected by a write
// at path.
func (e *Engine) syncArraysLocked(path string) {
	for name, arr := range e.arrays {
		if withinEither(name, path) {
			e.syncArrayLocked(name, arr)
		}
	}
}

// syncArrayLocked sizes the key list to the stored entries, registers item
// fields for every entry and drops fields past the end of the list.
func (e *Engine) syncArrayLocked(name string, arr *arrayState) {
	n := len(e.listLocked(name))
	if len(arr.keys) > n {
		arr.keys = arr.keys[:n]
	}
	for len(arr.keys) < n {
		arr.keys = append(arr.keys, e.newKey())
	}

	for _, path := range append([]string(nil), e.order...) {
		if idx, _, ok := valuepath.IndexUnder(path, name); ok && idx >= n {
			e.dropFieldLocked(path)
		}
	}
	for i := 0; i < n; i++ {
		for sub, set := range arr.item {
			path := valuepath.AtIndex(name, i, sub)
			if _, exists := e.fields[path]; !exists {
				e.registerLocked(path, set)
			}
		}
	}
}

// remapLocked renames every per-field record beneath prefix according to
// remap. Records whose entry was dropped are discarded.
func (e *Engine) remapLocked(prefix string, remap remapFunc) {
	rename := func(path string) (string, bool) {
		idx, rest, ok := valuepath.IndexUnder(path, prefix)
		if !ok {
			return path, true
		}
		n, keep := remap(idx)
		if !keep {
			return "", false
		}
		return valuepath.AtIndex(prefix, n, rest), true
	}

	fields := make(map[string]*field, len(e.fields))
	order := make([]string, 0, len(e.order))
	for _, path := range e.order {
		f := e.fields[path]
		next, keep := rename(path)
		if !keep {
			f.gen++
			continue
		}
		if next != path {
			f.name = next
			f.gen++
		}
		fields[next] = f
		order = append(order, next)
	}
	e.fields = fields
	e.order = sortByIndex(order, prefix)

	errs := make(map[string]rules.Violation, len(e.errors))
	for path, v := range e.errors {
		if next, keep := rename(path); keep {
			errs[next] = v
		}
	}
	e.errors = errs
	e.touched = renameFlags(e.touched, rename)
	e.dirty = renameFlags(e.dirty, rename)
}

func renameFlags(flags map[string]bool, rename func(string) (string, bool)) map[string]bool {
	out := make(map[string]bool, len(flags))
	for path, v := range flags {
		if next, keep := rename(path); keep {
			out[next] = v
		}
	}
	return out
}

// sortByIndex keeps registration order for unrelated fields and reorders
// the entries beneath prefix, in place, by their new index.
func sortByIndex(order []string, prefix string) []string {
	var slots []int
	var items []string
	for i, path := range order {
		if _, _, ok := valuepath.IndexUnder(path, prefix); ok {
			slots = append(slots, i)
			items = append(items, path)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, _, _ := valuepath.IndexUnder(items[i], prefix)
		b, _, _ := valuepath.IndexUnder(items[j], prefix)
		return a < b
	})
	for k, slot := range slots {
		order[slot] = items[k]
	}
	return order
}
