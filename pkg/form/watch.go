package form

import "sync"

// subscribers is an ordered callback list. It is guarded by the engine lock.
type subscribers[T any] struct {
	next    uint64
	entries []subscriber[T]
}

type subscriber[T any] struct {
	id uint64
	fn T
}

func (s *subscribers[T]) add(fn T) uint64 {
	s.next++
	s.entries = append(s.entries, subscriber[T]{id: s.next, fn: fn})
	return s.next
}

func (s *subscribers[T]) remove(id uint64) {
	for i, entry := range s.entries {
		if entry.id == id {
			s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
			return
		}
	}
}

func (s *subscribers[T]) list() []T {
	if len(s.entries) == 0 {
		return nil
	}
	out := make([]T, len(s.entries))
	for i, entry := range s.entries {
		out[i] = entry.fn
	}
	return out
}

// Watch calls fn with a value snapshot after every value change. Each
// subscription is independent; the returned function cancels only this one.
// Callbacks run on the goroutine that performed the mutation.
func (e *Engine) Watch(fn WatchFunc) Unsubscribe {
	if fn == nil {
		return func() {}
	}
	e.mu.Lock()
	id := e.watchers.add(fn)
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			e.watchers.remove(id)
			e.mu.Unlock()
		})
	}
}

// WatchField is Watch filtered to changes at or beneath name, including
// form-wide resets.
func (e *Engine) WatchField(name string, fn func(value any)) Unsubscribe {
	if fn == nil {
		return func() {}
	}
	return e.Watch(func(values map[string]any, change Change) {
		if change.Name != "" && !withinEither(change.Name, name) {
			return
		}
		fn(lookup(values, name))
	})
}

// SubscribeState calls fn with a State snapshot after every state change.
// Snapshots carry a Revision so subscribers fed from concurrent validations
// can discard older ones.
func (e *Engine) SubscribeState(fn StateFunc) Unsubscribe {
	if fn == nil {
		return func() {}
	}
	e.mu.Lock()
	id := e.stateSubs.add(fn)
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			e.stateSubs.remove(id)
			e.mu.Unlock()
		})
	}
}
