package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-formstate/pkg/rules"
)

// Registry maps predicate names used in definitions onto implementations.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	preds map[string]rules.Named
}

// NewRegistry returns a registry seeded with preds.
func NewRegistry(preds ...rules.Named) (*Registry, error) {
	r := &Registry{preds: make(map[string]rules.Named)}
	for _, named := range preds {
		if err := r.Register(named); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds named. Names must be unique and the predicate must carry a
// sync or async implementation.
func (r *Registry) Register(named rules.Named) error {
	name := strings.TrimSpace(named.Name)
	if name == "" {
		return fmt.Errorf("schema: predicate name is required")
	}
	if named.Sync == nil && named.Async == nil {
		return fmt.Errorf("schema: predicate %q has no implementation", name)
	}
	named.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.preds == nil {
		r.preds = make(map[string]rules.Named)
	}
	if _, exists := r.preds[name]; exists {
		return fmt.Errorf("schema: predicate %q already registered", name)
	}
	r.preds[name] = named
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(named rules.Named) {
	if err := r.Register(named); err != nil {
		panic(err)
	}
}

// Lookup returns the predicate registered under name. A nil registry holds
// nothing.
func (r *Registry) Lookup(name string) (rules.Named, bool) {
	if r == nil {
		return rules.Named{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	named, ok := r.preds[strings.TrimSpace(name)]
	return named, ok
}

// Names lists registered predicate names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.preds))
	for name := range r.preds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
