package job

import (
	"sort"
	"sync"
)

// Registry maps definition IDs to type-erased entries.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
	}
}

// RegisterDefinition registers a typed job definition. Registering an ID
// twice replaces the earlier definition. A payload schema that does not
// compile rejects the registration.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) error {
	e, err := def.entry()
	if err != nil {
		return err
	}
	r.Register(e)
	return nil
}

// MustRegisterDefinition is like RegisterDefinition but panics on error.
func MustRegisterDefinition[T any](r *Registry, def *Definition[T]) {
	if err := RegisterDefinition(r, def); err != nil {
		panic(err)
	}
}

// Register stores an already compiled entry.
func (r *Registry) Register(e *Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.ID] = e
}

// Lookup returns the entry for the given definition ID, enabled or not.
func (r *Registry) Lookup(id string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// Subscribers returns every enabled entry subscribed to the trigger name,
// ordered by ID.
func (r *Registry) Subscribers(name string) []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Entry
	for _, e := range r.entries {
		if e.Enabled && e.Name == name {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out
}

// All returns every registered entry ordered by ID.
func (r *Registry) All() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sortEntries(out)
	return out
}

func sortEntries(es []*Entry) {
	sort.Slice(es, func(i, j int) bool { return es[i].ID < es[j].ID })
}
