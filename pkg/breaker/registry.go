package breaker

import (
	"fmt"
	"sort"
)

// Registry owns one breaker per dependency. It is built once at startup.
type Registry struct {
	breakers map[string]*Breaker
}

// NewRegistry creates a breaker for every name with the same configuration.
func NewRegistry(names []string, cfg Config, listener Listener) *Registry {
	r := &Registry{breakers: make(map[string]*Breaker, len(names))}
	for _, name := range names {
		r.breakers[name] = New(name, cfg, listener)
	}
	return r
}

// Get returns the breaker for name.
func (r *Registry) Get(name string) (*Breaker, error) {
	b, ok := r.breakers[name]
	if !ok {
		return nil, fmt.Errorf("no circuit breaker registered for dependency %q", name)
	}
	return b, nil
}

// Snapshots returns the state of every breaker ordered by name.
func (r *Registry) Snapshots() []Snapshot {
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Snapshot, 0, len(names))
	for _, name := range names {
		out = append(out, r.breakers[name].Snapshot())
	}
	return out
}
