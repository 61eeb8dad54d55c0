package breaker

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry owns one independently tuned breaker per external dependency.
// Instances are constructed explicitly and dependency-injected; there are no
// ambient singletons.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
}

func NewRegistry() *Registry {
	return &Registry{breakers: map[string]*Breaker{}}
}

// Register builds a breaker from cfg and records it under its name.
// Registering the same name twice is a wiring error.
func (r *Registry) Register(cfg Config) (*Breaker, error) {
	if r == nil {
		return nil, fmt.Errorf("breaker: registry is not configured")
	}
	b, err := New(cfg)
	if err != nil {
		return nil, err
	}
	name := normalizeName(cfg.Name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.breakers[name]; exists {
		return nil, fmt.Errorf("breaker: %q is already registered", name)
	}
	r.breakers[name] = b
	return b, nil
}

func (r *Registry) Get(name string) (*Breaker, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.breakers[normalizeName(name)]
	return b, ok
}

// StatsSnapshot collects stats for every registered breaker, ordered by name.
func (r *Registry) StatsSnapshot() []Stats {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	names := make([]string, 0, len(r.breakers))
	byName := make(map[string]*Breaker, len(r.breakers))
	for name, b := range r.breakers {
		names = append(names, name)
		byName[name] = b
	}
	r.mu.RUnlock()

	sort.Strings(names)
	out := make([]Stats, 0, len(names))
	for _, name := range names {
		out = append(out, byName[name].Stats())
	}
	return out
}

// Reset clears the named breaker back to closed. Missing names are a no-op
// so administrative resets are safe to repeat.
func (r *Registry) Reset(name string) {
	if b, ok := r.Get(name); ok {
		b.Reset()
	}
}

func normalizeName(name string) string {
	return strings.TrimSpace(strings.ToLower(name))
}
