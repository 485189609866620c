package providers

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"genflow/internal/domain"
)

// Registry resolves provider adapters by kind and name. The first adapter
// registered for a kind is that kind's default.
type Registry struct {
	mu       sync.RWMutex
	adapters map[domain.Kind]map[string]Adapter
	defaults map[domain.Kind]string
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[domain.Kind]map[string]Adapter),
		defaults: make(map[domain.Kind]string),
	}
}

// Register adds a. A later registration with the same kind and name replaces
// the earlier one.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kind := a.Kind()
	if r.adapters[kind] == nil {
		r.adapters[kind] = make(map[string]Adapter)
	}
	name := strings.ToLower(a.Name())
	r.adapters[kind][name] = a
	if _, ok := r.defaults[kind]; !ok {
		r.defaults[kind] = name
	}
}

// SetDefault changes the adapter used when a request names no provider.
func (r *Registry) SetDefault(kind domain.Kind, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name = strings.ToLower(name)
	if _, ok := r.adapters[kind][name]; !ok {
		return fmt.Errorf("%w: %s/%s", domain.ErrUnsupportedProvider, kind, name)
	}
	r.defaults[kind] = name
	return nil
}

// Lookup returns the named adapter for kind, or the default when name is empty.
func (r *Registry) Lookup(kind domain.Kind, name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = r.defaults[kind]
	}
	a, ok := r.adapters[kind][name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", domain.ErrUnsupportedProvider, kind, name)
	}
	return a, nil
}

// Default returns the default adapter for kind.
func (r *Registry) Default(kind domain.Kind) (Adapter, error) {
	return r.Lookup(kind, "")
}

// Names lists the adapters registered for kind, sorted.
func (r *Registry) Names(kind domain.Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters[kind]))
	for name := range r.adapters[kind] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
