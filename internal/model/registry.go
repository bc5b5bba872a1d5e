package model

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory builds a Provider for a named backend, bound to one model. The
// same backend serves the planner and the simulator with different models.
type Factory func(modelName string) (Provider, error)

// Meta is lightweight metadata for a registered backend.
type Meta struct {
	Name string
}

// Registry stores provider factories by unique backend name.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{
		factories: map[string]Factory{},
	}
}

func (r *Registry) Register(name string, f Factory) error {
	if f == nil {
		return fmt.Errorf("factory is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("backend name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("backend already registered: %s", name)
	}
	r.factories[name] = f
	return nil
}

// New builds a provider for the named backend and model.
func (r *Registry) New(name, modelName string) (Provider, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown backend: %s", name)
	}
	return f(modelName)
}

func (r *Registry) MustList() []Meta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Meta, 0, len(names))
	for _, name := range names {
		out = append(out, Meta{Name: name})
	}
	return out
}
