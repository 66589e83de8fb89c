// Package adapters holds the model family implementations and the registry that resolves a
// configured family tag to one of them.
package adapters

import (
	"fmt"
	"sort"
	"sync"

	"ForecastPull/internal/domain/models"
	"ForecastPull/internal/domain/service"
)

// Registry maps family tags to adapters. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]service.ModelAdapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]service.ModelAdapter)}
}

// NewBuiltinRegistry returns a registry preloaded with the in-process families.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()
	r.Register("naive", Naive{})
	r.Register("drift", Drift{})
	r.Register("ses", SES{})
	r.Register("holt", Holt{})
	r.Register("theta", Theta{})
	return r
}

// Register binds family to a. A later registration replaces an earlier one.
func (r *Registry) Register(family string, a service.ModelAdapter) {
	r.mu.Lock()
	r.adapters[family] = a
	r.mu.Unlock()
}

func (r *Registry) Resolve(family string) (service.ModelAdapter, error) {
	r.mu.RLock()
	a, ok := r.adapters[family]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownFamily, family)
	}
	return a, nil
}

// Families lists registered tags in sorted order.
func (r *Registry) Families() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for f := range r.adapters {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Check fails on the first family with no adapter.
func (r *Registry) Check(families ...string) error {
	for _, f := range families {
		if _, err := r.Resolve(f); err != nil {
			return err
		}
	}
	return nil
}

var _ service.AdapterResolver = (*Registry)(nil)
