// Package registry keeps the set of loaded vendor modules and drives their
// lifecycle. It is the single place a caller can discover modules without
// touching any vendor.
package registry

import (
	"context"
	"log"
	"sync"

	"github.com/hive-corporation/sochub/internal/core/domain"
	"github.com/hive-corporation/sochub/internal/core/ports"
)

type Registry struct {
	mu      sync.RWMutex
	order   []string
	modules map[string]ports.Module
}

func New() *Registry {
	return &Registry{modules: make(map[string]ports.Module)}
}

// Register adds a module under its descriptor name. Registering the same
// name twice replaces the earlier instance.
func (r *Registry) Register(m ports.Module) {
	name := m.Info().Name
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.modules[name]; !exists {
		r.order = append(r.order, name)
	}
	r.modules[name] = m
}

func (r *Registry) Get(name string) (ports.Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	return m, ok
}

// Names returns module names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// All returns the registered modules in registration order.
func (r *Registry) All() []ports.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	modules := make([]ports.Module, 0, len(r.order))
	for _, name := range r.order {
		modules = append(modules, r.modules[name])
	}
	return modules
}

// InitializeAll runs every module's Initialize and reports the outcome per
// module. A failed module stays registered: its descriptor shows the error
// status and its routes keep answering with the underlying error.
func (r *Registry) InitializeAll(ctx context.Context) map[string]bool {
	results := make(map[string]bool)
	for _, m := range r.All() {
		name := m.Info().Name
		ok := m.Initialize(ctx)
		if !ok {
			log.Printf("module %s failed to initialize", name)
		}
		results[name] = ok
	}
	return results
}

// HealthAll probes every module. Each result is computed fresh; nothing is
// cached between calls.
func (r *Registry) HealthAll(ctx context.Context) map[string]domain.HealthResult {
	results := make(map[string]domain.HealthResult)
	for _, m := range r.All() {
		results[m.Info().Name] = m.HealthCheck(ctx)
	}
	return results
}
