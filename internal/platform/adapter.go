// Package platform defines the adapter boundary to external AI answer
// engines. The engine treats adapters as an interchangeable capability set:
// create/update/delete primitives parameterized by target kind.
package platform

import (
	"context"
	"sync"

	"github.com/sightline-ai/visibility-cli/internal/model"
)

// Request identifies one graph element delivery to a platform.
type Request struct {
	Domain     string
	TargetKind model.TargetKind
	TargetID   string
	Payload    any
}

// Result is a successful delivery acknowledgement.
type Result struct {
	Platform  string `json:"platform"`
	LatencyMs int64  `json:"latency_ms"`
}

// Adapter is the knowledge-ingestion boundary of one external AI platform.
type Adapter interface {
	// Name returns the platform identifier (keys the per-platform status map).
	Name() string
	Create(ctx context.Context, req Request) (*Result, error)
	Update(ctx context.Context, req Request) (*Result, error)
	Delete(ctx context.Context, req Request) (*Result, error)
}

// Registry manages the configured platform adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	order    []string
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter to the registry. Registration order is preserved
// by List.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[a.Name()]; !exists {
		r.order = append(r.order, a.Name())
	}
	r.adapters[a.Name()] = a
}

// Get returns an adapter by name, or nil if not found.
func (r *Registry) Get(name string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[name]
}

// List returns all registered adapter names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns all registered adapters in registration order.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.adapters[name])
	}
	return out
}
