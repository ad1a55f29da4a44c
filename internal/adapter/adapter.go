// Package adapter defines the source adapter contract, a registry of named
// adapters and the file and HTTP feed adapters used in production.
package adapter

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/kpm34/college-football-fantasy-app-sub000/internal/model"
)

// Adapter fetches raw observations for one (season, week) from one source.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, season, week int) ([]model.RawDataRecord, error)
	// Ping reports whether the source is reachable.
	Ping(ctx context.Context) error
}

// Registry maps adapter names to adapters. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates a registry holding the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

// Register adds a or returns an error if its name is taken.
func (r *Registry) Register(a Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[a.Name()]; ok {
		return eris.Errorf("adapter: %q already registered", a.Name())
	}
	r.adapters[a.Name()] = a
	return nil
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}
