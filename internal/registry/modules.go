// Package registry holds the process-wide bookkeeping for backend modules
// and capability providers. Both registries are plain injected objects; there
// are no package-level singletons.
package registry

import (
	"sync"

	"github.com/rs/zerolog"

	"inferd/pkg/types"
)

// Module describes one registered backend package.
type Module struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Version      string             `json:"version,omitempty"`
	Description  string             `json:"description,omitempty"`
	Capabilities []types.Capability `json:"capabilities"`
}

// Modules tracks which backend modules have registered and what each one
// supports. It performs no I/O and emits no events; every operation is a
// short critical section under one mutex.
type Modules struct {
	mu    sync.Mutex
	byID  map[string]Module
	order []string
	log   zerolog.Logger
}

// NewModules returns an empty module registry.
func NewModules(log zerolog.Logger) *Modules {
	return &Modules{
		byID: make(map[string]Module),
		log:  log.With().Str("component", "modules").Logger(),
	}
}

// Register records a module. A duplicate id is an error, never an overwrite.
func (r *Modules) Register(m Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[m.ID]; exists {
		r.log.Warn().Str("module", m.ID).Msg("module already registered, skipping")
		return ErrAlreadyRegistered(m.ID)
	}
	if m.Name == "" {
		m.Name = m.ID
	}
	r.byID[m.ID] = m
	r.order = append(r.order, m.ID)
	r.log.Info().Str("module", m.ID).Msg("module registered")
	return nil
}

// Unregister removes a module by id.
func (r *Modules) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[id]; !exists {
		return ErrNotFound(id)
	}
	delete(r.byID, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.log.Info().Str("module", id).Msg("module unregistered")
	return nil
}

// List returns all modules in registration order.
func (r *Modules) List() []Module {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Module, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// HasCapability reports whether module id declares cap.
func (r *Modules) HasCapability(id string, cap types.Capability) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, exists := r.byID[id]
	if !exists {
		return false
	}
	for _, c := range m.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// ForCapability returns the modules declaring cap, in registration order.
func (r *Modules) ForCapability(cap types.Capability) []Module {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Module
	for _, id := range r.order {
		m := r.byID[id]
		for _, c := range m.Capabilities {
			if c == cap {
				out = append(out, m)
				break
			}
		}
	}
	return out
}
