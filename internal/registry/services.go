package registry

import (
	"io"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"inferd/pkg/types"
)

// Handle is a live provider instance. It is owned by exactly one capability
// component at a time and closed when that component unloads.
type Handle interface {
	io.Closer
}

// Provider is one backend's implementation of a capability's operation set.
// Dispatch after resolution goes straight through the Handle's own methods;
// the registry never branches on backend identity.
type Provider interface {
	ID() string
	Capability() types.Capability
	Priority() int
	CanHandle(req types.ModelRequest) bool
	New(req types.ModelRequest) (Handle, error)
}

type providerEntry struct {
	provider Provider
	seq      int
}

// Services is the per-domain provider registry. Registration and resolution
// share one mutex per domain; instance construction happens outside any lock
// because a backend constructor may be a slow model load.
type Services struct {
	mu      sync.Mutex
	domains map[types.Capability][]providerEntry
	nextSeq int
	log     zerolog.Logger
}

// NewServices returns an empty service registry.
func NewServices(log zerolog.Logger) *Services {
	return &Services{
		domains: make(map[types.Capability][]providerEntry),
		log:     log.With().Str("component", "services").Logger(),
	}
}

// RegisterProvider adds p to its capability domain. Provider ids are unique
// within a domain; a duplicate is rejected.
func (r *Services) RegisterProvider(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cap := p.Capability()
	for _, e := range r.domains[cap] {
		if e.provider.ID() == p.ID() {
			return ErrAlreadyRegistered(p.ID())
		}
	}
	r.nextSeq++
	r.domains[cap] = append(r.domains[cap], providerEntry{provider: p, seq: r.nextSeq})
	// Highest priority first; first-registered wins among equals.
	sort.SliceStable(r.domains[cap], func(i, j int) bool {
		a, b := r.domains[cap][i], r.domains[cap][j]
		if a.provider.Priority() != b.provider.Priority() {
			return a.provider.Priority() > b.provider.Priority()
		}
		return a.seq < b.seq
	})
	r.log.Info().
		Str("provider", p.ID()).
		Str("capability", string(cap)).
		Int("priority", p.Priority()).
		Msg("provider registered")
	return nil
}

// UnregisterProvider removes the provider with the given id from cap's domain.
func (r *Services) UnregisterProvider(cap types.Capability, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.domains[cap]
	for i, e := range entries {
		if e.provider.ID() == id {
			r.domains[cap] = append(entries[:i], entries[i+1:]...)
			r.log.Info().Str("provider", id).Msg("provider unregistered")
			return nil
		}
	}
	return ErrNotFound(id)
}

// Resolve returns the highest-priority provider in cap's domain whose
// CanHandle accepts req. Finding nothing is a routine outcome and is logged
// at debug level only.
func (r *Services) Resolve(cap types.Capability, req types.ModelRequest) (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.domains[cap] {
		if e.provider.CanHandle(req) {
			return e.provider, nil
		}
	}
	r.log.Debug().
		Str("capability", string(cap)).
		Str("model", req.ModelID).
		Msg("no capable provider")
	return nil, ErrNoCapableProvider(cap, req.ModelID)
}

// CreateInstance invokes the provider's constructor outside any registry
// lock. A constructor failure is the provider's own error, surfaced verbatim.
func (r *Services) CreateInstance(p Provider, req types.ModelRequest) (Handle, error) {
	h, err := p.New(req)
	if err != nil {
		r.log.Error().Err(err).Str("provider", p.ID()).Msg("provider constructor failed")
		return nil, err
	}
	r.log.Debug().Str("provider", p.ID()).Str("model", req.ModelID).Msg("provider instance created")
	return h, nil
}

// ProviderIDs lists the provider ids registered for cap in resolution order.
func (r *Services) ProviderIDs(cap types.Capability) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.domains[cap]))
	for _, e := range r.domains[cap] {
		out = append(out, e.provider.ID())
	}
	return out
}
