// Package component contains the capability components: thin consumers that
// combine the service registry and the lifecycle manager. On load a component
// resolves a provider for the requested model, constructs a handle, and
// drives it through the lifecycle states; operate calls dispatch straight
// through the handle's own methods.
package component

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"inferd/internal/events"
	"inferd/internal/lifecycle"
	"inferd/internal/registry"
	"inferd/pkg/types"
)

// Fetcher materializes a remote model artifact and returns its local path.
// Blocking; the download orchestrator's transfer driver is the default
// implementation.
type Fetcher interface {
	Fetch(ctx context.Context, modelID, url string, requiresExtraction bool) (string, error)
}

// Config wires one capability component.
type Config struct {
	Capability types.Capability
	Services   *registry.Services
	Bus        *events.Bus
	// Fetcher is optional; without one, URL loads are rejected.
	Fetcher Fetcher
	Logger  zerolog.Logger
}

// Component is the shared core of LLM, STT, TTS and VAD. It owns exactly one
// provider handle at a time through its lifecycle manager.
type Component struct {
	capability types.Capability
	services   *registry.Services
	bus        *events.Bus
	fetcher    Fetcher
	lc         *lifecycle.Manager
	log        zerolog.Logger
}

func newComponent(cfg Config) *Component {
	return &Component{
		capability: cfg.Capability,
		services:   cfg.Services,
		bus:        cfg.Bus,
		fetcher:    cfg.Fetcher,
		lc: lifecycle.New(lifecycle.Config{
			Category:      string(cfg.Capability) + ".lifecycle",
			EventCategory: events.CategoryModel,
			Bus:           cfg.Bus,
			Logger:        cfg.Logger,
		}),
		log: cfg.Logger.With().Str("component", string(cfg.Capability)).Logger(),
	}
}

// Capability returns the component's domain.
func (c *Component) Capability() types.Capability { return c.capability }

// Load materializes the requested model (downloading it first when only a URL
// is given), resolves a provider and constructs its handle. The fetch and the
// provider constructor both run inside the lifecycle Loading window, so a
// concurrent second Load is rejected for the whole duration.
func (c *Component) Load(ctx context.Context, req types.LoadRequest) error {
	if req.Path == "" && req.URL == "" {
		return ErrBadRequest("either path or url is required")
	}
	if req.URL != "" && c.fetcher == nil {
		return ErrBadRequest("no fetcher configured for url loads")
	}

	modelID := req.ModelID
	if modelID == "" {
		modelID = artifactID(req.Path, req.URL)
	}

	return c.lc.Load(req.Path, modelID, req.ModelName, func() (registry.Handle, error) {
		path := req.Path
		if path == "" {
			fetched, err := c.fetcher.Fetch(ctx, modelID, req.URL, requiresExtraction(req.URL))
			if err != nil {
				return nil, err
			}
			path = fetched
		}

		mreq := types.ModelRequest{
			ModelID:   modelID,
			ModelPath: path,
			Format:    req.Format,
		}
		if mreq.Format == "" {
			mreq.Format = strings.TrimPrefix(filepath.Ext(path), ".")
		}

		provider, err := c.services.Resolve(c.capability, mreq)
		if err != nil {
			return nil, err
		}
		return c.services.CreateInstance(provider, mreq)
	})
}

// Unload releases the held handle and returns the component to idle.
func (c *Component) Unload() error {
	return c.lc.Unload(nil)
}

// IsLoaded reports whether a model is loaded.
func (c *Component) IsLoaded() bool { return c.lc.IsLoaded() }

// Reset force-releases any held handle. Teardown and error recovery only.
func (c *Component) Reset() { c.lc.Reset() }

// Status returns a read-only projection of the component.
func (c *Component) Status() types.ComponentStatus {
	return types.ComponentStatus{
		Capability: c.capability,
		State:      string(c.lc.State()),
		ModelID:    c.lc.ModelID(),
		ModelName:  c.lc.ModelName(),
		Err:        c.lc.FailReason(),
	}
}

// Metrics returns the lifecycle counters.
func (c *Component) Metrics() lifecycle.Metrics { return c.lc.Metrics() }

func (c *Component) handle() (registry.Handle, error) {
	return c.lc.Handle()
}

func (c *Component) publish(cat events.Category, eventType string, dest events.Destination, props map[string]any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(events.Event{
		Category:    cat,
		Type:        eventType,
		Destination: dest,
		Properties:  props,
	})
}

// artifactID derives a model id from the artifact's file name.
func artifactID(path, url string) string {
	src := path
	if src == "" {
		src = url
	}
	base := filepath.Base(src)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func requiresExtraction(url string) bool {
	return strings.HasSuffix(strings.ToLower(url), ".zip")
}
