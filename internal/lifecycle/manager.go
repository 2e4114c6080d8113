// Package lifecycle implements the generic load/use/unload state machine
// shared by every capability component. One Manager wraps one loaded model
// instance; transitions are strictly sequential and every transition emits
// exactly one event.
package lifecycle

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/events"
	"inferd/internal/registry"
)

// State is the lifecycle position of a managed resource.
type State string

const (
	StateIdle      State = "idle"
	StateLoading   State = "loading"
	StateLoaded    State = "loaded"
	StateUnloading State = "unloading"
	StateFailed    State = "failed"
)

// Config wires a Manager to its component.
type Config struct {
	// Category names the owning component in logs, e.g. "llm.lifecycle".
	Category string
	// EventCategory routes lifecycle events on the bus.
	EventCategory events.Category
	Bus           *events.Bus
	Logger        zerolog.Logger
}

// Metrics is a snapshot of a Manager's load/unload counters.
type Metrics struct {
	TotalEvents       int     `json:"total_events"`
	TotalLoads        int     `json:"total_loads"`
	SuccessfulLoads   int     `json:"successful_loads"`
	FailedLoads       int     `json:"failed_loads"`
	TotalUnloads      int     `json:"total_unloads"`
	AverageLoadTimeMS float64 `json:"average_load_time_ms"`
	StartTimeMS       int64   `json:"start_time_ms"`
	LastEventTimeMS   int64   `json:"last_event_time_ms"`
}

// Manager drives one resource through Idle -> Loading -> Loaded ->
// Unloading -> Idle, with Failed reachable from Loading and retry permitted
// from Failed. Load and Unload are synchronous; the loader/unloader closures
// run outside the Manager's mutex so a slow model load never blocks state
// queries, and a concurrent second Load sees Loading and is rejected.
type Manager struct {
	mu         sync.Mutex
	cfg        Config
	state      State
	failReason string

	modelPath string
	modelID   string
	modelName string
	handle    registry.Handle

	loadCount    int
	totalLoadMS  float64
	failedLoads  int
	totalUnloads int
	startMS      int64
	lastEventMS  int64

	now func() time.Time
	log zerolog.Logger
}

// New returns an idle Manager.
func New(cfg Config) *Manager {
	now := time.Now
	return &Manager{
		cfg:     cfg,
		state:   StateIdle,
		startMS: now().UnixMilli(),
		now:     now,
		log:     cfg.Logger.With().Str("component", cfg.Category).Logger(),
	}
}

// Load transitions Idle/Failed -> Loading, invokes loader, and commits
// Loaded on success or Failed on error. The loader performs provider
// resolution and instance construction. The loader's error is returned
// verbatim.
func (m *Manager) Load(modelPath, modelID, modelName string, loader func() (registry.Handle, error)) error {
	if modelID == "" {
		modelID = modelPath
	}
	if modelName == "" {
		modelName = modelID
	}

	m.mu.Lock()
	if m.state != StateIdle && m.state != StateFailed {
		state := m.state
		m.mu.Unlock()
		return ErrInvalidState("load", state)
	}
	m.state = StateLoading
	m.failReason = ""
	m.mu.Unlock()

	m.track("load.started", map[string]any{"modelId": modelID})
	m.log.Info().Str("model", modelID).Str("path", modelPath).Msg("loading model")
	start := m.now()

	handle, err := loader()
	loadMS := float64(m.now().Sub(start).Milliseconds())

	m.mu.Lock()
	if err != nil || handle == nil {
		if err == nil {
			err = ErrNotLoaded()
		}
		m.state = StateFailed
		m.failReason = err.Error()
		m.failedLoads++
		m.mu.Unlock()

		loadsTotal.WithLabelValues(m.cfg.Category, "error").Inc()
		m.track("load.failed", map[string]any{
			"modelId":      modelID,
			"durationMs":   loadMS,
			"errorMessage": err.Error(),
		})
		m.log.Error().Err(err).Str("model", modelID).Msg("failed to load model")
		return err
	}

	m.modelPath = modelPath
	m.modelID = modelID
	m.modelName = modelName
	m.handle = handle
	m.state = StateLoaded
	m.loadCount++
	m.totalLoadMS += loadMS
	m.mu.Unlock()

	loadsTotal.WithLabelValues(m.cfg.Category, "ok").Inc()
	loadDuration.WithLabelValues(m.cfg.Category).Observe(loadMS / 1000)
	m.track("load.completed", map[string]any{"modelId": modelID, "durationMs": loadMS})
	m.log.Info().Str("model", modelID).Float64("ms", loadMS).Msg("model loaded")
	return nil
}

// Unload transitions Loaded -> Unloading -> Idle. The unloader receives the
// held handle and is responsible for releasing it. On unloader failure the
// Manager moves to Failed with the unloader's reason.
func (m *Manager) Unload(unloader func(registry.Handle) error) error {
	m.mu.Lock()
	if m.state != StateLoaded {
		state := m.state
		m.mu.Unlock()
		return ErrInvalidState("unload", state)
	}
	m.state = StateUnloading
	handle := m.handle
	modelID := m.modelID
	m.mu.Unlock()

	m.log.Info().Str("model", modelID).Msg("unloading model")
	var err error
	if unloader != nil {
		err = unloader(handle)
	} else {
		err = handle.Close()
	}

	m.mu.Lock()
	if err != nil {
		m.state = StateFailed
		m.failReason = err.Error()
		m.mu.Unlock()
		m.track("unload.failed", map[string]any{"modelId": modelID, "errorMessage": err.Error()})
		return err
	}
	m.clearLocked()
	m.totalUnloads++
	m.mu.Unlock()

	unloadsTotal.WithLabelValues(m.cfg.Category).Inc()
	m.track("unloaded", map[string]any{"modelId": modelID})
	return nil
}

// Reset unconditionally returns to Idle, releasing any held handle. It
// bypasses graceful unload and emits a distinct reset event; used for
// teardown and error recovery only.
func (m *Manager) Reset() {
	m.mu.Lock()
	handle := m.handle
	modelID := m.modelID
	m.clearLocked()
	m.mu.Unlock()

	if handle != nil {
		if err := handle.Close(); err != nil {
			m.log.Warn().Err(err).Str("model", modelID).Msg("handle close during reset")
		}
	}
	m.track("lifecycle.reset", map[string]any{"modelId": modelID})
}

func (m *Manager) clearLocked() {
	m.modelPath = ""
	m.modelID = ""
	m.modelName = ""
	m.handle = nil
	m.state = StateIdle
	m.failReason = ""
}

// IsLoaded reports whether the state is Loaded.
func (m *Manager) IsLoaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateLoaded
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// FailReason returns the recorded reason when state is Failed, else "".
func (m *Manager) FailReason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failReason
}

// ModelID returns the loaded model's id, or "" when nothing is loaded.
func (m *Manager) ModelID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.modelID
}

// ModelName returns the loaded model's display name.
func (m *Manager) ModelName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.modelName
}

// Handle returns the held service handle, or ErrNotLoaded outside Loaded.
func (m *Manager) Handle() (registry.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateLoaded || m.handle == nil {
		return nil, ErrNotLoaded()
	}
	return m.handle, nil
}

// Metrics returns a snapshot of the load/unload counters.
func (m *Manager) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	avg := 0.0
	if m.loadCount > 0 {
		avg = m.totalLoadMS / float64(m.loadCount)
	}
	return Metrics{
		TotalEvents:       m.loadCount + m.failedLoads + m.totalUnloads,
		TotalLoads:        m.loadCount + m.failedLoads,
		SuccessfulLoads:   m.loadCount,
		FailedLoads:       m.failedLoads,
		TotalUnloads:      m.totalUnloads,
		AverageLoadTimeMS: avg,
		StartTimeMS:       m.startMS,
		LastEventTimeMS:   m.lastEventMS,
	}
}

// track emits one lifecycle event. Emission is best-effort: the bus recovers
// subscriber panics, and a nil bus just drops the event.
func (m *Manager) track(eventType string, props map[string]any) {
	m.mu.Lock()
	m.lastEventMS = m.now().UnixMilli()
	m.mu.Unlock()
	if m.cfg.Bus == nil {
		return
	}
	m.cfg.Bus.Publish(events.Event{
		Category:   m.cfg.EventCategory,
		Type:       eventType,
		Properties: props,
	})
}
