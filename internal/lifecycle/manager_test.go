package lifecycle

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"inferd/internal/events"
	"inferd/internal/registry"
)

type stubHandle struct{ closed bool }

func (h *stubHandle) Close() error { h.closed = true; return nil }

func newManager(bus *events.Bus) *Manager {
	return New(Config{
		Category:      "test.lifecycle",
		EventCategory: events.CategoryModel,
		Bus:           bus,
		Logger:        zerolog.Nop(),
	})
}

func TestLoadFromIdle(t *testing.T) {
	m := newManager(nil)
	h := &stubHandle{}
	if err := m.Load("/m/a.gguf", "a", "Model A", func() (registry.Handle, error) { return h, nil }); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !m.IsLoaded() || m.State() != StateLoaded {
		t.Fatalf("expected Loaded, got %s", m.State())
	}
	got, err := m.Handle()
	if err != nil || got != h {
		t.Fatalf("handle: %v %v", got, err)
	}
	if m.ModelID() != "a" || m.ModelName() != "Model A" {
		t.Fatalf("model identity not recorded: %q %q", m.ModelID(), m.ModelName())
	}
}

func TestUnloadFromIdleIsInvalidState(t *testing.T) {
	m := newManager(nil)
	err := m.Unload(nil)
	if err == nil || !IsInvalidState(err) {
		t.Fatalf("expected InvalidState, got %v", err)
	}
	if m.State() != StateIdle {
		t.Fatalf("error path must not change state, got %s", m.State())
	}
}

func TestLoadWhileLoadedIsInvalidState(t *testing.T) {
	m := newManager(nil)
	_ = m.Load("/m/a", "a", "", func() (registry.Handle, error) { return &stubHandle{}, nil })
	err := m.Load("/m/b", "b", "", func() (registry.Handle, error) { return &stubHandle{}, nil })
	if err == nil || !IsInvalidState(err) {
		t.Fatalf("expected InvalidState, got %v", err)
	}
	if m.ModelID() != "a" {
		t.Fatalf("loaded model must not change, got %s", m.ModelID())
	}
}

func TestLoadFailureAndRetry(t *testing.T) {
	m := newManager(nil)
	boom := errors.New("backend failed: bad magic")
	if err := m.Load("/m/a", "a", "", func() (registry.Handle, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("loader error must surface verbatim, got %v", err)
	}
	if m.State() != StateFailed || m.FailReason() == "" {
		t.Fatalf("expected Failed with reason, got %s %q", m.State(), m.FailReason())
	}
	// Retry from Failed is permitted.
	if err := m.Load("/m/a", "a", "", func() (registry.Handle, error) { return &stubHandle{}, nil }); err != nil {
		t.Fatalf("retry load: %v", err)
	}
	if m.State() != StateLoaded {
		t.Fatalf("expected Loaded after retry, got %s", m.State())
	}
}

func TestConcurrentSecondLoadRejected(t *testing.T) {
	m := newManager(nil)
	var second error
	err := m.Load("/m/a", "a", "", func() (registry.Handle, error) {
		// While the loader runs, state is Loading: a second Load must fail.
		second = m.Load("/m/b", "b", "", func() (registry.Handle, error) { return &stubHandle{}, nil })
		return &stubHandle{}, nil
	})
	if err != nil {
		t.Fatalf("outer load: %v", err)
	}
	if second == nil || !IsInvalidState(second) {
		t.Fatalf("expected InvalidState for in-flight second load, got %v", second)
	}
}

func TestUnloadReleasesHandle(t *testing.T) {
	m := newManager(nil)
	h := &stubHandle{}
	_ = m.Load("/m/a", "a", "", func() (registry.Handle, error) { return h, nil })
	if err := m.Unload(nil); err != nil {
		t.Fatalf("unload: %v", err)
	}
	if !h.closed {
		t.Fatalf("default unloader must close the handle")
	}
	if m.State() != StateIdle || m.ModelID() != "" {
		t.Fatalf("expected clean Idle, got %s %q", m.State(), m.ModelID())
	}
}

func TestResetFromAnyState(t *testing.T) {
	m := newManager(nil)
	h := &stubHandle{}
	_ = m.Load("/m/a", "a", "", func() (registry.Handle, error) { return h, nil })
	m.Reset()
	if m.State() != StateIdle || !h.closed {
		t.Fatalf("reset must return to Idle and release the handle")
	}
	// Reset from Failed also lands Idle.
	_ = m.Load("/m/a", "a", "", func() (registry.Handle, error) { return nil, errors.New("x") })
	m.Reset()
	if m.State() != StateIdle || m.FailReason() != "" {
		t.Fatalf("reset from Failed: %s %q", m.State(), m.FailReason())
	}
}

func TestLifecycleEvents(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	var got []string
	bus.Subscribe(events.CategoryModel, events.SinkPublic, func(e events.Event) {
		got = append(got, e.Type)
	})
	m := newManager(bus)
	_ = m.Load("/m/a", "a", "", func() (registry.Handle, error) { return &stubHandle{}, nil })
	_ = m.Unload(nil)
	_ = m.Load("/m/a", "a", "", func() (registry.Handle, error) { return nil, errors.New("x") })
	m.Reset()

	want := []string{"load.started", "load.completed", "unloaded", "load.started", "load.failed", "lifecycle.reset"}
	if len(got) != len(want) {
		t.Fatalf("event sequence mismatch: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: got %s want %s", i, got[i], want[i])
		}
	}
}

func TestMetrics(t *testing.T) {
	m := newManager(nil)
	_ = m.Load("/m/a", "a", "", func() (registry.Handle, error) { return &stubHandle{}, nil })
	_ = m.Unload(nil)
	_ = m.Load("/m/a", "a", "", func() (registry.Handle, error) { return nil, errors.New("x") })
	got := m.Metrics()
	if got.SuccessfulLoads != 1 || got.FailedLoads != 1 || got.TotalUnloads != 1 || got.TotalLoads != 2 {
		t.Fatalf("unexpected metrics: %+v", got)
	}
	if got.TotalEvents != 3 {
		t.Fatalf("total events: %+v", got)
	}
}

func TestHandleNotLoaded(t *testing.T) {
	m := newManager(nil)
	if _, err := m.Handle(); err == nil || !IsNotLoaded(err) {
		t.Fatalf("expected NotLoaded, got %v", err)
	}
}
