package component

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"inferd/internal/events"
	"inferd/internal/lifecycle"
	"inferd/internal/registry"
	"inferd/pkg/types"
)

type fakeHandle struct {
	closed bool

	generate func(context.Context, string, types.GenerateOptions, func(string)) (types.GenerateResult, error)
	detect   func([]float32) (types.Detection, error)
}

func (h *fakeHandle) Close() error { h.closed = true; return nil }

func (h *fakeHandle) Generate(ctx context.Context, prompt string, opts types.GenerateOptions, onToken func(string)) (types.GenerateResult, error) {
	if h.generate == nil {
		return types.GenerateResult{Text: "ok:" + prompt}, nil
	}
	return h.generate(ctx, prompt, opts, onToken)
}

func (h *fakeHandle) Detect(frame []float32) (types.Detection, error) {
	if h.detect == nil {
		return types.Detection{}, nil
	}
	return h.detect(frame)
}

type fakeProvider struct {
	id         string
	capability types.Capability
	handle     *fakeHandle
	newErr     error
}

func (p *fakeProvider) ID() string                        { return p.id }
func (p *fakeProvider) Capability() types.Capability      { return p.capability }
func (p *fakeProvider) Priority() int                     { return 10 }
func (p *fakeProvider) CanHandle(types.ModelRequest) bool { return true }
func (p *fakeProvider) New(types.ModelRequest) (registry.Handle, error) {
	if p.newErr != nil {
		return nil, p.newErr
	}
	return p.handle, nil
}

type fakeFetcher struct {
	path string
	err  error

	gotURL     string
	gotExtract bool
}

func (f *fakeFetcher) Fetch(_ context.Context, _, url string, requiresExtraction bool) (string, error) {
	f.gotURL = url
	f.gotExtract = requiresExtraction
	return f.path, f.err
}

func testServices(t *testing.T, providers ...registry.Provider) *registry.Services {
	t.Helper()
	svcs := registry.NewServices(zerolog.Nop())
	for _, p := range providers {
		if err := svcs.RegisterProvider(p); err != nil {
			t.Fatalf("register provider: %v", err)
		}
	}
	return svcs
}

func TestLLMLoadGenerateUnload(t *testing.T) {
	h := &fakeHandle{}
	llm := NewLLM(Config{
		Services: testServices(t, &fakeProvider{id: "p1", capability: types.CapabilityGeneration, handle: h}),
		Logger:   zerolog.Nop(),
	})

	if err := llm.Load(context.Background(), types.LoadRequest{Path: "/models/tiny.gguf"}); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !llm.IsLoaded() {
		t.Fatalf("expected loaded")
	}
	st := llm.Status()
	if st.ModelID != "tiny" || st.State != string(lifecycle.StateLoaded) {
		t.Fatalf("unexpected status: %+v", st)
	}

	res, err := llm.Generate(context.Background(), "hello", types.GenerateOptions{}, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Text != "ok:hello" {
		t.Fatalf("unexpected result: %+v", res)
	}

	if err := llm.Unload(); err != nil {
		t.Fatalf("unload: %v", err)
	}
	if !h.closed {
		t.Fatalf("unload must close the handle")
	}
	if _, err := llm.Generate(context.Background(), "again", types.GenerateOptions{}, nil); !lifecycle.IsNotLoaded(err) {
		t.Fatalf("expected NotLoaded after unload, got %v", err)
	}
}

func TestLoadRequiresPathOrURL(t *testing.T) {
	llm := NewLLM(Config{Services: testServices(t), Logger: zerolog.Nop()})
	if err := llm.Load(context.Background(), types.LoadRequest{}); !IsBadRequest(err) {
		t.Fatalf("expected BadRequest, got %v", err)
	}
	if err := llm.Load(context.Background(), types.LoadRequest{URL: "https://x/m.gguf"}); !IsBadRequest(err) {
		t.Fatalf("url load without fetcher must be rejected, got %v", err)
	}
}

func TestLoadFetchesRemoteArtifact(t *testing.T) {
	h := &fakeHandle{}
	fetcher := &fakeFetcher{path: "/models/remote.gguf"}
	llm := NewLLM(Config{
		Services: testServices(t, &fakeProvider{id: "p1", capability: types.CapabilityGeneration, handle: h}),
		Fetcher:  fetcher,
		Logger:   zerolog.Nop(),
	})

	if err := llm.Load(context.Background(), types.LoadRequest{URL: "https://x/remote.zip"}); err != nil {
		t.Fatalf("load: %v", err)
	}
	if fetcher.gotURL != "https://x/remote.zip" || !fetcher.gotExtract {
		t.Fatalf("fetcher got url=%q extract=%v", fetcher.gotURL, fetcher.gotExtract)
	}
	if got := llm.Status().ModelID; got != "remote" {
		t.Fatalf("model id should derive from the artifact name, got %q", got)
	}
}

func TestLoadFetchFailureLeavesFailed(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("connection reset")}
	llm := NewLLM(Config{
		Services: testServices(t),
		Fetcher:  fetcher,
		Logger:   zerolog.Nop(),
	})
	if err := llm.Load(context.Background(), types.LoadRequest{URL: "https://x/m.gguf"}); err == nil {
		t.Fatalf("expected fetch error")
	}
	st := llm.Status()
	if st.State != string(lifecycle.StateFailed) || st.Err == "" {
		t.Fatalf("fetch failure must leave Failed with a reason: %+v", st)
	}
	// Retry from Failed is permitted.
	fetcher.err = nil
	fetcher.path = "/models/m.gguf"
	svcs := llm.services
	if err := svcs.RegisterProvider(&fakeProvider{id: "p1", capability: types.CapabilityGeneration, handle: &fakeHandle{}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := llm.Load(context.Background(), types.LoadRequest{URL: "https://x/m.gguf"}); err != nil {
		t.Fatalf("retry load: %v", err)
	}
}

func TestLoadNoCapableProvider(t *testing.T) {
	llm := NewLLM(Config{Services: testServices(t), Logger: zerolog.Nop()})
	err := llm.Load(context.Background(), types.LoadRequest{Path: "/models/m.gguf"})
	if !registry.IsNoCapableProvider(err) {
		t.Fatalf("expected NoCapableProvider, got %v", err)
	}
	if got := llm.Status().State; got != string(lifecycle.StateFailed) {
		t.Fatalf("resolution failure must leave Failed, got %s", got)
	}
}

func TestGenerateNotSupportedByHandle(t *testing.T) {
	stt := NewSTT(Config{
		Services: testServices(t, &fakeProvider{id: "p1", capability: types.CapabilityTranscription, handle: &fakeHandle{}}),
		Logger:   zerolog.Nop(),
	})
	if err := stt.Load(context.Background(), types.LoadRequest{Path: "/models/m.bin"}); err != nil {
		t.Fatalf("load: %v", err)
	}
	_, err := stt.Transcribe(context.Background(), []float32{0}, types.TranscribeOptions{})
	if !IsNotSupported(err) {
		t.Fatalf("fakeHandle has no Transcribe; expected NotSupported, got %v", err)
	}
}

func TestGenerateCancel(t *testing.T) {
	started := make(chan struct{})
	h := &fakeHandle{
		generate: func(ctx context.Context, _ string, _ types.GenerateOptions, _ func(string)) (types.GenerateResult, error) {
			close(started)
			<-ctx.Done()
			return types.GenerateResult{}, ctx.Err()
		},
	}
	llm := NewLLM(Config{
		Services: testServices(t, &fakeProvider{id: "p1", capability: types.CapabilityGeneration, handle: h}),
		Logger:   zerolog.Nop(),
	})
	if err := llm.Load(context.Background(), types.LoadRequest{Path: "/models/m.gguf"}); err != nil {
		t.Fatalf("load: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := llm.Generate(context.Background(), "p", types.GenerateOptions{}, nil)
		done <- err
	}()
	<-started
	llm.Cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !llm.IsLoaded() {
		t.Fatalf("cancel must not unload the model")
	}
}

func TestVADSpeechTransitionEvents(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	var got []string
	bus.Subscribe(events.CategoryVAD, events.SinkAnalytics, func(evt events.Event) {
		got = append(got, evt.Type)
	})

	h := &fakeHandle{}
	frames := []bool{false, true, true, false}
	i := 0
	h.detect = func([]float32) (types.Detection, error) {
		active := frames[i]
		i++
		return types.Detection{Active: active, Energy: 0.5}, nil
	}

	vad := NewVAD(Config{
		Services: testServices(t, &fakeProvider{id: "p1", capability: types.CapabilityDetection, handle: h}),
		Bus:      bus,
		Logger:   zerolog.Nop(),
	})
	if err := vad.Load(context.Background(), types.LoadRequest{Path: "/models/vad.bin"}); err != nil {
		t.Fatalf("load: %v", err)
	}
	for range frames {
		if _, err := vad.Detect([]float32{0.1}); err != nil {
			t.Fatalf("detect: %v", err)
		}
	}

	want := []string{"speech.started", "speech.ended"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected transition events %v, got %v", want, got)
	}
}

func TestVADEventsSkipPublicSink(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	var public int
	bus.Subscribe(events.CategoryVAD, events.SinkPublic, func(events.Event) { public++ })

	h := &fakeHandle{detect: func([]float32) (types.Detection, error) {
		return types.Detection{Active: true}, nil
	}}
	vad := NewVAD(Config{
		Services: testServices(t, &fakeProvider{id: "p1", capability: types.CapabilityDetection, handle: h}),
		Bus:      bus,
		Logger:   zerolog.Nop(),
	})
	if err := vad.Load(context.Background(), types.LoadRequest{Path: "/models/vad.bin"}); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := vad.Detect([]float32{0.9}); err != nil {
		t.Fatalf("detect: %v", err)
	}
	if public != 0 {
		t.Fatalf("speech events are analytics-only, public sink saw %d", public)
	}
}

func TestProviderConstructorErrorSurfacedVerbatim(t *testing.T) {
	boom := errors.New("backend init failed: bad weights")
	llm := NewLLM(Config{
		Services: testServices(t, &fakeProvider{id: "p1", capability: types.CapabilityGeneration, newErr: boom}),
		Logger:   zerolog.Nop(),
	})
	err := llm.Load(context.Background(), types.LoadRequest{Path: "/models/m.gguf"})
	if !errors.Is(err, boom) {
		t.Fatalf("constructor error must surface verbatim, got %v", err)
	}
	if got := llm.Status().Err; got != boom.Error() {
		t.Fatalf("fail reason must be retrievable, got %q", got)
	}
}
