package platform

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/config"
	"inferd/internal/download"
	"inferd/pkg/types"
)

func newTransfer(t *testing.T) (*Transfer, *download.Orchestrator) {
	t.Helper()
	orch := download.New(config.DownloadConfig{
		MaxConcurrentDownloads: 2,
		RequestTimeoutSeconds:  10,
		MaxRetryAttempts:       3,
		RetryDelaySeconds:      0,
	}, nil, zerolog.Nop())
	return NewTransfer(orch, t.TempDir(), zerolog.Nop()), orch
}

// waitTerminal polls until the task reaches a terminal state.
func waitTerminal(t *testing.T, orch *download.Orchestrator, taskID string) types.DownloadProgress {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		p, err := orch.Progress(taskID)
		if err != nil {
			t.Fatalf("progress: %v", err)
		}
		if p.State.Terminal() {
			return p
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s never reached a terminal state", taskID)
	return types.DownloadProgress{}
}

func TestFetchDownloadsArtifact(t *testing.T) {
	payload := bytes.Repeat([]byte("weights"), 1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	tr, orch := newTransfer(t)
	path, err := tr.Fetch(context.Background(), "m1", srv.URL+"/model.gguf", false)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("artifact content mismatch: %d bytes vs %d", len(got), len(payload))
	}
	if _, err := os.Stat(path + ".part"); !os.IsNotExist(err) {
		t.Fatalf("part file must be renamed away")
	}
	if active := orch.ActiveTasks(); len(active) != 0 {
		t.Fatalf("no tasks should stay active, got %v", active)
	}
}

func TestFetchReturnsExistingArtifact(t *testing.T) {
	tr, _ := newTransfer(t)
	existing := filepath.Join(tr.dir, "model.gguf")
	if err := os.WriteFile(existing, []byte("cached"), 0o644); err != nil {
		t.Fatalf("seed artifact: %v", err)
	}
	// No server: a network hit would fail.
	path, err := tr.Fetch(context.Background(), "m1", "http://127.0.0.1:0/model.gguf", false)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if path != existing {
		t.Fatalf("expected cached path %s, got %s", existing, path)
	}
}

func TestNotFoundIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	tr, orch := newTransfer(t)
	taskID, err := tr.StartDownload(context.Background(), "m1", srv.URL+"/missing.gguf",
		filepath.Join(tr.dir, "missing.gguf"), false, nil, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	p := waitTerminal(t, orch, taskID)
	if p.State != types.DownloadFailed || p.ErrorCode != download.CodeHTTP4xx {
		t.Fatalf("404 must fail terminally with http_4xx, got %+v", p)
	}
	if p.RetryAttempt != 0 {
		t.Fatalf("4xx must not consume retry budget, got %d", p.RetryAttempt)
	}
}

func TestServerErrorIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "flaky", http.StatusInternalServerError)
			return
		}
		w.Write([]byte("weights"))
	}))
	defer srv.Close()

	tr, orch := newTransfer(t)
	taskID, err := tr.StartDownload(context.Background(), "m1", srv.URL+"/model.gguf",
		filepath.Join(tr.dir, "model.gguf"), false, nil, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	p := waitTerminal(t, orch, taskID)
	if p.State != types.DownloadCompleted {
		t.Fatalf("expected completion after retries, got %+v", p)
	}
	if p.RetryAttempt != 2 {
		t.Fatalf("expected 2 consumed retries, got %d", p.RetryAttempt)
	}
}

func TestRetryBudgetExhaustedEndsFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr, orch := newTransfer(t)
	taskID, err := tr.StartDownload(context.Background(), "m1", srv.URL+"/model.gguf",
		filepath.Join(tr.dir, "model.gguf"), false, nil, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	p := waitTerminal(t, orch, taskID)
	if p.State != types.DownloadFailed || p.ErrorCode != download.CodeHTTP5xx {
		t.Fatalf("expected terminal Failed with http_5xx, got %+v", p)
	}
	if p.RetryAttempt != 3 {
		t.Fatalf("expected full retry budget consumed, got %d", p.RetryAttempt)
	}
}

func TestInvalidURLFailsImmediately(t *testing.T) {
	tr, _ := newTransfer(t)
	_, err := tr.Fetch(context.Background(), "m1", "not a url", false)
	if download.Code(err) != download.CodeInvalidURL {
		t.Fatalf("expected invalid_url, got %v", err)
	}
}

func TestFetchCancelledByContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("partial"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	}))
	defer srv.Close()
	defer close(release)

	tr, _ := newTransfer(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := tr.Fetch(ctx, "m1", srv.URL+"/model.gguf", false)
	if !download.IsCancelled(err) {
		t.Fatalf("expected cancelled outcome, got %v", err)
	}
}

func TestFetchExtractsArchive(t *testing.T) {
	var zipped bytes.Buffer
	zw := zip.NewWriter(&zipped)
	f, err := zw.Create("weights/model.onnx")
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	if _, err := f.Write([]byte("tensor data")); err != nil {
		t.Fatalf("zip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(zipped.Bytes())
	}))
	defer srv.Close()

	tr, orch := newTransfer(t)
	dir, err := tr.Fetch(context.Background(), "m1", srv.URL+"/model.zip", true)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "weights", "model.onnx"))
	if err != nil {
		t.Fatalf("read extracted file: %v", err)
	}
	if string(got) != "tensor data" {
		t.Fatalf("extracted content mismatch: %q", got)
	}
	if active := orch.ActiveTasks(); len(active) != 0 {
		t.Fatalf("no tasks should stay active, got %v", active)
	}
}

func TestCorruptArchiveFailsValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("this is not a zip"))
	}))
	defer srv.Close()

	tr, orch := newTransfer(t)
	taskID, err := tr.StartDownload(context.Background(), "m1", srv.URL+"/model.zip",
		filepath.Join(tr.dir, "model.zip"), true, nil, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	p := waitTerminal(t, orch, taskID)
	if p.State != types.DownloadFailed || p.ErrorCode != download.CodeChecksumMismatch {
		t.Fatalf("corrupt archive must fail terminally, got %+v", p)
	}
}

func TestHostSecureStore(t *testing.T) {
	h := NewHost(time.Second, zerolog.Nop())
	if _, ok := h.SecureGet("api_token"); ok {
		t.Fatalf("empty store must miss")
	}
	if err := h.SecureSet("api_token", "s3cret"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, ok := h.SecureGet("api_token"); !ok || v != "s3cret" {
		t.Fatalf("get after set: %q %v", v, ok)
	}
	h.SecureDelete("api_token")
	if _, ok := h.SecureGet("api_token"); ok {
		t.Fatalf("delete must remove the key")
	}
}

func TestHostHTTPPostAuth(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	h := NewHost(time.Second, zerolog.Nop())
	if _, _, err := h.HTTPPost(context.Background(), srv.URL, []byte("{}"), true); err == nil {
		t.Fatalf("authenticated post without a token must fail")
	}
	_ = h.SecureSet("api_token", "tkn")
	status, body, err := h.HTTPPost(context.Background(), srv.URL, []byte("{}"), true)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if status != http.StatusOK || gotAuth != "Bearer tkn" {
		t.Fatalf("status=%d auth=%q", status, gotAuth)
	}
	if len(body) == 0 {
		t.Fatalf("expected response body")
	}
}
