package platform

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/download"
	"inferd/pkg/types"
)

// progressInterval throttles UpdateProgress calls during a stream.
const progressInterval = 200 * time.Millisecond

// pauseProbe is how often a parked transfer re-checks its task state.
const pauseProbe = 100 * time.Millisecond

// errAttemptPaused aborts the current attempt without consuming retry budget.
var errAttemptPaused = errors.New("attempt paused")

// errAttemptCancelled aborts the current attempt; the orchestrator already
// holds the terminal state.
var errAttemptCancelled = errors.New("attempt cancelled")

// Transfer performs the byte transfers the download orchestrator coordinates:
// it runs the GETs, streams to disk, reports progress, honors the retry delay
// and pause/cancel transitions, and extracts archives. The orchestrator
// decides policy; Transfer executes it.
type Transfer struct {
	orch       *download.Orchestrator
	client     *http.Client
	dir        string
	retryDelay time.Duration
	sem        chan struct{}
	log        zerolog.Logger
}

// NewTransfer returns a Transfer bound to orch. dir is where Fetch places
// artifacts. Timeout, retry delay and the concurrency cap come from the
// orchestrator's config.
func NewTransfer(orch *download.Orchestrator, dir string, log zerolog.Logger) *Transfer {
	cfg := orch.Config()
	concurrent := cfg.MaxConcurrentDownloads
	if concurrent <= 0 {
		concurrent = 1
	}
	return &Transfer{
		orch:       orch,
		client:     &http.Client{Timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second},
		dir:        dir,
		retryDelay: time.Duration(cfg.RetryDelaySeconds * float64(time.Second)),
		sem:        make(chan struct{}, concurrent),
		log:        log.With().Str("component", "transfer").Logger(),
	}
}

// StartDownload registers a task with the orchestrator and runs the transfer
// in the background. The returned task id is live immediately.
func (t *Transfer) StartDownload(ctx context.Context, modelID, rawURL, destinationPath string, requiresExtraction bool, onProgress download.ProgressFunc, onComplete download.CompleteFunc) (string, error) {
	taskID, err := t.orch.Start(modelID, rawURL, destinationPath, requiresExtraction, onProgress, onComplete)
	if err != nil {
		return "", err
	}
	go t.run(ctx, taskID, rawURL, destinationPath, requiresExtraction)
	return taskID, nil
}

// Fetch downloads an artifact and blocks until it is materialized, returning
// its local path. An artifact already on disk is returned as-is.
func (t *Transfer) Fetch(ctx context.Context, modelID, rawURL string, requiresExtraction bool) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", download.ErrTask(download.CodeInvalidURL, "unparseable url: "+rawURL)
	}
	destinationPath := filepath.Join(t.dir, path.Base(u.Path))

	finalPath := destinationPath
	if requiresExtraction {
		finalPath = extractionDir(destinationPath)
	}
	if _, err := os.Stat(finalPath); err == nil {
		return finalPath, nil
	}

	type result struct {
		path string
		err  error
	}
	done := make(chan result, 1)
	taskID, err := t.StartDownload(ctx, modelID, rawURL, destinationPath, requiresExtraction,
		nil,
		func(_, finalPath string, err error) { done <- result{path: finalPath, err: err} })
	if err != nil {
		return "", err
	}

	select {
	case <-ctx.Done():
		_ = t.orch.Cancel(taskID)
		res := <-done
		if res.err != nil {
			return "", res.err
		}
		return res.path, nil
	case res := <-done:
		return res.path, res.err
	}
}

// run drives one task through its attempts until a terminal state.
func (t *Transfer) run(ctx context.Context, taskID, rawURL, destinationPath string, requiresExtraction bool) {
	select {
	case t.sem <- struct{}{}:
	case <-ctx.Done():
		_ = t.orch.Cancel(taskID)
		return
	}
	defer func() { <-t.sem }()

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		_ = t.orch.MarkFailed(taskID, download.CodeInvalidURL, "invalid download url: "+rawURL)
		return
	}

	for {
		if t.waitWhilePaused(ctx, taskID) {
			return
		}

		err := t.attempt(ctx, taskID, rawURL, destinationPath)
		switch {
		case err == nil:
			t.finish(taskID, destinationPath, requiresExtraction)
			return
		case errors.Is(err, errAttemptPaused):
			continue
		case errors.Is(err, errAttemptCancelled):
			return
		}

		code, msg := classify(err)
		_ = t.orch.MarkFailed(taskID, code, msg)
		p, perr := t.orch.Progress(taskID)
		if perr != nil || p.State != types.DownloadRetrying {
			return
		}
		select {
		case <-time.After(t.retryDelay):
		case <-ctx.Done():
			_ = t.orch.Cancel(taskID)
			return
		}
	}
}

// attempt performs one GET, streaming the body to destinationPath via a .part
// file so a failed attempt never leaves a truncated artifact behind.
func (t *Transfer) attempt(ctx context.Context, taskID, rawURL, destinationPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return download.ErrTask(download.CodeInvalidURL, err.Error())
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		code := download.CodeHTTP4xx
		if resp.StatusCode >= 500 {
			code = download.CodeHTTP5xx
		}
		return download.ErrTask(code, fmt.Sprintf("GET %s: %s", rawURL, resp.Status))
	}

	if err := os.MkdirAll(filepath.Dir(destinationPath), 0o755); err != nil {
		return err
	}
	partPath := destinationPath + ".part"
	out, err := os.Create(partPath)
	if err != nil {
		return err
	}

	var written int64
	lastReport := time.Time{}
	buf := make([]byte, 64*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				out.Close()
				os.Remove(partPath)
				return werr
			}
			written += int64(n)
			if time.Since(lastReport) >= progressInterval {
				_ = t.orch.UpdateProgress(taskID, written, resp.ContentLength)
				lastReport = time.Now()
			}
		}

		if state := t.taskState(taskID); state == types.DownloadCancelled {
			out.Close()
			os.Remove(partPath)
			return errAttemptCancelled
		} else if state == types.DownloadPaused {
			out.Close()
			os.Remove(partPath)
			return errAttemptPaused
		}

		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			out.Close()
			os.Remove(partPath)
			return rerr
		}
	}

	if err := out.Close(); err != nil {
		os.Remove(partPath)
		return err
	}
	_ = t.orch.UpdateProgress(taskID, written, written)
	return os.Rename(partPath, destinationPath)
}

// finish completes the task, extracting the archive first when required.
func (t *Transfer) finish(taskID, destinationPath string, requiresExtraction bool) {
	if err := t.orch.MarkComplete(taskID, destinationPath); err != nil {
		t.log.Warn().Err(err).Str("task", taskID).Msg("mark complete")
		return
	}
	if !requiresExtraction {
		return
	}
	extracted, err := extractZip(destinationPath)
	if err != nil {
		_ = t.orch.MarkFailed(taskID, download.CodeChecksumMismatch, "extract: "+err.Error())
		return
	}
	_ = t.orch.MarkExtracted(taskID, extracted)
}

// waitWhilePaused parks until the task leaves Paused. Returns true when the
// transfer should stop (terminal state, unknown task, or context done).
func (t *Transfer) waitWhilePaused(ctx context.Context, taskID string) bool {
	for {
		p, err := t.orch.Progress(taskID)
		if err != nil || p.State.Terminal() {
			return true
		}
		if p.State != types.DownloadPaused {
			return false
		}
		select {
		case <-time.After(pauseProbe):
		case <-ctx.Done():
			_ = t.orch.Cancel(taskID)
			return true
		}
	}
}

func (t *Transfer) taskState(taskID string) types.DownloadState {
	p, err := t.orch.Progress(taskID)
	if err != nil {
		return types.DownloadCancelled
	}
	return p.State
}

// classify maps a transport error onto an orchestrator error code.
func classify(err error) (code, message string) {
	if c := download.Code(err); c != "" {
		return c, err.Error()
	}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return download.CodeTimeout, err.Error()
	case errors.Is(err, context.Canceled):
		return download.CodeCancelled, err.Error()
	case errors.As(err, &netErr) && netErr.Timeout():
		return download.CodeTimeout, err.Error()
	case errors.Is(err, syscall.ECONNRESET):
		return download.CodeConnectionReset, err.Error()
	case errors.Is(err, syscall.ENOSPC):
		return download.CodeDiskFull, err.Error()
	default:
		return download.CodeNetwork, err.Error()
	}
}

// extractionDir is where an archive's contents land: the archive path minus
// its extension.
func extractionDir(archivePath string) string {
	return strings.TrimSuffix(archivePath, filepath.Ext(archivePath))
}

// extractZip unpacks archivePath next to itself and returns the directory.
// Entries escaping the destination are rejected.
func extractZip(archivePath string) (string, error) {
	dest := extractionDir(archivePath)
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", err
	}
	defer r.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", err
	}
	for _, f := range r.File {
		target := filepath.Join(dest, f.Name)
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
			return "", fmt.Errorf("archive entry escapes destination: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return "", err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return "", err
		}
		if err := copyZipEntry(f, target); err != nil {
			return "", err
		}
	}
	return dest, nil
}

func copyZipEntry(f *zip.File, target string) error {
	in, err := f.Open()
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
