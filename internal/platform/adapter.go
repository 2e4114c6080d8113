// Package platform holds the host-side collaborators: the adapter contract
// the orchestration core consumes for I/O, a default host implementation, and
// the HTTP transfer driver that performs the byte transfers the download
// orchestrator coordinates.
package platform

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Adapter is the narrow host contract. The registries and the orchestrator
// never assume a specific transport or storage mechanism; everything they
// need from the host goes through these methods.
type Adapter interface {
	HTTPPost(ctx context.Context, endpoint string, body []byte, requiresAuth bool) (status int, response []byte, err error)

	SecureGet(key string) (value string, ok bool)
	SecureSet(key, value string) error
	SecureDelete(key string)

	FileExists(path string) bool
	FileRead(path string) ([]byte, error)
	FileWrite(path string, data []byte) error
	FileDelete(path string) error

	NowMS() int64
}

// Host is the default Adapter for a plain OS process: net/http transport,
// local filesystem, and an in-memory secret store. Embedded hosts replace it
// with their own bridge.
type Host struct {
	client    *http.Client
	authToken string

	mu      sync.Mutex
	secrets map[string]string

	log zerolog.Logger
}

// NewHost returns a Host with the given request timeout.
func NewHost(timeout time.Duration, log zerolog.Logger) *Host {
	return &Host{
		client:  &http.Client{Timeout: timeout},
		secrets: make(map[string]string),
		log:     log.With().Str("component", "host").Logger(),
	}
}

// HTTPPost sends a JSON body and returns the status and response bytes.
// A non-2xx status is not an error; callers interpret the status themselves.
func (h *Host) HTTPPost(ctx context.Context, endpoint string, body []byte, requiresAuth bool) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if requiresAuth {
		token, ok := h.SecureGet("api_token")
		if !ok {
			return 0, nil, fmt.Errorf("no api token stored for authenticated request")
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

// SecureGet reads a stored secret.
func (h *Host) SecureGet(key string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.secrets[key]
	return v, ok
}

// SecureSet stores a secret.
func (h *Host) SecureSet(key, value string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.secrets[key] = value
	return nil
}

// SecureDelete removes a secret. Deleting an absent key is a no-op.
func (h *Host) SecureDelete(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.secrets, key)
}

// FileExists reports whether path exists.
func (h *Host) FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// FileRead reads the whole file at path.
func (h *Host) FileRead(path string) ([]byte, error) { return os.ReadFile(path) }

// FileWrite writes data to path, creating or truncating it.
func (h *Host) FileWrite(path string, data []byte) error { return os.WriteFile(path, data, 0o644) }

// FileDelete removes path.
func (h *Host) FileDelete(path string) error { return os.Remove(path) }

// NowMS returns the wall clock in milliseconds.
func (h *Host) NowMS() int64 { return time.Now().UnixMilli() }
