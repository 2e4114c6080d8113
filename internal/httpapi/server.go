// Package httpapi exposes the daemon's HTTP surface: model introspection,
// capability component operations, and download management.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"inferd/internal/component"
	"inferd/internal/download"
	"inferd/internal/platform"
	"inferd/internal/registry"
	"inferd/pkg/types"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes int64 = 1 << 20

// Deps carries everything the HTTP layer dispatches to.
type Deps struct {
	Modules  *registry.Modules
	Services *registry.Services
	Orch     *download.Orchestrator
	Transfer *platform.Transfer

	LLM *component.LLM
	STT *component.STT
	TTS *component.TTS
	VAD *component.VAD

	// Models lists the locally available artifacts.
	Models func() []types.ModelArtifact

	// CORSOrigins enables CORS when non-empty.
	CORSOrigins []string

	Log zerolog.Logger
}

// component returns the capability component for cap.
func (d Deps) component(cap types.Capability) (*component.Component, error) {
	switch cap {
	case types.CapabilityGeneration:
		return d.LLM.Component, nil
	case types.CapabilityTranscription:
		return d.STT.Component, nil
	case types.CapabilitySynthesis:
		return d.TTS.Component, nil
	case types.CapabilityDetection:
		return d.VAD.Component, nil
	default:
		return nil, component.ErrBadRequest("unknown capability: " + string(cap))
	}
}

func (d Deps) components() []*component.Component {
	return []*component.Component{d.LLM.Component, d.STT.Component, d.TTS.Component, d.VAD.Component}
}

// NewMux assembles the router.
func NewMux(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if len(d.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: d.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			AllowedHeaders: []string{"Content-Type"},
		}))
	}
	r.Use(RequestLogger(d.Log))
	r.Use(MetricsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Get("/modules", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"modules": d.Modules.List()})
	})
	r.Get("/providers", func(w http.ResponseWriter, _ *http.Request) {
		out := make(map[string][]string, 4)
		for _, cap := range types.Capabilities() {
			out[string(cap)] = d.Services.ProviderIDs(cap)
		}
		writeJSON(w, map[string]any{"providers": out})
	})
	r.Get("/models", func(w http.ResponseWriter, _ *http.Request) {
		models := []types.ModelArtifact{}
		if d.Models != nil {
			models = d.Models()
		}
		writeJSON(w, map[string]any{"models": models})
	})
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		resp := types.StatusResponse{
			Downloads: d.Orch.ActiveTasks(),
			Healthy:   d.Orch.Healthy(),
		}
		for _, c := range d.components() {
			resp.Components = append(resp.Components, c.Status())
		}
		writeJSON(w, resp)
	})

	r.Post("/models/load", func(w http.ResponseWriter, r *http.Request) {
		var req types.LoadRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		comp, err := d.component(req.Capability)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if err := comp.Load(r.Context(), req); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, comp.Status())
	})
	r.Post("/models/unload", func(w http.ResponseWriter, r *http.Request) {
		var req types.UnloadRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		comp, err := d.component(req.Capability)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if err := comp.Unload(); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, comp.Status())
	})

	r.Post("/generate", func(w http.ResponseWriter, r *http.Request) {
		var req types.GenerateRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			writeError(w, http.StatusBadRequest, "prompt is required")
			return
		}
		if req.Stream {
			streamGenerate(w, r, d, req)
			return
		}
		res, err := d.LLM.Generate(r.Context(), req.Prompt, req.Options, nil)
		if err != nil {
			if r.Context().Err() != nil {
				return
			}
			writeDomainError(w, err)
			return
		}
		writeJSON(w, res)
	})
	r.Post("/generate/cancel", func(w http.ResponseWriter, _ *http.Request) {
		d.LLM.Cancel()
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/transcribe", func(w http.ResponseWriter, r *http.Request) {
		var req types.TranscribeRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		out, err := d.STT.Transcribe(r.Context(), req.Samples, req.Options)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, out)
	})
	r.Post("/synthesize", func(w http.ResponseWriter, r *http.Request) {
		var req types.SynthesizeRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		out, err := d.TTS.Synthesize(r.Context(), req.Text, req.Options)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, out)
	})
	r.Post("/detect", func(w http.ResponseWriter, r *http.Request) {
		var req types.DetectRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		out, err := d.VAD.Detect(req.Frame)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, out)
	})

	r.Route("/downloads", func(r chi.Router) {
		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var req types.DownloadRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			if req.ModelID == "" || req.URL == "" || req.DestinationPath == "" {
				writeError(w, http.StatusBadRequest, "model_id, url and destination_path are required")
				return
			}
			taskID, err := d.Transfer.StartDownload(r.Context(), req.ModelID, req.URL, req.DestinationPath, req.RequiresExtraction, nil, nil)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			writeJSONBody(w, types.DownloadStarted{TaskID: taskID})
		})
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, map[string]any{"active": d.Orch.ActiveTasks()})
		})
		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			p, err := d.Orch.Progress(chi.URLParam(r, "id"))
			if err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, p)
		})
		r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
			if err := d.Orch.Cancel(chi.URLParam(r, "id")); err != nil {
				writeDomainError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
		r.Post("/pause", func(w http.ResponseWriter, _ *http.Request) {
			d.Orch.PauseAll()
			w.WriteHeader(http.StatusNoContent)
		})
		r.Post("/resume", func(w http.ResponseWriter, _ *http.Request) {
			d.Orch.ResumeAll()
			w.WriteHeader(http.StatusNoContent)
		})
	})

	return r
}

// streamGenerate writes one NDJSON line per token, then a final result line.
func streamGenerate(w http.ResponseWriter, r *http.Request, d Deps, req types.GenerateRequest) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	var flush func()
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}
	enc := json.NewEncoder(w)
	res, err := d.LLM.Generate(r.Context(), req.Prompt, req.Options, func(token string) {
		_ = enc.Encode(map[string]string{"token": token})
		if flush != nil {
			flush()
		}
	})
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		_ = enc.Encode(map[string]string{"error": err.Error()})
		return
	}
	_ = enc.Encode(map[string]any{"done": true, "result": res})
	if flush != nil {
		flush()
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	writeJSONBody(w, v)
}

func writeJSONBody(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode response")
	}
}
