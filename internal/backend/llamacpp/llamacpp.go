//go:build llama

package llamacpp

import (
	"context"
	"errors"
	"strings"
	"time"

	llama "github.com/go-skynet/go-llama.cpp"
	"github.com/rs/zerolog"

	"inferd/internal/registry"
	"inferd/pkg/types"
)

// Built indicates this binary carries real llama support.
const Built = true

// Register adds the llama.cpp backend to the registries. ctxSize and threads
// apply to every instance the provider constructs.
func Register(mods *registry.Modules, svcs *registry.Services, log zerolog.Logger, ctxSize, threads int) error {
	if err := mods.Register(registry.Module{
		ID:           ModuleID,
		Name:         "llama.cpp",
		Description:  "in-process GGUF text generation",
		Capabilities: []types.Capability{types.CapabilityGeneration},
	}); err != nil {
		return err
	}
	return svcs.RegisterProvider(&provider{
		ctxSize: ctxSize,
		threads: threads,
		log:     log.With().Str("component", "llamacpp").Logger(),
	})
}

type provider struct {
	ctxSize int
	threads int
	log     zerolog.Logger
}

func (p *provider) ID() string                   { return ModuleID }
func (p *provider) Capability() types.Capability { return types.CapabilityGeneration }
func (p *provider) Priority() int                { return 10 }

// CanHandle accepts GGUF artifacts, the only format llama.cpp loads here.
func (p *provider) CanHandle(req types.ModelRequest) bool {
	return strings.EqualFold(req.Format, "gguf")
}

func (p *provider) New(req types.ModelRequest) (registry.Handle, error) {
	if strings.TrimSpace(req.ModelPath) == "" {
		return nil, errors.New("model path is empty")
	}
	m, err := llama.New(req.ModelPath, llama.SetContext(p.ctxSize))
	if err != nil {
		return nil, err
	}
	p.log.Info().Str("model", req.ModelID).Str("path", req.ModelPath).Msg("llama model loaded")
	return &session{model: m, threads: p.threads}, nil
}

// session owns one loaded model instance.
type session struct {
	model   *llama.LLama
	threads int
}

func (s *session) Generate(ctx context.Context, prompt string, opts types.GenerateOptions, onToken func(string)) (types.GenerateResult, error) {
	if s.model == nil {
		return types.GenerateResult{}, errors.New("llama model not initialized")
	}

	tokens := 0
	s.model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		tokens++
		if onToken != nil {
			onToken(tok)
		}
		return true
	})

	start := time.Now()
	text, err := s.model.Predict(prompt, predictOptions(opts, s.threads)...)
	if err != nil {
		if ctx.Err() != nil {
			return types.GenerateResult{}, ctx.Err()
		}
		return types.GenerateResult{}, err
	}
	if ctx.Err() != nil {
		return types.GenerateResult{}, ctx.Err()
	}
	return types.GenerateResult{
		Text:            text,
		TokensGenerated: tokens,
		DurationMS:      time.Since(start).Milliseconds(),
	}, nil
}

func (s *session) Close() error {
	if s.model != nil {
		s.model.Free()
		s.model = nil
	}
	return nil
}

func predictOptions(opts types.GenerateOptions, threads int) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(intOr(opts.MaxTokens, 256)),
		llama.SetThreads(intOr(threads, 4)),
		llama.SetTopP(floatOr(opts.TopP, llama.DefaultOptions.TopP)),
		llama.SetTopK(intOr(opts.TopK, llama.DefaultOptions.TopK)),
		llama.SetTemperature(floatOr(opts.Temperature, llama.DefaultOptions.Temperature)),
	}
	if opts.Seed != 0 {
		po = append(po, llama.SetSeed(opts.Seed))
	}
	if len(opts.StopSequences) > 0 {
		po = append(po, llama.SetStopWords(opts.StopSequences...))
	}
	return po
}

func intOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func floatOr(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}
