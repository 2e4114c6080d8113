package component

import (
	"context"
	"sync"

	"inferd/internal/events"
	"inferd/pkg/types"
)

// Generator is the operation set a generation handle implements. onToken, if
// non-nil, receives each token as it is produced.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts types.GenerateOptions, onToken func(token string)) (types.GenerateResult, error)
}

// LLM is the text-generation capability component. At most one generation is
// in flight at a time per instance; Cancel aborts it without unloading the
// model.
type LLM struct {
	*Component

	genMu  sync.Mutex
	cancel context.CancelFunc
}

// NewLLM returns an LLM component for the generation domain.
func NewLLM(cfg Config) *LLM {
	cfg.Capability = types.CapabilityGeneration
	return &LLM{Component: newComponent(cfg)}
}

// Generate runs one generation call through the loaded provider handle.
func (c *LLM) Generate(ctx context.Context, prompt string, opts types.GenerateOptions, onToken func(string)) (types.GenerateResult, error) {
	h, err := c.handle()
	if err != nil {
		return types.GenerateResult{}, err
	}
	gen, ok := h.(Generator)
	if !ok {
		return types.GenerateResult{}, ErrNotSupported(c.capability, "generation")
	}

	ctx, cancel := context.WithCancel(ctx)
	c.genMu.Lock()
	c.cancel = cancel
	c.genMu.Unlock()
	defer func() {
		cancel()
		c.genMu.Lock()
		c.cancel = nil
		c.genMu.Unlock()
	}()

	c.publish(events.CategoryLLM, "generation.started", events.DestinationAll, map[string]any{
		"modelId": c.lc.ModelID(),
	})
	res, err := gen.Generate(ctx, prompt, opts, onToken)
	if err != nil {
		c.publish(events.CategoryLLM, "generation.failed", events.DestinationAll, map[string]any{
			"modelId":      c.lc.ModelID(),
			"errorMessage": err.Error(),
		})
		return types.GenerateResult{}, err
	}
	c.publish(events.CategoryLLM, "generation.completed", events.DestinationAll, map[string]any{
		"modelId":    c.lc.ModelID(),
		"tokens":     res.TokensGenerated,
		"durationMs": res.DurationMS,
	})
	return res, nil
}

// Cancel aborts the in-flight generation, if any. Distinct from Unload: the
// model stays loaded.
func (c *LLM) Cancel() {
	c.genMu.Lock()
	cancel := c.cancel
	c.genMu.Unlock()
	if cancel != nil {
		cancel()
	}
}
