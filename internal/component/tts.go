package component

import (
	"context"

	"inferd/pkg/types"
)

// Synthesizer is the operation set a synthesis handle implements.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, opts types.SynthesizeOptions) (types.Audio, error)
}

// TTS is the text-to-speech capability component.
type TTS struct {
	*Component
}

// NewTTS returns a TTS component for the synthesis domain.
func NewTTS(cfg Config) *TTS {
	cfg.Capability = types.CapabilitySynthesis
	return &TTS{Component: newComponent(cfg)}
}

// Synthesize runs one synthesis call through the loaded provider handle.
func (c *TTS) Synthesize(ctx context.Context, text string, opts types.SynthesizeOptions) (types.Audio, error) {
	h, err := c.handle()
	if err != nil {
		return types.Audio{}, err
	}
	syn, ok := h.(Synthesizer)
	if !ok {
		return types.Audio{}, ErrNotSupported(c.capability, "synthesis")
	}
	return syn.Synthesize(ctx, text, opts)
}
