package component

import (
	"context"

	"inferd/pkg/types"
)

// Transcriber is the operation set a transcription handle implements.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, opts types.TranscribeOptions) (types.Transcript, error)
}

// STT is the speech-to-text capability component.
type STT struct {
	*Component
}

// NewSTT returns an STT component for the transcription domain.
func NewSTT(cfg Config) *STT {
	cfg.Capability = types.CapabilityTranscription
	return &STT{Component: newComponent(cfg)}
}

// Transcribe runs one transcription call through the loaded provider handle.
func (c *STT) Transcribe(ctx context.Context, samples []float32, opts types.TranscribeOptions) (types.Transcript, error) {
	h, err := c.handle()
	if err != nil {
		return types.Transcript{}, err
	}
	tr, ok := h.(Transcriber)
	if !ok {
		return types.Transcript{}, ErrNotSupported(c.capability, "transcription")
	}
	return tr.Transcribe(ctx, samples, opts)
}
