package component

import (
	"sync"

	"inferd/internal/events"
	"inferd/pkg/types"
)

// Detector is the operation set a detection handle implements. Detect is
// called per audio frame and must be cheap; it is the hot path of a capture
// loop.
type Detector interface {
	Detect(frame []float32) (types.Detection, error)
}

// VAD is the voice-activity-detection capability component. Speech start/end
// transitions are emitted analytics-only; per-frame results are returned to
// the caller, never published.
type VAD struct {
	*Component

	mu     sync.Mutex
	active bool
}

// NewVAD returns a VAD component for the detection domain.
func NewVAD(cfg Config) *VAD {
	cfg.Capability = types.CapabilityDetection
	return &VAD{Component: newComponent(cfg)}
}

// Detect classifies one audio frame through the loaded provider handle.
func (c *VAD) Detect(frame []float32) (types.Detection, error) {
	h, err := c.handle()
	if err != nil {
		return types.Detection{}, err
	}
	det, ok := h.(Detector)
	if !ok {
		return types.Detection{}, ErrNotSupported(c.capability, "detection")
	}
	d, err := det.Detect(frame)
	if err != nil {
		return types.Detection{}, err
	}

	c.mu.Lock()
	changed := d.Active != c.active
	c.active = d.Active
	c.mu.Unlock()

	if changed {
		eventType := "speech.ended"
		if d.Active {
			eventType = "speech.started"
		}
		c.publish(events.CategoryVAD, eventType, events.DestinationAnalyticsOnly, map[string]any{
			"modelId": c.lc.ModelID(),
			"energy":  d.Energy,
		})
	}
	return d, nil
}
