// Package energyvad is a bundled pure-Go voice activity detector. It
// classifies frames by RMS energy against a threshold, with hysteresis so a
// single noisy frame does not flap the speaking state, and an initial
// calibration window that measures ambient noise to pick the threshold.
package energyvad

import (
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"inferd/internal/registry"
	"inferd/pkg/types"
)

const (
	defaultThreshold      = 0.015
	defaultSampleRate     = 16000
	minThreshold          = 0.003
	maxThreshold          = 0.020
	calibrationMultiplier = 2.0
	calibrationFrames     = 20
	voiceStartFrames      = 1
	voiceEndFrames        = 12
)

// ModuleID identifies the bundled detector in the module registry.
const ModuleID = "energy-vad"

// Register adds the bundled detector to the registries. It needs no model
// file, so it accepts any detection request at low priority and acts as the
// fallback when no model-backed detector is registered.
func Register(mods *registry.Modules, svcs *registry.Services, log zerolog.Logger) error {
	if err := mods.Register(registry.Module{
		ID:           ModuleID,
		Name:         "Energy VAD",
		Description:  "RMS energy voice activity detector",
		Capabilities: []types.Capability{types.CapabilityDetection},
	}); err != nil {
		return err
	}
	return svcs.RegisterProvider(&provider{log: log})
}

type provider struct {
	log zerolog.Logger
}

func (p *provider) ID() string                   { return ModuleID }
func (p *provider) Capability() types.Capability { return types.CapabilityDetection }
func (p *provider) Priority() int                { return 1 }

func (p *provider) CanHandle(types.ModelRequest) bool { return true }

func (p *provider) New(req types.ModelRequest) (registry.Handle, error) {
	p.log.Debug().Str("model", req.ModelID).Msg("energy vad instance created")
	return NewDetector(defaultThreshold), nil
}

// Detector holds the hysteresis and calibration state for one stream.
type Detector struct {
	mu sync.Mutex

	threshold   float64
	speaking    bool
	voiceRun    int
	silenceRun  int
	calibration []float64
	ambient     float64
}

// NewDetector returns a Detector that calibrates its threshold over the
// first frames it sees, starting from the given baseline.
func NewDetector(threshold float64) *Detector {
	return &Detector{
		threshold:   threshold,
		calibration: make([]float64, 0, calibrationFrames),
	}
}

// Detect classifies one frame of mono float32 samples. Frames observed during
// the calibration window are always reported inactive.
func (d *Detector) Detect(frame []float32) (types.Detection, error) {
	energy := rms(frame)

	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.calibration) < calibrationFrames {
		d.calibration = append(d.calibration, energy)
		if len(d.calibration) == calibrationFrames {
			d.completeCalibration()
		}
		return types.Detection{Active: false, Energy: energy}, nil
	}

	hasVoice := energy > d.threshold
	if hasVoice {
		d.voiceRun++
		d.silenceRun = 0
		if !d.speaking && d.voiceRun >= voiceStartFrames {
			d.speaking = true
		}
	} else {
		d.silenceRun++
		d.voiceRun = 0
		if d.speaking && d.silenceRun >= voiceEndFrames {
			d.speaking = false
		}
	}
	return types.Detection{Active: d.speaking, Energy: energy}, nil
}

// completeCalibration picks the threshold from the 90th-percentile ambient
// energy, clamped to sane bounds. Called with d.mu held.
func (d *Detector) completeCalibration() {
	sorted := make([]float64, len(d.calibration))
	copy(sorted, d.calibration)
	sort.Float64s(sorted)

	idx := int(float64(len(sorted)) * 0.90)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	d.ambient = sorted[idx]

	threshold := d.ambient * calibrationMultiplier
	if floor := math.Max(d.ambient*2, minThreshold); threshold < floor {
		threshold = floor
	}
	if threshold > maxThreshold {
		threshold = maxThreshold
	}
	d.threshold = threshold
}

// Threshold returns the active energy threshold.
func (d *Detector) Threshold() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.threshold
}

// Ambient returns the measured ambient noise level, 0 before calibration.
func (d *Detector) Ambient() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ambient
}

// Reset clears the speaking state without recalibrating.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.speaking = false
	d.voiceRun = 0
	d.silenceRun = 0
}

// Close releases the detector. It holds no external resources.
func (d *Detector) Close() error { return nil }

func rms(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(frame)))
}
