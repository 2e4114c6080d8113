package types

// Capability identifies one model-driven capability domain.
type Capability string

const (
	CapabilityGeneration    Capability = "generation"
	CapabilityTranscription Capability = "transcription"
	CapabilitySynthesis     Capability = "synthesis"
	CapabilityDetection     Capability = "detection"
)

// Capabilities lists every known capability domain in a stable order.
func Capabilities() []Capability {
	return []Capability{
		CapabilityGeneration,
		CapabilityTranscription,
		CapabilitySynthesis,
		CapabilityDetection,
	}
}

// ModelArtifact is a local model file, either discovered by the scanner or
// materialized by the download orchestrator.
type ModelArtifact struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Path      string `json:"path"`
	Format    string `json:"format,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

// ModelRequest describes what a caller wants loaded. Providers match on it;
// the registries never interpret the hint fields themselves.
type ModelRequest struct {
	ModelID   string `json:"model_id"`
	ModelPath string `json:"model_path"`
	Format    string `json:"format,omitempty"`
	Framework string `json:"framework,omitempty"`
	Device    string `json:"device,omitempty"`
}
