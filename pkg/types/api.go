package types

// LoadRequest asks a capability component to load a model. Either Path or URL
// must be set; URL downloads the artifact first.
type LoadRequest struct {
	Capability Capability `json:"capability"`
	Path       string     `json:"path,omitempty"`
	URL        string     `json:"url,omitempty"`
	ModelID    string     `json:"model_id,omitempty"`
	ModelName  string     `json:"model_name,omitempty"`
	Format     string     `json:"format,omitempty"`
}

// UnloadRequest unloads the model held by a capability component.
type UnloadRequest struct {
	Capability Capability `json:"capability"`
}

// ComponentStatus is a read-only projection of one capability component.
type ComponentStatus struct {
	Capability Capability `json:"capability"`
	State      string     `json:"state"`
	ModelID    string     `json:"model_id,omitempty"`
	ModelName  string     `json:"model_name,omitempty"`
	Err        string     `json:"error,omitempty"`
}

// StatusResponse aggregates component states for /status.
type StatusResponse struct {
	Components []ComponentStatus `json:"components"`
	Downloads  []string          `json:"active_downloads"`
	Healthy    bool              `json:"healthy"`
}

// GenerateRequest is the /generate payload.
type GenerateRequest struct {
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream,omitempty"`
	Options GenerateOptions `json:"options,omitempty"`
}

// TranscribeRequest is the /transcribe payload.
type TranscribeRequest struct {
	Samples []float32         `json:"samples"`
	Options TranscribeOptions `json:"options,omitempty"`
}

// SynthesizeRequest is the /synthesize payload.
type SynthesizeRequest struct {
	Text    string            `json:"text"`
	Options SynthesizeOptions `json:"options,omitempty"`
}

// DetectRequest is the /detect payload.
type DetectRequest struct {
	Frame []float32 `json:"frame"`
}

// DownloadRequest is the /downloads payload.
type DownloadRequest struct {
	ModelID            string `json:"model_id"`
	URL                string `json:"url"`
	DestinationPath    string `json:"destination_path"`
	RequiresExtraction bool   `json:"requires_extraction,omitempty"`
}

// DownloadStarted is returned by POST /downloads.
type DownloadStarted struct {
	TaskID string `json:"task_id"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
