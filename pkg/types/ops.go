package types

// GenerateOptions tunes one text generation call.
type GenerateOptions struct {
	MaxTokens     int      `json:"max_tokens,omitempty"`
	Temperature   float32  `json:"temperature,omitempty"`
	TopP          float32  `json:"top_p,omitempty"`
	TopK          int      `json:"top_k,omitempty"`
	StopSequences []string `json:"stop,omitempty"`
	Seed          int      `json:"seed,omitempty"`
}

// GenerateResult is the final outcome of one generation call.
type GenerateResult struct {
	Text            string `json:"text"`
	TokensGenerated int    `json:"tokens_generated"`
	DurationMS      int64  `json:"duration_ms"`
}

// TranscribeOptions tunes one speech-to-text call.
type TranscribeOptions struct {
	Language   string `json:"language,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
}

// Transcript is the result of one transcription call.
type Transcript struct {
	Text       string `json:"text"`
	Language   string `json:"language,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// SynthesizeOptions tunes one text-to-speech call.
type SynthesizeOptions struct {
	Voice      string  `json:"voice,omitempty"`
	SpeechRate float32 `json:"speech_rate,omitempty"`
	SampleRate int     `json:"sample_rate,omitempty"`
}

// Audio is synthesized PCM audio.
type Audio struct {
	Samples    []float32 `json:"samples"`
	SampleRate int       `json:"sample_rate"`
}

// Detection is the outcome of one voice-activity check over a frame.
type Detection struct {
	Active bool    `json:"active"`
	Energy float64 `json:"energy"`
}
