package types

// DownloadState is the coarse state of one download task.
type DownloadState string

const (
	DownloadPending     DownloadState = "pending"
	DownloadDownloading DownloadState = "downloading"
	DownloadExtracting  DownloadState = "extracting"
	DownloadValidating  DownloadState = "validating"
	DownloadRetrying    DownloadState = "retrying"
	DownloadPaused      DownloadState = "paused"
	DownloadCompleted   DownloadState = "completed"
	DownloadFailed      DownloadState = "failed"
	DownloadCancelled   DownloadState = "cancelled"
)

// Terminal reports whether the state can never change again.
func (s DownloadState) Terminal() bool {
	return s == DownloadCompleted || s == DownloadFailed || s == DownloadCancelled
}

// DownloadStage is the pipeline stage a task is in. A task in DownloadRetrying
// keeps the stage it failed in.
type DownloadStage string

const (
	StageDownloading DownloadStage = "downloading"
	StageExtracting  DownloadStage = "extracting"
	StageValidating  DownloadStage = "validating"
	StageCompleted   DownloadStage = "completed"
)

// StageRange returns the slice of overall progress covered by a stage.
// Downloading 0-80%, extraction 80-95%, validation 95-99%, completed 100%.
func StageRange(stage DownloadStage) (start, end float64) {
	switch stage {
	case StageDownloading:
		return 0.0, 0.80
	case StageExtracting:
		return 0.80, 0.95
	case StageValidating:
		return 0.95, 0.99
	case StageCompleted:
		return 1.0, 1.0
	default:
		return 0.0, 0.0
	}
}

// DownloadProgress is a read-only snapshot of one download task. Callers get
// copies, never live references into the orchestrator's task table.
type DownloadProgress struct {
	TaskID          string        `json:"task_id"`
	ModelID         string        `json:"model_id"`
	State           DownloadState `json:"state"`
	Stage           DownloadStage `json:"stage"`
	BytesDownloaded int64         `json:"bytes_downloaded"`
	TotalBytes      int64         `json:"total_bytes"`
	StageProgress   float64       `json:"stage_progress"`
	OverallProgress float64       `json:"overall_progress"`
	SpeedBPS        float64       `json:"speed_bps"`
	ETASeconds      float64       `json:"eta_seconds"`
	RetryAttempt    int           `json:"retry_attempt"`
	ErrorCode       string        `json:"error_code,omitempty"`
	ErrorMessage    string        `json:"error_message,omitempty"`
}
