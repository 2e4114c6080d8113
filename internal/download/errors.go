package download

// Error codes reported by platform adapters through MarkFailed. Transient
// codes consume one retry budget unit; terminal codes fail immediately.
const (
	CodeNetwork          = "network"
	CodeTimeout          = "timeout"
	CodeHTTP5xx          = "http_5xx"
	CodeConnectionReset  = "connection_reset"
	CodeInvalidURL       = "invalid_url"
	CodeChecksumMismatch = "checksum_mismatch"
	CodeDiskFull         = "disk_full"
	CodeHTTP4xx          = "http_4xx"
	CodeCancelled        = "cancelled"
)

// terminalCodes fail a task immediately regardless of remaining retry budget.
var terminalCodes = map[string]bool{
	CodeInvalidURL:       true,
	CodeChecksumMismatch: true,
	CodeDiskFull:         true,
	CodeHTTP4xx:          true,
	CodeCancelled:        true,
}

// Retryable classifies an error code. Unknown codes default to retryable so
// an adapter reporting a code this table has never seen still gets the
// retry budget rather than an instant failure.
func Retryable(code string) bool {
	return !terminalCodes[code]
}

// taskNotFoundError signals an unknown task id.
type taskNotFoundError struct{ id string }

func (e taskNotFoundError) Error() string { return "download task not found: " + e.id }

// ErrTaskNotFound constructs an unknown-task error.
func ErrTaskNotFound(id string) error { return taskNotFoundError{id: id} }

// IsTaskNotFound reports whether err indicates an unknown task id.
func IsTaskNotFound(err error) bool {
	_, ok := err.(taskNotFoundError)
	return ok
}

// pausedError signals that new downloads are rejected while paused.
type pausedError struct{}

func (pausedError) Error() string { return "downloads are paused" }

// ErrPaused constructs a downloads-paused error.
func ErrPaused() error { return pausedError{} }

// IsPaused reports whether err indicates the orchestrator is paused.
func IsPaused(err error) bool {
	_, ok := err.(pausedError)
	return ok
}

// taskError carries a failed task's (code, message) pair on the error value.
type taskError struct {
	code    string
	message string
}

func (e taskError) Error() string {
	if e.message == "" {
		return "download failed: " + e.code
	}
	return "download failed: " + e.code + ": " + e.message
}

// ErrTask constructs a terminal task error with its adapter-reported code.
func ErrTask(code, message string) error { return taskError{code: code, message: message} }

// Code extracts the error code from a task error, or "" for other errors.
func Code(err error) string {
	if te, ok := err.(taskError); ok {
		return te.code
	}
	return ""
}

// IsCancelled reports whether err is the expected cancellation outcome.
// Cancellation is not an application error and must not be surfaced as one.
func IsCancelled(err error) bool {
	return Code(err) == CodeCancelled
}
