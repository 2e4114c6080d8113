// Package download orchestrates multi-stage model-artifact downloads. The
// orchestrator is a pure coordinator: it tracks task state and decides retry
// policy, while the actual byte transfer is performed by a platform adapter
// that reports back through UpdateProgress/MarkComplete/MarkFailed. It never
// opens a socket and holds no timers, so it is testable by direct callback
// injection.
package download

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"inferd/internal/config"
	"inferd/internal/events"
	"inferd/pkg/types"
)

// speedAlpha weights the newest instantaneous sample in the moving average.
const speedAlpha = 0.3

// ProgressFunc receives read-only progress snapshots for one task.
type ProgressFunc func(types.DownloadProgress)

// CompleteFunc is invoked exactly once when a task reaches a terminal state.
// finalPath is set on success; err carries the (code, message) pair on
// failure and a cancelled code on cancellation.
type CompleteFunc func(taskID, finalPath string, err error)

// Validator checks a materialized artifact before a task completes.
// The model-management layer supplies the real implementation; nil passes.
type Validator interface {
	Validate(modelID, path string) error
}

type task struct {
	id                 string
	modelID            string
	url                string
	destinationPath    string
	requiresExtraction bool

	progress       types.DownloadProgress
	priorState     types.DownloadState // state to restore on ResumeAll
	downloadedPath string

	onProgress ProgressFunc
	onComplete CompleteFunc

	startMS      int64
	lastSampleMS int64
	lastBytes    int64
}

// Orchestrator owns the download task table. All mutation entry points are
// short mutex-guarded sections; caller-supplied callbacks are always invoked
// with the mutex released so they may re-enter (e.g. call Progress).
type Orchestrator struct {
	mu        sync.Mutex
	cfg       config.DownloadConfig
	tasks     map[string]*task
	order     []string
	paused    bool
	validator Validator
	bus       *events.Bus
	log       zerolog.Logger
	nowMS     func() int64
}

// Option tweaks orchestrator construction.
type Option func(*Orchestrator)

// WithValidator installs the artifact validator run during the Validating
// stage.
func WithValidator(v Validator) Option {
	return func(o *Orchestrator) { o.validator = v }
}

// WithClock overrides the millisecond clock. Test hook.
func WithClock(nowMS func() int64) Option {
	return func(o *Orchestrator) { o.nowMS = nowMS }
}

// New returns an Orchestrator with cfg fixed for its lifetime.
// Re-configuration means destroying and recreating the orchestrator.
func New(cfg config.DownloadConfig, bus *events.Bus, log zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:   cfg,
		tasks: make(map[string]*task),
		bus:   bus,
		log:   log.With().Str("component", "download").Logger(),
		nowMS: func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Config returns the immutable orchestration config, read by platform
// adapters for retry delay, timeout, and concurrency limits.
func (o *Orchestrator) Config() config.DownloadConfig { return o.cfg }

// Start creates a task and moves it straight to Downloading. The transfer
// itself is the platform adapter's job; Start only creates tracking state.
// Rejected while the orchestrator is paused.
func (o *Orchestrator) Start(modelID, url, destinationPath string, requiresExtraction bool, onProgress ProgressFunc, onComplete CompleteFunc) (string, error) {
	o.mu.Lock()
	if o.paused {
		o.mu.Unlock()
		return "", ErrPaused()
	}
	now := o.nowMS()
	t := &task{
		id:                 "dl-" + uuid.NewString(),
		modelID:            modelID,
		url:                url,
		destinationPath:    destinationPath,
		requiresExtraction: requiresExtraction,
		onProgress:         onProgress,
		onComplete:         onComplete,
		startMS:            now,
		lastSampleMS:       now,
		progress: types.DownloadProgress{
			ModelID:    modelID,
			State:      types.DownloadDownloading,
			Stage:      types.StageDownloading,
			ETASeconds: -1,
		},
	}
	t.progress.TaskID = t.id
	o.tasks[t.id] = t
	o.order = append(o.order, t.id)
	snap := t.progress
	cb := t.onProgress
	o.mu.Unlock()

	tasksStarted.Inc()
	tasksActive.Inc()
	o.log.Info().Str("task", t.id).Str("model", modelID).Str("url", url).Msg("download started")
	o.publish("download.started", events.DestinationAll, snap)
	if cb != nil {
		cb(snap)
	}
	return t.id, nil
}

// UpdateProgress records adapter-reported byte counts, recomputes the moving
// average speed and the ETA, and no-ops on terminal tasks so a progress
// callback racing a cancellation can never resurrect a finished task.
func (o *Orchestrator) UpdateProgress(taskID string, bytesDownloaded, totalBytes int64) error {
	o.mu.Lock()
	t, ok := o.tasks[taskID]
	if !ok {
		o.mu.Unlock()
		return ErrTaskNotFound(taskID)
	}
	if t.progress.State.Terminal() || t.progress.State == types.DownloadPaused {
		o.mu.Unlock()
		return nil
	}
	// A progress report means the adapter re-invoked the transfer, so a
	// Retrying (or just-created Pending) task is downloading again.
	if t.progress.State == types.DownloadRetrying || t.progress.State == types.DownloadPending {
		t.progress.State = types.DownloadDownloading
	}

	now := o.nowMS()
	deltaMS := now - t.lastSampleMS
	deltaBytes := bytesDownloaded - t.lastBytes
	if deltaMS > 0 && deltaBytes >= 0 {
		instant := float64(deltaBytes) / (float64(deltaMS) / 1000.0)
		if t.progress.SpeedBPS <= 0 {
			t.progress.SpeedBPS = instant
		} else {
			t.progress.SpeedBPS = speedAlpha*instant + (1-speedAlpha)*t.progress.SpeedBPS
		}
		t.lastSampleMS = now
		t.lastBytes = bytesDownloaded
	}

	t.progress.BytesDownloaded = bytesDownloaded
	t.progress.TotalBytes = totalBytes
	if totalBytes > 0 {
		t.progress.StageProgress = float64(bytesDownloaded) / float64(totalBytes)
	} else {
		t.progress.StageProgress = 0
	}
	t.progress.OverallProgress = overall(t.progress.Stage, t.progress.StageProgress)
	if t.progress.SpeedBPS > 0 && totalBytes > bytesDownloaded {
		t.progress.ETASeconds = float64(totalBytes-bytesDownloaded) / t.progress.SpeedBPS
	} else {
		t.progress.ETASeconds = -1
	}
	snap := t.progress
	cb := t.onProgress
	o.mu.Unlock()

	o.publish("download.progress", events.DestinationPublicOnly, snap)
	if cb != nil {
		cb(snap)
	}
	return nil
}

// MarkComplete records a finished transfer. Tasks requiring extraction park
// in Extracting until the adapter calls MarkExtracted; everything else
// completes immediately. A straggler call on a terminal task is a no-op.
func (o *Orchestrator) MarkComplete(taskID, downloadedPath string) error {
	o.mu.Lock()
	t, ok := o.tasks[taskID]
	if !ok {
		o.mu.Unlock()
		return ErrTaskNotFound(taskID)
	}
	if t.progress.State.Terminal() {
		o.mu.Unlock()
		return nil
	}
	t.downloadedPath = downloadedPath

	if t.requiresExtraction {
		t.progress.State = types.DownloadExtracting
		t.progress.Stage = types.StageExtracting
		t.progress.StageProgress = 0
		t.progress.OverallProgress = overall(types.StageExtracting, 0)
		snap := t.progress
		cb := t.onProgress
		o.mu.Unlock()

		o.publish("download.state_changed", events.DestinationAll, snap)
		if cb != nil {
			cb(snap)
		}
		return nil
	}

	o.finishLocked(t, downloadedPath)
	return nil
}

// MarkExtracted records a finished extraction, runs the validator, and
// completes or terminally fails the task. Only meaningful in Extracting;
// terminal and other states are a no-op.
func (o *Orchestrator) MarkExtracted(taskID, extractedPath string) error {
	o.mu.Lock()
	t, ok := o.tasks[taskID]
	if !ok {
		o.mu.Unlock()
		return ErrTaskNotFound(taskID)
	}
	if t.progress.State != types.DownloadExtracting {
		o.mu.Unlock()
		return nil
	}
	t.downloadedPath = extractedPath
	t.progress.State = types.DownloadValidating
	t.progress.Stage = types.StageValidating
	t.progress.StageProgress = 0
	t.progress.OverallProgress = overall(types.StageValidating, 0)
	snap := t.progress
	cb := t.onProgress
	modelID := t.modelID
	validator := o.validator
	o.mu.Unlock()

	o.publish("download.state_changed", events.DestinationAll, snap)
	if cb != nil {
		cb(snap)
	}

	if validator != nil {
		if err := validator.Validate(modelID, extractedPath); err != nil {
			return o.MarkFailed(taskID, CodeChecksumMismatch, err.Error())
		}
	}

	o.mu.Lock()
	t, ok = o.tasks[taskID]
	if !ok || t.progress.State.Terminal() {
		o.mu.Unlock()
		return nil
	}
	o.finishLocked(t, extractedPath)
	return nil
}

// finishLocked moves t to Completed and notifies. Called with o.mu held;
// releases it.
func (o *Orchestrator) finishLocked(t *task, finalPath string) {
	t.progress.State = types.DownloadCompleted
	t.progress.Stage = types.StageCompleted
	t.progress.StageProgress = 1.0
	t.progress.OverallProgress = 1.0
	t.progress.ETASeconds = 0
	snap := t.progress
	progressCB := t.onProgress
	completeCB := t.onComplete
	o.mu.Unlock()

	tasksFinished.WithLabelValues("completed").Inc()
	tasksActive.Dec()
	o.log.Info().Str("task", t.id).Str("model", t.modelID).Msg("download completed")
	o.publish("download.state_changed", events.DestinationAll, snap)
	if progressCB != nil {
		progressCB(snap)
	}
	if completeCB != nil {
		completeCB(t.id, finalPath, nil)
	}
}

// MarkFailed records an attempt failure. Retryable codes with budget left
// move the task to Retrying and wait for the adapter to re-invoke the
// transfer; terminal codes or an exhausted budget fail the task with the
// (code, message) recorded verbatim. A straggler call on a terminal task is
// a no-op.
func (o *Orchestrator) MarkFailed(taskID, errorCode, errorMessage string) error {
	o.mu.Lock()
	t, ok := o.tasks[taskID]
	if !ok {
		o.mu.Unlock()
		return ErrTaskNotFound(taskID)
	}
	if t.progress.State.Terminal() {
		o.mu.Unlock()
		return nil
	}

	t.progress.ErrorCode = errorCode
	t.progress.ErrorMessage = errorMessage

	if Retryable(errorCode) && t.progress.RetryAttempt < o.cfg.MaxRetryAttempts {
		t.progress.RetryAttempt++
		t.progress.State = types.DownloadRetrying
		snap := t.progress
		cb := t.onProgress
		o.mu.Unlock()

		retriesTotal.Inc()
		o.log.Warn().
			Str("task", taskID).
			Str("code", errorCode).
			Int("attempt", snap.RetryAttempt).
			Msg("download failed, will retry")
		o.publish("download.state_changed", events.DestinationAll, snap)
		if cb != nil {
			cb(snap)
		}
		return nil
	}

	t.progress.State = types.DownloadFailed
	snap := t.progress
	progressCB := t.onProgress
	completeCB := t.onComplete
	o.mu.Unlock()

	tasksFinished.WithLabelValues("failed").Inc()
	tasksActive.Dec()
	o.log.Error().Str("task", taskID).Str("code", errorCode).Str("msg", errorMessage).Msg("download failed")
	o.publish("download.state_changed", events.DestinationAll, snap)
	if progressCB != nil {
		progressCB(snap)
	}
	if completeCB != nil {
		completeCB(taskID, "", ErrTask(errorCode, errorMessage))
	}
	return nil
}

// Cancel moves a non-terminal task to Cancelled and drops its progress
// callback; later adapter callbacks for the task are silently ignored.
// Cancelling a finished task is harmless and returns nil. Cancellation is
// cooperative: in-flight platform I/O is the adapter's problem.
func (o *Orchestrator) Cancel(taskID string) error {
	o.mu.Lock()
	t, ok := o.tasks[taskID]
	if !ok {
		o.mu.Unlock()
		return ErrTaskNotFound(taskID)
	}
	if t.progress.State.Terminal() {
		o.mu.Unlock()
		return nil
	}
	t.progress.State = types.DownloadCancelled
	snap := t.progress
	progressCB := t.onProgress
	completeCB := t.onComplete
	t.onProgress = nil
	t.onComplete = nil
	o.mu.Unlock()

	tasksFinished.WithLabelValues("cancelled").Inc()
	tasksActive.Dec()
	o.log.Info().Str("task", taskID).Msg("download cancelled")
	o.publish("download.state_changed", events.DestinationAll, snap)
	if progressCB != nil {
		progressCB(snap)
	}
	if completeCB != nil {
		completeCB(taskID, "", ErrTask(CodeCancelled, "download cancelled"))
	}
	return nil
}

// PauseAll parks every active task in Paused, remembering its prior state,
// and rejects new Starts until ResumeAll. Used when the platform reports a
// network-policy change.
func (o *Orchestrator) PauseAll() {
	o.mu.Lock()
	o.paused = true
	var snaps []types.DownloadProgress
	for _, id := range o.order {
		t := o.tasks[id]
		if t.progress.State.Terminal() || t.progress.State == types.DownloadPaused {
			continue
		}
		t.priorState = t.progress.State
		t.progress.State = types.DownloadPaused
		snaps = append(snaps, t.progress)
	}
	o.mu.Unlock()

	o.log.Info().Int("tasks", len(snaps)).Msg("downloads paused")
	for _, snap := range snaps {
		o.publish("download.state_changed", events.DestinationAll, snap)
	}
}

// ResumeAll restores each paused task to its pre-pause state and accepts
// new Starts again.
func (o *Orchestrator) ResumeAll() {
	o.mu.Lock()
	o.paused = false
	var snaps []types.DownloadProgress
	for _, id := range o.order {
		t := o.tasks[id]
		if t.progress.State != types.DownloadPaused {
			continue
		}
		t.progress.State = t.priorState
		t.priorState = ""
		snaps = append(snaps, t.progress)
	}
	o.mu.Unlock()

	o.log.Info().Int("tasks", len(snaps)).Msg("downloads resumed")
	for _, snap := range snaps {
		o.publish("download.state_changed", events.DestinationAll, snap)
	}
}

// Progress returns a read-only snapshot of one task.
func (o *Orchestrator) Progress(taskID string) (types.DownloadProgress, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.tasks[taskID]
	if !ok {
		return types.DownloadProgress{}, ErrTaskNotFound(taskID)
	}
	return t.progress, nil
}

// ActiveTasks returns the ids of all non-terminal tasks in insertion order.
func (o *Orchestrator) ActiveTasks() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.order))
	for _, id := range o.order {
		if !o.tasks[id].progress.State.Terminal() {
			out = append(out, id)
		}
	}
	return out
}

// Healthy reports whether internal bookkeeping is consistent. Diagnostic
// only; consumed by host telemetry.
func (o *Orchestrator) Healthy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.order) != len(o.tasks) {
		return false
	}
	for _, id := range o.order {
		if _, ok := o.tasks[id]; !ok {
			return false
		}
	}
	return true
}

// Shutdown cancels all active tasks. The orchestrator is unusable after.
func (o *Orchestrator) Shutdown() {
	for _, id := range o.ActiveTasks() {
		_ = o.Cancel(id)
	}
}

func (o *Orchestrator) publish(eventType string, dest events.Destination, snap types.DownloadProgress) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(events.Event{
		Category:    events.CategoryDownload,
		Type:        eventType,
		Destination: dest,
		Properties: map[string]any{
			"taskId":  snap.TaskID,
			"modelId": snap.ModelID,
			"state":   string(snap.State),
			"stage":   string(snap.Stage),
			"overall": snap.OverallProgress,
		},
	})
}

// overall maps a stage-local fraction onto the whole pipeline.
func overall(stage types.DownloadStage, stageProgress float64) float64 {
	start, end := types.StageRange(stage)
	return start + stageProgress*(end-start)
}
