package metrics

import (
	"time"
)

// Recorder writes pipeline and watcher activity into the instruments
// declared in metrics.go.
type Recorder struct{}

// NewRecorder returns a Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// CycleStarted marks the process as consolidating.
func (r *Recorder) CycleStarted() {
	Consolidating.Set(1)
}

// CycleFinished records a completed cycle and returns to idle.
func (r *Recorder) CycleFinished(trigger string, elapsed time.Duration) {
	CyclesTotal.WithLabelValues(trigger).Inc()
	CycleDuration.Observe(elapsed.Seconds())
	LastCycleTimestamp.SetToCurrentTime()
	Consolidating.Set(0)
}

// BatchFinished records a batch outcome. Archived fragments are only counted
// for committed batches.
func (r *Recorder) BatchFinished(mode, outcome string, archived int) {
	BatchesTotal.WithLabelValues(mode, outcome).Inc()
	if archived > 0 {
		FragmentsArchivedTotal.Add(float64(archived))
	}
}

// EngineFailure records a failed engine invocation.
func (r *Recorder) EngineFailure(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	EngineFailuresTotal.WithLabelValues(reason).Inc()
}

// Compression records a compression attempt.
func (r *Recorder) Compression(outcome string) {
	CompressionsTotal.WithLabelValues(outcome).Inc()
}

// Recovered records interrupted batches resolved during recovery.
func (r *Recorder) Recovered(action string, n int) {
	if n > 0 {
		RecoveredTotal.WithLabelValues(action).Add(float64(n))
	}
}

// WatchEvent records a relevant filesystem event.
func (r *Recorder) WatchEvent(kind string) {
	WatchEventsTotal.WithLabelValues(kind).Inc()
}

// WatchedDirectories records the size of the watch set.
func (r *Recorder) WatchedDirectories(n int) {
	WatchedDirectories.Set(float64(n))
}
