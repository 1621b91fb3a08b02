// Package progress carries ingestion progress from the pipeline to whoever
// watches it: the log, a status file, a terminal.
package progress

import (
	"log/slog"
	"time"
)

// Run states reported in Snapshot.State.
const (
	StateRunning   = "running"
	StateCompleted = "completed"
	StateCancelled = "cancelled"
	StateFailed    = "failed"
)

// Snapshot is a point-in-time view of one run.
type Snapshot struct {
	RunID     string
	Source    string
	State     string
	Total     int64
	Processed int64
	Movies    int64
	TV        int64
	Skipped   int64
	Errors    int64
	Batch     int
	Batches   int
	Current   string
	Started   time.Time
	Elapsed   time.Duration
	Err       string
}

// Done reports whether the run has finished.
func (s Snapshot) Done() bool { return s.State != "" && s.State != StateRunning }

// Percent of entries handled so far.
func (s Snapshot) Percent() float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(s.Processed) * 100 / float64(s.Total)
}

// Sink receives snapshots. Implementations must be safe for concurrent use.
type Sink interface {
	Report(Snapshot)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Snapshot)

func (f SinkFunc) Report(s Snapshot) { f(s) }

// Multi fans a snapshot out to every non-nil sink.
type Multi []Sink

func (m Multi) Report(s Snapshot) {
	for _, sink := range m {
		if sink != nil {
			sink.Report(s)
		}
	}
}

// LogSink writes one record per snapshot.
type LogSink struct {
	Logger *slog.Logger
}

func (l LogSink) Report(s Snapshot) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{
		"run_id", s.RunID,
		"processed", s.Processed,
		"total", s.Total,
		"movies", s.Movies,
		"tv", s.TV,
		"skipped", s.Skipped,
		"errors", s.Errors,
		"elapsed", s.Elapsed.Round(time.Millisecond),
	}
	if s.Batches > 0 {
		attrs = append(attrs, "batch", s.Batch, "batches", s.Batches)
	}
	if s.Done() {
		logger.Info("pipeline: run "+s.State, attrs...)
		return
	}
	logger.Info("pipeline: progress", append(attrs, "percent", int(s.Percent()))...)
}
