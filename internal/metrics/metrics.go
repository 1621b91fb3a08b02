// Package metrics exposes ingestion counters in Prometheus format, either
// over HTTP or as a node_exporter textfile written after each run.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of one process. All methods are nil-safe so
// callers can run without metrics.
type Metrics struct {
	reg *prometheus.Registry

	entries        *prometheus.CounterVec
	skipped        *prometheus.CounterVec
	entryDuration  prometheus.Histogram
	artifacts      *prometheus.CounterVec
	persistErrors  prometheus.Counter
	runs           *prometheus.CounterVec
	lastRunSuccess prometheus.Gauge
	lastRunEntries prometheus.Gauge
}

// New registers every collector on a private registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strmsync_entries_total",
			Help: "Playlist entries handled, by content kind and result.",
		}, []string{"kind", "result"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strmsync_entries_skipped_total",
			Help: "Entries dropped by the classifier, by reason.",
		}, []string{"reason"}),
		entryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "strmsync_entry_duration_seconds",
			Help:    "Time spent registering and materializing one entry.",
			Buckets: prometheus.DefBuckets,
		}),
		artifacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strmsync_artifacts_total",
			Help: "Pointer artifact writes, by outcome.",
		}, []string{"outcome"}),
		persistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strmsync_registry_persist_errors_total",
			Help: "Registry saves that failed; in-memory state was kept.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "strmsync_runs_total",
			Help: "Ingestion runs, by final state.",
		}, []string{"state"}),
		lastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "strmsync_last_run_success_timestamp_seconds",
			Help: "Unix time of the last run that completed.",
		}),
		lastRunEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "strmsync_last_run_entries",
			Help: "Entries in the most recent playlist.",
		}),
	}
	m.reg.MustRegister(
		m.entries, m.skipped, m.entryDuration, m.artifacts,
		m.persistErrors, m.runs, m.lastRunSuccess, m.lastRunEntries,
	)
	return m
}

// Registry exposes the underlying registry for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) Entry(kind, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.entries.WithLabelValues(kind, result).Inc()
	m.entryDuration.Observe(took.Seconds())
}

func (m *Metrics) Skipped(reason string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) Artifact(outcome string) {
	if m == nil {
		return
	}
	m.artifacts.WithLabelValues(outcome).Inc()
}

// PersistError is shaped to plug into registry.Config.OnPersistError.
func (m *Metrics) PersistError(error) {
	if m == nil {
		return
	}
	m.persistErrors.Inc()
}

func (m *Metrics) RunFinished(state string, entries int, at time.Time) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(state).Inc()
	m.lastRunEntries.Set(float64(entries))
	if state == "completed" {
		m.lastRunSuccess.Set(float64(at.Unix()))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// WriteTextfile writes the registry for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.reg)
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if logger != nil {
		logger.Info("metrics: listening", "addr", addr)
	}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
