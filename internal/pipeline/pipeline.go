// Package pipeline drives one ingestion run: classify every entry, then push
// movies and episodes through register-and-materialize in bounded batches.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"github.com/snapetech/strmsync/internal/classify"
	"github.com/snapetech/strmsync/internal/indexer"
	"github.com/snapetech/strmsync/internal/materializer"
	"github.com/snapetech/strmsync/internal/metrics"
	"github.com/snapetech/strmsync/internal/progress"
	"github.com/snapetech/strmsync/internal/registry"
	"github.com/snapetech/strmsync/internal/store"
)

// Defaults applied when Config leaves a knob at zero.
const (
	DefaultBatchSize     = 100
	DefaultWorkers       = 10
	DefaultEntryTimeout  = 60 * time.Second
	DefaultProgressEvery = 50
)

// ErrEntryTimeout marks an entry abandoned after its deadline.
var ErrEntryTimeout = errors.New("pipeline: entry timed out")

// Registry is the dedup registry as the pipeline uses it.
type Registry interface {
	RegisterOrUpdate(ctx context.Context, id registry.Identity, url, filepath, providerURL, resolution string) (registry.Result, error)
}

// Artifacts writes and removes pointer files.
type Artifacts interface {
	Write(path, url string) (materializer.Outcome, error)
	Remove(path string) error
}

// ChangeLog receives one row per materialize decision.
type ChangeLog interface {
	Append(ctx context.Context, c store.Change) error
}

// LinkCounter tracks per-provider content counts.
type LinkCounter interface {
	IncrementContentCount(ctx context.Context, url string, n int) error
}

// Config wires a Runner. Classifier, Registry and Artifacts are required.
type Config struct {
	Classifier *classify.Classifier
	Registry   Registry
	Layout     materializer.Layout
	Artifacts  Artifacts
	Changes    ChangeLog
	Links      LinkCounter
	Progress   progress.Sink
	Metrics    *metrics.Metrics
	Logger     *slog.Logger

	BatchSize     int
	Workers       int
	EntryTimeout  time.Duration
	ProgressEvery int
}

// Runner is reusable across runs but runs are expected to be sequential.
type Runner struct {
	cfg   Config
	log   *slog.Logger
	locks keyLocks
	now   func() time.Time
}

// New validates cfg and fills defaults.
func New(cfg Config) (*Runner, error) {
	if cfg.Classifier == nil || cfg.Registry == nil || cfg.Artifacts == nil {
		return nil, errors.New("pipeline: classifier, registry and artifacts are required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.EntryTimeout <= 0 {
		cfg.EntryTimeout = DefaultEntryTimeout
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = DefaultProgressEvery
	}
	if cfg.Progress == nil {
		cfg.Progress = progress.Multi{}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Runner{cfg: cfg, log: log, now: time.Now}, nil
}

// Summary is the outcome of a run.
type Summary struct {
	RunID           string
	Total           int
	ProcessedMovies int
	ProcessedTV     int
	Skipped         int
	Errors          int
	Timeouts        int
	SkippedBy       map[classify.SkipReason]int
	Duration        time.Duration
}

// Processed counts every entry that left the pipeline, successfully or not.
func (s Summary) Processed() int { return s.ProcessedMovies + s.ProcessedTV + s.Skipped + s.Errors }

// run carries the counters of one Run call.
type run struct {
	id          string
	source      string
	providerURL string
	started     time.Time
	total       int64

	processed atomic.Int64
	movies    atomic.Int64
	tv        atomic.Int64
	skipped   atomic.Int64
	errors    atomic.Int64
	timeouts  atomic.Int64

	batch, batches atomic.Int64
	current        atomic.Value // string
	every          *rate.Sometimes
}

// Run ingests entries offered by providerURL. A cancelled ctx stops the run
// at the next batch boundary; the partial summary is returned together with
// the context error.
func (r *Runner) Run(ctx context.Context, providerURL string, entries []indexer.RawEntry) (Summary, error) {
	rn := &run{
		id:          uuid.NewString(),
		source:      providerURL,
		providerURL: providerURL,
		started:     r.now(),
		total:       int64(len(entries)),
		every:       &rate.Sometimes{Every: r.cfg.ProgressEvery},
	}
	log := r.log.With("run_id", rn.id)
	log.Info("pipeline: run started", "provider", providerURL, "entries", len(entries),
		"workers", r.cfg.Workers, "batch_size", r.cfg.BatchSize)
	r.report(rn, progress.StateRunning, nil)

	outcomes := r.classifyAll(entries)
	var movies, episodes []classify.Outcome
	skippedBy := make(map[classify.SkipReason]int)
	for _, o := range outcomes {
		switch {
		case o.Skipped():
			skippedBy[o.Skip]++
			rn.skipped.Add(1)
			rn.processed.Add(1)
			r.cfg.Metrics.Skipped(string(o.Skip))
		case o.Identity.Kind == classify.KindTV:
			episodes = append(episodes, o)
		default:
			movies = append(movies, o)
		}
	}
	log.Info("pipeline: classified", "movies", len(movies), "tv", len(episodes), "skipped", rn.skipped.Load())

	batches := splitBatches(movies, r.cfg.BatchSize)
	batches = append(batches, splitBatches(episodes, r.cfg.BatchSize)...)
	rn.batches.Store(int64(len(batches)))

	var runErr error
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			log.Warn("pipeline: run cancelled", "completed_batches", i, "batches", len(batches))
			runErr = err
			break
		}
		rn.batch.Store(int64(i + 1))
		r.runBatch(ctx, rn, batch)
		r.report(rn, progress.StateRunning, nil)
	}

	sum := rn.summary(skippedBy, r.now())
	if n := sum.ProcessedMovies + sum.ProcessedTV; n > 0 && r.cfg.Links != nil {
		if err := r.cfg.Links.IncrementContentCount(context.WithoutCancel(ctx), providerURL, n); err != nil {
			log.Warn("pipeline: update provider content count failed", "err", err)
		}
	}

	state := progress.StateCompleted
	if runErr != nil {
		state = progress.StateCancelled
	}
	r.report(rn, state, runErr)
	r.cfg.Metrics.RunFinished(state, len(entries), r.now())
	log.Info("pipeline: run finished", "state", state,
		"movies", sum.ProcessedMovies, "tv", sum.ProcessedTV, "skipped", sum.Skipped,
		"errors", sum.Errors, "timeouts", sum.Timeouts, "duration", sum.Duration.Round(time.Millisecond))
	return sum, runErr
}

// classifyAll runs the stateless classifier over every entry in parallel.
// Results keep input order.
func (r *Runner) classifyAll(entries []indexer.RawEntry) []classify.Outcome {
	out := make([]classify.Outcome, len(entries))
	p := pool.New().WithMaxGoroutines(r.cfg.Workers)
	for start := 0; start < len(entries); start += r.cfg.BatchSize {
		end := min(start+r.cfg.BatchSize, len(entries))
		p.Go(func() {
			for i := start; i < end; i++ {
				out[i] = r.cfg.Classifier.Classify(entries[i])
			}
		})
	}
	p.Wait()
	return out
}

// runBatch blocks until every entry of batch has finished or been abandoned.
func (r *Runner) runBatch(ctx context.Context, rn *run, batch []classify.Outcome) {
	// In-flight entries finish even when the run is cancelled mid-batch.
	entryParent := context.WithoutCancel(ctx)
	p := pool.New().WithMaxGoroutines(r.cfg.Workers)
	for _, o := range batch {
		p.Go(func() {
			r.runEntry(entryParent, rn, o)
		})
	}
	p.Wait()
}

type entryResult struct {
	err error
}

// awaitEntry waits for the entry's result or its deadline. A result that is
// already available wins over an expired deadline; an error that arrives
// after the deadline counts as a timeout.
func awaitEntry(ctx context.Context, done <-chan entryResult) error {
	select {
	case res := <-done:
		return entryErr(ctx, res.err)
	case <-ctx.Done():
	}
	select {
	case res := <-done:
		return entryErr(ctx, res.err)
	default:
		return ErrEntryTimeout
	}
}

func entryErr(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrEntryTimeout, err)
	}
	return err
}

// runEntry gives one entry its own deadline. On expiry the worker slot is
// released; the abandoned goroutine sees a cancelled context and the
// registry refuses to mutate on its behalf.
func (r *Runner) runEntry(parent context.Context, rn *run, o classify.Outcome) {
	ctx, cancel := context.WithTimeout(parent, r.cfg.EntryTimeout)
	defer cancel()
	started := r.now()
	rn.current.Store(o.Identity.Title)

	done := make(chan entryResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- entryResult{err: fmt.Errorf("pipeline: panic: %v", p)}
			}
		}()
		done <- entryResult{err: r.process(ctx, rn, o)}
	}()

	err := awaitEntry(ctx, done)

	kind := string(o.Identity.Kind)
	result := "processed"
	switch {
	case errors.Is(err, ErrEntryTimeout):
		result = "timeout"
		rn.timeouts.Add(1)
		rn.errors.Add(1)
		r.log.Warn("pipeline: entry timed out", "run_id", rn.id, "title", o.Identity.Title,
			"line", o.Entry.Line, "timeout", r.cfg.EntryTimeout)
	case err != nil:
		result = "error"
		rn.errors.Add(1)
		r.log.Error("pipeline: entry failed", "run_id", rn.id, "title", o.Identity.Title,
			"line", o.Entry.Line, "err", err)
	case o.Identity.Kind == classify.KindTV:
		rn.tv.Add(1)
	default:
		rn.movies.Add(1)
	}
	rn.processed.Add(1)
	r.cfg.Metrics.Entry(kind, result, r.now().Sub(started))
	rn.every.Do(func() { r.report(rn, progress.StateRunning, nil) })
}

func (r *Runner) report(rn *run, state string, err error) {
	snap := progress.Snapshot{
		RunID:     rn.id,
		Source:    rn.source,
		State:     state,
		Total:     rn.total,
		Processed: rn.processed.Load(),
		Movies:    rn.movies.Load(),
		TV:        rn.tv.Load(),
		Skipped:   rn.skipped.Load(),
		Errors:    rn.errors.Load(),
		Batch:     int(rn.batch.Load()),
		Batches:   int(rn.batches.Load()),
		Started:   rn.started,
		Elapsed:   r.now().Sub(rn.started),
	}
	if cur, ok := rn.current.Load().(string); ok {
		snap.Current = cur
	}
	if err != nil {
		snap.Err = err.Error()
	}
	r.cfg.Progress.Report(snap)
}

func (rn *run) summary(skippedBy map[classify.SkipReason]int, now time.Time) Summary {
	return Summary{
		RunID:           rn.id,
		Total:           int(rn.total),
		ProcessedMovies: int(rn.movies.Load()),
		ProcessedTV:     int(rn.tv.Load()),
		Skipped:         int(rn.skipped.Load()),
		Errors:          int(rn.errors.Load()),
		Timeouts:        int(rn.timeouts.Load()),
		SkippedBy:       skippedBy,
		Duration:        now.Sub(rn.started),
	}
}

func splitBatches(items []classify.Outcome, size int) [][]classify.Outcome {
	var out [][]classify.Outcome
	for start := 0; start < len(items); start += size {
		out = append(out, items[start:min(start+size, len(items))])
	}
	return out
}
