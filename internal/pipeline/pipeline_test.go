package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/snapetech/strmsync/internal/classify"
	"github.com/snapetech/strmsync/internal/indexer"
	"github.com/snapetech/strmsync/internal/materializer"
	"github.com/snapetech/strmsync/internal/progress"
	"github.com/snapetech/strmsync/internal/registry"
	"github.com/snapetech/strmsync/internal/store"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func entry(name, url string) indexer.RawEntry {
	return indexer.RawEntry{Info: fmt.Sprintf(`#EXTINF:-1 tvg-name=%q,%s`, name, name), URL: url}
}

// movies returns n distinct movie entries.
func movies(n int) []indexer.RawEntry {
	out := make([]indexer.RawEntry, n)
	for i := range out {
		out[i] = entry(fmt.Sprintf("Movie Number %d (2001)", i), fmt.Sprintf("http://m/%d.mp4", i))
	}
	return out
}

// countingRegistry records peak concurrency and makes every entry canonical.
type countingRegistry struct {
	delay   time.Duration
	active  atomic.Int64
	peak    atomic.Int64
	calls   atomic.Int64
	blockOn string
	panicOn string
}

func (c *countingRegistry) RegisterOrUpdate(ctx context.Context, id registry.Identity, url, path, providerURL, res string) (registry.Result, error) {
	n := c.active.Add(1)
	defer c.active.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	c.calls.Add(1)
	if id.Title == c.panicOn {
		panic("boom")
	}
	if id.Title == c.blockOn {
		<-ctx.Done()
		return registry.Result{}, ctx.Err()
	}
	time.Sleep(c.delay)
	return registry.Result{Created: true, BecamePreferred: true}, nil
}

type memChanges struct {
	mu      sync.Mutex
	changes []store.Change
}

func (m *memChanges) Append(_ context.Context, c store.Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, c)
	return nil
}

type memLinks struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *memLinks) IncrementContentCount(_ context.Context, url string, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[url] += n
	return nil
}

func newRunner(t *testing.T, cfg Config) *Runner {
	t.Helper()
	if cfg.Classifier == nil {
		cfg.Classifier = classify.New(classify.Options{})
	}
	if cfg.Artifacts == nil {
		cfg.Artifacts = materializer.NewWriter(afero.NewMemMapFs(), "/lib")
		cfg.Layout = materializer.Layout{Root: "/lib"}
	}
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	r, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRun_processesAllRegardlessOfWorkersAndBatch(t *testing.T) {
	const n = 57
	for _, tc := range []struct{ workers, batch int }{{1, 1}, {3, 10}, {8, 100}, {16, 7}} {
		t.Run(fmt.Sprintf("W%d_B%d", tc.workers, tc.batch), func(t *testing.T) {
			reg := &countingRegistry{delay: time.Millisecond}
			r := newRunner(t, Config{Registry: reg, Workers: tc.workers, BatchSize: tc.batch})
			sum, err := r.Run(context.Background(), "http://p/list.m3u", movies(n))
			if err != nil {
				t.Fatal(err)
			}
			if sum.ProcessedMovies != n || sum.Errors != 0 || sum.Processed() != n {
				t.Errorf("summary = %+v", sum)
			}
			if got := reg.calls.Load(); got != n {
				t.Errorf("registry calls = %d", got)
			}
			if peak := reg.peak.Load(); peak > int64(tc.workers) {
				t.Errorf("peak concurrency %d exceeds %d workers", peak, tc.workers)
			}
		})
	}
}

func TestRun_skipsAreCounted(t *testing.T) {
	r := newRunner(t, Config{
		Classifier: classify.New(classify.Options{LanguageFilter: true, LanguageCode: "EN"}),
		Registry:   &countingRegistry{},
	})
	entries := []indexer.RawEntry{
		entry("EN - Heat (1995)", "http://x/1"),
		entry("FR - Die Hard (1988)", "http://x/2"),
		entry("EN - Heat (1995)", "not a url"),
		{Info: `#EXTINF:-1 tvg-type="live" tvg-name="EN - CNN",EN - CNN`, URL: "http://x/3"},
	}
	sum, err := r.Run(context.Background(), "http://p", entries)
	if err != nil {
		t.Fatal(err)
	}
	if sum.ProcessedMovies != 1 || sum.Skipped != 3 {
		t.Errorf("summary = %+v", sum)
	}
	for reason, want := range map[classify.SkipReason]int{
		classify.SkipLanguage: 1, classify.SkipInvalidURL: 1, classify.SkipLive: 1,
	} {
		if sum.SkippedBy[reason] != want {
			t.Errorf("skipped[%s] = %d, want %d", reason, sum.SkippedBy[reason], want)
		}
	}
}

func TestRun_entryTimeoutFreesSlot(t *testing.T) {
	reg := &countingRegistry{blockOn: "Stuck"}
	r := newRunner(t, Config{Registry: reg, Workers: 1, EntryTimeout: 30 * time.Millisecond})
	entries := append([]indexer.RawEntry{entry("Stuck", "http://s/1")}, movies(3)...)

	start := time.Now()
	sum, err := r.Run(context.Background(), "http://p", entries)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Errors != 1 || sum.Timeouts != 1 || sum.ProcessedMovies != 3 {
		t.Errorf("summary = %+v", sum)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("run took %v", elapsed)
	}
}

func TestRun_panicIsCountedNotFatal(t *testing.T) {
	reg := &countingRegistry{panicOn: "Explodes"}
	r := newRunner(t, Config{Registry: reg, Workers: 4})
	entries := append(movies(5), entry("Explodes", "http://e/1"))
	sum, err := r.Run(context.Background(), "http://p", entries)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Errors != 1 || sum.ProcessedMovies != 5 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestRun_cancelledBeforeFirstBatch(t *testing.T) {
	reg := &countingRegistry{}
	var final progress.Snapshot
	r := newRunner(t, Config{Registry: reg, BatchSize: 2, Progress: progress.SinkFunc(func(s progress.Snapshot) {
		if s.Done() {
			final = s
		}
	})})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum, err := r.Run(ctx, "http://p", movies(6))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if reg.calls.Load() != 0 || sum.ProcessedMovies != 0 || sum.Total != 6 {
		t.Errorf("summary = %+v calls=%d", sum, reg.calls.Load())
	}
	if final.State != progress.StateCancelled {
		t.Errorf("final snapshot = %+v", final)
	}
}

func TestRun_cancelledMidRunStopsAtBatchBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var batches atomic.Int64
	reg := &countingRegistry{}
	r := newRunner(t, Config{Registry: reg, BatchSize: 2, Workers: 2, Progress: progress.SinkFunc(func(s progress.Snapshot) {
		if s.Batch == 1 && batches.Add(1) == 1 {
			cancel()
		}
	}), ProgressEvery: 1000})
	sum, err := r.Run(ctx, "http://p", movies(6))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if sum.ProcessedMovies != 2 {
		t.Errorf("processed = %d, want exactly the first batch", sum.ProcessedMovies)
	}
}

func TestAwaitEntry_finishedResultBeatsExpiredDeadline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 200; i++ {
		done := make(chan entryResult, 1)
		done <- entryResult{}
		if err := awaitEntry(ctx, done); err != nil {
			t.Fatalf("iteration %d: err = %v, want nil", i, err)
		}
	}

	done := make(chan entryResult, 1)
	done <- entryResult{err: errors.New("disk full")}
	if err := awaitEntry(ctx, done); !errors.Is(err, ErrEntryTimeout) {
		t.Errorf("late failure err = %v, want ErrEntryTimeout", err)
	}
	if err := awaitEntry(ctx, make(chan entryResult, 1)); !errors.Is(err, ErrEntryTimeout) {
		t.Errorf("no result err = %v, want ErrEntryTimeout", err)
	}
}

func TestRun_progressReports(t *testing.T) {
	var mu sync.Mutex
	var snaps []progress.Snapshot
	r := newRunner(t, Config{
		Registry:      &countingRegistry{},
		BatchSize:     5,
		ProgressEvery: 4,
		Progress: progress.SinkFunc(func(s progress.Snapshot) {
			mu.Lock()
			snaps = append(snaps, s)
			mu.Unlock()
		}),
	})
	sum, _ := r.Run(context.Background(), "http://p", movies(12))
	if len(snaps) < 5 {
		t.Fatalf("only %d snapshots", len(snaps))
	}
	last := snaps[len(snaps)-1]
	if last.State != progress.StateCompleted || last.Processed != 12 || last.RunID != sum.RunID || last.Batches != 3 {
		t.Errorf("last snapshot = %+v", last)
	}
}

func TestRun_scenarios(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New(registry.Config{Store: &registry.FileStore{Path: filepath.Join(dir, "registry.json")}, Logger: quietLogger()})
	fs := afero.NewMemMapFs()
	changes := &memChanges{}
	links := &memLinks{}
	r := newRunner(t, Config{
		Classifier: classify.New(classify.Options{LanguageFilter: true, LanguageCode: "EN"}),
		Registry:   reg,
		Layout:     materializer.Layout{Root: "/lib"},
		Artifacts:  materializer.NewWriter(fs, "/lib"),
		Changes:    changes,
		Links:      links,
	})
	ctx := context.Background()
	readArtifact := func(path string) string {
		t.Helper()
		data, err := afero.ReadFile(fs, filepath.FromSlash(path))
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		return string(data)
	}

	// A: first provider, no resolution.
	sum, err := r.Run(ctx, "http://provider-a/list.m3u", []indexer.RawEntry{
		entry("EN - Breaking Bad S01E01", "http://x/1.ts"),
		entry("FR - Die Hard (1988)", "http://x/2.ts"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if sum.ProcessedTV != 1 || sum.Skipped != 1 {
		t.Errorf("A summary = %+v", sum)
	}
	plain := "/lib/TV Shows/Breaking Bad/Season 01/Breaking Bad - S01E01.pointer"
	if got := readArtifact(plain); got != "http://x/1.ts" {
		t.Errorf("A artifact = %q", got)
	}
	if ok, _ := afero.Exists(fs, "/lib/Movies"); ok {
		t.Error("C: skipped movie produced an artifact")
	}

	// B: second provider with 1080p takes over.
	if _, err := r.Run(ctx, "http://provider-b/list.m3u", []indexer.RawEntry{
		entry("EN - Breaking Bad S01E01 1080p", "http://y/1.ts"),
	}); err != nil {
		t.Fatal(err)
	}
	hd := "/lib/TV Shows/Breaking Bad/Season 01/Breaking Bad - S01E01 - 1080p.pointer"
	if got := readArtifact(hd); got != "http://y/1.ts" {
		t.Errorf("B artifact = %q", got)
	}
	if ok, _ := afero.Exists(fs, filepath.FromSlash(plain)); ok {
		t.Error("B: superseded artifact left behind")
	}
	bb := registry.Identity{Type: registry.TVShow, Title: "Breaking Bad", Season: "01", Episode: "01"}
	if u, _ := reg.PreferredURL(bb); u != "http://y/1.ts" {
		t.Errorf("preferred url = %q", u)
	}

	// D: first provider again, lower quality: recorded but not canonical.
	if _, err := r.Run(ctx, "http://provider-a/list.m3u", []indexer.RawEntry{
		entry("EN - Breaking Bad S01E01", "http://x/1.ts"),
	}); err != nil {
		t.Fatal(err)
	}
	if got := readArtifact(hd); got != "http://y/1.ts" {
		t.Errorf("D artifact = %q", got)
	}
	info, _ := reg.ProviderInfo(bb)
	if len(info.Sources) != 2 || !info.Sources[0].Preferred || info.Sources[0].URL != "http://y/1.ts" {
		t.Errorf("sources = %+v", info.Sources)
	}

	changes.mu.Lock()
	defer changes.mu.Unlock()
	if len(changes.changes) != 2 || changes.changes[0].Action != store.ActionAdded || changes.changes[1].Action != store.ActionUpdated {
		t.Errorf("changes = %+v", changes.changes)
	}
	if changes.changes[0].ContentType != string(registry.TVShow) || changes.changes[0].ItemName != "Breaking Bad S01E01" {
		t.Errorf("first change = %+v", changes.changes[0])
	}
	if links.counts["http://provider-a/list.m3u"] != 2 || links.counts["http://provider-b/list.m3u"] != 1 {
		t.Errorf("link counts = %v", links.counts)
	}
}

func TestRun_upgradeKeepsArtifactSharedByAnotherTitle(t *testing.T) {
	reg := registry.New(registry.Config{Store: &registry.FileStore{Path: filepath.Join(t.TempDir(), "r.json")}, Logger: quietLogger()})
	fs := afero.NewMemMapFs()
	r := newRunner(t, Config{
		Registry:  reg,
		Layout:    materializer.Layout{Root: "/lib"},
		Artifacts: materializer.NewWriter(fs, "/lib"),
	})
	ctx := context.Background()
	steps := []struct {
		provider string
		entry    indexer.RawEntry
	}{
		{"http://p/list", entry("Heat (1986)", "http://p/86")},
		{"http://p/list", entry("Heat (1995)", "http://p/95")},
		{"http://q/list", entry("Heat (1995) 1080p", "http://q/95")},
		{"http://p/list", entry("Heat (1986)", "http://p/86")},
	}
	for _, st := range steps {
		if _, err := r.Run(ctx, st.provider, []indexer.RawEntry{st.entry}); err != nil {
			t.Fatal(err)
		}
	}

	info, ok := reg.ProviderInfo(registry.Identity{Type: registry.Movie, Title: "Heat", Year: "1986"})
	if !ok {
		t.Fatal("1986 record missing")
	}
	if exists, _ := afero.Exists(fs, filepath.FromSlash(info.Filepath)); !exists {
		t.Errorf("artifact %s of the 1986 record was removed", info.Filepath)
	}
	hd := filepath.FromSlash("/lib/Movies/Heat - 1080p/Heat - 1080p.pointer")
	if data, err := afero.ReadFile(fs, hd); err != nil || string(data) != "http://q/95" {
		t.Errorf("1080p artifact = %q, %v", data, err)
	}
}

func TestRun_duplicateEntriesInOneRunConverge(t *testing.T) {
	reg := registry.New(registry.Config{Store: &registry.FileStore{Path: filepath.Join(t.TempDir(), "r.json")}, Logger: quietLogger()})
	fs := afero.NewMemMapFs()
	r := newRunner(t, Config{
		Registry:  reg,
		Layout:    materializer.Layout{Root: "/lib"},
		Artifacts: materializer.NewWriter(fs, "/lib"),
		Workers:   8,
	})
	var entries []indexer.RawEntry
	for i := 0; i < 20; i++ {
		entries = append(entries, entry("Heat (1995) 720p", fmt.Sprintf("http://a/%d", i)))
	}
	entries = append(entries, entry("Heat (1995) 4K", "http://a/uhd"))
	if _, err := r.Run(context.Background(), "http://p", entries); err != nil {
		t.Fatal(err)
	}

	info, ok := reg.ProviderInfo(registry.Identity{Type: registry.Movie, Title: "Heat", Year: "1995"})
	if !ok || len(info.Sources) != 1 {
		t.Fatalf("info = %+v", info)
	}
	data, err := afero.ReadFile(fs, info.Filepath)
	if err != nil || string(data) != info.Sources[0].URL {
		t.Errorf("artifact %s = %q (%v), want %q", info.Filepath, data, err, info.Sources[0].URL)
	}
	var files []string
	_ = afero.Walk(fs, "/lib", func(path string, fi os.FileInfo, err error) error {
		if err == nil && !fi.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if len(files) != 1 {
		t.Errorf("artifacts = %v, want exactly one", files)
	}
}

func TestAnalyze(t *testing.T) {
	c := classify.New(classify.Options{LanguageFilter: true, LanguageCode: "EN"})
	rep := Analyze(c, []indexer.RawEntry{
		entry("EN - Heat (1995) 1080p", "http://x/1"),
		entry("EN - Lost S01E02", "http://x/2"),
		entry("DE - Dark S01E01", "http://x/3"),
		entry("EN - Lost S01E03", "bad"),
	}, 2, 2)
	if rep.Total != 4 || rep.ByKind[classify.KindMovie] != 1 || rep.ByKind[classify.KindTV] != 1 {
		t.Errorf("by kind = %+v", rep.ByKind)
	}
	if rep.SkippedBy[classify.SkipLanguage] != 1 || rep.SkippedBy[classify.SkipInvalidURL] != 1 {
		t.Errorf("skipped = %+v", rep.SkippedBy)
	}
	if rep.ByResolution[classify.Resolution1080p] != 1 {
		t.Errorf("by resolution = %+v", rep.ByResolution)
	}
	if len(rep.Samples) != 4 {
		t.Errorf("samples = %d", len(rep.Samples))
	}
}

func TestNew_requiresCollaborators(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error")
	}
}
