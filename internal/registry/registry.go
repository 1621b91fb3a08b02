// Package registry deduplicates content across playlist providers.
//
// Every movie or episode is keyed by a content fingerprint. Each record
// remembers every provider offering it and which one is preferred, i.e. the
// source with the best resolution seen so far. The registry is the only
// shared mutable state of an ingestion run; a single mutex serializes each
// read-decide-write-persist sequence.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/snapetech/strmsync/internal/provider"
)

// NameResolver supplies friendly provider names on first sighting.
type NameResolver interface {
	GetOrCreateName(ctx context.Context, providerURL string) (string, error)
}

// Config wires a Registry. Store is required; the rest have defaults.
type Config struct {
	Store  Store
	Names  NameResolver
	Logger *slog.Logger
	Now    func() time.Time
	// OnPersistError is called (under the registry lock) whenever a save fails.
	OnPersistError func(error)
}

// Registry is safe for concurrent use.
type Registry struct {
	mu             sync.Mutex
	doc            *Document
	store          Store
	names          NameResolver
	log            *slog.Logger
	now            func() time.Time
	onPersistError func(error)
}

var (
	ErrEmptyTitle    = errors.New("registry: empty title")
	ErrEmptyProvider = errors.New("registry: empty provider url")
)

// New loads the document from cfg.Store. A load failure is logged and the
// registry starts empty.
func New(cfg Config) *Registry {
	r := &Registry{
		store:          cfg.Store,
		names:          cfg.Names,
		log:            cfg.Logger,
		now:            cfg.Now,
		onPersistError: cfg.OnPersistError,
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	doc, err := r.store.Load()
	if err != nil {
		r.log.Warn("registry: load failed; starting empty", "err", err)
	}
	if doc == nil {
		doc = NewDocument()
	}
	r.doc = doc
	return r
}

// Result reports what a registration decided.
type Result struct {
	ContentHash string
	ProviderID  string
	// Created is true when the content was unseen before this call.
	Created bool
	// BecamePreferred is true when this provider is now the canonical source
	// and was not before (including first sighting).
	BecamePreferred bool
	// Refreshed is true when the already-preferred provider changed its URL
	// or artifact path, so the artifact must be rewritten.
	Refreshed bool
	// PreviousPath is the superseded artifact path when the canonical path
	// moved, e.g. because the resolution in the file name changed. It stays
	// empty while another record still uses that path.
	PreviousPath string
}

// Materialize reports whether the caller should (re)write the artifact.
func (r Result) Materialize() bool { return r.BecamePreferred || r.Refreshed }

// RegisterOrUpdate records that providerURL offers id at url. It creates the
// record on first sighting, otherwise upserts the provider entry and switches
// the preferred provider when resolution is strictly better than the stored
// one. The document is saved before returning; a save failure is logged and
// the in-memory state stays authoritative.
func (r *Registry) RegisterOrUpdate(ctx context.Context, id Identity, url, filepath, providerURL, resolution string) (Result, error) {
	if strings.TrimSpace(id.Title) == "" {
		return Result{}, ErrEmptyTitle
	}
	if providerURL == "" {
		return Result{}, ErrEmptyProvider
	}
	hash := id.Fingerprint()
	pid := provider.ID(providerURL)

	r.mu.Lock()
	defer r.mu.Unlock()
	// Abandoned (timed-out) work must not mutate state after the fact.
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	now := r.now().Format(TimeLayout)
	res := Result{ContentHash: hash, ProviderID: pid}
	prov := r.ensureProviderLocked(ctx, pid, providerURL, now)

	records := r.doc.records(id.Type)
	rec, ok := records[hash]
	if !ok {
		records[hash] = &ContentRecord{
			Title:       strings.TrimSpace(id.Title),
			Year:        id.Year,
			Season:      id.Season,
			Episode:     id.Episode,
			AirDate:     id.AirDate,
			Filepath:    filepath,
			Resolution:  resolution,
			FirstAdded:  now,
			LastUpdated: now,
			Providers: map[string]*ProviderSource{
				pid: {URL: url, Added: now, LastUpdated: now, Resolution: resolution},
			},
			PreferredProvider: pid,
		}
		prov.ContentCount++
		res.Created, res.BecamePreferred = true, true
		r.saveLocked()
		return res, nil
	}

	src, seen := rec.Providers[pid]
	if !seen {
		src = &ProviderSource{Added: now}
		rec.Providers[pid] = src
		prov.ContentCount++
	}
	prevURL := src.URL
	src.URL, src.LastUpdated, src.Resolution = url, now, resolution
	rec.LastUpdated = now

	_, preferredKnown := rec.Providers[rec.PreferredProvider]
	switch {
	case rec.PreferredProvider == "" || !preferredKnown:
		res.BecamePreferred = true
	case rec.PreferredProvider == pid:
		res.Refreshed = prevURL != url || rec.Filepath != filepath
	case IsBetter(resolution, rec.Resolution):
		res.BecamePreferred = true
	}
	if res.Materialize() {
		if rec.Filepath != "" && rec.Filepath != filepath && !r.pathSharedLocked(rec, rec.Filepath) {
			res.PreviousPath = rec.Filepath
		}
		rec.PreferredProvider = pid
		rec.Filepath = filepath
	}
	if rec.PreferredProvider == pid {
		rec.Resolution = resolution
	}
	r.saveLocked()
	return res, nil
}

// pathSharedLocked reports whether a record other than self still points at
// path. Titles that differ only by year map to the same movie path.
func (r *Registry) pathSharedLocked(self *ContentRecord, path string) bool {
	for _, m := range []map[string]*ContentRecord{r.doc.Movies, r.doc.TVShows} {
		for _, rec := range m {
			if rec != self && rec.Filepath == path {
				return true
			}
		}
	}
	return false
}

func (r *Registry) ensureProviderLocked(ctx context.Context, pid, providerURL, now string) *ProviderRecord {
	prov, ok := r.doc.Providers[pid]
	if !ok {
		name := ""
		if r.names != nil {
			n, err := r.names.GetOrCreateName(ctx, providerURL)
			if err != nil {
				r.log.Warn("registry: provider name lookup failed", "provider", pid, "err", err)
			}
			name = n
		}
		if name == "" {
			name = provider.DefaultName(providerURL)
		}
		prov = &ProviderRecord{URL: providerURL, Name: name, FirstSeen: now}
		r.doc.Providers[pid] = prov
	}
	prov.LastUpdated = now
	return prov
}

func (r *Registry) saveLocked() {
	if err := r.store.Save(r.doc); err != nil {
		r.log.Error("registry: save failed; keeping in-memory state", "err", err)
		if r.onPersistError != nil {
			r.onPersistError(err)
		}
	}
}

// PreferredURL returns the preferred provider's URL for id.
func (r *Registry) PreferredURL(id Identity) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.doc.records(id.Type)[id.Fingerprint()]
	if !ok {
		return "", false
	}
	src, ok := rec.Providers[rec.PreferredProvider]
	if !ok {
		return "", false
	}
	return src.URL, true
}

// SourceInfo is one provider's offer as shown to operators.
type SourceInfo struct {
	ProviderID string
	Name       string
	URL        string
	Resolution string
	Added      string
	Preferred  bool
}

// ContentInfo is a read-only view of one record.
type ContentInfo struct {
	ContentHash string
	Title       string
	Year        string
	Season      string
	Episode     string
	AirDate     string
	Filepath    string
	Resolution  string
	Sources     []SourceInfo // preferred first, then by first sighting
}

// ProviderInfo returns every provider offering id.
func (r *Registry) ProviderInfo(id Identity) (ContentInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hash := id.Fingerprint()
	rec, ok := r.doc.records(id.Type)[hash]
	if !ok {
		return ContentInfo{}, false
	}
	info := ContentInfo{
		ContentHash: hash,
		Title:       rec.Title,
		Year:        rec.Year,
		Season:      rec.Season,
		Episode:     rec.Episode,
		AirDate:     rec.AirDate,
		Filepath:    rec.Filepath,
		Resolution:  rec.Resolution,
	}
	for pid, src := range rec.Providers {
		name := pid
		if p, ok := r.doc.Providers[pid]; ok && p.Name != "" {
			name = p.Name
		}
		info.Sources = append(info.Sources, SourceInfo{
			ProviderID: pid,
			Name:       name,
			URL:        src.URL,
			Resolution: src.Resolution,
			Added:      src.Added,
			Preferred:  pid == rec.PreferredProvider,
		})
	}
	sort.Slice(info.Sources, func(i, j int) bool {
		a, b := info.Sources[i], info.Sources[j]
		if a.Preferred != b.Preferred {
			return a.Preferred
		}
		if a.Added != b.Added {
			return a.Added < b.Added
		}
		return a.ProviderID < b.ProviderID
	})
	return info, true
}

// RenameProvider sets the friendly name of a provider by id.
func (r *Registry) RenameProvider(pid, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.doc.Providers[pid]
	if !ok {
		return false
	}
	p.Name = name
	r.saveLocked()
	return true
}
