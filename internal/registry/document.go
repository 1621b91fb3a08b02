package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// TimeLayout is the timestamp format stored in the document.
const TimeLayout = "2006-01-02 15:04:05"

// ProviderSource is one provider's offer of a content item.
type ProviderSource struct {
	URL         string `json:"url"`
	Added       string `json:"added"`
	LastUpdated string `json:"last_updated"`
	Resolution  string `json:"resolution,omitempty"`
}

// ContentRecord is one deduplicated movie or episode.
type ContentRecord struct {
	Title             string                     `json:"title"`
	Year              string                     `json:"year,omitempty"`
	Season            string                     `json:"season,omitempty"`
	Episode           string                     `json:"episode,omitempty"`
	AirDate           string                     `json:"air_date,omitempty"`
	Filepath          string                     `json:"filepath"`
	Resolution        string                     `json:"resolution,omitempty"`
	FirstAdded        string                     `json:"first_added"`
	LastUpdated       string                     `json:"last_updated"`
	Providers         map[string]*ProviderSource `json:"providers"`
	PreferredProvider string                     `json:"preferred_provider"`
}

// ProviderRecord describes a playlist provider seen by the registry.
type ProviderRecord struct {
	URL          string `json:"url"`
	Name         string `json:"name"`
	FirstSeen    string `json:"first_seen"`
	ContentCount int    `json:"content_count"`
	LastUpdated  string `json:"last_updated"`
}

// Document is the persisted registry.
type Document struct {
	Movies    map[string]*ContentRecord  `json:"movies"`
	TVShows   map[string]*ContentRecord  `json:"tv_shows"`
	Providers map[string]*ProviderRecord `json:"providers"`
}

// NewDocument returns an empty document with all maps allocated.
func NewDocument() *Document {
	d := &Document{}
	d.normalize()
	return d
}

func (d *Document) normalize() {
	if d.Movies == nil {
		d.Movies = make(map[string]*ContentRecord)
	}
	if d.TVShows == nil {
		d.TVShows = make(map[string]*ContentRecord)
	}
	if d.Providers == nil {
		d.Providers = make(map[string]*ProviderRecord)
	}
	for _, m := range []map[string]*ContentRecord{d.Movies, d.TVShows} {
		for k, rec := range m {
			if rec == nil {
				delete(m, k)
				continue
			}
			if rec.Providers == nil {
				rec.Providers = make(map[string]*ProviderSource)
			}
		}
	}
}

func (d *Document) records(t ContentType) map[string]*ContentRecord {
	if t == TVShow {
		return d.TVShows
	}
	return d.Movies
}

// Store persists the registry document.
type Store interface {
	Load() (*Document, error)
	Save(*Document) error
}

// FileStore keeps the document as a JSON file.
type FileStore struct {
	Path string
}

// Load reads the document. A missing file yields an empty document and no
// error; an unreadable or corrupt file yields an empty document and the
// error so the caller can log it.
func (s *FileStore) Load() (*Document, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDocument(), nil
		}
		return NewDocument(), fmt.Errorf("registry load: %w", err)
	}
	doc := &Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return NewDocument(), fmt.Errorf("registry load: decode %s: %w", s.Path, err)
	}
	doc.normalize()
	return doc, nil
}

// Save writes the document using a temp-file-then-rename strategy so readers
// never see a partially-written file.
func (s *FileStore) Save(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("registry save: encode: %w", err)
	}
	dir := filepath.Dir(filepath.Clean(s.Path))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("registry save: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".registry-*.json.tmp")
	if err != nil {
		return fmt.Errorf("registry save: create temp: %w", err)
	}
	tmpName := tmp.Name()
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if writeErr != nil {
			return fmt.Errorf("registry save: write: %w", writeErr)
		}
		return fmt.Errorf("registry save: close: %w", closeErr)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("registry save: chmod: %w", err)
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("registry save: rename: %w", err)
	}
	return nil
}

// ErrLocked is returned by Lock when another run holds the registry.
var ErrLocked = errors.New("registry is locked by another run")

// Lock takes an advisory lock next to the document so only one ingestion run
// mutates it at a time. The returned func releases the lock.
func (s *FileStore) Lock() (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(filepath.Clean(s.Path)), 0o755); err != nil {
		return nil, fmt.Errorf("registry lock: mkdir: %w", err)
	}
	fl := flock.New(s.Path + ".lock")
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("registry lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return fl.Unlock, nil
}
