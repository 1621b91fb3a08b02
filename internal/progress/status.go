package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// MaxHistory is how many finished jobs the status file keeps.
const MaxHistory = 20

const statusTimeLayout = "2006-01-02 15:04:05"

// Job is one run as recorded in the status file.
type Job struct {
	ID             string `json:"id"`
	Description    string `json:"description"`
	Status         string `json:"status"`
	StartTime      string `json:"start_time"`
	LastUpdate     string `json:"last_update"`
	EndTime        string `json:"end_time,omitempty"`
	ElapsedSeconds int    `json:"elapsed_seconds"`
	CurrentItem    string `json:"current_item,omitempty"`
	ItemsTotal     int64  `json:"items_total"`
	ItemsProcessed int64  `json:"items_processed"`
	Errors         int64  `json:"errors"`
	Error          string `json:"error,omitempty"`
}

// StatusDocument is the JSON layout of the status file.
type StatusDocument struct {
	Active  []Job `json:"active"`
	History []Job `json:"history"`
}

// StatusFile is a Sink that mirrors runs into a JSON file: running jobs
// under "active", finished ones under "history" (newest first).
type StatusFile struct {
	path string
	log  *slog.Logger
	now  func() time.Time

	mu      sync.Mutex
	active  map[string]*Job
	order   []string
	history []Job
}

// OpenStatusFile loads existing history from path. A missing or unreadable
// file starts an empty history.
func OpenStatusFile(path string, logger *slog.Logger) *StatusFile {
	if logger == nil {
		logger = slog.Default()
	}
	s := &StatusFile{path: path, log: logger, now: time.Now, active: make(map[string]*Job)}
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("progress: read status file failed", "path", path, "err", err)
		}
		return s
	}
	var doc StatusDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		logger.Warn("progress: status file corrupt; starting fresh", "path", path, "err", err)
		return s
	}
	s.history = doc.History
	if len(s.history) > MaxHistory {
		s.history = s.history[:MaxHistory]
	}
	return s
}

// Report implements Sink.
func (s *StatusFile) Report(snap Snapshot) {
	if snap.RunID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().Format(statusTimeLayout)
	job, ok := s.active[snap.RunID]
	if !ok {
		started := snap.Started
		if started.IsZero() {
			started = s.now()
		}
		job = &Job{ID: snap.RunID, Description: describe(snap), StartTime: started.Format(statusTimeLayout)}
		s.active[snap.RunID] = job
		s.order = append(s.order, snap.RunID)
	}
	job.Status = StateRunning
	job.LastUpdate = now
	job.ElapsedSeconds = int(snap.Elapsed / time.Second)
	job.CurrentItem = snap.Current
	job.ItemsTotal = snap.Total
	job.ItemsProcessed = snap.Processed
	job.Errors = snap.Errors

	if snap.Done() {
		job.Status = snap.State
		job.EndTime = now
		job.Error = snap.Err
		job.CurrentItem = ""
		s.history = append([]Job{*job}, s.history...)
		if len(s.history) > MaxHistory {
			s.history = s.history[:MaxHistory]
		}
		delete(s.active, snap.RunID)
		for i, id := range s.order {
			if id == snap.RunID {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	if err := s.saveLocked(); err != nil {
		s.log.Error("progress: save status file failed", "path", s.path, "err", err)
	}
}

// Document returns a copy of the current state.
func (s *StatusFile) Document() StatusDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.documentLocked()
}

func (s *StatusFile) documentLocked() StatusDocument {
	doc := StatusDocument{Active: []Job{}, History: append([]Job{}, s.history...)}
	for _, id := range s.order {
		doc.Active = append(doc.Active, *s.active[id])
	}
	return doc
}

func (s *StatusFile) saveLocked() error {
	data, err := json.MarshalIndent(s.documentLocked(), "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".status-*.json.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, errors.Join(werr, cerr))
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func describe(s Snapshot) string {
	if s.Source == "" {
		return "playlist ingestion"
	}
	return "ingest " + s.Source
}
