package materializer

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Outcome is what Write did to the artifact.
type Outcome string

const (
	Created   Outcome = "created"
	Updated   Outcome = "updated"
	Unchanged Outcome = "unchanged"
)

// Writer writes artifacts through an afero filesystem so tests can run on
// memory. The zero value is not usable; build with NewWriter.
type Writer struct {
	fs   afero.Fs
	root string
}

// NewWriter returns a writer rooted at root. A nil fs means the OS filesystem.
func NewWriter(fsys afero.Fs, root string) *Writer {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Writer{fs: fsys, root: filepath.Clean(root)}
}

// Write makes path contain exactly url. Parent directories are created as
// needed; an artifact that already holds url is left alone.
func (w *Writer) Write(path, url string) (Outcome, error) {
	if url == "" {
		return "", ErrEmptyURL
	}
	want := []byte(url)
	existing, err := afero.ReadFile(w.fs, path)
	switch {
	case err == nil:
		if bytes.Equal(existing, want) {
			return Unchanged, nil
		}
		if err := w.writeFile(path, want); err != nil {
			return "", err
		}
		return Updated, nil
	case errors.Is(err, fs.ErrNotExist):
		if err := w.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", fmt.Errorf("materializer: mkdir %s: %w", filepath.Dir(path), err)
		}
		if err := w.writeFile(path, want); err != nil {
			return "", err
		}
		return Created, nil
	default:
		return "", fmt.Errorf("materializer: read %s: %w", path, err)
	}
}

func (w *Writer) writeFile(path string, data []byte) error {
	if err := afero.WriteFile(w.fs, path, data, 0o644); err != nil {
		return fmt.Errorf("materializer: write %s: %w", path, err)
	}
	return nil
}

// Remove deletes a superseded artifact and prunes parent directories that
// became empty, stopping at the library root. A missing file is not an error.
func (w *Writer) Remove(path string) error {
	if err := w.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("materializer: remove %s: %w", path, err)
	}
	for dir := filepath.Dir(filepath.Clean(path)); w.within(dir); dir = filepath.Dir(dir) {
		exists, err := afero.DirExists(w.fs, dir)
		if err != nil {
			return fmt.Errorf("materializer: prune %s: %w", dir, err)
		}
		if !exists {
			continue
		}
		empty, err := afero.IsEmpty(w.fs, dir)
		if err != nil {
			return fmt.Errorf("materializer: prune %s: %w", dir, err)
		}
		if !empty {
			break
		}
		if err := w.fs.Remove(dir); err != nil {
			return fmt.Errorf("materializer: prune %s: %w", dir, err)
		}
	}
	return nil
}

// within reports whether dir is strictly below the root.
func (w *Writer) within(dir string) bool {
	rel, err := filepath.Rel(w.root, dir)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
