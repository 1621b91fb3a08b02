// Package materializer writes pointer artifacts: small files whose whole
// content is a playback URL, laid out the way media-library scanners expect.
package materializer

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultExt is the artifact extension when Layout.Ext is empty.
const DefaultExt = ".pointer"

// Layout maps content identities to artifact paths under Root.
type Layout struct {
	Root string
	Ext  string // e.g. ".pointer" or ".strm"
}

func (l Layout) ext() string {
	if l.Ext == "" {
		return DefaultExt
	}
	if !strings.HasPrefix(l.Ext, ".") {
		return "." + l.Ext
	}
	return l.Ext
}

// Episode is the subset of an episode identity that names its artifact.
type Episode struct {
	Show       string
	Season     string
	Episode    string
	AirDate    string
	Name       string
	Resolution string
}

// MoviePath returns <root>/Movies/<title>[ - <res>]/<title>[ - <res>]<ext>.
func (l Layout) MoviePath(title, resolution string) string {
	base := joinParts(Sanitize(title), resolution)
	return filepath.Join(l.Root, "Movies", base, base+l.ext())
}

// EpisodePath returns
// <root>/TV Shows/<show>/Season <NN>/<show> - S<NN>E<NN>[ - <name>][ - <res>]<ext>,
// or <root>/TV Shows/<show>/<show> - <airdate>[ - <name>][ - <res>]<ext> when
// only an air date is known.
func (l Layout) EpisodePath(ep Episode) string {
	show := Sanitize(ep.Show)
	dir := filepath.Join(l.Root, "TV Shows", show)
	var token string
	if ep.Season != "" && ep.Episode != "" {
		season := pad2(ep.Season)
		token = fmt.Sprintf("S%sE%s", season, pad2(ep.Episode))
		dir = filepath.Join(dir, "Season "+season)
	} else {
		token = Sanitize(ep.AirDate)
	}
	base := joinParts(show, token, Sanitize(ep.Name), ep.Resolution)
	return filepath.Join(dir, base+l.ext())
}

var sanitizer = strings.NewReplacer(":", "-", "*", "_", "/", "_", "?", "")

// Sanitize makes a title safe as a single path element. "." and ".." would
// climb out of the category folder, so they become "_".
func Sanitize(s string) string {
	s = strings.TrimSpace(sanitizer.Replace(s))
	if s == "." || s == ".." {
		return "_"
	}
	return s
}

func joinParts(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " - ")
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

// ErrEmptyURL is returned when asked to materialize an empty URL.
var ErrEmptyURL = errors.New("materializer: empty url")
