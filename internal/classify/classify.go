// Package classify turns raw playlist entries into typed content identities.
//
// Classification is a cascade of cheap text heuristics; the first rule that
// matches decides. It is stateless and safe for concurrent use.
package classify

import (
	"regexp"
	"strings"

	"github.com/snapetech/strmsync/internal/indexer"
	"github.com/snapetech/strmsync/internal/safeurl"
)

// Kind is the content category an entry resolves to.
type Kind string

const (
	KindMovie Kind = "movie"
	KindTV    Kind = "tv"
	KindLive  Kind = "live"
)

// SkipReason explains why an entry produced no identity.
type SkipReason string

const (
	SkipInvalidURL SkipReason = "invalid_url"
	SkipEmptyTitle SkipReason = "empty_title"
	SkipLanguage   SkipReason = "language"
	SkipLive       SkipReason = "live"
)

// Identity is the canonical metadata extracted from one entry. Season and
// Episode are zero-padded strings; AirDate is set instead of them for
// date-numbered episodes.
type Identity struct {
	Kind        Kind
	Title       string
	Year        string
	Season      string
	Episode     string
	EpisodeName string
	AirDate     string
	Resolution  Resolution
	Language    string
}

// Outcome is the classifier result for one entry: either an Identity or a
// SkipReason. Via names the rule that decided, for reports and debug logs.
type Outcome struct {
	Entry    indexer.RawEntry
	Identity Identity
	Skip     SkipReason
	Via      string
}

// Skipped reports whether the entry should be dropped.
func (o Outcome) Skipped() bool { return o.Skip != "" }

// Options configures the cascade.
type Options struct {
	// LanguageFilter drops entries whose name does not start with
	// "<LanguageCode> - ".
	LanguageFilter bool
	LanguageCode   string
	MovieKeywords  []string
	TVKeywords     []string
}

// DefaultMovieKeywords and DefaultTVKeywords are used when Options leaves the
// lists nil.
var (
	DefaultMovieKeywords = []string{"movie", "film", "feature", "cinema"}
	DefaultTVKeywords    = []string{
		"tv", "show", "series", "episode", "season", "s01", "s02", "e01", "e02",
		"television", "sitcom", "drama series", "miniseries", "documentary series",
	}
)

// Classifier applies the cascade. Build with New.
type Classifier struct {
	opts    Options
	movieKW *regexp.Regexp
	tvKW    *regexp.Regexp
}

// New compiles the keyword lists in opts.
func New(opts Options) *Classifier {
	if opts.MovieKeywords == nil {
		opts.MovieKeywords = DefaultMovieKeywords
	}
	if opts.TVKeywords == nil {
		opts.TVKeywords = DefaultTVKeywords
	}
	opts.LanguageCode = strings.TrimSpace(opts.LanguageCode)
	return &Classifier{
		opts:    opts,
		movieKW: keywordRegexp(opts.MovieKeywords),
		tvKW:    keywordRegexp(opts.TVKeywords),
	}
}

// keywordRegexp builds one case-insensitive whole-word alternation. It
// returns nil for an empty list.
func keywordRegexp(words []string) *regexp.Regexp {
	var alts []string
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		alts = append(alts, regexp.QuoteMeta(w))
	}
	if len(alts) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(alts, "|") + `)\b`)
}

// Classify runs the cascade over one entry. It never panics on malformed
// input; anything unusable comes back as a skip.
func (c *Classifier) Classify(e indexer.RawEntry) Outcome {
	out := Outcome{Entry: e}
	if !safeurl.HasScheme(e.URL) {
		out.Skip, out.Via = SkipInvalidURL, "url"
		return out
	}

	attrs := Attributes(e.Info)
	name := collapse(attrs["tvg-name"])
	if name == "" {
		name = collapse(DisplayName(e.Info))
	}
	if name == "" {
		out.Skip, out.Via = SkipEmptyTitle, "name"
		return out
	}

	if c.opts.LanguageFilter && c.opts.LanguageCode != "" && !strings.HasPrefix(name, c.opts.LanguageCode+" - ") {
		out.Skip, out.Via = SkipLanguage, "language"
		return out
	}
	title, lang := c.stripLanguage(name)

	kind, via := c.detect(attrs, title)
	if kind == KindLive {
		out.Skip, out.Via = SkipLive, via
		return out
	}

	res := ParseResolution(name)
	if kind == KindTV {
		if id, how, ok := parseEpisode(title); ok {
			id.Resolution = res
			if id.Language == "" {
				id.Language = lang
			}
			out.Identity, out.Via = id, via+"/"+how
			return out
		}
		via += "/movie-fallback"
	}

	id, ok := parseMovie(title)
	if !ok {
		out.Skip, out.Via = SkipEmptyTitle, via
		return out
	}
	id.Resolution = res
	id.Language = lang
	out.Identity, out.Via = id, via
	return out
}

// stripLanguage removes the configured "<CODE> - " prefix. Other leading
// tags are part of the title ("CSI - Miami").
func (c *Classifier) stripLanguage(name string) (title, lang string) {
	if code := c.opts.LanguageCode; code != "" && strings.HasPrefix(name, code+" - ") {
		return strings.TrimSpace(name[len(code)+3:]), code
	}
	return name, ""
}

var yearParenRe = regexp.MustCompile(`\((\d{4})\)`)

// detect runs the type cascade. The second return value names the rule that
// decided.
func (c *Classifier) detect(attrs map[string]string, title string) (Kind, string) {
	switch strings.ToLower(strings.TrimSpace(attrs["tvg-type"])) {
	case "tvshows", "tvshow", "series", "tv", "episode", "episodes":
		return KindTV, "tvg-type"
	case "movies", "movie", "vod", "film":
		return KindMovie, "tvg-type"
	case "live", "livetv", "channel", "channels":
		return KindLive, "tvg-type"
	}
	if looksEpisodic(title) {
		return KindTV, "season-episode"
	}
	if airDateRe.MatchString(title) {
		return KindTV, "air-date"
	}
	if c.tvKW != nil && c.tvKW.MatchString(title) {
		return KindTV, "tv-keyword"
	}
	if c.movieKW != nil && c.movieKW.MatchString(title) {
		return KindMovie, "movie-keyword"
	}
	if yearParenRe.MatchString(title) {
		return KindMovie, "year"
	}
	return KindMovie, "default"
}

var trailingYearRe = regexp.MustCompile(`\s*\(\d{4}\)\s*$`)

// parseEpisode runs the episode strategies in order. A title none of them
// can split becomes a generic "Episode 1" of a show named after the whole
// title; an empty title fails so the caller can fall back to a movie.
func parseEpisode(title string) (Identity, string, bool) {
	title = stripResolutionTags(trailingYearRe.ReplaceAllString(title, ""))
	if title == "" {
		return Identity{}, "", false
	}
	for _, s := range episodeStrategies {
		p, ok := s.parse(title)
		if !ok {
			continue
		}
		return Identity{
			Kind:        KindTV,
			Title:       p.show,
			Season:      p.season,
			Episode:     p.episode,
			EpisodeName: p.name,
			AirDate:     p.airDate,
			Language:    p.language,
		}, s.name, true
	}
	show := trimSeparators(title)
	if show == "" {
		return Identity{}, "", false
	}
	return Identity{
		Kind:        KindTV,
		Title:       show,
		Season:      "01",
		Episode:     "01",
		EpisodeName: "Episode 1",
	}, "generic", true
}

// parseMovie takes the year from the last "(YYYY)" and strips it, plus any
// quality tags, from the title.
func parseMovie(title string) (Identity, bool) {
	var year string
	if all := yearParenRe.FindAllStringSubmatch(title, -1); len(all) > 0 {
		year = all[len(all)-1][1]
	}
	t := trailingYearRe.ReplaceAllString(title, "")
	if year != "" {
		t = strings.ReplaceAll(t, "("+year+")", " ")
	}
	t = trimSeparators(stripResolutionTags(t))
	if t == "" {
		return Identity{}, false
	}
	return Identity{Kind: KindMovie, Title: t, Year: year}, true
}
