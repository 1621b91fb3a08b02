package classify

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	sxxexxRe       = regexp.MustCompile(`(?i)\bS(\d{1,2})\s?E(\d{1,3})`)
	nxnnRe         = regexp.MustCompile(`(?i)\b(\d{1,2})x(\d{2,3})\b`)
	seasonEpWordRe = regexp.MustCompile(`(?i)\bSeason\s*(\d{1,2})\s*[-,:]?\s*Episode\s*(\d{1,3})\b`)
	sDashERe       = regexp.MustCompile(`(?i)\bS(\d{1,2})\s*-\s*E(\d{1,3})\b`)
	sDotRe         = regexp.MustCompile(`(?i)\bS\.(\d{1,2})\b`)
	episodeNumRe   = regexp.MustCompile(`(?i)\b(?:Episode|Ep\.?|E)\s*(\d{1,3})\b`)
	langTagRe      = regexp.MustCompile(`\|([A-Za-z]{2})\|`)
	standaloneRe   = regexp.MustCompile(`^(.+?)\s+(\d{1,2})$`)
	compactRe      = regexp.MustCompile(`^(.+?)\s+(\d{1,2})(\d{2})$`)
	dashEpisodeRe  = regexp.MustCompile(`(?i)(?:Season\s*(\d+))?\s*Episode\s*(\d+)`)
	airDateRe      = regexp.MustCompile(`\b(?:[12]\d{3} [0-3]\d [01]\d|[12]\d{3} [01]\d [0-3]\d)\b`)
)

const maxStandaloneSeason = 40

// marker is a located season/episode token inside a title. episode is empty
// when the token only names a season.
type marker struct {
	start, end      int
	season, episode string
}

type markerFinder func(title string) (marker, bool)

func regexpMarker(re *regexp.Regexp, episodeGroup bool) markerFinder {
	return func(title string) (marker, bool) {
		loc := re.FindStringSubmatchIndex(title)
		if loc == nil {
			return marker{}, false
		}
		m := marker{start: loc[0], end: loc[1], season: pad2(title[loc[2]:loc[3]])}
		if episodeGroup {
			m.episode = pad2(title[loc[4]:loc[5]])
		}
		return m, true
	}
}

// compactMarker recognises "Show 1901" as season 19 episode 01. Four-digit
// numbers that read as a release year are left alone.
func compactMarker(title string) (marker, bool) {
	loc := compactRe.FindStringSubmatchIndex(title)
	if loc == nil {
		return marker{}, false
	}
	season, _ := strconv.Atoi(title[loc[4]:loc[5]])
	if season < 1 || season > maxStandaloneSeason {
		return marker{}, false
	}
	if n, _ := strconv.Atoi(title[loc[4]:loc[7]]); n >= 1920 && n <= 2099 {
		return marker{}, false
	}
	return marker{
		start:   loc[4],
		end:     loc[7],
		season:  pad2(title[loc[4]:loc[5]]),
		episode: pad2(title[loc[6]:loc[7]]),
	}, true
}

// Season/episode markers in priority order.
var markerFinders = []markerFinder{
	regexpMarker(sxxexxRe, true),
	regexpMarker(nxnnRe, true),
	regexpMarker(seasonEpWordRe, true),
	regexpMarker(sDashERe, true),
	regexpMarker(sDotRe, false),
	compactMarker,
}

func findMarker(title string) (marker, bool) {
	for _, f := range markerFinders {
		if m, ok := f(title); ok {
			return m, true
		}
	}
	return marker{}, false
}

// standaloneSeason matches "American Dad 19": a trailing one or two digit
// season number in [1,40].
func standaloneSeason(title string) (show string, season int, ok bool) {
	m := standaloneRe.FindStringSubmatch(title)
	if m == nil {
		return "", 0, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil || n < 1 || n > maxStandaloneSeason {
		return "", 0, false
	}
	return strings.TrimSpace(m[1]), n, true
}

// looksEpisodic reports whether title carries any season/episode marker.
func looksEpisodic(title string) bool {
	if _, ok := findMarker(title); ok {
		return true
	}
	_, _, ok := standaloneSeason(title)
	return ok
}

type episodeParts struct {
	show, season, episode, name, airDate, language string
}

type episodeStrategy struct {
	name  string
	parse func(title string) (episodeParts, bool)
}

var episodeStrategies = []episodeStrategy{
	{"air-date", parseAirDate},
	{"season-episode", parseMarker},
	{"standalone-season", parseStandalone},
	{"dash-split", parseDashSplit},
	{"word-window", parseWordWindow},
}

func parseAirDate(title string) (episodeParts, bool) {
	loc := airDateRe.FindStringIndex(title)
	if loc == nil {
		return episodeParts{}, false
	}
	show := trimSeparators(title[:loc[0]])
	if show == "" {
		return episodeParts{}, false
	}
	return episodeParts{
		show:    show,
		airDate: title[loc[0]:loc[1]],
		name:    trimSeparators(title[loc[1]:]),
	}, true
}

func parseMarker(title string) (episodeParts, bool) {
	m, ok := findMarker(title)
	if !ok {
		return episodeParts{}, false
	}
	p := episodeParts{season: m.season, episode: m.episode}
	rest := title[m.end:]
	if p.episode == "" {
		p.episode = "01"
		if loc := episodeNumRe.FindStringSubmatchIndex(rest); loc != nil {
			p.episode = pad2(rest[loc[2]:loc[3]])
			rest = rest[:loc[0]] + rest[loc[1]:]
		}
	}
	p.name = trimSeparators(rest)

	show := title[:m.start]
	if tag := langTagRe.FindStringSubmatchIndex(show); tag != nil {
		p.language = strings.ToUpper(show[tag[2]:tag[3]])
		show = langTagRe.ReplaceAllString(show, " ")
	}
	p.show = trimSeparators(show)
	if p.show == "" {
		p.show = "Unknown Show"
	}
	return p, true
}

func parseStandalone(title string) (episodeParts, bool) {
	show, n, ok := standaloneSeason(title)
	if !ok || len(show) <= 3 {
		return episodeParts{}, false
	}
	return episodeParts{
		show:    show,
		season:  fmt.Sprintf("%02d", n),
		episode: "01",
		name:    fmt.Sprintf("Season %d Episode 1", n),
	}, true
}

func parseDashSplit(title string) (episodeParts, bool) {
	show, ep, found := strings.Cut(title, " - ")
	if !found {
		return episodeParts{}, false
	}
	show = strings.TrimSpace(show)
	ep = strings.TrimSpace(ep)
	if base, n, ok := standaloneSeason(show); ok {
		return episodeParts{show: base, season: fmt.Sprintf("%02d", n), episode: "01", name: ep}, true
	}
	if len(show) <= 3 || len(ep) <= 3 {
		return episodeParts{}, false
	}
	p := episodeParts{show: show, season: "01", episode: "01", name: ep}
	if loc := dashEpisodeRe.FindStringSubmatchIndex(ep); loc != nil {
		if loc[2] >= 0 {
			p.season = pad2(ep[loc[2]:loc[3]])
		}
		p.episode = pad2(ep[loc[4]:loc[5]])
		p.name = trimSeparators(ep[:loc[0]] + " " + ep[loc[1]:])
	}
	return p, true
}

func parseWordWindow(title string) (episodeParts, bool) {
	words := strings.Fields(title)
	hi := min(5, len(words)-2)
	for i := 2; i < hi; i++ {
		show := strings.Join(words[:i], " ")
		ep := strings.Join(words[i:], " ")
		if len(show) > 3 && len(ep) > 3 {
			return episodeParts{show: show, season: "01", episode: "01", name: ep}, true
		}
	}
	return episodeParts{}, false
}

// pad2 normalises a numeric string to at least two digits ("1" -> "01",
// "001" -> "01", "123" -> "123").
func pad2(s string) string {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return s
	}
	return fmt.Sprintf("%02d", n)
}
