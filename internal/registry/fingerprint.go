package registry

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// ContentType selects the record map a piece of content lives in.
type ContentType string

const (
	Movie  ContentType = "movie"
	TVShow ContentType = "tv_show"
)

// Identity is the part of a parsed entry that decides which record it
// belongs to.
type Identity struct {
	Type    ContentType
	Title   string
	Year    string
	Season  string
	Episode string
	AirDate string
}

// Fingerprint returns the content hash for id. Movies hash (title, year);
// episodes hash (show, season, episode). Date-numbered episodes have no
// season/episode, so the air date takes their place.
func (id Identity) Fingerprint() string {
	if id.Type == TVShow {
		if id.Season == "" && id.Episode == "" && id.AirDate != "" {
			return ComputeFingerprint(id.Title, id.AirDate, "", "")
		}
		return ComputeFingerprint(id.Title, "", id.Season, id.Episode)
	}
	return ComputeFingerprint(id.Title, id.Year, "", "")
}

// ComputeFingerprint hashes lower(trim(title)) plus "_<year>" and
// "_sNNeNN" suffixes when present. The result is 32 lowercase hex chars and
// depends only on its inputs.
func ComputeFingerprint(title, year, season, episode string) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.TrimSpace(title)))
	if year = strings.TrimSpace(year); year != "" {
		b.WriteString("_")
		b.WriteString(year)
	}
	if season != "" && episode != "" {
		fmt.Fprintf(&b, "_s%se%s", pad2(season), pad2(episode))
	}
	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func pad2(s string) string {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return s
	}
	return fmt.Sprintf("%02d", n)
}

// ResolutionRank orders quality tiers: unknown 0, 480p 1, 720p 2, 1080p 3,
// 2160p 4.
func ResolutionRank(res string) int {
	switch strings.ToLower(strings.TrimSpace(res)) {
	case "480p":
		return 1
	case "720p":
		return 2
	case "1080p":
		return 3
	case "2160p":
		return 4
	}
	return 0
}

// IsBetter reports whether a strictly outranks b.
func IsBetter(a, b string) bool {
	return ResolutionRank(a) > ResolutionRank(b)
}
