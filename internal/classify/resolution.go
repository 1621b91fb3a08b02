package classify

import (
	"regexp"
	"strings"
)

// Resolution is a canonical quality tier. The zero value means unknown.
type Resolution string

const (
	ResolutionUnknown Resolution = ""
	Resolution480p    Resolution = "480p"
	Resolution720p    Resolution = "720p"
	Resolution1080p   Resolution = "1080p"
	Resolution2160p   Resolution = "2160p"
)

var (
	resolutionRe = regexp.MustCompile(`(?i)\b(?:720p WEB x264-XLF|WEB x264-XLF|2160p|1080p|720p|4K|UHD|HD|SD)\b`)
	// Superset of resolutionRe used to scrub quality tags out of titles so
	// "Heat 1080p (1995)" and "Heat (1995)" fingerprint alike.
	resolutionTagRe = regexp.MustCompile(`(?i)[\[(]?\b(?:720p WEB x264-XLF|WEB x264-XLF|2160p|1080p|720p|480p|4K|UHD|FHD|HD|SD)\b[\])]?`)
)

// ParseResolution maps the first quality keyword in s to its canonical tier.
func ParseResolution(s string) Resolution {
	m := resolutionRe.FindString(s)
	switch strings.ToLower(m) {
	case "hd", "720p", "720p web x264-xlf":
		return Resolution720p
	case "sd", "web x264-xlf":
		return Resolution480p
	case "1080p":
		return Resolution1080p
	case "2160p", "4k", "uhd":
		return Resolution2160p
	}
	return ResolutionUnknown
}

func stripResolutionTags(s string) string {
	return collapse(resolutionTagRe.ReplaceAllString(s, " "))
}
