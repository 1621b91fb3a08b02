package safeurl

import (
	"net/url"
	"strings"
)

// IsHTTPOrHTTPS returns true if u is a valid URL with scheme http or https.
// Playlist sources that fail this check are treated as local paths.
func IsHTTPOrHTTPS(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	s := parsed.Scheme
	return s == "http" || s == "https"
}

// HasScheme reports whether a stream URL carries a scheme separator.
// Entries without one cannot be played and are skipped.
func HasScheme(u string) bool {
	i := strings.Index(u, "://")
	return i > 0
}

// Redact strips userinfo and query from u so credentials embedded in
// provider URLs never reach logs.
func Redact(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return u
	}
	parsed.User = nil
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String()
}
