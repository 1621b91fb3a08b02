// Package provider identifies playlist providers and checks that their
// playlist endpoints are reachable.
package provider

import (
	"crypto/md5"
	"encoding/hex"
	"net"
	"net/url"
	"path/filepath"
	"strings"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ID returns the short stable identifier of a provider URL: the first 8 hex
// characters of its MD5.
func ID(providerURL string) string {
	sum := md5.Sum([]byte(providerURL))
	return hex.EncodeToString(sum[:])[:8]
}

var titleCaser = cases.Title(language.English)

// DefaultName derives a friendly name from the provider's registrable domain
// ("http://line.example.co.uk/get.php" -> "Example 1a2b3c4d"). Local files
// use their base name; anything else falls back to "Provider <id>".
func DefaultName(providerURL string) string {
	id := ID(providerURL)
	label := nameLabel(providerURL)
	if label == "" {
		return "Provider " + id
	}
	return titleCaser.String(label) + " " + id
}

func nameLabel(providerURL string) string {
	u, err := url.Parse(providerURL)
	if err != nil {
		return ""
	}
	host := u.Hostname()
	if host == "" {
		if u.Scheme != "" && u.Scheme != "file" {
			return ""
		}
		base := filepath.Base(u.Path)
		base = strings.TrimSuffix(base, filepath.Ext(base))
		for _, ext := range []string{".m3u", ".m3u8"} {
			base = strings.TrimSuffix(base, ext)
		}
		if base == "." || base == "/" {
			return ""
		}
		return strings.NewReplacer("_", " ", "-", " ").Replace(base)
	}
	if net.ParseIP(host) != nil {
		return ""
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(strings.ToLower(host))
	if err != nil {
		return ""
	}
	label, _, _ := strings.Cut(domain, ".")
	return label
}
