package classify

import (
	"regexp"
	"strings"
)

var (
	attrRe       = regexp.MustCompile(`([A-Za-z0-9_-]+)="([^"]*)"`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Attributes returns the key="value" tags of an #EXTINF line with keys
// lower-cased. Later duplicates win.
func Attributes(info string) map[string]string {
	out := make(map[string]string)
	for _, m := range attrRe.FindAllStringSubmatch(info, -1) {
		out[strings.ToLower(m[1])] = m[2]
	}
	return out
}

// DisplayName returns the text after the comma that ends the attribute
// section. Commas inside quoted tag values are ignored, so titles that
// themselves contain commas survive intact.
func DisplayName(info string) string {
	inQuote := false
	for i := 0; i < len(info); i++ {
		switch info[i] {
		case '"':
			inQuote = !inQuote
		case ',':
			if !inQuote {
				return strings.TrimSpace(info[i+1:])
			}
		}
	}
	return ""
}

// collapse trims s and squeezes internal whitespace runs to one space.
func collapse(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// trimSeparators removes dangling " - " style separators left behind after a
// token is cut out of a title.
func trimSeparators(s string) string {
	return strings.Trim(collapse(s), " -–|:,")
}
