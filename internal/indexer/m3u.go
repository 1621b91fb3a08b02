package indexer

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

const maxLineSize = 1 << 20 // 1 MiB per line

// RawEntry is one playlist item: the #EXTINF metadata line and the line that
// followed it. URL is kept verbatim; deciding whether it is usable is the
// classifier's job.
type RawEntry struct {
	Info string
	URL  string
	Line int // 1-based line number of the #EXTINF line
}

// Parse reads a playlist in a streaming fashion. Directive lines other than
// #EXTINF (#EXTM3U, #EXTGRP, #EXTVLCOPT, ...) are skipped without breaking
// the pairing between an #EXTINF and its URL.
func Parse(r io.Reader) ([]RawEntry, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(nil, maxLineSize)
	var entries []RawEntry
	var info string
	infoLine := 0
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if n == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#EXTINF:") {
			info = line
			infoLine = n
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		if info != "" {
			entries = append(entries, RawEntry{Info: info, URL: line, Line: infoLine})
			info = ""
		}
	}
	return entries, sc.Err()
}

// ParseBytes parses an in-memory playlist. Input that is not valid UTF-8 is
// decoded as Windows-1252, which covers the Latin-1 exports some panels emit.
func ParseBytes(data []byte) ([]RawEntry, error) {
	return Parse(bytes.NewReader(toUTF8(data)))
}

func toUTF8(data []byte) []byte {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return data
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return bytes.ToValidUTF8(data, []byte("\ufffd"))
	}
	return out
}
