package indexer

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/ulikunitz/xz"

	"github.com/snapetech/strmsync/internal/httpclient"
)

const samplePlaylist = `#EXTM3U
#EXTINF:-1 tvg-name="EN - Die Hard (1988)" tvg-type="movies",EN - Die Hard (1988)
http://example.com/movie/1.mkv

#EXTINF:-1 tvg-name="EN - Breaking Bad S01E01",EN - Breaking Bad S01E01
#EXTGRP:Series
http://example.com/series/2.mkv
#EXTINF:-1,No URL follows
#EXTINF:-1,Bare path
example.com/no-scheme.mkv
`

var fastPolicy = httpclient.RetryPolicy{Attempts: 2, Backoff: time.Millisecond, Max429Wait: time.Millisecond}

func TestParseBytes_empty(t *testing.T) {
	entries, err := ParseBytes([]byte(""))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty; got %d entries", len(entries))
	}
}

func TestParseBytes_pairsInfoWithNextLine(t *testing.T) {
	entries, err := ParseBytes([]byte(samplePlaylist))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries; got %d: %+v", len(entries), entries)
	}
	if entries[0].URL != "http://example.com/movie/1.mkv" || entries[0].Line != 2 {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	// #EXTGRP between info and URL does not break the pair.
	if entries[1].URL != "http://example.com/series/2.mkv" {
		t.Errorf("entries[1] = %+v", entries[1])
	}
	// An #EXTINF with no URL is replaced by the next #EXTINF.
	if entries[2].Info != "#EXTINF:-1,Bare path" || entries[2].URL != "example.com/no-scheme.mkv" {
		t.Errorf("entries[2] = %+v", entries[2])
	}
}

func TestParseBytes_byteOrderMarkAndLatin1(t *testing.T) {
	data := []byte("\ufeff#EXTM3U\n#EXTINF:-1,Am\xe9lie (2001)\nhttp://h/1\n")
	entries, err := ParseBytes(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].Info != "#EXTINF:-1,Amélie (2001)" {
		t.Errorf("Info = %q", entries[0].Info)
	}
}

func TestReadFile_fatalInputs(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.m3u")
	if err := os.WriteFile(empty, nil, 0600); err != nil {
		t.Fatal(err)
	}
	headerOnly := filepath.Join(dir, "header.m3u")
	if err := os.WriteFile(headerOnly, []byte("#EXTM3U\n# nothing here\n"), 0600); err != nil {
		t.Fatal(err)
	}
	html := filepath.Join(dir, "login.html")
	if err := os.WriteFile(html, []byte("<html><body>Please log in</body></html>"), 0600); err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{filepath.Join(dir, "missing.m3u"), empty, dir, headerOnly, html} {
		_, err := ReadFile(path)
		if !IsFatal(err) {
			t.Errorf("ReadFile(%s) err = %v, want FatalInputError", path, err)
		}
	}
}

func TestReadFile_compressed(t *testing.T) {
	dir := t.TempDir()

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Write([]byte(samplePlaylist))
	zw.Close()
	gzPath := filepath.Join(dir, "list.m3u.gz")
	if err := os.WriteFile(gzPath, gz.Bytes(), 0600); err != nil {
		t.Fatal(err)
	}

	var xzBuf bytes.Buffer
	xw, err := xz.NewWriter(&xzBuf)
	if err != nil {
		t.Fatal(err)
	}
	xw.Write([]byte(samplePlaylist))
	xw.Close()
	xzPath := filepath.Join(dir, "list.m3u.xz")
	if err := os.WriteFile(xzPath, xzBuf.Bytes(), 0600); err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{gzPath, xzPath} {
		entries, err := ReadFile(p)
		if err != nil {
			t.Fatalf("ReadFile(%s): %v", p, err)
		}
		if len(entries) != 3 {
			t.Errorf("ReadFile(%s): %d entries, want 3", p, len(entries))
		}
	}
}

func TestFetch_brotli(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != httpclient.UserAgent {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Encoding", "br")
		bw := brotli.NewWriter(w)
		bw.Write([]byte(samplePlaylist))
		bw.Close()
	}))
	defer srv.Close()

	entries, err := Load(context.Background(), srv.URL+"/get.php", httpclient.WithTimeout(5*time.Second), fastPolicy)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("got %d entries, want 3", len(entries))
	}
}

func TestFetch_errorsAreFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/empty" {
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	for _, u := range []string{srv.URL + "/missing", srv.URL + "/empty"} {
		_, err := Fetch(context.Background(), u, nil, fastPolicy)
		if !IsFatal(err) {
			t.Errorf("Fetch(%s) err = %v, want FatalInputError", u, err)
		}
	}
}
