package indexer

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/ulikunitz/xz"

	"github.com/snapetech/strmsync/internal/httpclient"
	"github.com/snapetech/strmsync/internal/safeurl"
)

// FatalInputError means the playlist source could not be used at all. A run
// that hits it aborts without producing a summary.
type FatalInputError struct {
	Source string
	Reason string
	Err    error
}

func (e *FatalInputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("playlist %s: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("playlist %s: %s", e.Source, e.Reason)
}

func (e *FatalInputError) Unwrap() error { return e.Err }

// IsFatal reports whether err is (or wraps) a FatalInputError.
func IsFatal(err error) bool {
	var fe *FatalInputError
	return errors.As(err, &fe)
}

// Load reads the playlist at source, downloading it when source is an
// http(s) URL and reading a local file otherwise.
func Load(ctx context.Context, source string, client *http.Client, policy httpclient.RetryPolicy) ([]RawEntry, error) {
	if safeurl.IsHTTPOrHTTPS(source) {
		return Fetch(ctx, source, client, policy)
	}
	return ReadFile(source)
}

// ReadFile reads a local playlist. .gz and .xz files are decompressed.
func ReadFile(path string) ([]RawEntry, error) {
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &FatalInputError{Source: path, Reason: "not found", Err: err}
		}
		return nil, &FatalInputError{Source: path, Reason: "stat", Err: err}
	}
	if st.IsDir() {
		return nil, &FatalInputError{Source: path, Reason: "is a directory"}
	}
	if st.Size() == 0 {
		return nil, &FatalInputError{Source: path, Reason: "empty file"}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, &FatalInputError{Source: path, Reason: "open", Err: err}
	}
	defer f.Close()

	var r io.Reader = f
	switch {
	case strings.HasSuffix(path, ".gz"):
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, &FatalInputError{Source: path, Reason: "gzip", Err: err}
		}
		defer zr.Close()
		r = zr
	case strings.HasSuffix(path, ".xz"):
		xr, err := xz.NewReader(f)
		if err != nil {
			return nil, &FatalInputError{Source: path, Reason: "xz", Err: err}
		}
		r = xr
	}
	return readAll(path, r)
}

// Fetch downloads a remote playlist. brotli and gzip response encodings are
// decoded; 429/5xx and transport errors are retried per policy.
func Fetch(ctx context.Context, playlistURL string, client *http.Client, policy httpclient.RetryPolicy) ([]RawEntry, error) {
	shown := safeurl.Redact(playlistURL)
	resp, err := httpclient.DoWithRetry(ctx, client, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, playlistURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", httpclient.UserAgent)
		req.Header.Set("Accept-Encoding", "br, gzip")
		return req, nil
	}, policy)
	if err != nil {
		return nil, &FatalInputError{Source: shown, Reason: "fetch", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &FatalInputError{Source: shown, Reason: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	var body io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "br":
		body = brotli.NewReader(resp.Body)
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, &FatalInputError{Source: shown, Reason: "gzip", Err: err}
		}
		defer zr.Close()
		body = zr
	}
	return readAll(shown, body)
}

func readAll(source string, r io.Reader) ([]RawEntry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &FatalInputError{Source: source, Reason: "read", Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &FatalInputError{Source: source, Reason: "empty playlist"}
	}
	entries, err := ParseBytes(data)
	if err != nil {
		return nil, &FatalInputError{Source: source, Reason: "parse", Err: err}
	}
	if len(entries) == 0 {
		return nil, &FatalInputError{Source: source, Reason: "no playlist entries"}
	}
	return entries, nil
}
