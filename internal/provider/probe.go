package provider

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/snapetech/strmsync/internal/httpclient"
)

// Result is the outcome of checking one provider playlist URL.
type Result struct {
	URL        string
	Status     Status
	StatusCode int
	LatencyMs  int64
}

type Status string

const (
	StatusOK          Status = "ok"
	StatusNotPlaylist Status = "not_playlist" // 200 but body is not an M3U
	StatusCloudflare  Status = "cloudflare"
	StatusBadStatus   Status = "bad_status"
	StatusTimeout     Status = "timeout"
	StatusError       Status = "error"
)

const previewSize = 512

// Check fetches the head of a playlist URL and classifies the response.
func Check(ctx context.Context, playlistURL string, client *http.Client) Result {
	if client == nil {
		client = httpclient.WithTimeout(15 * time.Second)
	}
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, playlistURL, nil)
	if err != nil {
		return Result{URL: playlistURL, Status: StatusError}
	}
	req.Header.Set("User-Agent", httpclient.UserAgent)
	resp, err := client.Do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "timeout") {
			return Result{URL: playlistURL, Status: StatusTimeout, LatencyMs: latency}
		}
		return Result{URL: playlistURL, Status: StatusError, LatencyMs: latency}
	}
	defer resp.Body.Close()
	preview := make([]byte, previewSize)
	n, _ := resp.Body.Read(preview)
	preview = preview[:n]
	code := resp.StatusCode
	out := Result{URL: playlistURL, StatusCode: code, LatencyMs: latency}

	// Only call it Cloudflare when the server says so or the body is a challenge page.
	lower := strings.ToLower(string(preview))
	cfServer := strings.EqualFold(strings.TrimSpace(resp.Header.Get("Server")), "cloudflare")
	cfChallenge := strings.Contains(lower, "checking your browser") || strings.Contains(lower, "ray id")
	switch {
	case code != http.StatusOK && (cfServer || cfChallenge):
		out.Status = StatusCloudflare
	case code != http.StatusOK:
		out.Status = StatusBadStatus
	case !bytes.HasPrefix(bytes.TrimSpace(bytes.TrimPrefix(preview, []byte("\xef\xbb\xbf"))), []byte("#EXTM3U")):
		out.Status = StatusNotPlaylist
	default:
		out.Status = StatusOK
	}
	return out
}

// CheckAll checks urls concurrently (at most workers at a time) and returns
// results OK-first by latency, then the rest by URL.
func CheckAll(ctx context.Context, urls []string, client *http.Client, workers int) []Result {
	if workers < 1 {
		workers = 1
	}
	results := make([]Result, len(urls))
	p := pool.New().WithMaxGoroutines(workers)
	for i, u := range urls {
		p.Go(func() {
			results[i] = Check(ctx, u, client)
		})
	}
	p.Wait()
	sort.SliceStable(results, func(i, j int) bool {
		okI := results[i].Status == StatusOK
		okJ := results[j].Status == StatusOK
		if okI != okJ {
			return okI
		}
		if okI {
			return results[i].LatencyMs < results[j].LatencyMs
		}
		return results[i].URL < results[j].URL
	})
	return results
}
