// Package httpclient builds the HTTP clients used to download playlists and
// probe providers.
package httpclient

import (
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/net/publicsuffix"
)

const (
	DefaultTimeout         = 2 * time.Minute
	DefaultIdleConnTimeout = 90 * time.Second
	MaxIdleConnsPerHost    = 4

	// UserAgent is sent on playlist downloads; some panels reject Go's default.
	UserAgent = "strmsync/1.0"
)

// Panels behind login redirects set session cookies on the first hop, so
// every client carries a jar scoped by registrable domain.
func newJar() http.CookieJar {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil
	}
	return jar
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: MaxIdleConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
		// Encoding is negotiated by the playlist fetcher so brotli can be offered.
		DisableCompression: true,
	}
}

// userAgent fills in UserAgent when a request does not set its own.
type userAgent struct {
	next http.RoundTripper
}

func (t userAgent) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", UserAgent)
	}
	return t.next.RoundTrip(req)
}

var defaultClient = WithTimeout(DefaultTimeout)

// Default returns the shared client.
func Default() *http.Client {
	return defaultClient
}

// WithTimeout returns a client with its own transport, cookie jar and the
// given overall timeout.
func WithTimeout(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: userAgent{next: newTransport()},
		Jar:       newJar(),
	}
}
