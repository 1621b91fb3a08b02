package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWithTimeout_setsUserAgentAndKeepsCookies(t *testing.T) {
	var agents []string
	var sawCookie bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents = append(agents, r.Header.Get("User-Agent"))
		if c, err := r.Cookie("session"); err == nil && c.Value == "abc" {
			sawCookie = true
		}
		if r.URL.Path == "/login" {
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
			http.Redirect(w, r, "/list.m3u", http.StatusFound)
			return
		}
		_, _ = w.Write([]byte("#EXTM3U\n"))
	}))
	defer srv.Close()

	c := WithTimeout(5 * time.Second)
	if c.Timeout != 5*time.Second {
		t.Errorf("timeout = %v", c.Timeout)
	}
	resp, err := c.Get(srv.URL + "/login")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if !sawCookie {
		t.Error("session cookie not replayed after redirect")
	}
	for i, ua := range agents {
		if ua != UserAgent {
			t.Errorf("request %d user agent = %q", i, ua)
		}
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/list.m3u", nil)
	req.Header.Set("User-Agent", "VLC/3.0")
	resp, err = c.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := agents[len(agents)-1]; got != "VLC/3.0" {
		t.Errorf("explicit user agent overwritten: %q", got)
	}
}

func TestDefault_isShared(t *testing.T) {
	if Default() != Default() {
		t.Error("Default returned different clients")
	}
	if Default().Timeout != DefaultTimeout {
		t.Errorf("timeout = %v", Default().Timeout)
	}
}
