package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// RetryPolicy controls how DoWithRetry retries a request.
type RetryPolicy struct {
	Attempts   uint          // total tries including the first
	Backoff    time.Duration // base delay between tries; doubles each retry
	Max429Wait time.Duration // cap on a Retry-After wait
}

// DefaultRetryPolicy retries network errors, 429 and 5xx up to three tries.
var DefaultRetryPolicy = RetryPolicy{
	Attempts:   3,
	Backoff:    1 * time.Second,
	Max429Wait: 60 * time.Second,
}

// StatusError is returned when the final attempt still ended in a retryable status.
type StatusError struct {
	Code       int
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return "unexpected status: " + strconv.Itoa(e.Code)
}

// DoWithRetry performs the request built by newReq, retrying transport
// errors, 429 (honouring Retry-After) and 5xx. Other non-200 responses are
// returned as-is without retry. Caller must close resp.Body when err == nil.
func DoWithRetry(ctx context.Context, client *http.Client, newReq func(ctx context.Context) (*http.Request, error), policy RetryPolicy) (*http.Response, error) {
	if client == nil {
		client = Default()
	}
	if policy.Attempts == 0 {
		policy.Attempts = 1
	}
	return retry.DoWithData(
		func() (*http.Response, error) {
			req, err := newReq(ctx)
			if err != nil {
				return nil, retry.Unrecoverable(err)
			}
			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			code := resp.StatusCode
			if code == http.StatusTooManyRequests || code >= 500 {
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				se := &StatusError{Code: code}
				if code == http.StatusTooManyRequests {
					se.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), policy.Max429Wait)
				}
				return nil, se
			}
			return resp, nil
		},
		retry.Context(ctx),
		retry.Attempts(policy.Attempts),
		retry.Delay(policy.Backoff),
		retry.LastErrorOnly(true),
		retry.DelayType(func(n uint, err error, config *retry.Config) time.Duration {
			var se *StatusError
			if errors.As(err, &se) && se.Code == http.StatusTooManyRequests {
				return se.RetryAfter
			}
			return retry.BackOffDelay(n, err, config)
		}),
	)
}

// parseRetryAfter parses Retry-After (seconds or HTTP-date); returns duration capped at max.
func parseRetryAfter(s string, max time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return 1 * time.Second
	}
	if sec, err := strconv.Atoi(s); err == nil && sec >= 0 {
		d := time.Duration(sec) * time.Second
		if d > max {
			return max
		}
		return d
	}
	t, err := time.Parse(time.RFC1123, s)
	if err != nil {
		return 1 * time.Second
	}
	until := time.Until(t)
	if until <= 0 {
		return 0
	}
	if until > max {
		return max
	}
	return until
}
