package internal

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// The serial sites aren't ours, so upstream clients are polite: rate
// limited, pinned to one host, and presenting a stable browser User-Agent
// (some WordPress installs reject the Go default).
var _userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:128.0) Gecko/20100101 Firefox/128.0"

// throttledTransport rate limits requests.
type throttledTransport struct {
	http.RoundTripper
	*rate.Limiter
}

func (t throttledTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if err := t.Limiter.Wait(r.Context()); err != nil {
		return nil, err
	}
	return t.RoundTripper.RoundTrip(r)
}

// scopedTransport restricts requests to a particular host, so redirects
// can't send us (or a chapter password) elsewhere.
type scopedTransport struct {
	host string
	http.RoundTripper
}

func (t scopedTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r.URL.Scheme = "https"
	r.URL.Host = t.host
	return t.RoundTripper.RoundTrip(r)
}

// headerTransport adds a header to all requests. Best used with a
// scopedTransport.
type headerTransport struct {
	key   string
	value string
	http.RoundTripper
}

func (t headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r.Header.Set(t.key, t.value)
	return t.RoundTripper.RoundTrip(r)
}

// errorProxyTransport returns a non-nil statusErr for response codes 400
// and above, so callers can treat upstream rejections as plain errors.
type errorProxyTransport struct {
	http.RoundTripper
}

func (t errorProxyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	resp, err := t.RoundTripper.RoundTrip(r)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, statusErr(resp.StatusCode)
	}
	return resp, nil
}

// NewUpstream returns a client for one upstream host: throttled, scoped to
// the host, browser User-Agent, bounded request timeout, and non-2XX
// responses surfaced as errors.
func NewUpstream(host string, rps rate.Limit) *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: errorProxyTransport{
			scopedTransport{
				host: host,
				RoundTripper: throttledTransport{
					RoundTripper: headerTransport{
						key:          "User-Agent",
						value:        _userAgent,
						RoundTripper: http.DefaultTransport,
					},
					Limiter: rate.NewLimiter(rps, 1),
				},
			},
		},
	}
}
