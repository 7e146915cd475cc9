package internal

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// recordingTransport captures the request as the inner transports saw it.
type recordingTransport struct {
	req    *http.Request
	status int
}

func (t *recordingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	t.req = r
	status := t.status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader("ok")),
		Request:    r,
	}, nil
}

func TestScopedTransport(t *testing.T) {
	t.Parallel()

	inner := &recordingTransport{}
	client := &http.Client{Transport: scopedTransport{host: "example.com", RoundTripper: inner}}

	// A redirect (or a bug) pointing anywhere else still lands on the
	// scoped host over https.
	_, err := client.Get("http://evil.test/path")
	require.NoError(t, err)
	assert.Equal(t, "https", inner.req.URL.Scheme)
	assert.Equal(t, "example.com", inner.req.URL.Host)
	assert.Equal(t, "/path", inner.req.URL.Path)
}

func TestHeaderTransport(t *testing.T) {
	t.Parallel()

	inner := &recordingTransport{}
	client := &http.Client{Transport: headerTransport{
		key: "User-Agent", value: _userAgent, RoundTripper: inner,
	}}

	_, err := client.Get("http://example.com/")
	require.NoError(t, err)
	assert.Equal(t, _userAgent, inner.req.Header.Get("User-Agent"))
}

func TestErrorProxyTransport(t *testing.T) {
	t.Parallel()

	client := &http.Client{Transport: errorProxyTransport{&recordingTransport{status: http.StatusForbidden}}}
	_, err := client.Get("http://example.com/")
	require.Error(t, err)
	assert.ErrorContains(t, err, "403")

	client = &http.Client{Transport: errorProxyTransport{&recordingTransport{}}}
	resp, err := client.Get("http://example.com/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewUpstream(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, _userAgent, r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	// NewUpstream pins to one https host, which a TLS-less test server
	// can't satisfy; exercise the same chain with the scope re-pointed.
	client := &http.Client{
		Transport: errorProxyTransport{
			throttledTransport{
				RoundTripper: headerTransport{
					key: "User-Agent", value: _userAgent,
					RoundTripper: http.DefaultTransport,
				},
				Limiter: rate.NewLimiter(rate.Inf, 1),
			},
		},
	}
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()
}
