package httputil

import (
	"net/http"
	"time"
)

const DefaultTimeout = 30 * time.Second

// NewClient returns an HTTP client with the given timeout (DefaultTimeout
// when zero).
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
	}
}

// NewClientWithUserAgent returns a client that sets User-Agent on every
// request that does not already carry one. Some public APIs (NWS) reject
// anonymous requests.
func NewClientWithUserAgent(timeout time.Duration, userAgent string) *http.Client {
	c := NewClient(timeout)
	c.Transport = &userAgentTransport{base: http.DefaultTransport, userAgent: userAgent}
	return c
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.userAgent == "" || req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(r)
}
