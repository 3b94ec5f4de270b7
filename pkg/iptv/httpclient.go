// Package iptv implements the Stalker/MAG portal client and HLS proxy: the
// IPTV surface that sits alongside the Usenet streaming engine.
package iptv

import (
	"net/http"
	"time"
)

// ClientOption configures the shared HTTP client via functional options.
type ClientOption func(*http.Client)

// WithTimeout overrides the client's overall request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *http.Client) { c.Timeout = d }
}

// WithNoRedirects disables automatic redirect following, since
// HttpStreamService follows redirects manually to cap hop count and inspect
// each response.
func WithNoRedirects() ClientOption {
	return func(c *http.Client) {
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
}

// NewHTTPClient builds an *http.Client with the given options, defaulting to
// a 20s timeout per §5's IPTV upstream default.
func NewHTTPClient(opts ...ClientOption) *http.Client {
	c := &http.Client{Timeout: 20 * time.Second}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
