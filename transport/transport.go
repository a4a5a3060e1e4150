// Package transport supplies the network capabilities the core consumes:
// an HTTP client that can stream response bodies and a websocket dialer.
//
// Both are built from one Config so the build stream, the kernel launch and
// the kernel channel share user agent and proxy settings.
package transport

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pithecene-io/assay/types"
)

// Doer issues a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultUserAgent is sent when Config.UserAgent is empty.
const DefaultUserAgent = "assay/" + types.Version

// Config configures the transport capabilities.
type Config struct {
	// UserAgent is sent on every request.
	UserAgent string
	// Proxy, if set, routes HTTP and websocket traffic through the endpoint.
	Proxy *types.ProxyEndpoint
	// ResponseHeaderTimeout bounds the wait for response headers.
	// The body itself is unbounded; build streams stay open for minutes.
	ResponseHeaderTimeout time.Duration
	// HandshakeTimeout bounds the websocket handshake.
	HandshakeTimeout time.Duration
}

func (c Config) userAgent() string {
	if c.UserAgent == "" {
		return DefaultUserAgent
	}
	return c.UserAgent
}

func (c Config) proxyFunc() func(*http.Request) (*url.URL, error) {
	if c.Proxy == nil {
		return http.ProxyFromEnvironment
	}
	u := c.Proxy.URL()
	return func(*http.Request) (*url.URL, error) { return u, nil }
}

// NewHTTPClient returns a client safe for concurrent use.
// It has no overall Timeout so streaming bodies are not cut off; callers
// bound requests with a context.
func NewHTTPClient(cfg Config) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.Proxy = cfg.proxyFunc()
	if cfg.ResponseHeaderTimeout > 0 {
		base.ResponseHeaderTimeout = cfg.ResponseHeaderTimeout
	}
	return &http.Client{
		Transport: &userAgentTransport{base: base, userAgent: cfg.userAgent()},
	}
}

// NewDialer returns a websocket dialer sharing the HTTP client's proxy.
func NewDialer(cfg Config) *websocket.Dialer {
	d := *websocket.DefaultDialer
	d.Proxy = cfg.proxyFunc()
	if cfg.HandshakeTimeout > 0 {
		d.HandshakeTimeout = cfg.HandshakeTimeout
	}
	return &d
}

// UserAgentHeader returns the header set the dialer should send.
func UserAgentHeader(cfg Config) http.Header {
	h := http.Header{}
	h.Set("User-Agent", cfg.userAgent())
	return h
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(r)
}
