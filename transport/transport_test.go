package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pithecene-io/assay/types"
)

func TestNewHTTPClient_UserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"default", Config{}, DefaultUserAgent},
		{"custom", Config{UserAgent: "probe/1"}, "probe/1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL, nil)
			resp, err := NewHTTPClient(tt.cfg).Do(req)
			if err != nil {
				t.Fatalf("Do: %v", err)
			}
			_ = resp.Body.Close()
			if got != tt.want {
				t.Errorf("User-Agent = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewHTTPClient_KeepsCallerUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	req, _ := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL, nil)
	req.Header.Set("User-Agent", "explicit")
	resp, err := NewHTTPClient(Config{}).Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	_ = resp.Body.Close()
	if got != "explicit" {
		t.Errorf("User-Agent = %q, want explicit", got)
	}
}

func TestNewHTTPClient_NoOverallTimeout(t *testing.T) {
	c := NewHTTPClient(Config{ResponseHeaderTimeout: time.Second})
	if c.Timeout != 0 {
		t.Errorf("Timeout = %v, want 0 for streaming bodies", c.Timeout)
	}
	ua, ok := c.Transport.(*userAgentTransport)
	if !ok {
		t.Fatalf("Transport = %T", c.Transport)
	}
	if ua.base.(*http.Transport).ResponseHeaderTimeout != time.Second {
		t.Error("ResponseHeaderTimeout not applied")
	}
}

func TestProxyInstalled(t *testing.T) {
	cfg := Config{
		Proxy: &types.ProxyEndpoint{Protocol: types.ProxyProtocolHTTP, Host: "proxy.example.com", Port: 3128},
	}
	req := httptest.NewRequest(http.MethodGet, "https://mybinder.org/build/gh/a/b/HEAD", nil)

	d := NewDialer(cfg)
	u, err := d.Proxy(req)
	if err != nil {
		t.Fatalf("dialer Proxy: %v", err)
	}
	if u.String() != "http://proxy.example.com:3128" {
		t.Errorf("dialer proxy = %s", u)
	}

	base := NewHTTPClient(cfg).Transport.(*userAgentTransport).base.(*http.Transport)
	u, err = base.Proxy(req)
	if err != nil {
		t.Fatalf("client Proxy: %v", err)
	}
	if u.Host != "proxy.example.com:3128" {
		t.Errorf("client proxy = %s", u)
	}
}

func TestNewDialer_HandshakeTimeout(t *testing.T) {
	d := NewDialer(Config{HandshakeTimeout: 5 * time.Second})
	if d.HandshakeTimeout != 5*time.Second {
		t.Errorf("HandshakeTimeout = %v", d.HandshakeTimeout)
	}
}

func TestUserAgentHeader(t *testing.T) {
	if got := UserAgentHeader(Config{}).Get("User-Agent"); got != DefaultUserAgent {
		t.Errorf("User-Agent = %q", got)
	}
}
