package types

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// ProxyProtocol is the allowed proxy protocol.
type ProxyProtocol string

const (
	ProxyProtocolHTTP   ProxyProtocol = "http"
	ProxyProtocolHTTPS  ProxyProtocol = "https"
	ProxyProtocolSOCKS5 ProxyProtocol = "socks5"
)

// ProxyStrategy is the proxy selection strategy for pools.
type ProxyStrategy string

const (
	ProxyStrategyRoundRobin ProxyStrategy = "round_robin"
	ProxyStrategyRandom     ProxyStrategy = "random"
)

// ProxyEndpoint is a proxy the transport client can dial through.
type ProxyEndpoint struct {
	// Protocol is the proxy protocol.
	Protocol ProxyProtocol `json:"protocol" yaml:"protocol"`
	// Host is the proxy host.
	Host string `json:"host" yaml:"host"`
	// Port is the proxy port (1-65535).
	Port int `json:"port" yaml:"port"`
	// Username is the optional username for authentication.
	Username *string `json:"username,omitempty" yaml:"username,omitempty"`
	// Password is the optional password for authentication.
	Password *string `json:"password,omitempty" yaml:"password,omitempty"`
}

// Validate validates a proxy endpoint.
func (p *ProxyEndpoint) Validate() error {
	switch p.Protocol {
	case ProxyProtocolHTTP, ProxyProtocolHTTPS, ProxyProtocolSOCKS5:
	default:
		return fmt.Errorf("invalid protocol %q: must be http, https, or socks5", p.Protocol)
	}

	if p.Host == "" {
		return errors.New("host is required")
	}

	if p.Port < 1 || p.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", p.Port)
	}

	hasUsername := p.Username != nil && *p.Username != ""
	hasPassword := p.Password != nil && *p.Password != ""
	if hasUsername != hasPassword {
		return errors.New("username and password must be provided together")
	}

	return nil
}

// URL returns the proxy as a URL suitable for http.Transport.Proxy.
func (p *ProxyEndpoint) URL() *url.URL {
	u := &url.URL{
		Scheme: string(p.Protocol),
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
	}
	if p.Username != nil && *p.Username != "" && p.Password != nil {
		u.User = url.UserPassword(*p.Username, *p.Password)
	}
	return u
}

// Redact returns a copy of the endpoint without the password.
func (p *ProxyEndpoint) Redact() ProxyEndpointRedacted {
	return ProxyEndpointRedacted{
		Protocol: p.Protocol,
		Host:     p.Host,
		Port:     p.Port,
		Username: p.Username,
	}
}

// ProxyEndpointRedacted is a proxy endpoint without password.
type ProxyEndpointRedacted struct {
	Protocol ProxyProtocol `json:"protocol" yaml:"protocol"`
	Host     string        `json:"host" yaml:"host"`
	Port     int           `json:"port" yaml:"port"`
	Username *string       `json:"username,omitempty" yaml:"username,omitempty"`
}

// ProxyPool defines a pool and its rotation strategy.
type ProxyPool struct {
	// Name is the pool name (unique identifier).
	Name string `json:"name" yaml:"name"`
	// Strategy is the selection strategy.
	Strategy ProxyStrategy `json:"strategy" yaml:"strategy"`
	// Endpoints is the list of available endpoints (must have at least one).
	Endpoints []ProxyEndpoint `json:"endpoints" yaml:"endpoints"`
}

// Validate validates a proxy pool.
func (p *ProxyPool) Validate() error {
	if p.Name == "" {
		return errors.New("pool name is required")
	}

	switch p.Strategy {
	case ProxyStrategyRoundRobin, ProxyStrategyRandom:
	default:
		return fmt.Errorf("invalid strategy %q: must be round_robin or random", p.Strategy)
	}

	if len(p.Endpoints) == 0 {
		return errors.New("pool must have at least one endpoint")
	}

	for i, ep := range p.Endpoints {
		if err := ep.Validate(); err != nil {
			return fmt.Errorf("endpoints[%d]: %w", i, err)
		}
	}

	return nil
}
