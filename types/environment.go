package types

import (
	"errors"
	"net/url"
)

// EnvironmentHandle addresses a provisioned environment.
// Only ever constructed from a Ready phase event.
type EnvironmentHandle struct {
	// BaseURL is the notebook server root, e.g. https://hub.example/user/abc/.
	BaseURL string `json:"base_url" msgpack:"base_url"`
	// Token authenticates requests to the environment.
	Token string `json:"-" msgpack:"-"`
}

// Validate checks that the base URL is an absolute http(s) URL.
func (e EnvironmentHandle) Validate() error {
	if e.BaseURL == "" {
		return errors.New("environment base_url must be non-empty")
	}
	u, err := url.Parse(e.BaseURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("environment base_url must use http or https")
	}
	if u.Host == "" {
		return errors.New("environment base_url must include a host")
	}
	return nil
}

// RedactedToken returns the token with all but the last four characters masked.
func (e EnvironmentHandle) RedactedToken() string {
	if len(e.Token) <= 4 {
		return "****"
	}
	return "****" + e.Token[len(e.Token)-4:]
}

// KernelHandle identifies a kernel launched inside an environment.
// Scoped to a single execution.
type KernelHandle struct {
	ID   string `json:"id" msgpack:"id"`
	Name string `json:"name,omitempty" msgpack:"name,omitempty"`
}
