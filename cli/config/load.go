package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file, expands environment variables, and
// decodes into a Config struct. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
	}

	expanded := ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &cfg, nil
}

// Validate checks enumerated values. Empty values mean "use the flag default".
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "", "fs", "s3":
	default:
		return fmt.Errorf("storage.backend %q: must be fs or s3", c.Storage.Backend)
	}
	switch c.Policy.Name {
	case "", "strict", "buffered", "noop":
	default:
		return fmt.Errorf("policy.name %q: must be strict, buffered or noop", c.Policy.Name)
	}
	if c.Policy.BufferRecords < 0 || c.Policy.BufferBytes < 0 {
		return errors.New("policy buffer limits must not be negative")
	}
	switch c.Adapter.Type {
	case "", "webhook", "redis":
	default:
		return fmt.Errorf("adapter.type %q: must be webhook or redis", c.Adapter.Type)
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		return fmt.Errorf("adapter.retries must be >= 0, got %d", *c.Adapter.Retries)
	}
	for _, pool := range c.ProxyPools() {
		if err := pool.Validate(); err != nil {
			return fmt.Errorf("proxies.%s: %w", pool.Name, err)
		}
	}
	if c.Proxy.Pool != "" {
		if _, ok := c.Proxies[c.Proxy.Pool]; !ok {
			return fmt.Errorf("proxy.pool %q is not defined under proxies", c.Proxy.Pool)
		}
	}
	return nil
}
