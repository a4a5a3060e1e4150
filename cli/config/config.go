package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/pithecene-io/assay/types"
)

// Config represents an assay.yaml configuration file.
// All values are optional and act as defaults for assay run flags.
// CLI flags always override config values.
type Config struct {
	Build     BuildConfig                `yaml:"build"`
	Kernel    KernelConfig               `yaml:"kernel"`
	Execution ExecutionConfig            `yaml:"execution"`
	Transport TransportConfig            `yaml:"transport"`
	Storage   StorageConfig              `yaml:"storage"`
	Policy    PolicyConfig               `yaml:"policy"`
	Trace     TraceConfig                `yaml:"trace"`
	Proxies   map[string]ProxyPoolConfig `yaml:"proxies"`
	Proxy     ProxySelection             `yaml:"proxy"`
	Adapter   AdapterConfig              `yaml:"adapter"`
}

// BuildConfig addresses the repository to build.
type BuildConfig struct {
	ServiceURL string `yaml:"service_url"`
	Provider   string `yaml:"provider"`
	Repo       string `yaml:"repo"`
	Ref        string `yaml:"ref"`
}

// KernelConfig holds kernel launch defaults.
type KernelConfig struct {
	Name string `yaml:"name"`
}

// ExecutionConfig holds execute defaults.
type ExecutionConfig struct {
	Code    string   `yaml:"code"`
	Timeout Duration `yaml:"timeout"`
}

// TransportConfig holds network defaults.
type TransportConfig struct {
	UserAgent      string   `yaml:"user_agent"`
	RequestTimeout Duration `yaml:"request_timeout"`
}

// StorageConfig holds storage defaults from the config file.
type StorageConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// PolicyConfig holds recording policy defaults from the config file.
type PolicyConfig struct {
	Name          string `yaml:"name"`
	BufferRecords int    `yaml:"buffer_records"`
	BufferBytes   int64  `yaml:"buffer_bytes"`
}

// TraceConfig holds trace file defaults.
type TraceConfig struct {
	Path string `yaml:"path"`
}

// ProxyPoolConfig is a proxy pool definition within the config file.
// Name is derived from the map key, not stored in the struct.
type ProxyPoolConfig struct {
	Strategy  types.ProxyStrategy   `yaml:"strategy"`
	Endpoints []types.ProxyEndpoint `yaml:"endpoints"`
}

// ProxySelection holds proxy selection defaults from the config file.
type ProxySelection struct {
	Pool     string `yaml:"pool"`
	Strategy string `yaml:"strategy"`
}

// AdapterConfig holds completion notification defaults.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", s)
	}
	d.Duration = parsed
	return nil
}

// ProxyPools converts the map-keyed proxy pool config into a slice of
// types.ProxyPool sorted by name.
func (c *Config) ProxyPools() []types.ProxyPool {
	if len(c.Proxies) == 0 {
		return nil
	}

	names := make([]string, 0, len(c.Proxies))
	for name := range c.Proxies {
		names = append(names, name)
	}
	sort.Strings(names)

	pools := make([]types.ProxyPool, 0, len(names))
	for _, name := range names {
		pc := c.Proxies[name]
		pools = append(pools, types.ProxyPool{
			Name:      name,
			Strategy:  pc.Strategy,
			Endpoints: pc.Endpoints,
		})
	}
	return pools
}
