package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pithecene-io/assay/types"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `build:
  service_url: https://binder.example.org
  provider: gh
  repo: binder-examples/requirements
  ref: main

kernel:
  name: python3

execution:
  code: "1 + 1"
  timeout: 45s

transport:
  user_agent: assay-ci/1.0
  request_timeout: 20s

storage:
  dataset: assay
  backend: s3
  path: my-bucket/prefix
  region: us-east-1
  endpoint: https://example.com
  s3_path_style: true

policy:
  name: buffered
  buffer_records: 512
  buffer_bytes: 1048576

trace:
  path: ./trace.bin

proxies:
  pool_a:
    strategy: round_robin
    endpoints:
      - protocol: https
        host: proxy.example.com
        port: 8080

proxy:
  pool: pool_a
  strategy: random

adapter:
  type: webhook
  url: https://hooks.example.com/assay
  headers:
    Authorization: Bearer token123
  timeout: 10s
  retries: 3
`
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	assertEqual(t, "build.service_url", cfg.Build.ServiceURL, "https://binder.example.org")
	assertEqual(t, "build.provider", cfg.Build.Provider, "gh")
	assertEqual(t, "build.repo", cfg.Build.Repo, "binder-examples/requirements")
	assertEqual(t, "build.ref", cfg.Build.Ref, "main")
	assertEqual(t, "kernel.name", cfg.Kernel.Name, "python3")
	assertEqual(t, "execution.code", cfg.Execution.Code, "1 + 1")
	if cfg.Execution.Timeout.Duration != 45*time.Second {
		t.Errorf("execution.timeout: got %v", cfg.Execution.Timeout.Duration)
	}
	assertEqual(t, "transport.user_agent", cfg.Transport.UserAgent, "assay-ci/1.0")
	if cfg.Transport.RequestTimeout.Duration != 20*time.Second {
		t.Errorf("transport.request_timeout: got %v", cfg.Transport.RequestTimeout.Duration)
	}

	assertEqual(t, "storage.backend", cfg.Storage.Backend, "s3")
	assertEqual(t, "storage.path", cfg.Storage.Path, "my-bucket/prefix")
	assertEqual(t, "storage.region", cfg.Storage.Region, "us-east-1")
	if !cfg.Storage.S3PathStyle {
		t.Error("expected storage.s3_path_style=true")
	}

	assertEqual(t, "policy.name", cfg.Policy.Name, "buffered")
	if cfg.Policy.BufferRecords != 512 {
		t.Errorf("expected buffer_records=512, got %d", cfg.Policy.BufferRecords)
	}
	if cfg.Policy.BufferBytes != 1048576 {
		t.Errorf("expected buffer_bytes=1048576, got %d", cfg.Policy.BufferBytes)
	}
	assertEqual(t, "trace.path", cfg.Trace.Path, "./trace.bin")

	assertEqual(t, "proxy.pool", cfg.Proxy.Pool, "pool_a")
	assertEqual(t, "proxy.strategy", cfg.Proxy.Strategy, "random")

	assertEqual(t, "adapter.type", cfg.Adapter.Type, "webhook")
	assertEqual(t, "adapter.url", cfg.Adapter.URL, "https://hooks.example.com/assay")
	if cfg.Adapter.Timeout.Duration != 10*time.Second {
		t.Errorf("expected adapter.timeout=10s, got %v", cfg.Adapter.Timeout.Duration)
	}
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 3 {
		t.Error("expected adapter.retries=3")
	}
	if cfg.Adapter.Headers["Authorization"] != "Bearer token123" {
		t.Error("expected Authorization header")
	}
}

func TestLoad_EmptyInputs(t *testing.T) {
	for name, content := range map[string]string{
		"empty":      "",
		"whitespace": "   \n  \n",
		"comments":   "# a comment\n# another\n",
	} {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeTemp(t, content))
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.Build.Repo != "" || cfg.Adapter.Retries != nil {
				t.Errorf("expected zero config, got %+v", cfg)
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeTemp(t, "{{invalid yaml")); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_UnknownKeysRejected(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		key  string
	}{
		{"top level", "bogus_key: x\n", "bogus_key"},
		{"nested", "storage:\n  backend: fs\n  unknown_field: bad\n", "unknown_field"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTemp(t, tt.yaml))
			if err == nil {
				t.Fatal("expected error for unknown key")
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error should mention %s, got: %v", tt.key, err)
			}
		})
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("ASSAY_TEST_REPO", "binder-examples/requirements")

	cfg, err := Load(writeTemp(t, "build:\n  repo: ${ASSAY_TEST_REPO}\n  ref: ${ASSAY_TEST_REF_UNSET:-HEAD}\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "build.repo", cfg.Build.Repo, "binder-examples/requirements")
	assertEqual(t, "build.ref", cfg.Build.Ref, "HEAD")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"backend", "storage:\n  backend: gcs\n"},
		{"policy", "policy:\n  name: streaming\n"},
		{"negative buffer", "policy:\n  buffer_records: -1\n"},
		{"adapter type", "adapter:\n  type: kafka\n"},
		{"negative retries", "adapter:\n  type: webhook\n  retries: -2\n"},
		{"negative duration", "execution:\n  timeout: -5s\n"},
		{"bad duration", "execution:\n  timeout: soon\n"},
		{"undefined pool", "proxy:\n  pool: missing\n"},
		{"bad pool", "proxies:\n  p:\n    strategy: sticky\n    endpoints:\n      - protocol: http\n        host: h\n        port: 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeTemp(t, tt.yaml)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoad_RetriesZeroDistinctFromNil(t *testing.T) {
	cfg, err := Load(writeTemp(t, "adapter:\n  type: redis\n  url: redis://localhost:6379\n  retries: 0\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries == nil {
		t.Fatal("expected retries to be set")
	}
	if *cfg.Adapter.Retries != 0 {
		t.Errorf("expected retries=0, got %d", *cfg.Adapter.Retries)
	}
	assertEqual(t, "adapter.channel", cfg.Adapter.Channel, "")
}

func TestProxyPools_SortedByName(t *testing.T) {
	cfg := &Config{
		Proxies: map[string]ProxyPoolConfig{
			"beta_pool": {
				Strategy: types.ProxyStrategyRandom,
				Endpoints: []types.ProxyEndpoint{
					{Protocol: types.ProxyProtocolHTTP, Host: "b.example.com", Port: 8080},
				},
			},
			"alpha_pool": {
				Strategy: types.ProxyStrategyRoundRobin,
				Endpoints: []types.ProxyEndpoint{
					{Protocol: types.ProxyProtocolHTTPS, Host: "a.example.com", Port: 443},
				},
			},
		},
	}

	pools := cfg.ProxyPools()
	if len(pools) != 2 {
		t.Fatalf("expected 2 pools, got %d", len(pools))
	}
	if pools[0].Name != "alpha_pool" || pools[1].Name != "beta_pool" {
		t.Errorf("unexpected order: %q, %q", pools[0].Name, pools[1].Name)
	}
	if pools[0].Strategy != types.ProxyStrategyRoundRobin {
		t.Errorf("expected alpha_pool strategy=round_robin, got %q", pools[0].Strategy)
	}

	if (&Config{}).ProxyPools() != nil {
		t.Error("expected nil for empty proxies")
	}
}

// writeTemp writes content to a temp file and returns the path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "assay.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}
