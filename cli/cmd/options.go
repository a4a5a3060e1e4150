package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/assay/build"
	"github.com/pithecene-io/assay/cli/config"
	"github.com/pithecene-io/assay/kernel"
	"github.com/pithecene-io/assay/runtime"
	"github.com/pithecene-io/assay/types"
)

// runOptions is the merged result of flags and the config file.
type runOptions struct {
	build          build.Request
	kernelName     string
	code           string
	timeout        time.Duration
	executionID    string
	userAgent      string
	requestTimeout time.Duration
	policy         policyChoice
	storage        storageChoice
	tracePath      string
	proxy          proxyChoice
	adapter        adapterChoice
	reportPath     string
	quiet          bool
	noColor        bool
	logLevel       string
}

// policyChoice holds parsed policy configuration.
type policyChoice struct {
	name          string
	bufferRecords int
	bufferBytes   int64
}

// storageChoice holds parsed Lode storage configuration.
type storageChoice struct {
	backend   string // "fs" or "s3"
	path      string // fs: directory, s3: bucket/prefix
	dataset   string
	region    string
	endpoint  string
	pathStyle bool
}

// proxyChoice holds parsed proxy configuration.
type proxyChoice struct {
	pools    []types.ProxyPool
	pool     string
	strategy string
}

// adapterChoice holds parsed notification adapter configuration.
type adapterChoice struct {
	kind    string
	url     string
	channel string
	headers map[string]string
	timeout time.Duration
	retries *int
}

// source labels the execution with the build it targets.
func (o *runOptions) source() string {
	return o.build.Source()
}

// resolveRunOptions merges flags over cfg. cfg may be nil.
// A flag wins when set explicitly; otherwise a non-empty config value wins
// over the flag default.
func resolveRunOptions(c *cli.Context, cfg *config.Config) (*runOptions, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}

	opts := &runOptions{
		build: build.Request{
			ServiceURL: stringOpt(c, "service-url", cfg.Build.ServiceURL),
			Provider:   stringOpt(c, "provider", cfg.Build.Provider),
			Repo:       stringOpt(c, "repo", cfg.Build.Repo),
			Ref:        stringOpt(c, "ref", cfg.Build.Ref),
		},
		kernelName:     stringOpt(c, "kernel", cfg.Kernel.Name),
		code:           stringOpt(c, "code", cfg.Execution.Code),
		timeout:        durationOpt(c, "timeout", cfg.Execution.Timeout.Duration),
		executionID:    c.String("execution-id"),
		userAgent:      stringOpt(c, "user-agent", cfg.Transport.UserAgent),
		requestTimeout: durationOpt(c, "request-timeout", cfg.Transport.RequestTimeout.Duration),
		policy: policyChoice{
			name:          stringOpt(c, "policy", cfg.Policy.Name),
			bufferRecords: intOpt(c, "buffer-records", cfg.Policy.BufferRecords),
			bufferBytes:   int64Opt(c, "buffer-bytes", cfg.Policy.BufferBytes),
		},
		storage: storageChoice{
			backend:   stringOpt(c, "storage-backend", cfg.Storage.Backend),
			path:      stringOpt(c, "storage-path", cfg.Storage.Path),
			dataset:   stringOpt(c, "storage-dataset", cfg.Storage.Dataset),
			region:    stringOpt(c, "storage-region", cfg.Storage.Region),
			endpoint:  stringOpt(c, "storage-endpoint", cfg.Storage.Endpoint),
			pathStyle: c.Bool("storage-s3-path-style") || cfg.Storage.S3PathStyle,
		},
		tracePath: stringOpt(c, "trace", cfg.Trace.Path),
		proxy: proxyChoice{
			pools:    cfg.ProxyPools(),
			pool:     stringOpt(c, "proxy-pool", cfg.Proxy.Pool),
			strategy: stringOpt(c, "proxy-strategy", cfg.Proxy.Strategy),
		},
		adapter: adapterChoice{
			kind:    stringOpt(c, "adapter", cfg.Adapter.Type),
			url:     stringOpt(c, "adapter-url", cfg.Adapter.URL),
			channel: stringOpt(c, "adapter-channel", cfg.Adapter.Channel),
			timeout: durationOpt(c, "adapter-timeout", cfg.Adapter.Timeout.Duration),
			retries: cfg.Adapter.Retries,
		},
		reportPath: c.String("report"),
		quiet:      c.Bool("quiet"),
		noColor:    c.Bool("no-color"),
		logLevel:   c.String("log-level"),
	}

	if c.IsSet("adapter-retries") {
		n := c.Int("adapter-retries")
		opts.adapter.retries = &n
	}

	headers, err := mergeHeaders(cfg.Adapter.Headers, c.StringSlice("adapter-header"))
	if err != nil {
		return nil, err
	}
	opts.adapter.headers = headers

	if opts.executionID == "" {
		opts.executionID = uuid.NewString()
	}
	if opts.kernelName == "" {
		opts.kernelName = kernel.DefaultKernelName
	}
	if opts.timeout == 0 {
		opts.timeout = runtime.DefaultTimeout
	}

	if err := opts.validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func (o *runOptions) validate() error {
	if err := o.build.Validate(); err != nil {
		return fmt.Errorf("invalid build: %w", err)
	}
	if strings.TrimSpace(o.code) == "" {
		return errors.New("--code must not be empty")
	}
	if o.timeout < 0 {
		return fmt.Errorf("--timeout must not be negative, got %s", o.timeout)
	}
	if err := validatePolicyChoice(o.policy); err != nil {
		return err
	}
	switch o.storage.backend {
	case "fs", "s3":
	default:
		return fmt.Errorf("invalid storage backend: %s (must be fs or s3)", o.storage.backend)
	}
	if o.proxy.strategy != "" && o.proxy.pool == "" {
		return errors.New("--proxy-strategy requires --proxy-pool")
	}
	switch o.adapter.kind {
	case "":
	case "webhook", "redis":
		if o.adapter.url == "" {
			return fmt.Errorf("--adapter %s requires --adapter-url", o.adapter.kind)
		}
	default:
		return fmt.Errorf("invalid adapter: %s (must be webhook or redis)", o.adapter.kind)
	}
	return nil
}

func validatePolicyChoice(choice policyChoice) error {
	switch choice.name {
	case "strict", "noop":
		return nil
	case "buffered":
		if choice.bufferRecords < 0 || choice.bufferBytes < 0 {
			return errors.New("buffer limits must not be negative")
		}
		return nil
	default:
		return fmt.Errorf("invalid policy: %s (must be strict, buffered or noop)", choice.name)
	}
}

// mergeHeaders overlays "Key=Value" flag values on the config headers.
func mergeHeaders(base map[string]string, flags []string) (map[string]string, error) {
	if len(base) == 0 && len(flags) == 0 {
		return nil, nil
	}
	merged := make(map[string]string, len(base)+len(flags))
	for k, v := range base {
		merged[k] = v
	}
	for _, f := range flags {
		k, v, ok := strings.Cut(f, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid --adapter-header %q (want Key=Value)", f)
		}
		merged[strings.TrimSpace(k)] = v
	}
	return merged, nil
}

func stringOpt(c *cli.Context, flag, cfgVal string) string {
	if !c.IsSet(flag) && cfgVal != "" {
		return cfgVal
	}
	return c.String(flag)
}

func durationOpt(c *cli.Context, flag string, cfgVal time.Duration) time.Duration {
	if !c.IsSet(flag) && cfgVal != 0 {
		return cfgVal
	}
	return c.Duration(flag)
}

func intOpt(c *cli.Context, flag string, cfgVal int) int {
	if !c.IsSet(flag) && cfgVal != 0 {
		return cfgVal
	}
	return c.Int(flag)
}

func int64Opt(c *cli.Context, flag string, cfgVal int64) int64 {
	if !c.IsSet(flag) && cfgVal != 0 {
		return cfgVal
	}
	return c.Int64(flag)
}
