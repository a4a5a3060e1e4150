package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/assay/build"
	"github.com/pithecene-io/assay/cli/config"
	"github.com/pithecene-io/assay/cli/render"
	"github.com/pithecene-io/assay/kernel"
	"github.com/pithecene-io/assay/log"
	"github.com/pithecene-io/assay/metrics"
	"github.com/pithecene-io/assay/proxy"
	"github.com/pithecene-io/assay/runtime"
	"github.com/pithecene-io/assay/transport"
	"github.com/pithecene-io/assay/types"
)

// exitUsage is returned when the invocation itself is invalid.
const exitUsage = 64

// RunCommand returns the run command.
// It is the only command that talks to a build service.
func RunCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to YAML config file (flags override config values)",
		},
		// Build flags
		&cli.StringFlag{
			Name:  "service-url",
			Usage: "Binder service base URL",
			Value: build.DefaultServiceURL,
		},
		&cli.StringFlag{
			Name:  "provider",
			Usage: "Repository provider (gh, gl, git, zenodo, ...)",
			Value: build.DefaultProvider,
		},
		&cli.StringFlag{
			Name:  "repo",
			Usage: "Repository, e.g. owner/name",
			Value: build.DefaultRepo,
		},
		&cli.StringFlag{
			Name:  "ref",
			Usage: "Git ref to build",
			Value: build.DefaultRef,
		},
		// Execution flags
		&cli.StringFlag{
			Name:  "kernel",
			Usage: "Kernel name to launch",
			Value: kernel.DefaultKernelName,
		},
		&cli.StringFlag{
			Name:    "code",
			Aliases: []string{"c"},
			Usage:   "Code snippet to execute",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Deadline for the execute result",
			Value: runtime.DefaultTimeout,
		},
		&cli.StringFlag{
			Name:  "execution-id",
			Usage: "Execution ID (generated if empty)",
		},
		// Transport flags
		&cli.StringFlag{
			Name:  "user-agent",
			Usage: "User-Agent sent on every request",
		},
		&cli.DurationFlag{
			Name:  "request-timeout",
			Usage: "Bound on response headers and the websocket handshake (0 = none)",
		},
		// Trace flags
		&cli.StringFlag{
			Name:  "policy",
			Usage: "Trace policy: strict, buffered or noop",
			Value: "strict",
		},
		&cli.IntFlag{
			Name:  "buffer-records",
			Usage: "Max buffered records (buffered policy)",
		},
		&cli.Int64Flag{
			Name:  "buffer-bytes",
			Usage: "Max buffer size in bytes (buffered policy)",
		},
		&cli.StringFlag{
			Name:  "trace",
			Usage: "Write the execution trace to this file",
		},
		// Proxy flags
		&cli.StringFlag{
			Name:  "proxy-pool",
			Usage: "Proxy pool (from --config) to route traffic through",
		},
		&cli.StringFlag{
			Name:  "proxy-strategy",
			Usage: "Strategy override: round_robin or random",
		},
		// Adapter flags
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "Completion event adapter: webhook or redis",
		},
		&cli.StringFlag{
			Name:  "adapter-url",
			Usage: "Webhook endpoint or Redis URL",
		},
		&cli.StringFlag{
			Name:  "adapter-channel",
			Usage: "Redis pub/sub channel",
		},
		&cli.DurationFlag{
			Name:  "adapter-timeout",
			Usage: "Per-attempt publish timeout",
		},
		&cli.IntFlag{
			Name:  "adapter-retries",
			Usage: "Publish retry attempts",
		},
		&cli.StringSliceFlag{
			Name:  "adapter-header",
			Usage: "Webhook header as Key=Value (repeatable)",
		},
		// Output flags
		&cli.StringFlag{
			Name:  "report",
			Usage: "Write a JSON execution report to this path (- for stderr)",
		},
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "Suppress progress output",
		},
		NoColorFlag,
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Minimum log level: debug, info, warn, error",
			Value: "warn",
		},
	}

	return &cli.Command{
		Name:   "run",
		Usage:  "Provision an environment, execute one snippet, report the result",
		Flags:  append(flags, storageFlags()...),
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	var cfg *config.Config
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cli.Exit(err.Error(), exitUsage)
		}
		cfg = loaded
	}

	opts, err := resolveRunOptions(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	meta := &types.ExecutionMeta{
		ExecutionID: opts.executionID,
		Source:      opts.source(),
	}

	logger, err := log.NewLogger(meta).WithMinLevel(opts.logLevel)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	defer func() { _ = logger.Sync() }()

	endpoint, err := selectProxy(opts.proxy)
	if err != nil {
		return cli.Exit(fmt.Sprintf("proxy selection failed: %v", err), exitUsage)
	}

	transportCfg := transport.Config{
		UserAgent:             opts.userAgent,
		Proxy:                 endpoint,
		ResponseHeaderTimeout: opts.requestTimeout,
		HandshakeTimeout:      opts.requestTimeout,
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	collector := metrics.NewCollector(opts.policy.name, storageLabel(opts), opts.kernelName, opts.executionID)

	rec, err := buildRecording(ctx, opts, collector, logger, start)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to set up trace recording: %v", err), exitUsage)
	}

	var progress *render.Progress
	var reporter runtime.Reporter
	if !opts.quiet {
		progress = render.NewProgress(c.App.Writer, opts.noColor)
		reporter = progress
	}

	coordinator, err := runtime.NewCoordinator(&runtime.Config{
		Meta:       meta,
		Build:      opts.build,
		Code:       opts.code,
		KernelName: opts.kernelName,
		Timeout:    opts.timeout,
		Client:     transport.NewHTTPClient(transportCfg),
		Dialer:     transport.NewDialer(transportCfg),
		Header:     transport.UserAgentHeader(transportCfg),
		Proxy:      endpoint,
		Policy:     rec.policy,
		Reporter:   reporter,
		Logger:     logger,
		Collector:  collector,
	})
	if err != nil {
		_ = rec.policy.Close()
		return cli.Exit(fmt.Sprintf("failed to create coordinator: %v", err), exitUsage)
	}

	result, execErr := coordinator.Execute(ctx)
	exitCode := runtime.ExitCode(result.Outcome.Status)

	if err := rec.policy.Close(); err != nil {
		logger.Warn("trace close failed", map[string]any{"error": err.Error()})
	}
	uploadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	if err := rec.uploadTrace(uploadCtx); err != nil {
		logger.Warn("trace upload failed", map[string]any{"error": err.Error()})
	}
	cancel()

	if opts.reportPath != "" {
		report := runtime.BuildExecutionReport(result, collector.Snapshot(), opts.policy.name, exitCode)
		if err := runtime.WriteExecutionReport(report, opts.reportPath); err != nil {
			logger.Warn("report write failed", map[string]any{"error": err.Error()})
		}
	}

	notify(ctx, opts.adapter, eventFromResult(result, opts, start, exitCode, rec.storageURI(opts.storage)), logger)

	if progress != nil {
		progress.Outcome(result)
	}

	if execErr == nil {
		return nil
	}
	if opts.quiet {
		return cli.Exit(result.Outcome.Message, exitCode)
	}
	return cli.Exit("", exitCode)
}

// selectProxy resolves the configured pool to one endpoint.
// The selector is per invocation, so round-robin state starts fresh each run.
func selectProxy(choice proxyChoice) (*types.ProxyEndpoint, error) {
	if choice.pool == "" {
		return nil, nil
	}

	selector := proxy.NewSelector()
	for i := range choice.pools {
		if err := selector.RegisterPool(&choice.pools[i]); err != nil {
			return nil, fmt.Errorf("failed to register pool %q: %w", choice.pools[i].Name, err)
		}
	}

	req := proxy.SelectRequest{Pool: choice.pool, Commit: true}
	if choice.strategy != "" {
		strategy := types.ProxyStrategy(choice.strategy)
		req.StrategyOverride = &strategy
	}
	return selector.Select(req)
}
