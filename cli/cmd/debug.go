package cmd

import (
	"fmt"
	"slices"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/assay/cli/config"
	"github.com/pithecene-io/assay/cli/render"
	"github.com/pithecene-io/assay/cli/tui"
	"github.com/pithecene-io/assay/proxy"
	"github.com/pithecene-io/assay/trace"
	"github.com/pithecene-io/assay/types"
)

// DebugCommand returns the debug command with subcommands.
// Debug commands are read-only diagnostics; nothing is sent to a build service.
func DebugCommand() *cli.Command {
	return &cli.Command{
		Name:  "debug",
		Usage: "Diagnostic tools (trace, resolve proxy)",
		Subcommands: []*cli.Command{
			debugTraceCommand(),
			debugResolveCommand(),
		},
	}
}

func debugTraceCommand() *cli.Command {
	return &cli.Command{
		Name:      "trace",
		Usage:     "Show the records of a trace file",
		ArgsUsage: "<file>",
		Flags: append(ReadOnlyFlags(),
			&cli.StringSliceFlag{
				Name:  "kind",
				Usage: "Only show records of this kind (repeatable)",
			},
		),
		Action: debugTraceAction,
	}
}

func debugTraceAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("trace file required", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	records, err := trace.ReadFile(c.Args().First())
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to read trace: %v", err), 1)
	}

	if kinds := c.StringSlice("kind"); len(kinds) > 0 {
		records = slices.DeleteFunc(records, func(rec *types.TraceRecord) bool {
			return !slices.Contains(kinds, string(rec.Kind))
		})
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewTrace, records)
	}
	if r.Format() == render.FormatTable {
		return r.Render(trace.Rows(records))
	}
	return r.Render(records)
}

func debugResolveCommand() *cli.Command {
	return &cli.Command{
		Name:  "resolve",
		Usage: "Resolve entities for debugging",
		Subcommands: []*cli.Command{
			debugResolveProxyCommand(),
		},
	}
}

func debugResolveProxyCommand() *cli.Command {
	return &cli.Command{
		Name:      "proxy",
		Usage:     "Resolve a proxy endpoint from a pool",
		ArgsUsage: "<pool>",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:     "config",
				Usage:    "Path to YAML config file defining proxies",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "strategy",
				Usage: "Strategy override: round_robin or random",
			},
			&cli.BoolFlag{
				Name:  "commit",
				Usage: "Commit the resolution (advance rotation counters)",
			},
		),
		Action: debugResolveProxyAction,
	}
}

// ResolveProxyResponse is the output of debug resolve proxy.
// Credentials are never included.
type ResolveProxyResponse struct {
	Pool      string  `json:"pool" yaml:"pool"`
	Protocol  string  `json:"protocol" yaml:"protocol"`
	Host      string  `json:"host" yaml:"host"`
	Port      int     `json:"port" yaml:"port"`
	Username  *string `json:"username,omitempty" yaml:"username,omitempty"`
	Committed bool    `json:"committed" yaml:"committed"`
}

func debugResolveProxyAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("pool name required", 1)
	}
	if err := tuiUnsupported(c, "debug resolve proxy"); err != nil {
		return err
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	selector := proxy.NewSelector()
	pools := cfg.ProxyPools()
	for i := range pools {
		if err := selector.RegisterPool(&pools[i]); err != nil {
			return cli.Exit(fmt.Sprintf("failed to register pool %q: %v", pools[i].Name, err), 1)
		}
	}

	poolName := c.Args().First()
	req := proxy.SelectRequest{Pool: poolName, Commit: c.Bool("commit")}
	if strategy := c.String("strategy"); strategy != "" {
		s := types.ProxyStrategy(strategy)
		req.StrategyOverride = &s
	}

	endpoint, err := selector.Select(req)
	if err != nil {
		return cli.Exit(fmt.Sprintf("proxy selection failed: %v", err), 1)
	}

	redacted := endpoint.Redact()
	return r.Render(&ResolveProxyResponse{
		Pool:      poolName,
		Protocol:  string(redacted.Protocol),
		Host:      redacted.Host,
		Port:      redacted.Port,
		Username:  redacted.Username,
		Committed: req.Commit,
	})
}
