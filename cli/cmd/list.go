package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/assay/cli/render"
	"github.com/pithecene-io/assay/cli/tui"
	"github.com/pithecene-io/assay/lode"
)

// listWarningThreshold is the number of items above which we warn about using --limit.
const listWarningThreshold = 100

// ListCommand returns the list command with subcommands.
// Both read the Lode dataset written by run.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "Query stored executions (outcomes, metrics)",
		Subcommands: []*cli.Command{
			listOutcomesCommand(),
			listMetricsCommand(),
		},
	}
}

func queryFlags() []cli.Flag {
	return append(storageFlags(),
		&cli.StringFlag{
			Name:  "source",
			Usage: "Filter by build source, e.g. gh/owner/repo/ref",
		},
		&cli.StringFlag{
			Name:  "day",
			Usage: "Filter by partition day (YYYY-MM-DD)",
		},
		&cli.StringFlag{
			Name:  "execution-id",
			Usage: "Filter by execution ID",
		},
	)
}

func listOutcomesCommand() *cli.Command {
	return &cli.Command{
		Name:  "outcomes",
		Usage: "List execution outcomes, newest first",
		Flags: append(append(ReadOnlyFlags(), queryFlags()...),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of outcomes to return (0 = no limit)",
			},
		),
		Action: listOutcomesAction,
	}
}

func listOutcomesAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	ds, err := openDataset(c.Context, storageFromFlags(c))
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open dataset: %v", err), 1)
	}

	outcomes, err := lode.ListOutcomes(c.Context, ds, filterFromFlags(c))
	if err != nil {
		return cli.Exit(fmt.Sprintf("query failed: %v", err), 1)
	}

	limit := c.Int("limit")
	if limit > 0 && len(outcomes) > limit {
		outcomes = outcomes[:limit]
	}
	if outcomes == nil {
		outcomes = []lode.OutcomeSummary{}
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewOutcomes, outcomes)
	}

	if len(outcomes) > listWarningThreshold && limit == 0 && render.IsTerminal(os.Stderr) {
		fmt.Fprintf(os.Stderr, "Warning: returning %d results. Consider using --limit to reduce output.\n\n", len(outcomes))
	}
	return r.Render(outcomes)
}

func listMetricsCommand() *cli.Command {
	return &cli.Command{
		Name:   "metrics",
		Usage:  "Show the latest metrics snapshot matching the filters",
		Flags:  append(ReadOnlyFlags(), queryFlags()...),
		Action: listMetricsAction,
	}
}

func listMetricsAction(c *cli.Context) error {
	if err := tuiUnsupported(c, "list metrics"); err != nil {
		return err
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	ds, err := openDataset(c.Context, storageFromFlags(c))
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open dataset: %v", err), 1)
	}

	record, err := lode.QueryLatestMetrics(c.Context, ds, filterFromFlags(c))
	if errors.Is(err, lode.ErrNoMetricsFound) {
		return cli.Exit(err.Error(), 1)
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("query failed: %v", err), 1)
	}

	if payload, ok := record["payload"].(map[string]any); ok {
		return r.Render(payload)
	}
	return r.Render(record)
}

func storageFromFlags(c *cli.Context) storageChoice {
	return storageChoice{
		backend:   c.String("storage-backend"),
		path:      c.String("storage-path"),
		dataset:   c.String("storage-dataset"),
		region:    c.String("storage-region"),
		endpoint:  c.String("storage-endpoint"),
		pathStyle: c.Bool("storage-s3-path-style"),
	}
}

func filterFromFlags(c *cli.Context) lode.Filter {
	f := lode.Filter{
		Day:         c.String("day"),
		ExecutionID: c.String("execution-id"),
	}
	if src := c.String("source"); src != "" {
		f.Source = lode.PartitionSource(src)
	}
	return f
}
