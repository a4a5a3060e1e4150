// Package main provides the assay CLI entrypoint.
//
// Usage:
//
//	assay <command> [subcommand] [options]
//
// Exit codes for `run`:
//   - 0: execute result received
//   - 1: build failed or never became ready
//   - 2: kernel launch, transport or channel failure
//   - 3: execute deadline elapsed
//   - 4: canceled
//   - 64: invalid invocation or configuration
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/assay/cli/cmd"
	"github.com/pithecene-io/assay/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "assay",
		Usage:          "Execute a snippet in a freshly built Binder environment",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.RunCommand(),
			cmd.ListCommand(),
			cmd.DebugCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already exited for every error; this is unreachable
		// unless it returns without exiting.
		os.Exit(1)
	}
}

// exitErrHandler exits with the code carried by cli.Exit errors so that
// run's outcome-specific codes reach the shell.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	os.Exit(exitStatus(err, os.Stderr))
}

// exitStatus prints err to w when it carries a message and returns its exit code.
func exitStatus(err error, w io.Writer) int {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() is "exit status N"; nothing worth printing.
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(w, msg)
		}
		return code
	}

	fmt.Fprintf(w, "Error: %v\n", err)
	return 1
}
