package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/assay/cli/render"
	"github.com/pithecene-io/assay/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version      string `json:"version"`
	TraceVersion string `json:"trace_format_version"`
	Commit       string `json:"commit"`
}

// VersionCommand returns the version command. It never touches the network.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}
		if err := tuiUnsupported(c, "version"); err != nil {
			return err
		}

		return r.Render(VersionResponse{
			Version:      types.Version,
			TraceVersion: types.TraceFormatVersion,
			Commit:       commit,
		})
	}
}
