package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/cinebridge/cli/render"
	"github.com/pithecene-io/cinebridge/protocol"
	"github.com/pithecene-io/cinebridge/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version  string `json:"version" yaml:"version"`
	Commit   string `json:"commit" yaml:"commit"`
	Envelope string `json:"envelope_suffix" yaml:"envelope_suffix"`
}

// VersionCommand returns the version command.
// It must not touch the network or storage.
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

		// TUI not supported for version command
		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version command", exitConfig)
		}

		return r.Render(VersionResponse{
			Version:  types.Version,
			Commit:   commit,
			Envelope: protocol.DefaultSuffix,
		})
	}
}
