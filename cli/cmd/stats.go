package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/cinebridge/cli/render"
	"github.com/pithecene-io/cinebridge/cli/tui"
)

// StatsCommand returns the stats command with subcommands.
// Stats returns aggregated, derived facts.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show aggregated statistics (sessions)",
		Subcommands: []*cli.Command{
			statsSessionsCommand(),
		},
	}
}

func statsSessionsCommand() *cli.Command {
	flags := append(ReadOnlyFlags(), SessionFilterFlags()...)
	flags = append(flags, StorageFlags()...)

	return &cli.Command{
		Name:   "sessions",
		Usage:  "Show session outcome statistics from the audit dataset",
		Flags:  flags,
		Action: statsSessionsAction,
	}
}

func statsSessionsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	rd, err := openReader(c)
	if err != nil {
		return err
	}

	stats, err := rd.StatsSessions(c.Context, sessionFilter(c))
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to aggregate sessions: %v", err), exitConfig)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStatsSessions, stats)
	}
	return r.Render(stats)
}
