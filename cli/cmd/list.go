package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/cinebridge/cli/reader"
	"github.com/pithecene-io/cinebridge/cli/render"
)

// listWarningThreshold is the number of items above which we warn about using --limit.
const listWarningThreshold = 100

// ListCommand returns the list command with subcommands.
// List returns thin slices, not inspect-level detail.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List entities (sessions, pools)",
		Subcommands: []*cli.Command{
			listSessionsCommand(),
			listPoolsCommand(),
		},
	}
}

// SessionFilterFlags returns the audit query filters shared by list and stats.
func SessionFilterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "session",
			Usage: "Filter by session ID",
		},
		&cli.StringFlag{
			Name:  "outcome",
			Usage: "Filter by outcome: ready, resolve_failed, failed, destroyed",
		},
		&cli.StringFlag{
			Name:  "day",
			Usage: "Filter by partition day (YYYY-MM-DD)",
		},
	}
}

func listSessionsCommand() *cli.Command {
	flags := append(ReadOnlyFlags(), SessionFilterFlags()...)
	flags = append(flags, StorageFlags()...)
	flags = append(flags, &cli.IntFlag{
		Name:  "limit",
		Usage: "Maximum number of records to return (0 = no limit)",
		Value: 0,
	})

	return &cli.Command{
		Name:   "sessions",
		Usage:  "List session audit records",
		Flags:  flags,
		Action: listSessionsAction,
	}
}

func listSessionsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	// TUI not supported for list commands
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for list commands", exitConfig)
	}

	rd, err := openReader(c)
	if err != nil {
		return err
	}

	opts := sessionFilter(c)
	opts.Limit = c.Int("limit")

	results, err := rd.ListSessions(c.Context, opts)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to list sessions: %v", err), exitConfig)
	}

	// Warn if output is large and --limit was not specified (TTY only to avoid noise in pipelines)
	if len(results) > listWarningThreshold && opts.Limit == 0 && isStderrTTY() {
		fmt.Fprintf(os.Stderr, "Warning: returning %d results. Consider using --limit to reduce output.\n\n", len(results))
	}

	return r.Render(results)
}

func listPoolsCommand() *cli.Command {
	return &cli.Command{
		Name:   "pools",
		Usage:  "List proxy pools from the config file",
		Flags:  ReadOnlyFlags(),
		Action: listPoolsAction,
	}
}

func listPoolsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for list commands", exitConfig)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	return r.Render(reader.NewPoolRows(cfg.ProxyPools()))
}

// sessionFilter reads the shared audit query filters.
func sessionFilter(c *cli.Context) reader.ListSessionsOptions {
	return reader.ListSessionsOptions{
		SessionID: c.String("session"),
		Outcome:   c.String("outcome"),
		Day:       c.String("day"),
	}
}

// openReader opens the audit dataset named by storage flags and config.
func openReader(c *cli.Context) (reader.Reader, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	rd, err := reader.Open(c.Context, storageOptions(c, cfg))
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("failed to open audit dataset: %v", err), exitConfig)
	}
	return rd, nil
}
