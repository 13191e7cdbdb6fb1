package cmd

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/cinebridge/cli/reader"
	"github.com/pithecene-io/cinebridge/cli/render"
	"github.com/pithecene-io/cinebridge/ipc"
	"github.com/pithecene-io/cinebridge/iox"
	"github.com/pithecene-io/cinebridge/proxy"
	"github.com/pithecene-io/cinebridge/types"
)

// DebugCommand returns the debug command with subcommands.
// Debug commands are opt-in diagnostic tools. They are read-only by
// default; any mutation must be explicitly requested.
func DebugCommand() *cli.Command {
	return &cli.Command{
		Name:  "debug",
		Usage: "Diagnostic tools (resolve proxy, ipc frames)",
		Subcommands: []*cli.Command{
			debugResolveProxyCommand(),
			debugFramesCommand(),
		},
	}
}

func debugResolveProxyCommand() *cli.Command {
	return &cli.Command{
		Name:      "resolve-proxy",
		Usage:     "Resolve a proxy endpoint from a configured pool",
		ArgsUsage: "<pool>",
		Flags: append(ReadOnlyFlags(),
			&cli.BoolFlag{
				Name:  "commit",
				Usage: "Commit the resolution (advance rotation counters)",
			},
			&cli.StringFlag{
				Name:  "strategy",
				Usage: "Strategy override: round_robin, random, or sticky",
			},
			&cli.StringFlag{
				Name:  "sticky-key",
				Usage: "Sticky key for proxy selection",
			},
			&cli.StringFlag{
				Name:  "url",
				Usage: "Target URL for domain and origin sticky scopes",
			},
			&cli.StringFlag{
				Name:  "session-id",
				Usage: "Session ID for session sticky scope",
			},
		),
		Action: debugResolveProxyAction,
	}
}

func debugResolveProxyAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("pool name required", exitConfig)
	}
	poolName := c.Args().First()
	commit := c.Bool("commit")

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	// TUI not supported for debug commands
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for debug commands", exitConfig)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	selector, err := buildProxies(cfg, poolName)
	if err != nil {
		return err
	}

	var target *url.URL
	if raw := c.String("url"); raw != "" {
		target, err = url.Parse(raw)
		if err != nil {
			return cli.Exit(fmt.Sprintf("invalid --url: %v", err), exitConfig)
		}
	}
	req := proxy.RequestFor(poolName, c.String("session-id"), target)
	req.StickyKey = c.String("sticky-key")
	req.Commit = commit

	if strategy := c.String("strategy"); strategy != "" {
		s := types.ProxyStrategy(strategy)
		req.StrategyOverride = &s
	}

	endpoint, err := selector.Select(req)
	if err != nil {
		return cli.Exit(fmt.Sprintf("proxy selection failed: %v", err), exitConfig)
	}

	return r.Render(&reader.ResolveProxyResponse{
		Pool: poolName,
		Endpoint: reader.ProxyEndpoint{
			Protocol: string(endpoint.Protocol),
			Host:     endpoint.Host,
			Port:     endpoint.Port,
			Username: endpoint.Username,
		},
		Committed: commit,
	})
}

func debugFramesCommand() *cli.Command {
	return &cli.Command{
		Name:      "frames",
		Usage:     "Decode an ipc frame stream (file or stdin) without printing manifest content",
		ArgsUsage: "[file]",
		Flags:     ReadOnlyFlags(),
		Action:    debugFramesAction,
	}
}

func debugFramesAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for debug commands", exitConfig)
	}

	var in io.Reader = os.Stdin
	if c.NArg() > 0 && c.Args().First() != "-" {
		f, err := os.Open(c.Args().First())
		if err != nil {
			return cli.Exit(fmt.Sprintf("open frame stream: %v", err), exitConfig)
		}
		defer iox.DiscardClose(f)
		in = f
	}

	rows, err := decodeFrames(in)
	if err != nil {
		return cli.Exit(err.Error(), exitProtocol)
	}
	return r.Render(rows)
}

// decodeFrames reads frames until EOF. A truncated or unknown frame stops
// the scan.
func decodeFrames(in io.Reader) ([]reader.FrameRow, error) {
	dec := ipc.NewFrameDecoder(in)
	rows := []reader.FrameRow{}
	for i := 0; ; i++ {
		payload, err := dec.ReadFrame()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return rows, fmt.Errorf("frame %d: %w", i, err)
		}

		frame, err := ipc.DecodeFrame(payload)
		if err != nil {
			return rows, fmt.Errorf("frame %d: %w", i, err)
		}
		switch f := frame.(type) {
		case *ipc.ManifestFrame:
			rows = append(rows, reader.FrameRow{
				Index:     i,
				Type:      f.Type,
				Version:   f.Version,
				SessionID: f.SessionID,
				URL:       f.URL,
				Bytes:     len(f.Data),
			})
		case *ipc.ResolveErrorFrame:
			rows = append(rows, reader.FrameRow{
				Index:     i,
				Type:      f.Type,
				Version:   f.Version,
				SessionID: f.SessionID,
				URL:       f.URL,
				Kind:      f.Kind,
				Message:   f.Message,
			})
		}
	}
}
