package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/cinebridge/cli/reader"
	"github.com/pithecene-io/cinebridge/cli/render"
	"github.com/pithecene-io/cinebridge/cli/tui"
	"github.com/pithecene-io/cinebridge/iox"
	"github.com/pithecene-io/cinebridge/protocol"
)

// InspectCommand returns the inspect command with subcommands.
// Inspect returns a deep view of a single entity.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect a single entity (manifest)",
		Subcommands: []*cli.Command{
			inspectManifestCommand(),
		},
	}
}

func inspectManifestCommand() *cli.Command {
	flags := append(ReadOnlyFlags(),
		&cli.StringFlag{
			Name:  "file",
			Usage: "Inspect a local manifest file instead of a URL",
		},
		&cli.StringFlag{
			Name:  "session-id",
			Usage: "Session ID used for logs and sticky proxies (default: random UUID)",
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "Log resolver activity to stderr",
		},
	)
	flags = append(flags, KeyFlags()...)
	flags = append(flags, ResolverFlags()...)

	return &cli.Command{
		Name:      "manifest",
		Usage:     "Resolve a manifest and describe it (never prints content)",
		ArgsUsage: "<url>",
		Flags:     flags,
		Action:    inspectManifestAction,
	}
}

func inspectManifestAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	report, err := loadManifestReport(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewInspectManifest, report)
	}
	return r.Render(report)
}

func loadManifestReport(c *cli.Context) (*reader.ManifestReport, error) {
	if path := c.String("file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, cli.Exit(fmt.Sprintf("read manifest: %v", err), exitConfig)
		}
		report, err := reader.NewManifestReport(path, false, string(data), 0)
		if err != nil {
			return nil, exitFor(err)
		}
		return report, nil
	}

	if c.NArg() < 1 {
		return nil, cli.Exit("url or --file required", exitConfig)
	}
	rawURL := c.Args().First()

	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	rc, err := buildResolverChoice(c, cfg)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	encrypted := protocol.IsEncryptedWithSuffix(rawURL, rc.suffix)
	var content string
	if encrypted {
		req, err := buildResolveRequest(c, cfg)
		if err != nil {
			return nil, err
		}
		content, err = resolveManifest(c.Context, cfg, req)
		if err != nil {
			return nil, exitFor(err)
		}
	} else {
		content, err = fetchPlain(c.Context, rawURL, rc)
		if err != nil {
			return nil, exitFor(err)
		}
	}

	report, err := reader.NewManifestReport(rawURL, encrypted, content, time.Since(start))
	if err != nil {
		return nil, exitFor(err)
	}
	return report, nil
}

// fetchPlain downloads an unencrypted playlist. Errors are classified
// like envelope fetches so exit codes match.
func fetchPlain(ctx context.Context, rawURL string, rc resolverChoice) (string, error) {
	if rc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rc.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &protocol.TransportError{Err: err}
	}
	for k, v := range rc.headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", &protocol.TransportError{Err: err}
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &protocol.TransportError{StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, protocol.MaxEnvelopeSize))
	if err != nil {
		return "", &protocol.TransportError{Err: err}
	}
	return string(body), nil
}
