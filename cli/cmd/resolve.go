package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/cinebridge/cli/config"
	"github.com/pithecene-io/cinebridge/ipc"
	"github.com/pithecene-io/cinebridge/log"
	"github.com/pithecene-io/cinebridge/metrics"
	"github.com/pithecene-io/cinebridge/protocol"
	"github.com/pithecene-io/cinebridge/slot"
	"github.com/pithecene-io/cinebridge/types"
)

// ResolveCommand returns the resolve command.
// It fetches one envelope, opens it and writes the manifest to stdout,
// either raw or as a length-prefixed msgpack frame. With --exec the frame
// goes to an out-of-process engine instead.
func ResolveCommand() *cli.Command {
	flags := []cli.Flag{
		ConfigFlag,
		&cli.BoolFlag{
			Name:  "frame",
			Usage: "Write an ipc frame (manifest or resolve_error) instead of the raw manifest",
		},
		&cli.StringFlag{
			Name:  "exec",
			Usage: "Hand the ipc frame to this engine binary on its stdin",
		},
		&cli.StringSliceFlag{
			Name:  "exec-arg",
			Usage: "Argument for the --exec binary (repeatable)",
		},
		&cli.StringFlag{
			Name:  "session-id",
			Usage: "Session ID carried in frames and logs (default: random UUID)",
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "Log resolver activity to stderr",
		},
	}
	flags = append(flags, KeyFlags()...)
	flags = append(flags, ResolverFlags()...)

	return &cli.Command{
		Name:      "resolve",
		Usage:     "Fetch and decrypt an encrypted manifest",
		ArgsUsage: "<url>",
		Flags:     flags,
		Action:    resolveAction,
	}
}

// resolveRequest is a fully merged resolve invocation.
type resolveRequest struct {
	url       string
	sessionID string
	km        types.KeyMaterial
	resolver  resolverChoice
	logger    *log.Logger
}

func resolveAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("url required", exitConfig)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	req, err := buildResolveRequest(c, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	content, resolveErr := resolveManifest(ctx, cfg, req)

	out := c.App.Writer
	var frame any
	if resolveErr != nil {
		frame = ipc.NewResolveErrorFrame(req.sessionID, req.url, resolveErr)
	} else {
		frame = ipc.NewManifestFrame(req.sessionID, req.url, content)
	}

	if path := c.String("exec"); path != "" {
		if err := handoff(ctx, path, c.StringSlice("exec-arg"), out, frame); err != nil {
			return err
		}
		return exitFor(resolveErr)
	}

	if c.Bool("frame") {
		if err := ipc.NewFrameEncoder(out).WriteFrame(frame); err != nil {
			return cli.Exit(fmt.Sprintf("write frame: %v", err), exitConfig)
		}
		return exitFor(resolveErr)
	}

	if resolveErr != nil {
		return exitFor(resolveErr)
	}
	_, err = io.WriteString(out, content)
	return err
}

func buildResolveRequest(c *cli.Context, cfg *config.Config) (resolveRequest, error) {
	rawURL := c.Args().First()
	km, err := buildKeyMaterial(c, cfg)
	if err != nil {
		return resolveRequest{}, err
	}
	rc, err := buildResolverChoice(c, cfg)
	if err != nil {
		return resolveRequest{}, err
	}

	sessionID := c.String("session-id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	meta := &types.SessionMeta{SessionID: sessionID, URL: types.RedactURL(rawURL), Encrypted: true}

	logger := log.Nop()
	if c.Bool("verbose") {
		logger = log.NewLogger(meta).WithOutput(c.App.ErrWriter)
	}

	return resolveRequest{
		url:       rawURL,
		sessionID: sessionID,
		km:        km,
		resolver:  rc,
		logger:    logger,
	}, nil
}

// resolveManifest runs one resolve outside a session.
func resolveManifest(ctx context.Context, cfg *config.Config, req resolveRequest) (string, error) {
	selector, err := buildProxies(cfg, req.resolver.proxyPool)
	if err != nil {
		return "", err
	}

	r, err := protocol.NewResolver(protocol.Config{
		KeyMaterial: req.km,
		Slot:        slot.New(),
		Suffix:      req.resolver.suffix,
		Timeout:     req.resolver.timeout,
		Headers:     req.resolver.headers,
		Proxies:     selector,
		ProxyPool:   req.resolver.proxyPool,
		SessionID:   req.sessionID,
		Collector:   metrics.NewCollector(req.sessionID, ""),
		Logger:      req.logger,
	})
	if err != nil {
		return "", err
	}
	defer func() { _ = r.Close() }()

	if !r.IsEncrypted(req.url) {
		return "", cli.Exit(fmt.Sprintf("%s is not an encrypted manifest URL", types.RedactURL(req.url)), exitConfig)
	}
	return r.Resolve(ctx, req.url)
}

// handoff runs an engine process and sends it one frame.
func handoff(ctx context.Context, path string, args []string, out io.Writer, frame any) error {
	p := ipc.NewProcess(&ipc.ProcessConfig{Path: path, Args: args, Stdout: out})
	if err := p.Start(ctx); err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	if err := p.Send(frame); err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	result, err := p.Wait()
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	if result.ExitCode != 0 {
		msg := fmt.Sprintf("engine exited with code %d", result.ExitCode)
		if stderr := strings.TrimSpace(string(result.Stderr)); stderr != "" {
			msg += ": " + stderr
		}
		return cli.Exit(msg, exitConfig)
	}
	return nil
}
