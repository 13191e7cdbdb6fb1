package cmd

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/cinebridge/log"
	"github.com/pithecene-io/cinebridge/server"
)

// defaultServeAddr is used when neither --addr nor server.addr is set.
const defaultServeAddr = "127.0.0.1:8089"

// ServeCommand returns the serve command.
// It seals manifests from a directory on request, for development origins
// and integration tests.
func ServeCommand() *cli.Command {
	flags := []cli.Flag{
		ConfigFlag,
		&cli.StringFlag{
			Name:  "addr",
			Usage: "Listen address (default: " + defaultServeAddr + ")",
		},
		&cli.StringFlag{
			Name:  "root",
			Usage: "Directory of plaintext manifests",
		},
		&cli.StringFlag{
			Name:  "suffix",
			Usage: "Path suffix of encrypted manifests (default: .c3u8)",
		},
	}
	flags = append(flags, KeyFlags()...)

	return &cli.Command{
		Name:   "serve",
		Usage:  "Serve sealed envelopes for a manifest directory",
		Flags:  flags,
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	km, err := buildKeyMaterial(c, cfg)
	if err != nil {
		return err
	}

	root := stringOr(c, "root", cfg.Server.Root)
	if root == "" {
		return cli.Exit("--root (or server.root) is required", exitConfig)
	}
	addr := stringOr(c, "addr", cfg.Server.Addr)
	if addr == "" {
		addr = defaultServeAddr
	}

	logger := log.NewLogger(nil).WithOutput(c.App.ErrWriter)
	defer func() { _ = logger.Sync() }()

	srv, err := server.NewDir(root, server.Config{
		KeyMaterial: km,
		Suffix:      stringOr(c, "suffix", cfg.Resolver.Suffix),
		Logger:      logger,
	})
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = srv.ListenAndServe(ctx, addr, func(a net.Addr) {
		fmt.Fprintf(c.App.ErrWriter, "serving %s on http://%s\n", root, a)
	})
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	return nil
}
