package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/cinebridge/cli/config"
	"github.com/pithecene-io/cinebridge/cli/render"
	"github.com/pithecene-io/cinebridge/engine/headless"
	"github.com/pithecene-io/cinebridge/log"
	"github.com/pithecene-io/cinebridge/loop"
	"github.com/pithecene-io/cinebridge/metrics"
	"github.com/pithecene-io/cinebridge/policy"
	"github.com/pithecene-io/cinebridge/session"
	"github.com/pithecene-io/cinebridge/types"
)

// defaultPlayWait bounds how long play waits for the engine to parse.
const defaultPlayWait = 30 * time.Second

// headlessContainer is the container reference for the headless player.
const headlessContainer = "headless"

// PlayCommand returns the play command.
// It runs one full session on the headless engine: resolve, hand-off,
// parse, outcome publish and audit.
func PlayCommand() *cli.Command {
	flags := []cli.Flag{
		ConfigFlag,
		FormatFlag,
		NoColorFlag,
		&cli.StringFlag{
			Name:  "session-id",
			Usage: "Session ID (default: random UUID)",
		},
		&cli.BoolFlag{
			Name:  "autoplay",
			Usage: "Start playback once the manifest is parsed",
		},
		&cli.DurationFlag{
			Name:  "wait",
			Usage: "How long to wait for the manifest to parse",
			Value: defaultPlayWait,
		},
		&cli.DurationFlag{
			Name:  "loader-timeout",
			Usage: "Engine manifest load timeout (0 = none)",
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "Log session activity to stderr",
		},
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "Outcome adapter: webhook, redis or none",
		},
		&cli.StringFlag{Name: "adapter-url", Usage: "Webhook URL or redis URL"},
		&cli.StringFlag{Name: "adapter-channel", Usage: "Redis pub/sub channel"},
		&cli.StringFlag{Name: "adapter-stream", Usage: "Redis stream (instead of pub/sub)"},
		&cli.IntFlag{Name: "adapter-retries", Usage: "Publish retries (default: 3)"},
		&cli.StringFlag{
			Name:  "policy",
			Usage: "Audit policy: strict, buffered or noop",
		},
		&cli.IntFlag{
			Name:  "buffer-records",
			Usage: "Buffered policy capacity (default: 64)",
		},
	}
	flags = append(flags, KeyFlags()...)
	flags = append(flags, ResolverFlags()...)
	flags = append(flags, StorageFlags()...)

	return &cli.Command{
		Name:      "play",
		Usage:     "Run one headless playback session",
		ArgsUsage: "<url>",
		Flags:     flags,
		Action:    playAction,
	}
}

// PlayResult is the summary printed when play ends.
type PlayResult struct {
	SessionID string           `json:"session_id" yaml:"session_id"`
	State     string           `json:"state" yaml:"state"`
	Mode      string           `json:"mode" yaml:"mode"`
	Duration  float64          `json:"duration" yaml:"duration"`
	Error     string           `json:"error,omitempty" yaml:"error,omitempty"`
	Metrics   metrics.Snapshot `json:"metrics" yaml:"metrics"`
	Audit     policy.Stats     `json:"audit" yaml:"audit"`
}

func playAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("url required", exitConfig)
	}
	rawURL := c.Args().First()

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	km, err := buildKeyMaterial(c, cfg)
	if err != nil {
		return err
	}
	rc, err := buildResolverChoice(c, cfg)
	if err != nil {
		return err
	}
	selector, err := buildProxies(cfg, rc.proxyPool)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionID := c.String("session-id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	pc := buildPolicyChoice(c, cfg)
	storage := storageOptions(c, cfg)
	collector := metrics.NewCollector(sessionID, backendLabel(pc, storage))

	audit, err := buildAudit(ctx, pc, storage, collector)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	defer func() { _ = audit.Close() }()

	pub, err := buildAdapter(buildAdapterChoice(c, cfg))
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	if pub != nil {
		defer func() { _ = pub.Close() }()
	}

	logger := log.Nop()
	if c.Bool("verbose") {
		logger = log.NewLogger(&types.SessionMeta{SessionID: sessionID, URL: types.RedactURL(rawURL)}).WithOutput(c.App.ErrWriter)
	}

	l := loop.New()
	defer func() { _ = l.Close() }()
	loaderTimeout := playLoaderTimeout(c, cfg)

	s, err := session.New(session.Options{
		EngineFactory:   headless.NewFactory(l),
		PlayerFactory:   headless.NewPlayerFactory(l, headless.WithLoadTimeout(loaderTimeout)),
		KeyMaterial:     km,
		Scheduler:       l,
		Suffix:          rc.suffix,
		Placeholder:     cfg.Resolver.Placeholder,
		ResolverTimeout: rc.timeout,
		LoaderTimeout:   loaderTimeout,
		Headers:         rc.headers,
		Proxies:         selector,
		ProxyPool:       rc.proxyPool,
		Autoplay:        boolOr(c, "autoplay", cfg.Player.Autoplay),
		Adapter:         pub,
		Audit:           audit,
		Logger:          logger,
		Collector:       collector,
		SessionID:       sessionID,
	})
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	runErr := s.Init(ctx, headlessContainer, rawURL)
	if runErr == nil {
		runErr = waitForDuration(ctx, s, c.Duration("wait"))
	}

	result := PlayResult{
		SessionID: s.ID(),
		State:     string(s.State()),
		Mode:      string(s.Mode()),
		Duration:  s.Duration(),
	}
	if runErr != nil {
		result.Error = runErr.Error()
	}

	if err := s.Destroy(); err != nil {
		logger.Warn("destroy failed", map[string]any{"error": err.Error()})
	}
	result.Metrics = collector.Snapshot()
	result.Audit = audit.Stats()

	if err := r.Render(&result); err != nil {
		return err
	}
	return exitFor(runErr)
}

// playLoaderTimeout merges --loader-timeout with player.loader_timeout.
func playLoaderTimeout(c *cli.Context, cfg *config.Config) time.Duration {
	if c.IsSet("loader-timeout") {
		return c.Duration("loader-timeout")
	}
	return cfg.Player.LoaderTimeout.Duration
}

// Playback wait errors.
var (
	errParseTimeout  = errors.New("manifest was not parsed before --wait elapsed")
	errSessionFailed = errors.New("session failed during playback")
)

// waitForDuration polls until the engine reports a media duration. A
// canceled ctx is not an error: the user stopped the session.
func waitForDuration(ctx context.Context, s *session.Session, wait time.Duration) error {
	if wait <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if s.Duration() > 0 {
			return nil
		}
		if s.State() == session.StateFailed {
			return errSessionFailed
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return errParseTimeout
			}
			return nil
		case <-ticker.C:
		}
	}
}
