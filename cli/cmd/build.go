package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/cinebridge/adapter"
	"github.com/pithecene-io/cinebridge/adapter/redis"
	"github.com/pithecene-io/cinebridge/adapter/webhook"
	"github.com/pithecene-io/cinebridge/cli/config"
	"github.com/pithecene-io/cinebridge/cli/reader"
	"github.com/pithecene-io/cinebridge/lode"
	"github.com/pithecene-io/cinebridge/metrics"
	"github.com/pithecene-io/cinebridge/policy"
	"github.com/pithecene-io/cinebridge/protocol"
	"github.com/pithecene-io/cinebridge/proxy"
	"github.com/pithecene-io/cinebridge/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitConfig    = 1
	exitTransport = 2
	exitProtocol  = 3
	exitFormat    = 4
	exitCrypto    = 5
)

// exitCodeFor maps a pipeline error to its exit code.
func exitCodeFor(err error) int {
	switch protocol.Kind(err) {
	case protocol.KindTransport:
		return exitTransport
	case protocol.KindProtocol:
		return exitProtocol
	case protocol.KindFormat:
		return exitFormat
	case protocol.KindCrypto:
		return exitCrypto
	default:
		return exitConfig
	}
}

// exitFor wraps err as a cli.ExitCoder with the pipeline exit code.
func exitFor(err error) error {
	if err == nil {
		return nil
	}
	return cli.Exit(err.Error(), exitCodeFor(err))
}

// buildKeyMaterial resolves key material from flags, falling back to the
// config's key section.
func buildKeyMaterial(c *cli.Context, cfg *config.Config) (types.KeyMaterial, error) {
	kc := cfg.Key
	if c.IsSet("key") || c.IsSet("nonce") || c.IsSet("secret") {
		kc = config.KeyConfig{
			Key:           c.String("key"),
			Nonce:         c.String("nonce"),
			Encoding:      c.String("key-encoding"),
			Secret:        c.String("secret"),
			Salt:          c.String("salt"),
			Info:          c.String("info"),
			TagLengthBits: cfg.Key.TagLengthBits,
		}
	} else if c.IsSet("key-encoding") {
		kc.Encoding = c.String("key-encoding")
	}

	km, err := kc.KeyMaterial()
	if err != nil {
		return types.KeyMaterial{}, cli.Exit(fmt.Sprintf("invalid key material: %v", err), exitConfig)
	}
	return km, nil
}

// resolverChoice holds merged envelope fetch settings.
type resolverChoice struct {
	suffix    string
	timeout   time.Duration
	headers   map[string]string
	proxyPool string
}

func buildResolverChoice(c *cli.Context, cfg *config.Config) (resolverChoice, error) {
	headers, err := parseHeaders(cfg.Resolver.Headers, c.StringSlice("header"))
	if err != nil {
		return resolverChoice{}, cli.Exit(err.Error(), exitConfig)
	}
	timeout := cfg.Resolver.Timeout.Duration
	if c.IsSet("timeout") {
		timeout = c.Duration("timeout")
	}
	suffix := stringOr(c, "suffix", cfg.Resolver.Suffix)
	if suffix == "" {
		suffix = protocol.DefaultSuffix
	}
	return resolverChoice{
		suffix:    suffix,
		timeout:   timeout,
		headers:   headers,
		proxyPool: stringOr(c, "proxy-pool", cfg.Proxy.Pool),
	}, nil
}

// buildProxies registers the config's proxy pools. It returns a nil
// selector when pool is empty. The selector is per invocation; rotation
// and sticky state do not persist across runs.
func buildProxies(cfg *config.Config, pool string) (*proxy.Selector, error) {
	if pool == "" {
		return nil, nil
	}
	pools := cfg.ProxyPools()
	if len(pools) == 0 {
		return nil, cli.Exit(fmt.Sprintf("proxy pool %q requested but no proxies are configured", pool), exitConfig)
	}

	selector := proxy.NewSelector(func(msg string) {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", msg)
	})
	found := false
	for i := range pools {
		if err := selector.RegisterPool(&pools[i]); err != nil {
			return nil, cli.Exit(fmt.Sprintf("failed to register pool %q: %v", pools[i].Name, err), exitConfig)
		}
		found = found || pools[i].Name == pool
	}
	if !found {
		return nil, cli.Exit(fmt.Sprintf("unknown proxy pool %q", pool), exitConfig)
	}
	return selector, nil
}

// adapterChoice holds merged adapter settings.
type adapterChoice struct {
	kind         string
	url          string
	channel      string
	stream       string
	streamMaxLen int64
	secret       string
	headers      map[string]string
	timeout      time.Duration
	retries      int
}

func buildAdapterChoice(c *cli.Context, cfg *config.Config) adapterChoice {
	ac := cfg.Adapter
	choice := adapterChoice{
		kind:         stringOr(c, "adapter", ac.Type),
		url:          stringOr(c, "adapter-url", ac.URL),
		channel:      stringOr(c, "adapter-channel", ac.Channel),
		stream:       stringOr(c, "adapter-stream", ac.Stream),
		streamMaxLen: ac.StreamMaxLen,
		secret:       ac.Secret,
		headers:      ac.Headers,
		timeout:      ac.Timeout.Duration,
		retries:      3,
	}
	if ac.Retries != nil {
		choice.retries = *ac.Retries
	}
	if c.IsSet("adapter-retries") {
		choice.retries = c.Int("adapter-retries")
	}
	return choice
}

// buildAdapter creates the outcome adapter, or nil when none is configured.
func buildAdapter(choice adapterChoice) (adapter.Adapter, error) {
	switch choice.kind {
	case "", "none":
		return nil, nil
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     choice.url,
			Headers: choice.headers,
			Secret:  choice.secret,
			Timeout: choice.timeout,
			Retries: choice.retries,
		})
	case "redis":
		return redis.New(redis.Config{
			URL:          choice.url,
			Channel:      choice.channel,
			Stream:       choice.stream,
			StreamMaxLen: choice.streamMaxLen,
			Timeout:      choice.timeout,
			Retries:      choice.retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter %q (must be webhook or redis)", choice.kind)
	}
}

// storageOptions merges storage flags with the config's storage section.
func storageOptions(c *cli.Context, cfg *config.Config) reader.StorageOptions {
	sc := cfg.Storage
	return reader.StorageOptions{
		Dataset:     stringOr(c, "storage-dataset", sc.Dataset),
		Backend:     stringOr(c, "storage-backend", sc.Backend),
		Path:        stringOr(c, "storage-path", sc.Path),
		Region:      stringOr(c, "storage-region", sc.Region),
		Endpoint:    stringOr(c, "storage-endpoint", sc.Endpoint),
		S3PathStyle: boolOr(c, "storage-s3-path-style", sc.S3PathStyle),
	}
}

// policyChoice holds parsed audit policy configuration.
type policyChoice struct {
	name          string
	bufferRecords int
}

func buildPolicyChoice(c *cli.Context, cfg *config.Config) policyChoice {
	choice := policyChoice{
		name:          stringOr(c, "policy", cfg.Policy.Name),
		bufferRecords: cfg.Policy.BufferRecords,
	}
	if c.IsSet("buffer-records") {
		choice.bufferRecords = c.Int("buffer-records")
	}
	return choice
}

func validatePolicyConfig(choice policyChoice) error {
	switch choice.name {
	case "", "strict", "noop":
		return nil
	case "buffered":
		if choice.bufferRecords < 0 {
			return errors.New("buffered policy requires --buffer-records >= 0")
		}
		return nil
	default:
		return fmt.Errorf("invalid policy %q (must be strict, buffered or noop)", choice.name)
	}
}

// backendLabel names the audit backend for metrics. Empty means no audit.
func backendLabel(choice policyChoice, opts reader.StorageOptions) string {
	if opts.Path == "" || choice.name == "noop" {
		return ""
	}
	if opts.Backend == "" {
		return "fs"
	}
	return opts.Backend
}

// buildAudit creates the audit policy. Without a storage path audit is a
// no-op.
func buildAudit(ctx context.Context, choice policyChoice, opts reader.StorageOptions, collector *metrics.Collector) (policy.Policy, error) {
	if err := validatePolicyConfig(choice); err != nil {
		return nil, err
	}
	if backendLabel(choice, opts) == "" {
		return policy.NewNoopPolicy(), nil
	}

	sink, err := buildLodeSink(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create Lode sink: %w", err)
	}
	instrumented := lode.NewInstrumentedSink(sink, collector)

	switch choice.name {
	case "", "strict":
		return policy.NewStrictPolicy(instrumented), nil
	case "buffered":
		bc := policy.DefaultBufferedConfig()
		if choice.bufferRecords > 0 {
			bc.MaxRecords = choice.bufferRecords
		}
		pol, err := policy.NewBufferedPolicy(instrumented, bc)
		if err != nil {
			return nil, err
		}
		return pol, nil
	default:
		return nil, fmt.Errorf("unknown policy: %s", choice.name)
	}
}

// buildLodeSink creates a Lode sink for the configured backend.
func buildLodeSink(ctx context.Context, opts reader.StorageOptions) (policy.Sink, error) {
	cfg := lode.Config{Dataset: opts.Dataset, Source: "cli"}

	var (
		client *lode.LodeClient
		err    error
	)
	switch opts.Backend {
	case "", "fs":
		client, err = lode.NewLodeClient(cfg, opts.Path)
	case "s3":
		bucket, prefix := lode.ParseS3Path(opts.Path)
		client, err = lode.NewLodeS3Client(ctx, cfg, lode.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       opts.Region,
			Endpoint:     opts.Endpoint,
			UsePathStyle: opts.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (must be fs or s3)", opts.Backend)
	}
	if err != nil {
		return nil, err
	}
	return lode.NewSink(client), nil
}
