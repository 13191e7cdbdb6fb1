// Package cmd provides CLI commands for the cinebridge binary.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/cinebridge/cli/config"
)

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for inspect manifest and stats sessions.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (inspect, stats only)",
	}

	// ConfigFlag points at a cinebridge.yaml file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config file (default: ./" + config.DefaultPath + " if present)",
		EnvVars: []string{"CINEBRIDGE_CONFIG"},
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
		ConfigFlag,
	}
}

// KeyFlags returns the key material flags. They override the config's key
// section as a whole: setting --key or --secret ignores key.* from the file.
func KeyFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "key", Usage: "AES-128 key (16 bytes in --key-encoding)", EnvVars: []string{"CINEBRIDGE_KEY"}},
		&cli.StringFlag{Name: "nonce", Usage: "GCM nonce (12 bytes in --key-encoding)", EnvVars: []string{"CINEBRIDGE_NONCE"}},
		&cli.StringFlag{Name: "key-encoding", Usage: "Encoding of --key and --nonce: raw, hex, base64"},
		&cli.StringFlag{Name: "secret", Usage: "Derive key and nonce from this secret with HKDF-SHA256", EnvVars: []string{"CINEBRIDGE_SECRET"}},
		&cli.StringFlag{Name: "salt", Usage: "HKDF salt (with --secret)"},
		&cli.StringFlag{Name: "info", Usage: "HKDF info (with --secret)"},
	}
}

// StorageFlags returns the audit storage flags.
func StorageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "storage-dataset", Usage: "Lode dataset ID (default: \"cinebridge\")"},
		&cli.StringFlag{Name: "storage-backend", Usage: "Storage backend: fs or s3"},
		&cli.StringFlag{Name: "storage-path", Usage: "Storage path (fs: directory, s3: bucket/prefix)"},
		&cli.StringFlag{Name: "storage-region", Usage: "AWS region for S3 backend"},
		&cli.StringFlag{Name: "storage-endpoint", Usage: "Custom S3 endpoint (MinIO, R2)"},
		&cli.BoolFlag{Name: "storage-s3-path-style", Usage: "Force path-style S3 addressing"},
	}
}

// ResolverFlags returns the envelope fetch flags.
func ResolverFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "suffix", Usage: "Path suffix of encrypted manifests (default: .c3u8)"},
		&cli.DurationFlag{Name: "timeout", Usage: "Envelope fetch timeout (0 = none)"},
		&cli.StringSliceFlag{Name: "header", Aliases: []string{"H"}, Usage: "Request header \"Name: value\" (repeatable)"},
		&cli.StringFlag{Name: "proxy-pool", Usage: "Proxy pool (from config proxies) for the envelope fetch"},
	}
}

// loadConfig reads --config, or the default file when present.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadOptional(c.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), exitConfig)
	}
	return cfg, nil
}

// stringOr returns the flag value when set, else the config value, else
// the flag default.
func stringOr(c *cli.Context, name, cfgValue string) string {
	if c.IsSet(name) || cfgValue == "" {
		return c.String(name)
	}
	return cfgValue
}

// boolOr returns the flag value when set, else the config value.
func boolOr(c *cli.Context, name string, cfgValue bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return cfgValue || c.Bool(name)
}

// parseHeaders merges config headers with "Name: value" flag entries.
// Flags win on conflicts.
func parseHeaders(base map[string]string, entries []string) (map[string]string, error) {
	if len(base) == 0 && len(entries) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(base)+len(entries))
	for k, v := range base {
		headers[k] = v
	}
	for _, e := range entries {
		name, value, ok := strings.Cut(e, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q (want \"Name: value\")", e)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}

// isStderrTTY returns true if stderr is a terminal.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
