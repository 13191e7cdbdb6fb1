package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/cinebridge/protocol"
)

// SealCommand returns the seal command.
// It encrypts a playlist file into the JSON envelope served for encrypted
// manifest URLs.
func SealCommand() *cli.Command {
	flags := []cli.Flag{
		ConfigFlag,
		&cli.StringFlag{
			Name:    "out",
			Aliases: []string{"o"},
			Usage:   "Write the envelope to this file instead of stdout",
		},
	}
	flags = append(flags, KeyFlags()...)

	return &cli.Command{
		Name:      "seal",
		Usage:     "Encrypt a manifest into an envelope",
		ArgsUsage: "<manifest-file>",
		Flags:     flags,
		Action:    sealAction,
	}
}

func sealAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("manifest file required", exitConfig)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	km, err := buildKeyMaterial(c, cfg)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(c.Args().First())
	if err != nil {
		return cli.Exit(fmt.Sprintf("read manifest: %v", err), exitConfig)
	}
	content := string(data)
	if err := protocol.ValidateManifest(content); err != nil {
		return exitFor(err)
	}

	env, err := protocol.SealEnvelope(content, km)
	if err != nil {
		return exitFor(err)
	}
	body, err := json.Marshal(env)
	if err != nil {
		return cli.Exit(fmt.Sprintf("encode envelope: %v", err), exitConfig)
	}
	body = append(body, '\n')

	if out := c.String("out"); out != "" {
		if err := os.WriteFile(out, body, 0o644); err != nil {
			return cli.Exit(fmt.Sprintf("write envelope: %v", err), exitConfig)
		}
		return nil
	}
	_, err = c.App.Writer.Write(body)
	return err
}
