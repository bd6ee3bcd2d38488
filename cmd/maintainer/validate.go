package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pluginmarket/maintainer/internal/domain"
	"github.com/pluginmarket/maintainer/internal/plugin"
	"github.com/pluginmarket/maintainer/internal/prcheck"
)

var validatePRCmd = &cli.Command{
	Name:  "validate-pr",
	Usage: "Validate the plugin folder a pull request adds or changes",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "base",
			Usage: "base commit of the pull request (default: $BASE_SHA)",
		},
		&cli.StringFlag{
			Name:  "head",
			Usage: "head commit of the pull request (default: $HEAD_SHA, then HEAD)",
		},
		&cli.BoolFlag{
			Name:  "verify-github",
			Usage: "check that the declared GitHub repository carries its own plugin.yaml",
		},
	},
	Action: validatePRCommand,
}

func validatePRCommand(ctx context.Context, cmd *cli.Command) error {
	base := cfg.BaseSHA
	if cmd.IsSet("base") {
		base = cmd.String("base")
	}
	head := cfg.HeadSHA
	if cmd.IsSet("head") {
		head = cmd.String("head")
	}
	if base == "" {
		return fmt.Errorf("BASE_SHA is required: %w", domain.ErrConfiguration)
	}

	return instrument(ctx, "validate-pr", func(ctx context.Context) error {
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		if head, err = headOr(store, head); err != nil {
			return err
		}

		readerCfg := plugin.Config{Logger: logger}
		if cmd.Bool("verify-github") {
			client, err := githubClient()
			if err != nil {
				return err
			}
			readerCfg.Checker = client
		}

		v := prcheck.New(prcheck.Config{
			Source: store,
			Reader: plugin.NewReader(readerCfg),
			Logger: logger,
		})
		name, err := v.Validate(ctx, base, head)
		if err != nil {
			return err
		}

		fmt.Printf("Validation passed for plugins/%s\n", name)
		return nil
	}, attribute.String("base", base), attribute.String("head", head))
}
