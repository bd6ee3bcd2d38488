package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pluginmarket/maintainer/internal/stale"
)

var closeStaleCmd = &cli.Command{
	Name:  "close-stale",
	Usage: "Close inactive pull requests whose checks are failing",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "report what would be closed without closing it (default: $DRY_RUN)",
		},
		&cli.IntFlag{
			Name:  "inactivity-days",
			Usage: "days without updates before a pull request is stale (default: $INACTIVITY_DAYS)",
		},
	},
	Action: closeStaleCommand,
}

func closeStaleCommand(ctx context.Context, cmd *cli.Command) error {
	dryRun := cfg.DryRun
	if cmd.IsSet("dry-run") {
		dryRun = cmd.Bool("dry-run")
	}
	days := cfg.InactivityDays
	if cmd.IsSet("inactivity-days") {
		days = int(cmd.Int("inactivity-days"))
	}

	return instrument(ctx, "close-stale", func(ctx context.Context) error {
		owner, repo, err := cfg.OwnerRepo()
		if err != nil {
			return err
		}
		client, err := githubClient()
		if err != nil {
			return err
		}

		sum, err := stale.New(stale.Config{
			API:            client,
			Owner:          owner,
			Repo:           repo,
			InactivityDays: days,
			DryRun:         dryRun,
			Comment:        cfg.CloseComment,
			Logger:         logger,
		}).Run(ctx)
		if err != nil {
			return err
		}
		fmt.Println(sum)
		return nil
	}, attribute.Bool("dry_run", dryRun), attribute.Int("inactivity_days", days))
}
