package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/pluginmarket/maintainer/internal/index"
	"github.com/pluginmarket/maintainer/internal/stars"
)

func updatesPathFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "updates-path",
		Usage: "intermediate star updates file (default: $STARS_UPDATES_PATH)",
	}
}

var starsCmd = &cli.Command{
	Name:  "stars",
	Usage: "Refresh GitHub star counts in the index",
	Commands: []*cli.Command{
		{
			Name:   "scan",
			Usage:  "Look up star counts and write them to the updates file",
			Flags:  []cli.Flag{updatesPathFlag()},
			Action: starsScanCommand,
		},
		{
			Name:   "apply",
			Usage:  "Copy star counts from the updates file into the index",
			Flags:  []cli.Flag{updatesPathFlag()},
			Action: starsApplyCommand,
		},
	},
}

func updatesPath(cmd *cli.Command) string {
	if cmd.IsSet("updates-path") {
		return cmd.String("updates-path")
	}
	return cfg.StarsUpdatesPath
}

func starsScanCommand(ctx context.Context, cmd *cli.Command) error {
	p := updatesPath(cmd)

	return instrument(ctx, "stars-scan", func(ctx context.Context) error {
		client, err := githubClient()
		if err != nil {
			return err
		}
		idx, err := index.Load(index.Config{Path: cfg.IndexPath, Logger: logger})
		if err != nil {
			return err
		}

		updates, err := stars.New(stars.Config{
			API:       client,
			ChunkSize: cfg.StarsChunkSize,
			Logger:    logger,
		}).Scan(ctx, idx)
		if err != nil {
			return err
		}
		if err := stars.WriteUpdates(p, updates); err != nil {
			return err
		}

		fmt.Printf("Wrote %d star updates to %s\n", len(updates), p)
		return nil
	})
}

func starsApplyCommand(ctx context.Context, cmd *cli.Command) error {
	p := updatesPath(cmd)

	return instrument(ctx, "stars-apply", func(ctx context.Context) error {
		idx, err := index.Load(index.Config{Path: cfg.IndexPath, Logger: logger})
		if err != nil {
			return err
		}

		applied, err := stars.New(stars.Config{Logger: logger}).Apply(idx, p)
		if err != nil {
			return err
		}
		if _, err := idx.Save(); err != nil {
			return err
		}

		fmt.Printf("Applied stars updates to %d plugins\n", applied)
		return nil
	})
}
