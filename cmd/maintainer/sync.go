package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pluginmarket/maintainer/internal/changeset"
	"github.com/pluginmarket/maintainer/internal/discussions"
	"github.com/pluginmarket/maintainer/internal/index"
	"github.com/pluginmarket/maintainer/internal/plugin"
	"github.com/pluginmarket/maintainer/internal/sync"
)

var syncCmd = &cli.Command{
	Name:  "sync",
	Usage: "Update the index and plugin discussions for pushed commits",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "tasks",
			Usage: "post-commit tasks to run (default: all)",
		},
		&cli.BoolFlag{
			Name:  "all",
			Usage: "process every plugin instead of the pushed range (default: $RUN_ALL)",
		},
		&cli.IntFlag{
			Name:  "max-plugins",
			Usage: "maximum number of plugins one run may touch (default: $MAX_PLUGINS)",
		},
		&cli.StringFlag{
			Name:  "before",
			Usage: "commit before the push (default: $BEFORE_SHA, then the push event)",
		},
		&cli.StringFlag{
			Name:  "after",
			Usage: "commit after the push (default: $AFTER_SHA, then the push event, then HEAD)",
		},
	},
	Action: syncCommand,
}

func syncCommand(ctx context.Context, cmd *cli.Command) error {
	tasks, err := sync.ParseTasks(cmd.StringSlice("tasks"))
	if err != nil {
		return err
	}

	r := changeset.Range{
		Before: cfg.BeforeSHA,
		After:  cfg.AfterSHA,
		All:    cfg.RunAll,
	}
	if cmd.IsSet("before") {
		r.Before = cmd.String("before")
	}
	if cmd.IsSet("after") {
		r.After = cmd.String("after")
	}
	if cmd.IsSet("all") {
		r.All = cmd.Bool("all")
	}
	maxPlugins := cfg.MaxPlugins
	if cmd.IsSet("max-plugins") {
		maxPlugins = int(cmd.Int("max-plugins"))
	}

	r, err = sync.ResolveRange(r, cfg.EventPath)
	if err != nil {
		return err
	}

	return instrument(ctx, "sync", func(ctx context.Context) error {
		owner, repo, err := cfg.OwnerRepo()
		if err != nil {
			return err
		}
		client, err := githubClient()
		if err != nil {
			return err
		}
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		if r.After, err = headOr(store, r.After); err != nil {
			return err
		}

		idx, err := index.Load(index.Config{Path: cfg.IndexPath, Logger: logger})
		if err != nil {
			return err
		}

		logger.Info("starting sync",
			"tasks", tasks,
			"before", r.Before,
			"after", r.After,
			"full", r.Full(),
			"index", cfg.IndexPath,
		)

		mgr := sync.NewManager(sync.Config{
			Source: store,
			Detector: changeset.New(changeset.Config{
				Source:     store,
				MaxPlugins: maxPlugins,
				Logger:     logger,
			}),
			Reader: plugin.NewReader(plugin.Config{Logger: logger}),
			Discussions: discussions.New(discussions.Config{
				API:           client,
				Owner:         owner,
				Repo:          repo,
				Branch:        store.Branch(),
				Category:      cfg.DiscussionCategory,
				TitleFallback: cfg.DiscussionTitleFallback,
				Logger:        logger,
			}),
			Index:  idx,
			Owner:  owner,
			Repo:   repo,
			Branch: store.Branch(),
			Logger: logger,
		})

		sum, err := mgr.RunTasks(ctx, tasks, r)
		if err != nil {
			return err
		}
		fmt.Println(sum)
		return nil
	}, attribute.Bool("full", r.Full()), attribute.Int("max_plugins", maxPlugins))
}
