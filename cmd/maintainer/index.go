package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/pluginmarket/maintainer/internal/release"
)

var indexCmd = &cli.Command{
	Name:  "index",
	Usage: "Publish or fetch index.json as a release asset",
	Commands: []*cli.Command{
		{
			Name:   "publish",
			Usage:  "Upload the local index to the index release",
			Action: indexPublishCommand,
		},
		{
			Name:   "download",
			Usage:  "Fetch the index from the index release",
			Action: indexDownloadCommand,
		},
	},
}

func newReleaser() (*release.Releaser, error) {
	owner, repo, err := cfg.OwnerRepo()
	if err != nil {
		return nil, err
	}
	client, err := githubClient()
	if err != nil {
		return nil, err
	}
	return release.New(release.Config{
		API:       client,
		Owner:     owner,
		Repo:      repo,
		Tag:       cfg.ReleaseTag,
		Name:      cfg.ReleaseName,
		Target:    cfg.ReleaseTarget,
		AssetName: cfg.AssetName,
		Logger:    logger,
	}), nil
}

func indexPublishCommand(ctx context.Context, cmd *cli.Command) error {
	return instrument(ctx, "index-publish", func(ctx context.Context) error {
		r, err := newReleaser()
		if err != nil {
			return err
		}
		rel, err := r.Publish(ctx, cfg.IndexPath)
		if err != nil {
			return err
		}
		fmt.Printf("Release: %s\n", rel.HTMLURL)
		return nil
	})
}

func indexDownloadCommand(ctx context.Context, cmd *cli.Command) error {
	return instrument(ctx, "index-download", func(ctx context.Context) error {
		r, err := newReleaser()
		if err != nil {
			return err
		}
		if err := r.Download(ctx, cfg.IndexPath); err != nil {
			return err
		}
		fmt.Printf("Downloaded %s to %s\n", cfg.AssetName, cfg.IndexPath)
		return nil
	})
}
