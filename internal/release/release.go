// Package release round-trips the generated index through a GitHub release
// asset.
package release

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pluginmarket/maintainer/internal/domain"
	"github.com/pluginmarket/maintainer/internal/github"
	"github.com/pluginmarket/maintainer/internal/index"
)

// Defaults for the index release.
const (
	DefaultTag       = "generated-index"
	DefaultName      = "Generated Index"
	DefaultTarget    = "main"
	DefaultAssetName = "index.json"
	releaseBody      = "Automated index release asset."
)

// API is the subset of the GitHub client used for releases.
type API interface {
	ReleaseByTag(ctx context.Context, owner, repo, tag string) (*github.Release, error)
	Release(ctx context.Context, owner, repo string, id int64) (*github.Release, error)
	CreateRelease(ctx context.Context, owner, repo string, r github.NewRelease) (*github.Release, error)
	UploadAsset(ctx context.Context, owner, repo string, releaseID int64, name string, data []byte) (*github.Asset, error)
	DeleteAsset(ctx context.Context, owner, repo string, id int64) error
	Download(ctx context.Context, url string) ([]byte, error)
}

// Config holds release configuration
type Config struct {
	API       API
	Owner     string
	Repo      string
	Tag       string
	Name      string
	Target    string
	AssetName string
	Logger    *slog.Logger
}

// Releaser publishes and fetches the index asset.
type Releaser struct {
	api       API
	owner     string
	repo      string
	tag       string
	name      string
	target    string
	assetName string
	logger    *slog.Logger
}

// New creates a new releaser instance
func New(cfg Config) *Releaser {
	if cfg.Tag == "" {
		cfg.Tag = DefaultTag
	}
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Target == "" {
		cfg.Target = DefaultTarget
	}
	if cfg.AssetName == "" {
		cfg.AssetName = DefaultAssetName
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Releaser{
		api:       cfg.API,
		owner:     cfg.Owner,
		repo:      cfg.Repo,
		tag:       cfg.Tag,
		name:      cfg.Name,
		target:    cfg.Target,
		assetName: cfg.AssetName,
		logger:    cfg.Logger,
	}
}

// Publish uploads the index at indexPath to the release, creating the
// release first if the tag has none. An asset with the same name is
// replaced.
func (r *Releaser) Publish(ctx context.Context, indexPath string) (*github.Release, error) {
	data, err := os.ReadFile(indexPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("missing %s; generate it first: %w", indexPath, domain.ErrConfiguration)
	}
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	if _, err := index.Parse(data); err != nil {
		return nil, err
	}

	rel, err := r.api.ReleaseByTag(ctx, r.owner, r.repo, r.tag)
	if errors.Is(err, github.ErrNotFound) {
		r.logger.Info("no release found, creating one", "tag", r.tag)
		rel, err = r.api.CreateRelease(ctx, r.owner, r.repo, github.NewRelease{
			TagName:         r.tag,
			TargetCommitish: r.target,
			Name:            r.name,
			Body:            releaseBody,
		})
	}
	if err != nil {
		return nil, err
	}
	if rel.ID == 0 {
		return nil, fmt.Errorf("release %s has no id: %w", r.tag, domain.ErrMalformedResponse)
	}

	rel, err = r.api.Release(ctx, r.owner, r.repo, rel.ID)
	if err != nil {
		return nil, err
	}

	_, err = r.api.UploadAsset(ctx, r.owner, r.repo, rel.ID, r.assetName, data)
	if errors.Is(err, github.ErrAssetExists) {
		if err := r.deleteAssets(ctx, rel); err != nil {
			return nil, err
		}
		rel, err = r.api.Release(ctx, r.owner, r.repo, rel.ID)
		if err != nil {
			return nil, err
		}
		_, err = r.api.UploadAsset(ctx, r.owner, r.repo, rel.ID, r.assetName, data)
	}
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", r.assetName, err)
	}

	r.logger.Info("uploaded asset", "name", r.assetName, "bytes", len(data), "release", rel.HTMLURL)
	return rel, nil
}

func (r *Releaser) deleteAssets(ctx context.Context, rel *github.Release) error {
	for _, a := range rel.Assets {
		if a.Name != r.assetName || a.ID == 0 {
			continue
		}
		r.logger.Info("deleting existing asset", "name", a.Name, "id", a.ID)
		if err := r.api.DeleteAsset(ctx, r.owner, r.repo, a.ID); err != nil {
			return fmt.Errorf("delete asset %d: %w", a.ID, err)
		}
	}
	return nil
}

// Download fetches the index asset of the release and writes it to
// indexPath.
func (r *Releaser) Download(ctx context.Context, indexPath string) error {
	rel, err := r.api.ReleaseByTag(ctx, r.owner, r.repo, r.tag)
	if errors.Is(err, github.ErrNotFound) {
		return fmt.Errorf("release tag '%s' not found. Generate/publish index.json first: %w", r.tag, domain.ErrConfiguration)
	}
	if err != nil {
		return err
	}

	var asset *github.Asset
	for i := range rel.Assets {
		if rel.Assets[i].Name == r.assetName {
			asset = &rel.Assets[i]
			break
		}
	}
	if asset == nil {
		return fmt.Errorf("release '%s' does not contain asset '%s': %w", r.tag, r.assetName, domain.ErrConfiguration)
	}
	if asset.URL == "" {
		return fmt.Errorf("asset %s has no url: %w", asset.Name, domain.ErrMalformedResponse)
	}

	data, err := r.api.Download(ctx, asset.URL)
	if err != nil {
		return fmt.Errorf("download %s: %w", asset.Name, err)
	}
	if _, err := index.Parse(data); err != nil {
		return err
	}

	if dir := filepath.Dir(indexPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create index directory: %w", err)
		}
	}
	if err := os.WriteFile(indexPath, data, 0644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	r.logger.Info("downloaded asset", "name", asset.Name, "path", indexPath, "bytes", len(data))
	return nil
}
