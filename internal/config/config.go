// Package config reads maintainer settings from the environment.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/pluginmarket/maintainer/internal/domain"
)

// Config holds all application configuration
type Config struct {
	// GitHub access
	GitHubToken string `env:"GITHUB_TOKEN"`
	Repository  string `env:"GITHUB_REPOSITORY"`
	RepoOwner   string `env:"GITHUB_REPOSITORY_OWNER"`
	Owner       string `env:"OWNER"`
	Repo        string `env:"REPO"`
	APIURL      string `env:"GITHUB_API_URL,default=https://api.github.com/"`
	GraphQLURL  string `env:"GITHUB_GRAPHQL_URL,default=https://api.github.com/graphql"`
	EventPath   string `env:"GITHUB_EVENT_PATH"`

	// Timeouts
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT,default=30s"`
	TransferTimeout time.Duration `env:"TRANSFER_TIMEOUT,default=60s"`

	// Local repository and index
	RepoPath    string `env:"REPO_PATH,default=."`
	RepoURL     string `env:"REPO_URL"`
	IndexPath   string `env:"INDEX_PATH,default=index.json"`
	IndexBranch string `env:"INDEX_BRANCH,default=main"`

	// Commit ranges
	BaseSHA    string `env:"BASE_SHA"`
	HeadSHA    string `env:"HEAD_SHA"`
	BeforeSHA  string `env:"BEFORE_SHA"`
	AfterSHA   string `env:"AFTER_SHA"`
	RunAll     bool   `env:"RUN_ALL,default=false"`
	MaxPlugins int    `env:"MAX_PLUGINS,default=100"`

	// Discussions
	DiscussionCategory      string `env:"DISCUSSION_CATEGORY,default=Plugins"`
	DiscussionTitleFallback bool   `env:"DISCUSSION_TITLE_FALLBACK,default=true"`

	// Stale sweep
	InactivityDays int    `env:"INACTIVITY_DAYS,default=7"`
	DryRun         bool   `env:"DRY_RUN,default=false"`
	CloseComment   string `env:"CLOSE_COMMENT"`

	// Index release
	ReleaseTag    string `env:"INDEX_RELEASE_TAG,default=generated-index"`
	ReleaseName   string `env:"INDEX_RELEASE_NAME,default=Generated Index"`
	ReleaseTarget string `env:"INDEX_RELEASE_TARGET,default=main"`
	AssetName     string `env:"INDEX_ASSET_NAME,default=index.json"`

	// Stars
	StarsChunkSize   int    `env:"STARS_CHUNK_SIZE,default=50"`
	StarsUpdatesPath string `env:"STARS_UPDATES_PATH,default=stars_updates.json"`

	// Observability
	LogLevel       string `env:"LOG_LEVEL,default=info"`
	LogFormat      string `env:"LOG_FORMAT,default=text"`
	OTLPEndpoint   string `env:"OTLP_ENDPOINT"`
	PushgatewayURL string `env:"PUSHGATEWAY_URL"`
}

// Load reads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrConfiguration)
	}

	if cfg.MaxPlugins <= 0 {
		return nil, fmt.Errorf("MAX_PLUGINS must be positive: %w", domain.ErrConfiguration)
	}
	if cfg.InactivityDays <= 0 {
		return nil, fmt.Errorf("INACTIVITY_DAYS must be positive: %w", domain.ErrConfiguration)
	}
	if cfg.StarsChunkSize <= 0 {
		return nil, fmt.Errorf("STARS_CHUNK_SIZE must be positive: %w", domain.ErrConfiguration)
	}
	return &cfg, nil
}

// Token returns the GitHub token, or a configuration error when unset.
func (c *Config) Token() (string, error) {
	if strings.TrimSpace(c.GitHubToken) == "" {
		return "", fmt.Errorf("GITHUB_TOKEN is required: %w", domain.ErrConfiguration)
	}
	return c.GitHubToken, nil
}

// OwnerRepo resolves the target repository. OWNER and REPO win over
// GITHUB_REPOSITORY_OWNER and GITHUB_REPOSITORY.
func (c *Config) OwnerRepo() (string, string, error) {
	var fullOwner, fullRepo string
	if parts := strings.SplitN(c.Repository, "/", 2); len(parts) == 2 {
		fullOwner, fullRepo = parts[0], parts[1]
	}

	owner := firstNonEmpty(c.Owner, c.RepoOwner, fullOwner)
	repo := firstNonEmpty(c.Repo, fullRepo)
	if owner == "" || repo == "" {
		return "", "", fmt.Errorf("repository is required: set GITHUB_REPOSITORY (owner/repo) or OWNER and REPO: %w",
			domain.ErrConfiguration)
	}
	return owner, repo, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
