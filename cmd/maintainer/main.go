package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pluginmarket/maintainer/internal/config"
	"github.com/pluginmarket/maintainer/internal/domain"
	"github.com/pluginmarket/maintainer/internal/github"
	"github.com/pluginmarket/maintainer/internal/gitstore"
	"github.com/pluginmarket/maintainer/internal/metrics"
	"github.com/pluginmarket/maintainer/internal/telemetry"
)

var version = "dev"

// Process wide state, filled by setup before any subcommand runs.
var (
	cfg            *config.Config
	logger         = slog.Default()
	shutdownTracer func(context.Context) error
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	app := &cli.Command{
		Name:    "maintainer",
		Usage:   "Maintenance jobs for the plugin marketplace repository",
		Version: version,
		Before:  setup,
		Commands: []*cli.Command{
			validatePRCmd,
			syncCmd,
			closeStaleCmd,
			starsCmd,
			indexCmd,
		},
	}

	err := app.Run(ctx, os.Args)
	teardown()
	stop()

	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			fmt.Printf("Validation failed: %v\n", err)
		} else {
			fmt.Printf("ERROR: %v\n", err)
		}
		os.Exit(1)
	}
}

func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	c, err := config.Load(ctx)
	if err != nil {
		return ctx, fmt.Errorf("failed to load config: %w", err)
	}
	cfg = c

	logger = newLogger(c.LogFormat, c.LogLevel)
	slog.SetDefault(logger)

	shutdown, err := telemetry.InitTracer(ctx, c.OTLPEndpoint, version)
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	}
	shutdownTracer = shutdown
	return ctx, nil
}

// teardown flushes spans and pushes metrics. Both are best effort.
func teardown() {
	if cfg == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if shutdownTracer != nil {
		if err := shutdownTracer(ctx); err != nil {
			logger.Warn("tracer shutdown error", "error", err)
		}
	}
	if err := metrics.Push(ctx, cfg.PushgatewayURL, "maintainer"); err != nil {
		logger.Warn("failed to push metrics", "error", err, "url", cfg.PushgatewayURL)
	}
}

func newLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: lvl,
		}))
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.TimeOnly,
	}))
}

// instrument runs fn as one traced, timed command.
func instrument(ctx context.Context, command string, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	timer := prometheus.NewTimer(metrics.RunDuration.WithLabelValues(command))
	defer timer.ObserveDuration()

	err := telemetry.Run(ctx, command, fn, attrs...)
	if err != nil {
		metrics.RunErrors.WithLabelValues(command).Inc()
		logger.Debug("command failed", "command", command, "error", err)
	}
	return err
}

// openStore attaches to the checkout at REPO_PATH, cloning REPO_URL into it
// when there is no repository there yet.
func openStore(ctx context.Context) (*gitstore.Store, error) {
	store, err := gitstore.New(gitstore.Config{
		RepoURL:   cfg.RepoURL,
		Branch:    cfg.IndexBranch,
		LocalPath: cfg.RepoPath,
		Token:     cfg.GitHubToken,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create git store: %w", err)
	}

	if err := store.Open(); err != nil {
		if cfg.RepoURL == "" {
			return nil, fmt.Errorf("%v: set REPO_PATH to a checkout or REPO_URL to clone one: %w", err, domain.ErrConfiguration)
		}
		if err := store.Clone(ctx); err != nil {
			return nil, fmt.Errorf("failed to clone repository: %w", err)
		}
	}
	return store, nil
}

func githubClient() (*github.Client, error) {
	token, err := cfg.Token()
	if err != nil {
		return nil, err
	}
	return github.New(github.Config{
		Token:           token,
		APIURL:          cfg.APIURL,
		GraphQLURL:      cfg.GraphQLURL,
		RequestTimeout:  cfg.RequestTimeout,
		TransferTimeout: cfg.TransferTimeout,
		Logger:          logger,
	})
}

// headOr returns rev, or the checkout's HEAD commit when rev is empty.
func headOr(store *gitstore.Store, rev string) (string, error) {
	if rev != "" {
		return rev, nil
	}
	return store.Head()
}
