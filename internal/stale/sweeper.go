// Package stale closes open pull requests whose checks fail and that have
// seen no activity for a while.
package stale

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pluginmarket/maintainer/internal/domain"
	"github.com/pluginmarket/maintainer/internal/github"
	"github.com/pluginmarket/maintainer/internal/metrics"
)

// DefaultInactivityDays is how long a pull request must be idle before it
// can be closed.
const DefaultInactivityDays = 7

// DefaultComment is posted on every pull request the sweep closes.
const DefaultComment = "Closing due to failing checks and no activity for 7+ days. " +
	"Comment or push to keep it alive; reopen if you'd like to continue."

// API is the subset of the GitHub client used by the sweep.
type API interface {
	OpenPullRequests(ctx context.Context, owner, repo, cursor string) (github.PullRequestPage, error)
	ClosePullRequest(ctx context.Context, owner, repo string, number int) error
	CommentOnIssue(ctx context.Context, owner, repo string, number int, body string) error
}

// Config holds sweep configuration
type Config struct {
	API            API
	Owner          string
	Repo           string
	InactivityDays int
	DryRun         bool
	Comment        string
	// Now defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// Sweeper walks open pull requests from least to most recently updated.
type Sweeper struct {
	api            API
	owner          string
	repo           string
	inactivityDays int
	dryRun         bool
	comment        string
	now            func() time.Time
	logger         *slog.Logger
}

// New creates a new sweeper instance
func New(cfg Config) *Sweeper {
	if cfg.InactivityDays <= 0 {
		cfg.InactivityDays = DefaultInactivityDays
	}
	if cfg.Comment == "" {
		cfg.Comment = DefaultComment
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Sweeper{
		api:            cfg.API,
		owner:          cfg.Owner,
		repo:           cfg.Repo,
		inactivityDays: cfg.InactivityDays,
		dryRun:         cfg.DryRun,
		comment:        cfg.Comment,
		now:            cfg.Now,
		logger:         cfg.Logger,
	}
}

// Failing reports whether a check rollup state makes a pull request
// eligible for closing.
func Failing(state string) bool {
	return state == "FAILURE" || state == "ERROR"
}

// Run sweeps every page until it reaches a pull request updated after the
// cutoff. Pages are ordered by update time, so nothing past that point can
// qualify.
func (s *Sweeper) Run(ctx context.Context) (domain.SweepSummary, error) {
	var sum domain.SweepSummary
	cutoff := s.now().UTC().Add(-time.Duration(s.inactivityDays) * 24 * time.Hour)
	s.logger.Info("sweeping stale pull requests",
		"repository", s.owner+"/"+s.repo,
		"cutoff", cutoff.Format(time.RFC3339),
		"dry_run", s.dryRun,
	)

	cursor := ""
	for {
		page, err := s.api.OpenPullRequests(ctx, s.owner, s.repo, cursor)
		if err != nil {
			return sum, err
		}

		for _, pr := range page.PullRequests {
			sum.Scanned++
			metrics.PullRequestsScanned.Inc()

			if pr.IsDraft {
				continue
			}
			if pr.UpdatedAt.IsZero() {
				s.logger.Warn("pull request has no update time, skipping", "number", pr.Number)
				continue
			}
			if !pr.UpdatedAt.Before(cutoff) {
				s.logger.Info("reached active pull requests, stopping", "number", pr.Number)
				sum.StoppedEarly = true
				return sum, nil
			}
			if !Failing(pr.RollupState) {
				continue
			}

			if err := s.close(ctx, pr); err != nil {
				return sum, err
			}
			sum.Closed++
		}

		if !page.HasNextPage || page.EndCursor == "" {
			return sum, nil
		}
		cursor = page.EndCursor
	}
}

func (s *Sweeper) close(ctx context.Context, pr github.PullRequest) error {
	if s.dryRun {
		s.logger.Info("dry run: would close pull request", "number", pr.Number, "state", pr.RollupState)
		return nil
	}

	if err := s.api.ClosePullRequest(ctx, s.owner, s.repo, pr.Number); err != nil {
		return fmt.Errorf("close #%d: %w", pr.Number, err)
	}
	if err := s.api.CommentOnIssue(ctx, s.owner, s.repo, pr.Number, s.comment); err != nil {
		return fmt.Errorf("comment on #%d: %w", pr.Number, err)
	}
	metrics.PullRequestsClosed.Inc()
	s.logger.Info("closed pull request",
		"number", pr.Number,
		"updated_at", pr.UpdatedAt.Format(time.RFC3339),
		"state", pr.RollupState,
	)
	return nil
}
