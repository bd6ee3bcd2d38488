// Package discussions keeps exactly one GitHub discussion thread per plugin.
package discussions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pluginmarket/maintainer/internal/domain"
	"github.com/pluginmarket/maintainer/internal/github"
	"github.com/pluginmarket/maintainer/internal/metrics"
)

// DefaultCategory is the discussion category new threads are created in.
const DefaultCategory = "Plugins"

// markerKey prefixes the plugin name inside every correlation marker. The
// version segment changes if the marker format ever does.
const markerKey = "plugin-discussion:v1:"

const (
	markerSearchSize = 10
	titleSearchSize  = 5
)

// Outcome describes what Ensure had to do.
type Outcome string

const (
	OutcomeCreated  Outcome = "created"
	OutcomeExisting Outcome = "existing"
	OutcomeReopened Outcome = "reopened"
)

// API is the subset of the GitHub client used by the service.
type API interface {
	DiscussionCategories(ctx context.Context, owner, repo string) (string, []github.Category, error)
	SearchDiscussions(ctx context.Context, query string, first int) ([]github.Discussion, error)
	CreateDiscussion(ctx context.Context, repoID, categoryID, title, body string) (github.Discussion, error)
	ReopenDiscussion(ctx context.Context, id string) (github.Discussion, error)
}

// Result is the discussion a plugin ended up with.
type Result struct {
	URL     string
	Outcome Outcome
}

// Config holds discussion service configuration
type Config struct {
	API      API
	Owner    string
	Repo     string
	Branch   string
	Category string
	// TitleFallback matches untagged discussions by exact title when no
	// marker is found.
	TitleFallback bool
	Logger        *slog.Logger
}

// Service finds, reopens or creates plugin discussions.
type Service struct {
	api           API
	owner         string
	repo          string
	branch        string
	category      string
	titleFallback bool
	logger        *slog.Logger

	repoID     string
	categoryID string
}

// New creates a new discussion service instance
func New(cfg Config) *Service {
	if cfg.Category == "" {
		cfg.Category = DefaultCategory
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		api:           cfg.API,
		owner:         cfg.Owner,
		repo:          cfg.Repo,
		branch:        cfg.Branch,
		category:      strings.TrimSpace(cfg.Category),
		titleFallback: cfg.TitleFallback,
		logger:        cfg.Logger,
	}
}

// Marker returns the correlation tag embedded in the body of the discussion
// for name.
func Marker(name string) string {
	return "<!-- " + markerKey + name + " -->"
}

// Body renders the discussion body for a plugin.
func Body(name string, rec *domain.PluginRecord, owner, repo, branch string) string {
	var b strings.Builder
	b.WriteString(Marker(name) + "\n")
	if rec.Title != "" {
		b.WriteString("## " + rec.Title + "\n")
	} else {
		b.WriteString("## Plugin\n")
	}
	if rec.Description != "" {
		b.WriteString("\n" + rec.Description + "\n")
	}
	b.WriteString("\n### Links\n\n")
	fmt.Fprintf(&b, "- Repository index entry: https://github.com/%s/%s/tree/%s/%s/%s\n",
		owner, repo, branch, domain.PluginsDir, name)
	if rec.GitHub != "" {
		b.WriteString("- Plugin repository: " + rec.GitHub + "\n")
	}
	b.WriteString("\n### Notes\n\n")
	b.WriteString("This discussion is auto-created by a workflow when a plugin is added to the index.\n")
	return b.String()
}

// Ensure makes sure an open discussion exists for name and returns its URL.
// Running it again for the same plugin finds the same discussion.
func (s *Service) Ensure(ctx context.Context, name string, rec *domain.PluginRecord) (Result, error) {
	existing, err := s.find(ctx, name)
	if err != nil {
		return Result{}, err
	}

	if existing != nil {
		if !existing.Closed {
			s.logger.Info("discussion exists", "plugin", name, "url", existing.URL)
			metrics.Discussions.WithLabelValues(string(OutcomeExisting)).Inc()
			return Result{URL: existing.URL, Outcome: OutcomeExisting}, nil
		}

		reopened, err := s.api.ReopenDiscussion(ctx, existing.ID)
		if err != nil {
			return Result{}, fmt.Errorf("reopen discussion for %s: %w", name, err)
		}
		if reopened.Closed {
			return Result{}, domain.Fail(domain.CodeReopenFailed, "",
				"discussion %s for plugin %q is still closed after reopening", existing.URL, name)
		}
		url := reopened.URL
		if url == "" {
			url = existing.URL
		}
		s.logger.Info("discussion reopened", "plugin", name, "url", url)
		metrics.Discussions.WithLabelValues(string(OutcomeReopened)).Inc()
		return Result{URL: url, Outcome: OutcomeReopened}, nil
	}

	if err := s.resolveCategory(ctx); err != nil {
		return Result{}, err
	}
	created, err := s.api.CreateDiscussion(ctx, s.repoID, s.categoryID,
		domain.DiscussionTitle(name), Body(name, rec, s.owner, s.repo, s.branch))
	if err != nil {
		return Result{}, fmt.Errorf("create discussion for %s: %w", name, err)
	}
	s.logger.Info("discussion created", "plugin", name, "url", created.URL)
	metrics.Discussions.WithLabelValues(string(OutcomeCreated)).Inc()
	return Result{URL: created.URL, Outcome: OutcomeCreated}, nil
}

// find looks the discussion up by marker, then by title if allowed.
func (s *Service) find(ctx context.Context, name string) (*github.Discussion, error) {
	marker := Marker(name)
	q := fmt.Sprintf(`repo:%s/%s in:body "%s%s"`, s.owner, s.repo, markerKey, name)
	found, err := s.api.SearchDiscussions(ctx, q, markerSearchSize)
	if err != nil {
		return nil, fmt.Errorf("search discussions for %s: %w", name, err)
	}
	for i := range found {
		if strings.Contains(found[i].Body, marker) {
			return &found[i], nil
		}
	}

	if !s.titleFallback {
		return nil, nil
	}

	title := domain.DiscussionTitle(name)
	q = fmt.Sprintf(`repo:%s/%s in:title "%s"`, s.owner, s.repo, title)
	found, err = s.api.SearchDiscussions(ctx, q, titleSearchSize)
	if err != nil {
		return nil, fmt.Errorf("search discussions for %s: %w", name, err)
	}
	for i := range found {
		d := &found[i]
		if d.Title != title {
			continue
		}
		if strings.Contains(d.Body, "<!-- "+markerKey) && !strings.Contains(d.Body, marker) {
			s.logger.Warn("title match carries another plugin's marker", "plugin", name, "url", d.URL)
			continue
		}
		return d, nil
	}
	return nil, nil
}

// resolveCategory looks up the repository and category ids once.
func (s *Service) resolveCategory(ctx context.Context) error {
	if s.categoryID != "" {
		return nil
	}
	repoID, cats, err := s.api.DiscussionCategories(ctx, s.owner, s.repo)
	if err != nil {
		return err
	}
	for _, c := range cats {
		if strings.EqualFold(strings.TrimSpace(c.Name), s.category) {
			s.repoID = repoID
			s.categoryID = c.ID
			return nil
		}
	}
	return domain.Fail(domain.CodeCategoryNotFound, "",
		"discussion category %q not found in %s/%s; create it in GitHub Discussions settings",
		s.category, s.owner, s.repo)
}
