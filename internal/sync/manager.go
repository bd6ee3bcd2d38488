// Package sync brings the plugin index and the per-plugin discussions up to
// date with a range of pushed commits.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/pluginmarket/maintainer/internal/changeset"
	"github.com/pluginmarket/maintainer/internal/discussions"
	"github.com/pluginmarket/maintainer/internal/domain"
	"github.com/pluginmarket/maintainer/internal/index"
	"github.com/pluginmarket/maintainer/internal/plugin"
)

// Source is the repository view a sync run reads from.
type Source interface {
	ListFiles(commit, prefix string) ([]string, error)
	ReadFile(commit, path string) ([]byte, error)
	Exists(commit, path string) (bool, error)
}

// Detector computes the plugins touched by a commit range.
type Detector interface {
	Detect(ctx context.Context, r changeset.Range) ([]string, error)
}

// Discussions ensures a discussion exists for a plugin.
type Discussions interface {
	Ensure(ctx context.Context, name string, rec *domain.PluginRecord) (discussions.Result, error)
}

// Manager handles one discussion sync run
type Manager struct {
	source      Source
	detector    Detector
	reader      *plugin.Reader
	discussions Discussions
	index       *index.Index
	owner       string
	repo        string
	branch      string
	logger      *slog.Logger
}

// Config holds sync manager configuration
type Config struct {
	Source      Source
	Detector    Detector
	Reader      *plugin.Reader
	Discussions Discussions
	Index       *index.Index
	Owner       string
	Repo        string
	// Branch is the ref thumbnail URLs point at.
	Branch string
	Logger *slog.Logger
}

// NewManager creates a new sync manager
func NewManager(cfg Config) *Manager {
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Reader == nil {
		cfg.Reader = plugin.NewReader(plugin.Config{Logger: cfg.Logger})
	}

	return &Manager{
		source:      cfg.Source,
		detector:    cfg.Detector,
		reader:      cfg.Reader,
		discussions: cfg.Discussions,
		index:       cfg.Index,
		owner:       cfg.Owner,
		repo:        cfg.Repo,
		branch:      cfg.Branch,
		logger:      cfg.Logger,
	}
}

// RunTasks runs each post-commit task in order and stops at the first
// failure.
func (m *Manager) RunTasks(ctx context.Context, tasks []string, r changeset.Range) (domain.SyncSummary, error) {
	var sum domain.SyncSummary
	for _, task := range tasks {
		m.logger.Info("running task", "task", task)
		switch task {
		case TaskDiscussions:
			s, err := m.Run(ctx, r)
			if err != nil {
				return s, fmt.Errorf("task %s: %w", task, err)
			}
			sum = s
		default:
			return sum, fmt.Errorf("unknown task: %s: %w", task, domain.ErrConfiguration)
		}
	}
	return sum, nil
}

// Run processes every plugin touched by r and saves the index once at the
// end. The first error aborts the run without writing the index.
func (m *Manager) Run(ctx context.Context, r changeset.Range) (domain.SyncSummary, error) {
	var sum domain.SyncSummary
	start := time.Now()

	names, err := m.detector.Detect(ctx, r)
	if err != nil {
		return sum, err
	}
	sum.Total = len(names)
	if len(names) == 0 {
		m.logger.Info("no plugin changes detected")
	}

	thumbs := index.Thumbnails{
		Source: m.source,
		Commit: r.After,
		Owner:  m.owner,
		Repo:   m.repo,
		Branch: m.branch,
	}
	exists := func(name string) (bool, error) {
		return m.source.Exists(r.After, path.Join(domain.PluginsDir, name))
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		ok, err := exists(name)
		if err != nil {
			return sum, fmt.Errorf("check plugin %s: %w", name, err)
		}
		if !ok {
			if m.index.Remove(name) {
				sum.Removed++
				m.logger.Info("removed", "plugin", name)
			}
			continue
		}

		rec, err := m.reader.Load(ctx, m.source, r.After, name)
		if err != nil {
			return sum, err
		}

		res, err := m.discussions.Ensure(ctx, name, rec)
		if err != nil {
			return sum, err
		}
		switch res.Outcome {
		case discussions.OutcomeCreated:
			sum.Created++
			m.logger.Info("created", "plugin", name, "url", res.URL)
		case discussions.OutcomeReopened:
			sum.Reopened++
			m.logger.Info("reopened", "plugin", name, "url", res.URL)
		default:
			sum.Existing++
			m.logger.Info("exists", "plugin", name, "url", res.URL)
		}

		thumb, err := thumbs.URL(name)
		if err != nil {
			return sum, err
		}
		var discussion *string
		if res.URL != "" {
			discussion = &res.URL
		}
		if err := m.index.Upsert(name, rec, thumb, discussion); err != nil {
			return sum, err
		}
	}

	if r.Full() {
		pruned, err := m.index.PruneRemoved(exists)
		if err != nil {
			return sum, err
		}
		sum.Pruned = pruned
	}

	written, err := m.index.Save()
	if err != nil {
		return sum, err
	}
	sum.Written = written

	m.logger.Info("sync completed",
		"plugins", sum.Total,
		"index", m.index.Path(),
		"written", written,
		"duration", time.Since(start),
	)
	return sum, nil
}
