// Package changeset turns a commit range into the set of plugin folders it
// touched.
package changeset

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/pluginmarket/maintainer/internal/domain"
	"github.com/pluginmarket/maintainer/internal/gitstore"
)

// DefaultMaxPlugins bounds how many plugins a single run may touch.
const DefaultMaxPlugins = 100

// Source is the repository view the detector needs.
type Source interface {
	DiffNames(ctx context.Context, before, after string) ([]gitstore.Change, error)
	ListFiles(commit, prefix string) ([]string, error)
}

// Range selects the commits to compare.
type Range struct {
	Before string
	After  string
	// All forces a full listing of the plugins directory at After.
	All bool
}

// Full reports whether the range is resolved by listing every plugin.
func (r Range) Full() bool {
	return r.All || IsZeroSHA(r.Before)
}

// Config holds detector configuration
type Config struct {
	Source     Source
	MaxPlugins int
	Logger     *slog.Logger
}

// Detector computes plugin change sets.
type Detector struct {
	source     Source
	maxPlugins int
	logger     *slog.Logger
}

// New creates a new detector instance
func New(cfg Config) *Detector {
	if cfg.MaxPlugins <= 0 {
		cfg.MaxPlugins = DefaultMaxPlugins
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Detector{
		source:     cfg.Source,
		maxPlugins: cfg.MaxPlugins,
		logger:     cfg.Logger,
	}
}

// Detect returns the sorted names of plugins touched by r, excluding
// reserved names.
func (d *Detector) Detect(ctx context.Context, r Range) ([]string, error) {
	if r.After == "" {
		return nil, fmt.Errorf("after commit is required: %w", domain.ErrConfiguration)
	}

	var paths []string
	if r.Full() {
		d.logger.Info("listing all plugins", "commit", r.After)
		files, err := d.source.ListFiles(r.After, domain.PluginsDir)
		if err != nil {
			return nil, fmt.Errorf("list plugins: %w", err)
		}
		paths = files
	} else {
		d.logger.Info("diffing plugins", "before", r.Before, "after", r.After)
		changes, err := d.source.DiffNames(ctx, r.Before, r.After)
		if err != nil {
			return nil, fmt.Errorf("diff %s..%s: %w", r.Before, r.After, err)
		}
		for _, c := range changes {
			paths = append(paths, c.Path)
			if c.OldPath != "" {
				paths = append(paths, c.OldPath)
			}
		}
	}

	names := PluginNames(paths)
	if len(names) > d.maxPlugins {
		return nil, domain.Fail(domain.CodeTooManyPlugins, "",
			"detected %d plugins in scope, which exceeds MAX_PLUGINS=%d; increase MAX_PLUGINS or run multiple smaller pushes",
			len(names), d.maxPlugins)
	}
	return names, nil
}

// PluginNames reduces repository paths to the sorted, distinct names of the
// plugin folders that contain them. Reserved names are dropped.
func PluginNames(paths []string) []string {
	seen := map[string]bool{}
	for _, p := range paths {
		parts := strings.Split(p, "/")
		if len(parts) < 3 || parts[0] != domain.PluginsDir || parts[1] == "" {
			continue
		}
		if domain.IsReserved(parts[1]) {
			continue
		}
		seen[parts[1]] = true
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// IsZeroSHA reports whether sha is empty or the all-zero commit GitHub sends
// for newly created branches.
func IsZeroSHA(sha string) bool {
	s := strings.TrimSpace(sha)
	return s == "" || strings.Trim(s, "0") == ""
}
