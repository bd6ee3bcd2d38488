// Package prcheck validates that a pull request submits exactly one plugin
// folder with a well-formed declaration and an optional thumbnail.
package prcheck

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"
	"golang.org/x/text/cases"

	"github.com/pluginmarket/maintainer/internal/domain"
	"github.com/pluginmarket/maintainer/internal/gitstore"
	"github.com/pluginmarket/maintainer/internal/metrics"
	"github.com/pluginmarket/maintainer/internal/plugin"
)

// Source is the repository view the validator needs.
type Source interface {
	DiffNames(ctx context.Context, before, after string) ([]gitstore.Change, error)
	ListFiles(commit, prefix string) ([]string, error)
	ReadFile(commit, path string) ([]byte, error)
}

// Config holds validator configuration
type Config struct {
	Source Source
	Reader *plugin.Reader
	Logger *slog.Logger
}

// Validator checks a base..head change set.
type Validator struct {
	source Source
	reader *plugin.Reader
	fold   cases.Caser
	logger *slog.Logger
}

// sniffable lists the content types a thumbnail may decode as.
var sniffable = []string{"image/png", "image/jpeg", "image/webp"}

// New creates a new validator instance
func New(cfg Config) *Validator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Reader == nil {
		cfg.Reader = plugin.NewReader(plugin.Config{Logger: cfg.Logger})
	}
	return &Validator{
		source: cfg.Source,
		reader: cfg.Reader,
		fold:   cases.Fold(),
		logger: cfg.Logger,
	}
}

// Validate runs every rule against the changes between base and head and
// returns the submitted plugin's name. It stops at the first violation.
func (v *Validator) Validate(ctx context.Context, base, head string) (string, error) {
	name, err := v.validate(ctx, base, head)
	if code := domain.CodeOf(err); code != "" {
		metrics.ValidationFailures.WithLabelValues(string(code)).Inc()
	}
	return name, err
}

func (v *Validator) validate(ctx context.Context, base, head string) (string, error) {
	changes, err := v.source.DiffNames(ctx, base, head)
	if err != nil {
		return "", fmt.Errorf("list changed files: %w", err)
	}
	if len(changes) == 0 {
		return "", domain.Fail(domain.CodeNoChanges, "", "no changed files detected")
	}

	roots := map[string]bool{}
	for _, c := range changes {
		paths := []string{c.Path}
		if c.OldPath != "" {
			paths = append(paths, c.OldPath)
		}
		for _, p := range paths {
			parts := strings.Split(p, "/")
			if len(parts) < 3 || parts[0] != domain.PluginsDir {
				return "", domain.Fail(domain.CodeOutOfScope, p,
					"PRs must only change files under %s/<plugin-name>/", domain.PluginsDir)
			}
			roots[parts[1]] = true
		}
	}
	if len(roots) != 1 {
		var found []string
		for r := range roots {
			found = append(found, path.Join(domain.PluginsDir, r))
		}
		sort.Strings(found)
		return "", domain.Fail(domain.CodeMultiplePluginsTouched, "",
			"PR must submit exactly one plugin folder, found: %v", found)
	}

	var name string
	for r := range roots {
		name = r
	}
	root := path.Join(domain.PluginsDir, name)
	if domain.IsReserved(name) {
		return name, domain.Fail(domain.CodeReservedName, root,
			"plugin folder starts with '%s' which is reserved for hidden plugins", domain.ReservedPrefix)
	}

	v.logger.Debug("validating plugin folder", "plugin", name, "commit", head)

	files, err := v.source.ListFiles(head, root)
	if err != nil {
		return name, fmt.Errorf("list %s: %w", root, err)
	}
	declaration := plugin.DeclarationPath(name)
	if !contains(files, declaration) {
		return name, domain.Fail(domain.CodeMissingDeclaration, declaration, "missing required file")
	}

	var thumbnails []string
	for _, f := range files {
		rel := strings.TrimPrefix(f, root+"/")
		if i := strings.Index(rel, "/"); i >= 0 {
			return name, domain.Fail(domain.CodeSubdirectoryNotAllowed, path.Join(root, rel[:i]),
				"no subdirectories are allowed inside a plugin folder")
		}
		if rel == domain.DeclarationFile {
			continue
		}
		ext := strings.ToLower(path.Ext(rel))
		if !domain.IsImageExt(ext) {
			return name, domain.Fail(domain.CodeUnsupportedFile, f,
				"unsupported file in plugin folder, only %s and an optional thumbnail image are allowed", domain.DeclarationFile)
		}
		if v.fold.String(strings.TrimSuffix(rel, path.Ext(rel))) != domain.ThumbnailBasename {
			return name, domain.Fail(domain.CodeUnsupportedFile, f,
				"thumbnail must be named '%s<ext>' (e.g. %s.png)", domain.ThumbnailBasename, domain.ThumbnailBasename)
		}
		thumbnails = append(thumbnails, f)
	}
	if len(thumbnails) > 1 {
		return name, domain.Fail(domain.CodeMultipleThumbnails, root,
			"at most one thumbnail image is allowed, found: %s", strings.Join(thumbnails, ", "))
	}

	data, err := v.source.ReadFile(head, declaration)
	if err != nil {
		return name, fmt.Errorf("read %s: %w", declaration, err)
	}
	if _, err := v.reader.Parse(ctx, declaration, data); err != nil {
		return name, err
	}

	if len(thumbnails) == 1 {
		if err := v.checkThumbnail(head, thumbnails[0]); err != nil {
			return name, err
		}
	}

	var deleted []string
	for _, c := range changes {
		if c.Status == gitstore.StatusDeleted {
			deleted = append(deleted, c.Path)
		}
	}
	if len(deleted) > 0 {
		return name, domain.Fail(domain.CodeDeletionNotAllowed, "", "PR must not delete files, deleted: %v", deleted)
	}

	return name, nil
}

func (v *Validator) checkThumbnail(commit, p string) error {
	data, err := v.source.ReadFile(commit, p)
	if err != nil {
		return fmt.Errorf("read %s: %w", p, err)
	}
	if len(data) > domain.MaxThumbnailBytes {
		return domain.Fail(domain.CodeThumbnailTooLarge, p,
			"thumbnail is too large (%d bytes), max is %d bytes", len(data), domain.MaxThumbnailBytes)
	}

	mt := mimetype.Detect(data)
	if !mimetype.EqualsAny(mt.String(), sniffable...) {
		return domain.Fail(domain.CodeThumbnailUnreadable, p, "thumbnail is not a supported image (%s)", mt.String())
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return domain.Fail(domain.CodeThumbnailUnreadable, p, "thumbnail image could not be opened: %v", err)
	}
	if cfg.Width != cfg.Height {
		return domain.Fail(domain.CodeThumbnailNotSquare, p,
			"thumbnail must be square (width == height), got %dx%d", cfg.Width, cfg.Height)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
