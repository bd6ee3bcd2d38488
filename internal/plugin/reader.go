// Package plugin reads and validates plugin declaration files.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/pluginmarket/maintainer/internal/domain"
	"github.com/pluginmarket/maintainer/internal/gitstore"
)

// Source reads file contents at a commit.
type Source interface {
	ReadFile(commit, path string) ([]byte, error)
}

// RepoChecker confirms that a GitHub repository carries its own plugin.yaml
// on the default branch.
type RepoChecker interface {
	HasDeclaration(ctx context.Context, owner, repo string) error
}

// Config holds reader configuration
type Config struct {
	// Checker enables network validation of the github field when set.
	Checker RepoChecker
	Logger  *slog.Logger
}

// Reader parses plugin.yaml documents into validated records.
type Reader struct {
	checker  RepoChecker
	validate *validator.Validate
	logger   *slog.Logger
}

// NewReader creates a new reader instance
func NewReader(cfg Config) *Reader {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Reader{
		checker:  cfg.Checker,
		validate: domain.NewValidator(),
		logger:   cfg.Logger,
	}
}

// DeclarationPath returns plugins/<name>/plugin.yaml.
func DeclarationPath(name string) string {
	return path.Join(domain.PluginsDir, name, domain.DeclarationFile)
}

// Load reads and parses the declaration of plugin name at commit.
func (r *Reader) Load(ctx context.Context, src Source, commit, name string) (*domain.PluginRecord, error) {
	p := DeclarationPath(name)
	data, err := src.ReadFile(commit, p)
	if errors.Is(err, gitstore.ErrNotFound) {
		return nil, domain.Fail(domain.CodeMissingDeclaration, p, "missing required file")
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return r.Parse(ctx, p, data)
}

// Parse validates a declaration document. Checks run in a fixed order and
// the first violation is returned.
func (r *Reader) Parse(ctx context.Context, p string, data []byte) (*domain.PluginRecord, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, domain.Fail(domain.CodeInvalidFormat, p, "invalid YAML: %v", err)
	}

	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, domain.Fail(domain.CodeInvalidFormat, p, "must contain a YAML mapping/object")
	}

	fields := make(map[string]*yaml.Node, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		fields[root.Content[i].Value] = deref(root.Content[i+1])
	}

	if extra := difference(keys(fields), domain.AllowedFields); len(extra) > 0 {
		return nil, domain.Fail(domain.CodeUnsupportedFields, p,
			"contains unsupported fields: %v. Allowed fields are: %v", extra, sorted(domain.AllowedFields))
	}
	if missing := difference(domain.RequiredFields, keys(fields)); len(missing) > 0 {
		return nil, domain.Fail(domain.CodeMissingFields, p, "is missing required fields: %v", missing)
	}

	for _, k := range domain.RequiredFields {
		if !isText(fields[k]) {
			return nil, domain.Fail(domain.CodeInvalidField, p, "field '%s' must be a non-empty string", k)
		}
	}

	rec := domain.PluginRecord{
		Title:       fields["title"].Value,
		Description: fields["description"].Value,
		GitHub:      fields["github"].Value,
	}
	var tagErr error
	if tags, ok := fields["tags"]; ok {
		if tagErr = checkTagNodes(p, tags); tagErr == nil {
			for _, item := range tags.Content {
				rec.Tags = append(rec.Tags, item.Value)
			}
		}
	}

	failed := map[string]string{}
	if err := r.validate.Struct(&rec); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, fmt.Errorf("validate %s: %w", p, err)
		}
		for _, fe := range verrs {
			if _, seen := failed[fe.Field()]; !seen {
				failed[fe.Field()] = fe.Tag()
			}
		}
	}

	if tag, ok := failed["Title"]; ok {
		return nil, fieldFailure(p, "title", tag)
	}
	if tag, ok := failed["Description"]; ok {
		return nil, fieldFailure(p, "description", tag)
	}
	if tag, ok := failed["GitHub"]; ok {
		return nil, fieldFailure(p, "github", tag)
	}

	if r.checker != nil {
		if err := r.verifyRemote(ctx, p, strings.TrimSpace(rec.GitHub)); err != nil {
			return nil, err
		}
	}

	if tagErr != nil {
		return nil, tagErr
	}
	if tag, ok := failed["Tags"]; ok {
		if tag == "max" {
			return nil, domain.Fail(domain.CodeTooManyTags, p, "field 'tags' must contain at most %d entries", domain.MaxTags)
		}
		return nil, domain.Fail(domain.CodeInvalidTags, p, "field 'tags' must be a list of strings")
	}
	for key, tag := range failed {
		if strings.HasPrefix(key, "Tags[") {
			return nil, domain.Fail(domain.CodeInvalidTags, p, "field 'tags' must be a list of non-empty strings (%s)", tag)
		}
	}

	return &rec, nil
}

func (r *Reader) verifyRemote(ctx context.Context, p, link string) error {
	owner, repo, ok := ParseRepoURL(link)
	if !ok {
		return domain.Fail(domain.CodeRepoUnresolvable, p, "field 'github' must point to a GitHub repository: %s", link)
	}

	r.logger.Debug("checking plugin repository", "owner", owner, "repo", repo)
	if err := r.checker.HasDeclaration(ctx, owner, repo); err != nil {
		return domain.Fail(domain.CodeRepoMissingDeclaration, p,
			"repository %s/%s has no %s on its default branch: %v", owner, repo, domain.DeclarationFile, err)
	}
	return nil
}

// ParseRepoURL extracts owner and repository from a github.com URL.
func ParseRepoURL(link string) (owner, repo string, ok bool) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", "", false
	}
	host := strings.ToLower(u.Hostname())
	if host != "github.com" && host != "www.github.com" {
		return "", "", false
	}

	var segs []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	if len(segs) < 2 {
		return "", "", false
	}
	return segs[0], strings.TrimSuffix(segs[1], ".git"), true
}

func fieldFailure(p, field, tag string) error {
	switch tag {
	case "max":
		limit := domain.MaxTitleLength
		if field == "description" {
			limit = domain.MaxDescriptionLen
		}
		return domain.Fail(domain.CodeInvalidField, p, "field '%s' must be at most %d characters", field, limit)
	case "http_url":
		return domain.Fail(domain.CodeInvalidField, p, "field '%s' must be a valid http(s) URL", field)
	default:
		return domain.Fail(domain.CodeInvalidField, p, "field '%s' must be a non-empty string", field)
	}
}

func checkTagNodes(p string, n *yaml.Node) error {
	if n.Kind != yaml.SequenceNode {
		return domain.Fail(domain.CodeInvalidTags, p, "field 'tags' must be a list of strings")
	}
	for i, item := range n.Content {
		item = deref(item)
		n.Content[i] = item
		if !isText(item) {
			return domain.Fail(domain.CodeInvalidTags, p, "field 'tags' must be a list of non-empty strings")
		}
	}
	return nil
}

// deref follows alias nodes to the anchored node.
func deref(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

// isText reports whether n is a string scalar with non-blank content.
func isText(n *yaml.Node) bool {
	return n != nil &&
		n.Kind == yaml.ScalarNode &&
		n.ShortTag() == "!!str" &&
		strings.TrimSpace(n.Value) != ""
}

func keys(m map[string]*yaml.Node) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// difference returns the sorted members of a that are not in b.
func difference(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, s := range b {
		in[s] = true
	}
	var out []string
	for _, s := range a {
		if !in[s] {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func sorted(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}
