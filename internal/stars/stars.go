// Package stars refreshes GitHub star counts of indexed plugins in two
// passes: a scan that writes an updates file and an apply that merges it
// into the index.
package stars

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"github.com/pluginmarket/maintainer/internal/domain"
	"github.com/pluginmarket/maintainer/internal/index"
	"github.com/pluginmarket/maintainer/internal/metrics"
)

// DefaultChunkSize is the number of repositories looked up per query.
const DefaultChunkSize = 50

var repoURL = regexp.MustCompile(`^https?://github\.com/([^/]+)/([^/]+?)(?:\.git)?/?$`)

var updatesSchema = jsonschema.MustCompileString("stars_updates.schema.json", `{
  "type": "object",
  "additionalProperties": {"type": "object"}
}`)

// API runs raw GraphQL documents.
type API interface {
	GraphQL(ctx context.Context, query string, variables map[string]any) (gjson.Result, error)
}

// Update is one line of the updates file.
type Update struct {
	Repo           string `json:"repo"`
	Stars          int    `json:"stars"`
	StarsUpdatedAt string `json:"stars_updated_at"`
}

// Config holds star refresher configuration
type Config struct {
	API       API
	ChunkSize int
	// Now defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// Refresher looks up and applies star counts.
type Refresher struct {
	api       API
	chunkSize int
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a new refresher instance
func New(cfg Config) *Refresher {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Refresher{
		api:       cfg.API,
		chunkSize: cfg.ChunkSize,
		now:       cfg.Now,
		logger:    cfg.Logger,
	}
}

// ParseRepoURL extracts owner and repository from a github.com link.
func ParseRepoURL(link string) (owner, repo string, ok bool) {
	m := repoURL.FindStringSubmatch(strings.TrimSpace(link))
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

type target struct {
	name  string
	owner string
	repo  string
}

// Scan looks up the star count of every indexed plugin whose github field
// points at a repository. Repositories GitHub cannot resolve are skipped.
func (r *Refresher) Scan(ctx context.Context, idx *index.Index) (map[string]Update, error) {
	if err := requireIndex(idx); err != nil {
		return nil, err
	}

	var targets []target
	for _, name := range idx.Names() {
		e, _ := idx.Get(name)
		owner, repo, ok := ParseRepoURL(e.GitHub())
		if !ok {
			continue
		}
		targets = append(targets, target{name: name, owner: owner, repo: repo})
	}

	updates := map[string]Update{}
	if len(targets) == 0 {
		r.logger.Info("no plugin github repos found to update")
		return updates, nil
	}

	updatedAt := r.now().UTC().Format(time.RFC3339)
	for start := 0; start < len(targets); start += r.chunkSize {
		end := start + r.chunkSize
		if end > len(targets) {
			end = len(targets)
		}
		batch := targets[start:end]

		data, err := r.api.GraphQL(ctx, batchQuery(batch), nil)
		if err != nil {
			return nil, fmt.Errorf("query stars: %w", err)
		}

		for i, t := range batch {
			count := data.Get(fmt.Sprintf("r%d.stargazerCount", i))
			if !isInt(count) {
				continue
			}
			updates[t.name] = Update{
				Repo:           t.owner + "/" + t.repo,
				Stars:          int(count.Int()),
				StarsUpdatedAt: updatedAt,
			}
		}
		r.logger.Debug("stars batch done", "size", len(batch), "found", len(updates))
	}
	return updates, nil
}

// batchQuery aliases one repository lookup per target as r0, r1, ...
func batchQuery(batch []target) string {
	var b strings.Builder
	b.WriteString("query {\n")
	for i, t := range batch {
		fmt.Fprintf(&b, "r%d: repository(owner: %s, name: %s) { stargazerCount }\n",
			i, strconv.Quote(t.owner), strconv.Quote(t.repo))
	}
	b.WriteString("}")
	return b.String()
}

// WriteUpdates stores updates as sorted, indented JSON. An empty set is
// written as {}.
func WriteUpdates(p string, updates map[string]Update) error {
	if updates == nil {
		updates = map[string]Update{}
	}
	data, err := json.MarshalIndent(updates, "", "  ")
	if err != nil {
		return fmt.Errorf("encode updates: %w", err)
	}
	data = append(data, '\n')

	if dir := filepath.Dir(p); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create updates directory: %w", err)
		}
	}
	if err := os.WriteFile(p, data, 0644); err != nil {
		return fmt.Errorf("write updates: %w", err)
	}
	return nil
}

// Apply merges the updates file at p into idx and returns how many plugins
// it touched. Plugins no longer in the index are skipped. Only a stars value
// that is an integer and a stars_updated_at value that is a string are
// copied.
func (r *Refresher) Apply(idx *index.Index, p string) (int, error) {
	if err := requireIndex(idx); err != nil {
		return 0, err
	}

	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("missing updates file: %s: %w", p, domain.ErrConfiguration)
	}
	if err != nil {
		return 0, fmt.Errorf("read updates: %w", err)
	}
	if err := validateUpdates(data); err != nil {
		return 0, err
	}

	parsed := gjson.ParseBytes(data)
	var names []string
	parsed.ForEach(func(key, _ gjson.Result) bool {
		names = append(names, key.String())
		return true
	})
	sort.Strings(names)

	applied := 0
	for _, name := range names {
		e, ok := idx.Get(name)
		if !ok {
			r.logger.Debug("skipping update for unknown plugin", "plugin", name)
			continue
		}
		upd := parsed.Get(gjson.Escape(name))
		if stars := upd.Get(index.FieldStars); isInt(stars) {
			if err := e.Set(index.FieldStars, stars.Int()); err != nil {
				return applied, err
			}
		}
		if at := upd.Get(index.FieldStarsUpdatedAt); at.Type == gjson.String {
			if err := e.Set(index.FieldStarsUpdatedAt, at.String()); err != nil {
				return applied, err
			}
		}
		applied++
	}
	metrics.StarsApplied.Add(float64(applied))
	return applied, nil
}

func validateUpdates(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("updates file is not valid JSON: %w", domain.ErrStateCorruption)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode updates file: %v: %w", err, domain.ErrStateCorruption)
	}
	if err := updatesSchema.Validate(doc); err != nil {
		return fmt.Errorf("updates file must be a JSON object of objects: %v: %w", err, domain.ErrStateCorruption)
	}
	return nil
}

func requireIndex(idx *index.Index) error {
	if !idx.Found() {
		return fmt.Errorf("%s not found; download or generate it first: %w", idx.Path(), domain.ErrConfiguration)
	}
	return nil
}

func isInt(v gjson.Result) bool {
	return v.Type == gjson.Number && !strings.ContainsAny(v.Raw, ".eE")
}
