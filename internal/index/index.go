// Package index maintains the published plugin index document.
package index

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"github.com/pluginmarket/maintainer/internal/domain"
	"github.com/pluginmarket/maintainer/internal/metrics"
)

// CurrentVersion is written to documents that do not carry a version.
const CurrentVersion = 1

const schemaURL = "index.schema.json"

const schemaDoc = `{
  "type": "object",
  "properties": {
    "version": {"type": "integer"},
    "plugins": {
      "type": "object",
      "additionalProperties": {"$ref": "#/$defs/entry"}
    }
  },
  "$defs": {
    "entry": {
      "type": "object",
      "properties": {
        "title": {"type": "string"},
        "description": {"type": "string"},
        "github": {"type": "string"},
        "thumbnail": {"type": ["string", "null"]},
        "discussion": {"type": ["string", "null"]},
        "stars": {"type": ["integer", "null"]},
        "stars_updated_at": {"type": ["string", "null"]}
      }
    }
  }
}`

var schema = jsonschema.MustCompileString(schemaURL, schemaDoc)

// Index is the in-memory plugin index. It is loaded once per run, mutated,
// and saved at most once.
type Index struct {
	Version int
	Plugins map[string]*Entry

	extra  map[string]json.RawMessage
	path   string
	found  bool
	loaded []byte
	logger *slog.Logger
}

// Config holds index configuration
type Config struct {
	Path   string
	Logger *slog.Logger
}

// Load reads the index at cfg.Path. A missing file yields an empty index.
func Load(cfg Config) (*Index, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("index path is required: %w", domain.ErrConfiguration)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	idx := &Index{
		Version: CurrentVersion,
		Plugins: map[string]*Entry{},
		extra:   map[string]json.RawMessage{},
		path:    cfg.Path,
		logger:  cfg.Logger,
	}

	data, err := os.ReadFile(cfg.Path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg.Logger.Info("index not found, starting empty", "path", cfg.Path)
	case err != nil:
		return nil, fmt.Errorf("read index: %w", err)
	default:
		idx.found = true
		if err := idx.decode(data); err != nil {
			return nil, err
		}
	}

	canon, err := idx.Bytes()
	if err != nil {
		return nil, err
	}
	idx.loaded = canon

	cfg.Logger.Debug("index loaded", "path", cfg.Path, "plugin_count", len(idx.Plugins))
	return idx, nil
}

// Parse decodes index bytes without binding them to a file.
func Parse(data []byte) (*Index, error) {
	idx := &Index{
		Version: CurrentVersion,
		Plugins: map[string]*Entry{},
		extra:   map[string]json.RawMessage{},
		found:   true,
		logger:  slog.Default(),
	}
	if err := idx.decode(data); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *Index) decode(data []byte) error {
	if !gjson.ValidBytes(data) {
		return corrupt("not valid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return corrupt("must be a JSON object")
	}
	if p := root.Get("plugins"); p.Exists() && !p.IsObject() {
		return corrupt("plugins must be an object")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return corrupt(err.Error())
	}
	if err := schema.Validate(doc); err != nil {
		return corrupt(err.Error())
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return corrupt(err.Error())
	}
	for k, v := range top {
		switch k {
		case "version":
			if err := json.Unmarshal(v, &idx.Version); err != nil {
				return corrupt("version: " + err.Error())
			}
		case "plugins":
			if err := json.Unmarshal(v, &idx.Plugins); err != nil {
				return corrupt("plugins: " + err.Error())
			}
		default:
			c, err := canonical(v)
			if err != nil {
				return corrupt(k + ": " + err.Error())
			}
			idx.extra[k] = c
		}
	}
	if idx.Plugins == nil {
		idx.Plugins = map[string]*Entry{}
	}
	return nil
}

func corrupt(reason string) error {
	return fmt.Errorf("corrupt index: %s: %w", reason, domain.ErrStateCorruption)
}

// Found reports whether the index was read from an existing file.
func (idx *Index) Found() bool {
	return idx.found
}

// Path returns the file the index is bound to.
func (idx *Index) Path() string {
	return idx.path
}

// Names returns the sorted plugin names.
func (idx *Index) Names() []string {
	names := make([]string, 0, len(idx.Plugins))
	for n := range idx.Plugins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Get returns the entry for name.
func (idx *Index) Get(name string) (*Entry, bool) {
	e, ok := idx.Plugins[name]
	return e, ok
}

// PruneRemoved deletes every non-reserved entry whose plugin folder no longer
// exists. It must only run during a full rescan.
func (idx *Index) PruneRemoved(exists func(name string) (bool, error)) (int, error) {
	removed := 0
	for _, name := range idx.Names() {
		if domain.IsReserved(name) {
			continue
		}
		ok, err := exists(name)
		if err != nil {
			return removed, fmt.Errorf("check plugin %s: %w", name, err)
		}
		if ok {
			continue
		}
		delete(idx.Plugins, name)
		removed++
		idx.logger.Info("pruned index entry", "plugin", name)
	}
	metrics.IndexChanges.WithLabelValues("pruned").Add(float64(removed))
	return removed, nil
}

// Upsert regenerates the generator-owned fields of name from rec and leaves
// every other field of an existing entry untouched. Nil thumbnail or
// discussion are stored as null.
func (idx *Index) Upsert(name string, rec *domain.PluginRecord, thumbnail, discussion *string) error {
	e, ok := idx.Plugins[name]
	if !ok {
		e = NewEntry()
	}

	fields := []struct {
		key string
		val any
	}{
		{FieldTitle, strings.TrimSpace(rec.Title)},
		{FieldDescription, strings.TrimSpace(rec.Description)},
		{FieldGitHub, strings.TrimSpace(rec.GitHub)},
		{FieldThumbnail, thumbnail},
		{FieldDiscussion, discussion},
	}
	for _, f := range fields {
		if err := e.Set(f.key, f.val); err != nil {
			return fmt.Errorf("upsert %s: %w", name, err)
		}
	}

	idx.Plugins[name] = e
	metrics.IndexChanges.WithLabelValues("upserted").Inc()
	return nil
}

// Remove deletes the entry for name and reports whether one existed.
func (idx *Index) Remove(name string) bool {
	if _, ok := idx.Plugins[name]; !ok {
		return false
	}
	delete(idx.Plugins, name)
	metrics.IndexChanges.WithLabelValues("removed").Inc()
	return true
}

// Bytes returns the canonical serialization: keys sorted at every level,
// two-space indentation and a trailing newline.
func (idx *Index) Bytes() ([]byte, error) {
	doc := make(map[string]any, len(idx.extra)+2)
	for k, v := range idx.extra {
		doc[k] = v
	}
	doc["version"] = idx.Version
	doc["plugins"] = idx.Plugins

	compact, err := encode(doc)
	if err != nil {
		return nil, fmt.Errorf("encode index: %w", err)
	}

	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return nil, fmt.Errorf("indent index: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// Changed reports whether the canonical form differs from what was loaded.
func (idx *Index) Changed() (bool, error) {
	data, err := idx.Bytes()
	if err != nil {
		return false, err
	}
	return !bytes.Equal(data, idx.loaded), nil
}

// Save writes the index when its canonical form changed since Load and
// reports whether it wrote.
func (idx *Index) Save() (bool, error) {
	if idx.path == "" {
		return false, errors.New("index is not bound to a file")
	}
	data, err := idx.Bytes()
	if err != nil {
		return false, err
	}
	metrics.IndexPlugins.Set(float64(len(idx.Plugins)))
	if bytes.Equal(data, idx.loaded) {
		idx.logger.Info("index unchanged", "path", idx.path)
		return false, nil
	}

	if dir := filepath.Dir(idx.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return false, fmt.Errorf("create index directory: %w", err)
		}
	}
	if err := os.WriteFile(idx.path, data, 0644); err != nil {
		return false, fmt.Errorf("write index: %w", err)
	}

	idx.loaded = data
	idx.logger.Info("index written", "path", idx.path, "plugin_count", len(idx.Plugins))
	return true, nil
}
