package index

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pluginmarket/maintainer/internal/domain"
)

func ptr(s string) *string { return &s }

func record(title string) *domain.PluginRecord {
	return &domain.PluginRecord{
		Title:       title,
		Description: title + " description",
		GitHub:      "https://github.com/acme/" + title,
	}
}

func writeIndex(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadMissingStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")

	idx, err := Load(Config{Path: path})
	require.NoError(t, err)
	assert.False(t, idx.Found())
	assert.Equal(t, CurrentVersion, idx.Version)
	assert.Empty(t, idx.Plugins)

	wrote, err := idx.Save()
	require.NoError(t, err)
	assert.False(t, wrote, "an untouched empty index is not written")
	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadCorrupt(t *testing.T) {
	tests := map[string]string{
		"not json":           "{nope",
		"array":              "[1, 2]",
		"plugins not object": `{"version": 1, "plugins": []}`,
		"entry not object":   `{"version": 1, "plugins": {"a": 3}}`,
		"title not string":   `{"version": 1, "plugins": {"a": {"title": 3}}}`,
		"version not int":    `{"version": "one", "plugins": {}}`,
		"stars not int":      `{"plugins": {"a": {"stars": "many"}}}`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(Config{Path: writeIndex(t, content)})
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrStateCorruption), err.Error())
		})
	}
}

func TestRoundTripGeneratorFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	idx, err := Load(Config{Path: path})
	require.NoError(t, err)

	require.NoError(t, idx.Upsert("weather", record("weather"),
		ptr("https://raw.githubusercontent.com/acme/market/main/plugins/weather/thumbnail.png"),
		ptr("https://github.com/acme/market/discussions/7")))
	require.NoError(t, idx.Upsert("notes", record("notes"), nil, nil))

	wrote, err := idx.Save()
	require.NoError(t, err)
	assert.True(t, wrote)

	again, err := Load(Config{Path: path})
	require.NoError(t, err)
	for _, name := range []string{"weather", "notes"} {
		before, _ := idx.Get(name)
		after, ok := again.Get(name)
		require.True(t, ok, name)
		assert.Equal(t, before.Title(), after.Title())
		assert.Equal(t, before.Description(), after.Description())
		assert.Equal(t, before.GitHub(), after.GitHub())
		assert.Equal(t, before.Thumbnail(), after.Thumbnail())
		assert.Equal(t, before.Discussion(), after.Discussion())
	}

	notes, _ := again.Get("notes")
	raw, ok := notes.Raw(FieldThumbnail)
	require.True(t, ok)
	assert.Equal(t, "null", string(raw))

	wrote, err = again.Save()
	require.NoError(t, err)
	assert.False(t, wrote, "reloading and saving unchanged content is a no-op")
}

func TestUpsertPreservesOtherFields(t *testing.T) {
	path := writeIndex(t, `{
  "version": 1,
  "plugins": {
    "weather": {
      "title": "Old",
      "description": "Old description",
      "github": "https://github.com/acme/old",
      "stars": 42,
      "stars_updated_at": "2026-01-01T00:00:00+00:00",
      "featured": {"rank": 2, "by": "staff"}
    }
  }
}
`)
	idx, err := Load(Config{Path: path})
	require.NoError(t, err)

	require.NoError(t, idx.Upsert("weather", record("weather"), nil, ptr("https://github.com/acme/market/discussions/1")))

	e, _ := idx.Get("weather")
	stars, ok := e.Stars()
	require.True(t, ok)
	assert.Equal(t, 42, stars)
	assert.Equal(t, "weather", e.Title())
	assert.Equal(t, "https://github.com/acme/market/discussions/1", e.Discussion())

	raw, ok := e.Raw("featured")
	require.True(t, ok)
	assert.JSONEq(t, `{"rank": 2, "by": "staff"}`, string(raw))
	raw, _ = e.Raw(FieldStarsUpdatedAt)
	assert.Equal(t, `"2026-01-01T00:00:00+00:00"`, string(raw))
}

func TestSerializationIsOrderIndependent(t *testing.T) {
	build := func(names ...string) []byte {
		idx, err := Load(Config{Path: filepath.Join(t.TempDir(), "index.json")})
		require.NoError(t, err)
		for _, n := range names {
			require.NoError(t, idx.Upsert(n, record(n), nil, nil))
			e, _ := idx.Get(n)
			require.NoError(t, e.Set("extra", map[string]int{"z": 1, "a": 2}))
		}
		data, err := idx.Bytes()
		require.NoError(t, err)
		return data
	}

	a := build("alpha", "beta", "gamma")
	b := build("gamma", "alpha", "beta")
	if diff := cmp.Diff(string(a), string(b)); diff != "" {
		t.Errorf("serialization differs (-first +second):\n%s", diff)
	}
}

func TestBytesFormat(t *testing.T) {
	idx, err := Parse([]byte(`{"plugins":{"b":{"title":"B","github":"x"},"a":{"title":"A & co"}},"version":1}`))
	require.NoError(t, err)

	data, err := idx.Bytes()
	require.NoError(t, err)
	want := `{
  "plugins": {
    "a": {
      "title": "A & co"
    },
    "b": {
      "github": "x",
      "title": "B"
    }
  },
  "version": 1
}
`
	if diff := cmp.Diff(want, string(data)); diff != "" {
		t.Errorf("unexpected serialization (-want +got):\n%s", diff)
	}
}

func TestPreservesUnknownTopLevelKeys(t *testing.T) {
	path := writeIndex(t, `{"version": 1, "generated_by": {"tool": "x", "at": 12345678901234567890}, "plugins": {}}`)
	idx, err := Load(Config{Path: path})
	require.NoError(t, err)

	data, err := idx.Bytes()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"at": 12345678901234567890`)
	assert.Contains(t, string(data), `"tool": "x"`)
}

func TestRemoveAndPrune(t *testing.T) {
	idx, err := Parse([]byte(`{"version": 1, "plugins": {"a": {}, "b": {}, "_internal": {}, "c": {}}}`))
	require.NoError(t, err)

	assert.True(t, idx.Remove("c"))
	assert.False(t, idx.Remove("c"))

	present := map[string]bool{"a": true}
	var asked []string
	removed, err := idx.PruneRemoved(func(name string) (bool, error) {
		asked = append(asked, name)
		return present[name], nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"a", "b"}, asked, "reserved names are never checked")
	assert.Equal(t, []string{"_internal", "a"}, idx.Names())
}

func TestPruneStopsOnError(t *testing.T) {
	idx, err := Parse([]byte(`{"plugins": {"a": {}}}`))
	require.NoError(t, err)

	_, err = idx.PruneRemoved(func(string) (bool, error) { return false, errors.New("boom") })
	require.Error(t, err)
	assert.Equal(t, []string{"a"}, idx.Names())
}

func TestSaveWritesOnlyOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "index.json")
	idx, err := Load(Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, idx.Upsert("a", record("a"), nil, nil))

	changed, err := idx.Changed()
	require.NoError(t, err)
	assert.True(t, changed)

	wrote, err := idx.Save()
	require.NoError(t, err)
	assert.True(t, wrote)

	require.NoError(t, idx.Upsert("a", record("a"), nil, nil))
	wrote, err = idx.Save()
	require.NoError(t, err)
	assert.False(t, wrote, "re-upserting identical content does not rewrite")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), data[len(data)-1])
}
