package sync

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pluginmarket/maintainer/internal/changeset"
	"github.com/pluginmarket/maintainer/internal/domain"
)

func TestResolveRange(t *testing.T) {
	p := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(p, []byte(`{
		"ref": "refs/heads/main",
		"before": "1111111111111111111111111111111111111111",
		"after": "2222222222222222222222222222222222222222",
		"repository": {"full_name": "o/r"}
	}`), 0644))

	r, err := ResolveRange(changeset.Range{}, p)
	require.NoError(t, err)
	assert.Equal(t, "1111111111111111111111111111111111111111", r.Before)
	assert.Equal(t, "2222222222222222222222222222222222222222", r.After)

	r, err = ResolveRange(changeset.Range{Before: "b", After: "a"}, p)
	require.NoError(t, err)
	assert.Equal(t, changeset.Range{Before: "b", After: "a"}, r)

	r, err = ResolveRange(changeset.Range{All: true}, "")
	require.NoError(t, err)
	assert.Equal(t, changeset.Range{All: true}, r)
}

func TestReadPushEventInvalid(t *testing.T) {
	p := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(p, []byte("not json"), 0644))

	_, err := ReadPushEvent(p)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}

func TestParseTasks(t *testing.T) {
	got, err := ParseTasks(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"discussions"}, got)

	got, err = ParseTasks([]string{"discussions"})
	require.NoError(t, err)
	assert.Equal(t, []string{"discussions"}, got)

	_, err = ParseTasks([]string{"discussions", "thumbnails"})
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}
