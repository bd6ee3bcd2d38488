package gitstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pluginmarket/maintainer/internal/gitstore"
	"github.com/pluginmarket/maintainer/internal/gitstore/gitstoretest"
)

func TestNewRequiresLocalPath(t *testing.T) {
	_, err := gitstore.New(gitstore.Config{})
	require.Error(t, err)
}

func TestDiffNames(t *testing.T) {
	r := gitstoretest.New(t)
	r.WriteString("README.md", "hello\n")
	r.WriteString("plugins/keep/plugin.yaml", "title: keep\n")
	r.WriteString("plugins/gone/plugin.yaml", "title: gone\n")
	before := r.Commit("base")

	r.WriteString("plugins/keep/plugin.yaml", "title: keep v2\n")
	r.WriteString("plugins/new/plugin.yaml", "title: new\n")
	r.Remove("plugins/gone/plugin.yaml")
	after := r.Commit("change")

	changes, err := r.Store().DiffNames(context.Background(), before, after)
	require.NoError(t, err)

	assert.Equal(t, []gitstore.Change{
		{Status: gitstore.StatusDeleted, Path: "plugins/gone/plugin.yaml"},
		{Status: gitstore.StatusModified, Path: "plugins/keep/plugin.yaml"},
		{Status: gitstore.StatusAdded, Path: "plugins/new/plugin.yaml"},
	}, changes)
}

func TestDiffNamesDetectsRenames(t *testing.T) {
	r := gitstoretest.New(t)
	content := "title: moved\ndescription: a long enough body to be recognised as the same blob\n"
	r.WriteString("plugins/old/plugin.yaml", content)
	before := r.Commit("base")

	r.Remove("plugins/old/plugin.yaml")
	r.WriteString("plugins/new/plugin.yaml", content)
	after := r.Commit("rename")

	changes, err := r.Store().DiffNames(context.Background(), before, after)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, gitstore.StatusRenamed, changes[0].Status)
	assert.Equal(t, "plugins/new/plugin.yaml", changes[0].Path)
	assert.Equal(t, "plugins/old/plugin.yaml", changes[0].OldPath)
}

func TestListFiles(t *testing.T) {
	r := gitstoretest.New(t)
	r.WriteString("README.md", "x")
	r.WriteString("plugins/a/plugin.yaml", "x")
	r.WriteString("plugins/a/thumbnail.png", "x")
	r.WriteString("plugins/b/plugin.yaml", "x")
	head := r.Commit("init")
	s := r.Store()

	files, err := s.ListFiles(head, "plugins")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"plugins/a/plugin.yaml",
		"plugins/a/thumbnail.png",
		"plugins/b/plugin.yaml",
	}, files)

	files, err = s.ListFiles(head, "plugins/a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"plugins/a/plugin.yaml", "plugins/a/thumbnail.png"}, files)

	files, err = s.ListFiles(head, "plugins/missing")
	require.NoError(t, err)
	assert.Empty(t, files)

	all, err := s.ListFiles(head, "")
	require.NoError(t, err)
	assert.Contains(t, all, "README.md")
}

func TestReadFileAndExists(t *testing.T) {
	r := gitstoretest.New(t)
	r.WriteString("plugins/a/plugin.yaml", "title: A\n")
	first := r.Commit("one")
	r.WriteString("plugins/a/plugin.yaml", "title: B\n")
	second := r.Commit("two")
	s := r.Store()

	data, err := s.ReadFile(first, "plugins/a/plugin.yaml")
	require.NoError(t, err)
	assert.Equal(t, "title: A\n", string(data))

	data, err = s.ReadFile(second, "plugins/a/plugin.yaml")
	require.NoError(t, err)
	assert.Equal(t, "title: B\n", string(data))

	_, err = s.ReadFile(second, "plugins/a/missing.yaml")
	assert.True(t, errors.Is(err, gitstore.ErrNotFound))

	ok, err := s.Exists(second, "plugins/a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(second, "plugins/zzz")
	require.NoError(t, err)
	assert.False(t, ok)

	head, err := s.Head()
	require.NoError(t, err)
	assert.Equal(t, second, head)
}

func TestResolveUnknownRevision(t *testing.T) {
	r := gitstoretest.New(t)
	r.WriteString("a", "a")
	r.Commit("init")

	_, err := r.Store().ListFiles("0123456789abcdef0123456789abcdef01234567", "")
	require.Error(t, err)
}
