// Package gitstoretest builds throwaway git repositories for tests.
package gitstoretest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	"github.com/pluginmarket/maintainer/internal/gitstore"
)

// Repo is a git repository in a temporary directory.
type Repo struct {
	t    testing.TB
	Dir  string
	repo *git.Repository
	wt   *git.Worktree
	tick int
}

// New initializes an empty repository.
func New(t testing.TB) *Repo {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	return &Repo{t: t, Dir: dir, repo: repo, wt: wt}
}

// Write creates or replaces a file and stages it.
func (r *Repo) Write(path string, data []byte) {
	r.t.Helper()

	full := filepath.Join(r.Dir, filepath.FromSlash(path))
	require.NoError(r.t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(r.t, os.WriteFile(full, data, 0644))
	_, err := r.wt.Add(path)
	require.NoError(r.t, err)
}

// WriteString is Write for text content.
func (r *Repo) WriteString(path, data string) {
	r.t.Helper()
	r.Write(path, []byte(data))
}

// Remove deletes a file and stages the deletion.
func (r *Repo) Remove(path string) {
	r.t.Helper()

	_, err := r.wt.Remove(path)
	require.NoError(r.t, err)
}

// Commit records the staged changes and returns the commit SHA.
func (r *Repo) Commit(msg string) string {
	r.t.Helper()

	r.tick++
	hash, err := r.wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "fixture",
			Email: "fixture@example.com",
			When:  time.Date(2026, 1, 1, 0, r.tick, 0, 0, time.UTC),
		},
	})
	require.NoError(r.t, err)
	return hash.String()
}

// Store opens a gitstore.Store on the repository.
func (r *Repo) Store() *gitstore.Store {
	r.t.Helper()

	s, err := gitstore.New(gitstore.Config{LocalPath: r.Dir})
	require.NoError(r.t, err)
	require.NoError(r.t, s.Open())
	return s
}
