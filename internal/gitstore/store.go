package gitstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/utils/merkletrie"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrNotFound is returned when a path does not exist at a commit.
var ErrNotFound = errors.New("path not found")

// Status of a changed path between two commits.
type Status string

const (
	StatusAdded    Status = "A"
	StatusModified Status = "M"
	StatusDeleted  Status = "D"
	StatusRenamed  Status = "R"
)

// Change is one entry of a name-status diff.
type Change struct {
	Status Status
	// Path is the path after the change, or the removed path for deletions.
	Path    string
	OldPath string
}

// Store answers read-only queries against commits of a git repository.
type Store struct {
	config Config
	repo   *git.Repository
	trees  *lru.Cache[plumbing.Hash, *object.Tree]
	logger *slog.Logger
}

// Config holds git store configuration
type Config struct {
	// RepoURL is only needed when the store has to clone LocalPath first.
	RepoURL   string
	Branch    string
	LocalPath string
	Token     string
	TreeCache int
	Logger    *slog.Logger
}

// New creates a new git store instance
func New(cfg Config) (*Store, error) {
	if cfg.LocalPath == "" {
		return nil, errors.New("local path is required")
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.TreeCache <= 0 {
		cfg.TreeCache = 16
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	trees, err := lru.New[plumbing.Hash, *object.Tree](cfg.TreeCache)
	if err != nil {
		return nil, fmt.Errorf("failed to create tree cache: %w", err)
	}

	return &Store{
		config: cfg,
		trees:  trees,
		logger: cfg.Logger,
	}, nil
}

// Open attaches the store to the repository at LocalPath, searching parent
// directories for the .git folder.
func (s *Store) Open() error {
	repo, err := git.PlainOpenWithOptions(s.config.LocalPath, &git.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		return fmt.Errorf("open repository %s: %w", s.config.LocalPath, err)
	}
	s.repo = repo
	return nil
}

// Clone performs a full clone of RepoURL into LocalPath.
func (s *Store) Clone(ctx context.Context) error {
	if s.config.RepoURL == "" {
		return errors.New("repo URL is required")
	}

	if err := os.MkdirAll(filepath.Dir(s.config.LocalPath), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	if err := os.RemoveAll(s.config.LocalPath); err != nil {
		return fmt.Errorf("failed to clean existing directory: %w", err)
	}

	s.logger.Info("cloning repository",
		"url", s.config.RepoURL,
		"branch", s.config.Branch,
		"path", s.config.LocalPath,
	)

	cloneOpts := &git.CloneOptions{
		URL:           s.config.RepoURL,
		Auth:          s.auth(),
		SingleBranch:  true,
		ReferenceName: plumbing.NewBranchReferenceName(s.config.Branch),
	}

	repo, err := git.PlainCloneContext(ctx, s.config.LocalPath, false, cloneOpts)
	if err != nil {
		return fmt.Errorf("clone failed: %w", err)
	}
	s.repo = repo

	head, err := s.Head()
	if err != nil {
		return err
	}
	s.logger.Info("clone completed", "commit", head)
	return nil
}

// Head returns the commit SHA HEAD points at.
func (s *Store) Head() (string, error) {
	if s.repo == nil {
		return "", errors.New("repository not initialized")
	}
	ref, err := s.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to get HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}

// Resolve turns a revision (SHA, branch, HEAD) into a commit hash.
func (s *Store) Resolve(rev string) (plumbing.Hash, error) {
	if s.repo == nil {
		return plumbing.ZeroHash, errors.New("repository not initialized")
	}
	h, err := s.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve %q: %w", rev, err)
	}
	return *h, nil
}

// DiffNames lists the paths that differ between two commits, like
// `git diff --name-status before..after` with rename detection.
func (s *Store) DiffNames(ctx context.Context, before, after string) ([]Change, error) {
	from, err := s.tree(before)
	if err != nil {
		return nil, err
	}
	to, err := s.tree(after)
	if err != nil {
		return nil, err
	}

	changes, err := object.DiffTreeWithOptions(ctx, from, to, object.DefaultDiffTreeOptions)
	if err != nil {
		return nil, fmt.Errorf("diff %s..%s: %w", before, after, err)
	}

	out := make([]Change, 0, len(changes))
	for _, c := range changes {
		action, err := c.Action()
		if err != nil {
			return nil, fmt.Errorf("classify change: %w", err)
		}
		switch {
		case action == merkletrie.Insert:
			out = append(out, Change{Status: StatusAdded, Path: c.To.Name})
		case action == merkletrie.Delete:
			out = append(out, Change{Status: StatusDeleted, Path: c.From.Name})
		case c.From.Name != c.To.Name:
			out = append(out, Change{Status: StatusRenamed, Path: c.To.Name, OldPath: c.From.Name})
		default:
			out = append(out, Change{Status: StatusModified, Path: c.To.Name})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Path < out[j].Path
	})
	return out, nil
}

// ListFiles returns every file path under prefix at commit, like
// `git ls-tree -r --name-only <commit> -- <prefix>`. An empty prefix lists
// the whole tree. A prefix that does not exist yields no paths.
func (s *Store) ListFiles(commit, prefix string) ([]string, error) {
	tree, err := s.tree(commit)
	if err != nil {
		return nil, err
	}

	dir := strings.Trim(prefix, "/")
	if dir != "" {
		sub, err := tree.Tree(dir)
		if errors.Is(err, object.ErrDirectoryNotFound) || errors.Is(err, object.ErrEntryNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("lookup %s at %s: %w", dir, commit, err)
		}
		tree = sub
	}

	var files []string
	err = tree.Files().ForEach(func(f *object.File) error {
		if dir == "" {
			files = append(files, f.Name)
		} else {
			files = append(files, dir+"/"+f.Name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s at %s: %w", dir, commit, err)
	}

	sort.Strings(files)
	return files, nil
}

// ReadFile reads a file's raw bytes at commit.
func (s *Store) ReadFile(commit, path string) ([]byte, error) {
	tree, err := s.tree(commit)
	if err != nil {
		return nil, err
	}

	f, err := tree.File(path)
	if errors.Is(err, object.ErrFileNotFound) || errors.Is(err, object.ErrDirectoryNotFound) || errors.Is(err, object.ErrEntryNotFound) {
		return nil, fmt.Errorf("%s at %s: %w", path, commit, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s at %s: %w", path, commit, err)
	}

	reader, err := f.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return io.ReadAll(reader)
}

// Exists reports whether path names a file or directory at commit.
func (s *Store) Exists(commit, path string) (bool, error) {
	tree, err := s.tree(commit)
	if err != nil {
		return false, err
	}
	_, err = tree.FindEntry(strings.Trim(path, "/"))
	if errors.Is(err, object.ErrEntryNotFound) || errors.Is(err, object.ErrDirectoryNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup %s at %s: %w", path, commit, err)
	}
	return true, nil
}

// Branch returns the configured branch
func (s *Store) Branch() string {
	return s.config.Branch
}

func (s *Store) tree(rev string) (*object.Tree, error) {
	hash, err := s.Resolve(rev)
	if err != nil {
		return nil, err
	}
	if t, ok := s.trees.Get(hash); ok {
		return t, nil
	}

	commit, err := s.repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit %s: %w", rev, err)
	}
	t, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get tree of %s: %w", rev, err)
	}

	s.trees.Add(hash, t)
	return t, nil
}

func (s *Store) auth() transport.AuthMethod {
	if s.config.Token == "" {
		return nil
	}
	return &http.BasicAuth{
		Username: "x-access-token",
		Password: s.config.Token,
	}
}
