package index

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/pluginmarket/maintainer/internal/domain"
)

// RawContentBase is the host serving raw repository files.
const RawContentBase = "https://raw.githubusercontent.com"

// Lister lists file paths under a prefix at a commit.
type Lister interface {
	ListFiles(commit, prefix string) ([]string, error)
}

// Thumbnails renders thumbnail URLs of plugin folders at a commit against
// the branch the index is published for.
type Thumbnails struct {
	Source Lister
	Commit string
	Owner  string
	Repo   string
	Branch string
}

// URL returns the raw URL of the thumbnail in plugins/<name>, or nil if the
// folder has none.
func (t Thumbnails) URL(name string) (*string, error) {
	dir := path.Join(domain.PluginsDir, name)
	files, err := t.Source.ListFiles(t.Commit, dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	for _, f := range files {
		base := strings.TrimPrefix(f, dir+"/")
		if strings.Contains(base, "/") {
			continue
		}
		ext := path.Ext(base)
		if !domain.IsImageExt(strings.ToLower(ext)) {
			continue
		}
		if !strings.EqualFold(strings.TrimSuffix(base, ext), domain.ThumbnailBasename) {
			continue
		}
		u := RawURL(t.Owner, t.Repo, t.Branch, path.Join(dir, base))
		return &u, nil
	}
	return nil, nil
}

// RawURL builds https://raw.githubusercontent.com/<owner>/<repo>/<branch>/<path>.
func RawURL(owner, repo, branch, p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join([]string{RawContentBase, owner, repo, branch, strings.Join(segs, "/")}, "/")
}
