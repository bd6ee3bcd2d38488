package github

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	gh "github.com/google/go-github/v84/github"

	"github.com/pluginmarket/maintainer/internal/domain"
)

// ErrAssetExists is returned by UploadAsset when the release already has an
// asset with the same name.
var ErrAssetExists = errors.New("asset already exists")

// HasDeclaration checks that owner/repo has a plugin.yaml at the root of its
// default branch.
func (c *Client) HasDeclaration(ctx context.Context, owner, repo string) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	file, _, resp, err := c.rest.Repositories.GetContents(ctx, owner, repo, domain.DeclarationFile, nil)
	if err != nil {
		return restError(http.MethodGet, fmt.Sprintf("repos/%s/%s/contents/%s", owner, repo, domain.DeclarationFile), resp, err)
	}
	if file == nil {
		return fmt.Errorf("%s is not a file: %w", domain.DeclarationFile, domain.ErrMalformedResponse)
	}
	return nil
}

// ClosePullRequest sets the state of a pull request to closed.
func (c *Client) ClosePullRequest(ctx context.Context, owner, repo string, number int) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	_, resp, err := c.rest.PullRequests.Edit(ctx, owner, repo, number, &gh.PullRequest{State: gh.Ptr("closed")})
	return restError(http.MethodPatch, fmt.Sprintf("repos/%s/%s/pulls/%d", owner, repo, number), resp, err)
}

// CommentOnIssue posts a comment on an issue or pull request.
func (c *Client) CommentOnIssue(ctx context.Context, owner, repo string, number int, body string) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	_, resp, err := c.rest.Issues.CreateComment(ctx, owner, repo, number, &gh.IssueComment{Body: gh.Ptr(body)})
	return restError(http.MethodPost, fmt.Sprintf("repos/%s/%s/issues/%d/comments", owner, repo, number), resp, err)
}

// ReleaseByTag returns the release for tag, or ErrNotFound.
func (c *Client) ReleaseByTag(ctx context.Context, owner, repo, tag string) (*Release, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	rel, resp, err := c.rest.Repositories.GetReleaseByTag(ctx, owner, repo, tag)
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("release tag %s: %w", tag, ErrNotFound)
	}
	if err != nil {
		return nil, restError(http.MethodGet, fmt.Sprintf("repos/%s/%s/releases/tags/%s", owner, repo, tag), resp, err)
	}
	return toRelease(rel), nil
}

// Release returns a release by id.
func (c *Client) Release(ctx context.Context, owner, repo string, id int64) (*Release, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	rel, resp, err := c.rest.Repositories.GetRelease(ctx, owner, repo, id)
	if err != nil {
		return nil, restError(http.MethodGet, fmt.Sprintf("repos/%s/%s/releases/%d", owner, repo, id), resp, err)
	}
	return toRelease(rel), nil
}

// CreateRelease publishes a new, non-draft release.
func (c *Client) CreateRelease(ctx context.Context, owner, repo string, r NewRelease) (*Release, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	in := &gh.RepositoryRelease{
		TagName:    gh.Ptr(r.TagName),
		Name:       gh.Ptr(r.Name),
		Body:       gh.Ptr(r.Body),
		Draft:      gh.Ptr(false),
		Prerelease: gh.Ptr(false),
	}
	if r.TargetCommitish != "" {
		in.TargetCommitish = gh.Ptr(r.TargetCommitish)
	}
	rel, resp, err := c.rest.Repositories.CreateRelease(ctx, owner, repo, in)
	if err != nil {
		return nil, restError(http.MethodPost, fmt.Sprintf("repos/%s/%s/releases", owner, repo), resp, err)
	}
	return toRelease(rel), nil
}

// UploadAsset attaches data to a release under name. It returns
// ErrAssetExists when GitHub rejects the upload with 422.
func (c *Client) UploadAsset(ctx context.Context, owner, repo string, releaseID int64, name string, data []byte) (*Asset, error) {
	ctx, cancel := context.WithTimeout(ctx, c.transferTimeout)
	defer cancel()

	u := fmt.Sprintf("repos/%s/%s/releases/%d/assets?name=%s", owner, repo, releaseID, url.QueryEscape(name))
	req, err := c.rest.NewUploadRequest(u, bytes.NewReader(data), int64(len(data)), "application/octet-stream")
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}

	asset := new(gh.ReleaseAsset)
	resp, err := c.rest.Do(ctx, req, asset)
	if resp != nil && resp.StatusCode == http.StatusUnprocessableEntity {
		return nil, fmt.Errorf("upload %s: %w", name, ErrAssetExists)
	}
	if err != nil {
		return nil, restError(http.MethodPost, u, resp, err)
	}
	a := toAsset(asset)
	return &a, nil
}

// DeleteAsset removes a release asset.
func (c *Client) DeleteAsset(ctx context.Context, owner, repo string, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	resp, err := c.rest.Repositories.DeleteReleaseAsset(ctx, owner, repo, id)
	return restError(http.MethodDelete, fmt.Sprintf("repos/%s/%s/releases/assets/%d", owner, repo, id), resp, err)
}

func toRelease(r *gh.RepositoryRelease) *Release {
	out := &Release{
		ID:        r.GetID(),
		TagName:   r.GetTagName(),
		Name:      r.GetName(),
		HTMLURL:   r.GetHTMLURL(),
		UploadURL: r.GetUploadURL(),
	}
	for _, a := range r.Assets {
		out.Assets = append(out.Assets, toAsset(a))
	}
	return out
}

func toAsset(a *gh.ReleaseAsset) Asset {
	return Asset{
		ID:                 a.GetID(),
		Name:               a.GetName(),
		URL:                a.GetURL(),
		BrowserDownloadURL: a.GetBrowserDownloadURL(),
	}
}
