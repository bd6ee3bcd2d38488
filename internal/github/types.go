package github

import "time"

// Category is a discussion category of a repository.
type Category struct {
	ID   string
	Name string
}

// Discussion is the subset of a GitHub discussion the sync needs.
type Discussion struct {
	ID     string
	Title  string
	URL    string
	Body   string
	Closed bool
}

// PullRequest is an open pull request as seen by the stale sweep.
type PullRequest struct {
	Number    int
	UpdatedAt time.Time
	IsDraft   bool
	// RollupState is the statusCheckRollup state of the head commit, or ""
	// when the commit has no checks.
	RollupState string
}

// PullRequestPage is one page of open pull requests, oldest update first.
type PullRequestPage struct {
	PullRequests []PullRequest
	HasNextPage  bool
	EndCursor    string
}

// Release is a GitHub release with its assets.
type Release struct {
	ID        int64
	TagName   string
	Name      string
	HTMLURL   string
	UploadURL string
	Assets    []Asset
}

// Asset is a file attached to a release.
type Asset struct {
	ID                 int64
	Name               string
	URL                string
	BrowserDownloadURL string
}

// NewRelease describes a release to create.
type NewRelease struct {
	TagName         string
	TargetCommitish string
	Name            string
	Body            string
}
