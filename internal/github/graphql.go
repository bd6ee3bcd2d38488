package github

import (
	"context"
	"fmt"

	"github.com/shurcooL/githubv4"

	"github.com/pluginmarket/maintainer/internal/domain"
)

// PullRequestPageSize is the number of pull requests fetched per page.
const PullRequestPageSize = 100

type discussionNode struct {
	ID     string
	Title  string
	URL    string
	Body   string
	Closed bool
}

func (n discussionNode) toDiscussion() Discussion {
	return Discussion{ID: n.ID, Title: n.Title, URL: n.URL, Body: n.Body, Closed: n.Closed}
}

// CreateDiscussionInput is the input of the createDiscussion mutation.
type CreateDiscussionInput struct {
	RepositoryID githubv4.ID     `json:"repositoryId"`
	CategoryID   githubv4.ID     `json:"categoryId"`
	Title        githubv4.String `json:"title"`
	Body         githubv4.String `json:"body"`
}

// ReopenDiscussionInput is the input of the reopenDiscussion mutation.
type ReopenDiscussionInput struct {
	DiscussionID githubv4.ID `json:"discussionId"`
}

// DiscussionCategories returns the node id of owner/repo and its discussion
// categories.
func (c *Client) DiscussionCategories(ctx context.Context, owner, repo string) (string, []Category, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var q struct {
		Repository *struct {
			ID                   string
			DiscussionCategories struct {
				Nodes []struct {
					ID   string
					Name string
				}
			} `graphql:"discussionCategories(first: 100)"`
		} `graphql:"repository(owner: $owner, name: $repo)"`
	}
	variables := map[string]any{
		"owner": githubv4.String(owner),
		"repo":  githubv4.String(repo),
	}
	if err := c.gql.Query(ctx, &q, variables); err != nil {
		return "", nil, c.gqlError("query discussion categories", err)
	}
	if q.Repository == nil || q.Repository.ID == "" {
		return "", nil, fmt.Errorf("unable to access repository %s/%s, is GITHUB_TOKEN permitted: %w",
			owner, repo, domain.ErrMalformedResponse)
	}

	cats := make([]Category, 0, len(q.Repository.DiscussionCategories.Nodes))
	for _, n := range q.Repository.DiscussionCategories.Nodes {
		cats = append(cats, Category{ID: n.ID, Name: n.Name})
	}
	return q.Repository.ID, cats, nil
}

// SearchDiscussions runs a discussion search and returns the matching
// discussions in result order.
func (c *Client) SearchDiscussions(ctx context.Context, query string, first int) ([]Discussion, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var q struct {
		Search struct {
			Nodes []struct {
				Typename   string         `graphql:"__typename"`
				Discussion discussionNode `graphql:"... on Discussion"`
			}
		} `graphql:"search(query: $q, type: DISCUSSION, first: $first)"`
	}
	variables := map[string]any{
		"q":     githubv4.String(query),
		"first": githubv4.Int(first),
	}
	if err := c.gql.Query(ctx, &q, variables); err != nil {
		return nil, c.gqlError("search discussions", err)
	}

	var out []Discussion
	for _, n := range q.Search.Nodes {
		if n.Typename != "Discussion" {
			continue
		}
		out = append(out, n.Discussion.toDiscussion())
	}
	return out, nil
}

// CreateDiscussion opens a new discussion in a category.
func (c *Client) CreateDiscussion(ctx context.Context, repoID, categoryID, title, body string) (Discussion, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var m struct {
		CreateDiscussion struct {
			Discussion *discussionNode
		} `graphql:"createDiscussion(input: $input)"`
	}
	input := CreateDiscussionInput{
		RepositoryID: githubv4.ID(repoID),
		CategoryID:   githubv4.ID(categoryID),
		Title:        githubv4.String(title),
		Body:         githubv4.String(body),
	}
	if err := c.gql.Mutate(ctx, &m, input, nil); err != nil {
		return Discussion{}, c.gqlError("create discussion", err)
	}
	if m.CreateDiscussion.Discussion == nil {
		return Discussion{}, fmt.Errorf("createDiscussion returned no discussion: %w", domain.ErrMalformedResponse)
	}
	return m.CreateDiscussion.Discussion.toDiscussion(), nil
}

// ReopenDiscussion reopens a closed discussion and returns its new state.
func (c *Client) ReopenDiscussion(ctx context.Context, id string) (Discussion, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var m struct {
		ReopenDiscussion struct {
			Discussion *discussionNode
		} `graphql:"reopenDiscussion(input: $input)"`
	}
	input := ReopenDiscussionInput{DiscussionID: githubv4.ID(id)}
	if err := c.gql.Mutate(ctx, &m, input, nil); err != nil {
		return Discussion{}, c.gqlError("reopen discussion", err)
	}
	if m.ReopenDiscussion.Discussion == nil {
		return Discussion{}, fmt.Errorf("reopenDiscussion returned no discussion: %w", domain.ErrMalformedResponse)
	}
	return m.ReopenDiscussion.Discussion.toDiscussion(), nil
}

// OpenPullRequests returns one page of open pull requests ordered by last
// update, oldest first. An empty cursor starts at the first page.
func (c *Client) OpenPullRequests(ctx context.Context, owner, repo, cursor string) (PullRequestPage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var q struct {
		Repository *struct {
			PullRequests struct {
				PageInfo struct {
					HasNextPage bool
					EndCursor   string
				}
				Nodes []struct {
					Number    int
					UpdatedAt githubv4.DateTime
					IsDraft   bool
					Commits   struct {
						Nodes []struct {
							Commit struct {
								StatusCheckRollup *struct {
									State string
								}
							}
						}
					} `graphql:"commits(last: 1)"`
				}
			} `graphql:"pullRequests(states: OPEN, first: $first, after: $cursor, orderBy: {field: UPDATED_AT, direction: ASC})"`
		} `graphql:"repository(owner: $owner, name: $repo)"`
	}

	var after *githubv4.String
	if cursor != "" {
		after = githubv4.NewString(githubv4.String(cursor))
	}
	variables := map[string]any{
		"owner":  githubv4.String(owner),
		"repo":   githubv4.String(repo),
		"first":  githubv4.Int(PullRequestPageSize),
		"cursor": after,
	}
	if err := c.gql.Query(ctx, &q, variables); err != nil {
		return PullRequestPage{}, c.gqlError("query open pull requests", err)
	}
	if q.Repository == nil {
		return PullRequestPage{}, fmt.Errorf("GraphQL: missing repository %s/%s: %w", owner, repo, domain.ErrMalformedResponse)
	}

	prs := q.Repository.PullRequests
	page := PullRequestPage{
		HasNextPage: prs.PageInfo.HasNextPage,
		EndCursor:   prs.PageInfo.EndCursor,
	}
	for _, n := range prs.Nodes {
		pr := PullRequest{
			Number:    n.Number,
			UpdatedAt: n.UpdatedAt.Time,
			IsDraft:   n.IsDraft,
		}
		if len(n.Commits.Nodes) > 0 && n.Commits.Nodes[0].Commit.StatusCheckRollup != nil {
			pr.RollupState = n.Commits.Nodes[0].Commit.StatusCheckRollup.State
		}
		page.PullRequests = append(page.PullRequests, pr)
	}
	return page, nil
}
