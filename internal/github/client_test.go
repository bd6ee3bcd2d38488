package github

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/pluginmarket/maintainer/internal/domain"
)

type graphqlHandler func(query string, variables map[string]any) string

func newTestClient(t *testing.T, r chi.Router) *Client {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		Token:      "tok",
		APIURL:     srv.URL,
		UploadURL:  srv.URL,
		GraphQLURL: srv.URL + "/graphql",
	})
	require.NoError(t, err)
	return c
}

func serveGraphQL(t *testing.T, r chi.Router, h graphqlHandler) {
	t.Helper()
	r.Post("/graphql", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
		var in struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(req.Body).Decode(&in))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, h(in.Query, in.Variables))
	})
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(Config{})
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}

func TestGraphQLRaw(t *testing.T) {
	r := chi.NewRouter()
	serveGraphQL(t, r, func(query string, _ map[string]any) string {
		switch {
		case strings.Contains(query, "broken"):
			return `{"errors":[{"message":"Field 'broken' doesn't exist"}]}`
		case strings.Contains(query, "nodata"):
			return `{}`
		default:
			return `{"data":{"r0":{"stargazerCount":12},"r1":null}}`
		}
	})
	c := newTestClient(t, r)
	ctx := context.Background()

	data, err := c.GraphQL(ctx, `query { r0: repository(owner:"o", name:"a") { stargazerCount } }`, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(12), data.Get("r0.stargazerCount").Int())
	assert.Equal(t, gjson.Null, data.Get("r1").Type)

	_, err = c.GraphQL(ctx, `query { broken }`, nil)
	assert.True(t, errors.Is(err, domain.ErrTransport))
	assert.Contains(t, err.Error(), "doesn't exist")

	_, err = c.GraphQL(ctx, `query { nodata }`, nil)
	assert.True(t, errors.Is(err, domain.ErrMalformedResponse))
}

func TestDiscussionCategories(t *testing.T) {
	r := chi.NewRouter()
	serveGraphQL(t, r, func(query string, vars map[string]any) string {
		assert.Contains(t, query, "discussionCategories(first: 100)")
		if vars["repo"] == "missing" {
			return `{"data":{"repository":null}}`
		}
		return `{"data":{"repository":{"id":"R_1","discussionCategories":{"nodes":[
			{"id":"C_1","name":"General"},{"id":"C_2","name":"Plugins"}]}}}}`
	})
	c := newTestClient(t, r)

	repoID, cats, err := c.DiscussionCategories(context.Background(), "o", "r")
	require.NoError(t, err)
	assert.Equal(t, "R_1", repoID)
	assert.Equal(t, []Category{{ID: "C_1", Name: "General"}, {ID: "C_2", Name: "Plugins"}}, cats)

	_, _, err = c.DiscussionCategories(context.Background(), "o", "missing")
	assert.True(t, errors.Is(err, domain.ErrMalformedResponse))
}

func TestSearchDiscussionsSkipsOtherTypes(t *testing.T) {
	r := chi.NewRouter()
	serveGraphQL(t, r, func(query string, vars map[string]any) string {
		assert.Contains(t, query, "type: DISCUSSION")
		assert.Equal(t, "repo:o/r in:title \"Plugin: foo\"", vars["q"])
		return `{"data":{"search":{"nodes":[
			{"__typename":"Issue"},
			{"__typename":"Discussion","id":"D_1","title":"Plugin: foo","url":"https://github.com/o/r/discussions/1","body":"b","closed":true}]}}}`
	})
	c := newTestClient(t, r)

	got, err := c.SearchDiscussions(context.Background(), "repo:o/r in:title \"Plugin: foo\"", 5)
	require.NoError(t, err)
	assert.Equal(t, []Discussion{{
		ID: "D_1", Title: "Plugin: foo", URL: "https://github.com/o/r/discussions/1", Body: "b", Closed: true,
	}}, got)
}

func TestCreateAndReopenDiscussion(t *testing.T) {
	r := chi.NewRouter()
	serveGraphQL(t, r, func(query string, vars map[string]any) string {
		input, _ := vars["input"].(map[string]any)
		switch {
		case strings.Contains(query, "createDiscussion"):
			assert.Equal(t, "R_1", input["repositoryId"])
			assert.Equal(t, "C_2", input["categoryId"])
			return `{"data":{"createDiscussion":{"discussion":{"id":"D_9","title":"Plugin: foo","url":"u","body":"b","closed":false}}}}`
		case strings.Contains(query, "reopenDiscussion"):
			assert.Equal(t, "D_9", input["discussionId"])
			return `{"data":{"reopenDiscussion":{"discussion":null}}}`
		}
		return `{}`
	})
	c := newTestClient(t, r)
	ctx := context.Background()

	d, err := c.CreateDiscussion(ctx, "R_1", "C_2", "Plugin: foo", "b")
	require.NoError(t, err)
	assert.Equal(t, "D_9", d.ID)

	_, err = c.ReopenDiscussion(ctx, "D_9")
	assert.True(t, errors.Is(err, domain.ErrMalformedResponse))
}

func TestOpenPullRequests(t *testing.T) {
	r := chi.NewRouter()
	serveGraphQL(t, r, func(query string, vars map[string]any) string {
		assert.Contains(t, query, "orderBy: {field: UPDATED_AT, direction: ASC}")
		if vars["cursor"] == nil {
			return `{"data":{"repository":{"pullRequests":{
				"pageInfo":{"hasNextPage":true,"endCursor":"c1"},
				"nodes":[{"number":3,"updatedAt":"2026-01-02T03:04:05Z","isDraft":false,
					"commits":{"nodes":[{"commit":{"statusCheckRollup":{"state":"FAILURE"}}}]}}]}}}}`
		}
		assert.Equal(t, "c1", vars["cursor"])
		return `{"data":{"repository":{"pullRequests":{
			"pageInfo":{"hasNextPage":false,"endCursor":null},
			"nodes":[{"number":4,"updatedAt":"2026-01-03T00:00:00Z","isDraft":true,
				"commits":{"nodes":[{"commit":{"statusCheckRollup":null}}]}}]}}}}`
	})
	c := newTestClient(t, r)
	ctx := context.Background()

	page, err := c.OpenPullRequests(ctx, "o", "r", "")
	require.NoError(t, err)
	require.Len(t, page.PullRequests, 1)
	assert.True(t, page.HasNextPage)
	assert.Equal(t, "c1", page.EndCursor)
	assert.Equal(t, 3, page.PullRequests[0].Number)
	assert.Equal(t, "FAILURE", page.PullRequests[0].RollupState)
	assert.Equal(t, 2026, page.PullRequests[0].UpdatedAt.Year())

	page, err = c.OpenPullRequests(ctx, "o", "r", "c1")
	require.NoError(t, err)
	assert.False(t, page.HasNextPage)
	assert.True(t, page.PullRequests[0].IsDraft)
	assert.Empty(t, page.PullRequests[0].RollupState)
}

func TestHasDeclaration(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/repos/{owner}/{repo}/contents/plugin.yaml", func(w http.ResponseWriter, req *http.Request) {
		if chi.URLParam(req, "repo") == "good" {
			writeJSON(w, http.StatusOK, `{"type":"file","name":"plugin.yaml","path":"plugin.yaml","content":""}`)
			return
		}
		writeJSON(w, http.StatusNotFound, `{"message":"Not Found"}`)
	})
	c := newTestClient(t, r)

	assert.NoError(t, c.HasDeclaration(context.Background(), "o", "good"))

	err := c.HasDeclaration(context.Background(), "o", "bad")
	var te *domain.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusNotFound, te.Status)
}

func TestCloseAndComment(t *testing.T) {
	var calls []string
	r := chi.NewRouter()
	r.Patch("/repos/o/r/pulls/{number}", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "closed", body["state"])
		calls = append(calls, "close "+chi.URLParam(req, "number"))
		writeJSON(w, http.StatusOK, `{"number":7,"state":"closed"}`)
	})
	r.Post("/repos/o/r/issues/{number}/comments", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		calls = append(calls, "comment "+chi.URLParam(req, "number")+" "+body["body"].(string))
		writeJSON(w, http.StatusCreated, `{"id":1}`)
	})
	c := newTestClient(t, r)
	ctx := context.Background()

	require.NoError(t, c.ClosePullRequest(ctx, "o", "r", 7))
	require.NoError(t, c.CommentOnIssue(ctx, "o", "r", 7, "bye"))
	assert.Equal(t, []string{"close 7", "comment 7 bye"}, calls)
}

func TestReleaseLifecycle(t *testing.T) {
	uploads := 0
	r := chi.NewRouter()
	r.Get("/repos/o/r/releases/tags/{tag}", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"message":"Not Found"}`)
	})
	r.Post("/repos/o/r/releases", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "generated-index", body["tag_name"])
		assert.Equal(t, false, body["draft"])
		writeJSON(w, http.StatusCreated, `{"id":11,"tag_name":"generated-index","html_url":"https://github.com/o/r/releases/11"}`)
	})
	r.Get("/repos/o/r/releases/11", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":11,"tag_name":"generated-index","assets":[
			{"id":5,"name":"index.json","url":"https://api.example/assets/5"}]}`)
	})
	r.Post("/repos/o/r/releases/11/assets", func(w http.ResponseWriter, req *http.Request) {
		uploads++
		assert.Equal(t, "index.json", req.URL.Query().Get("name"))
		assert.Equal(t, "application/octet-stream", req.Header.Get("Content-Type"))
		if uploads == 1 {
			writeJSON(w, http.StatusUnprocessableEntity, `{"message":"Validation Failed"}`)
			return
		}
		data, _ := io.ReadAll(req.Body)
		assert.Equal(t, "{}\n", string(data))
		writeJSON(w, http.StatusCreated, `{"id":6,"name":"index.json"}`)
	})
	r.Delete("/repos/o/r/releases/assets/5", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	c := newTestClient(t, r)
	ctx := context.Background()

	_, err := c.ReleaseByTag(ctx, "o", "r", "generated-index")
	require.True(t, errors.Is(err, ErrNotFound))

	rel, err := c.CreateRelease(ctx, "o", "r", NewRelease{TagName: "generated-index", Name: "Generated Index"})
	require.NoError(t, err)
	assert.Equal(t, int64(11), rel.ID)

	rel, err = c.Release(ctx, "o", "r", rel.ID)
	require.NoError(t, err)
	require.Len(t, rel.Assets, 1)

	_, err = c.UploadAsset(ctx, "o", "r", rel.ID, "index.json", []byte("{}\n"))
	require.True(t, errors.Is(err, ErrAssetExists))

	require.NoError(t, c.DeleteAsset(ctx, "o", "r", rel.Assets[0].ID))
	asset, err := c.UploadAsset(ctx, "o", "r", rel.ID, "index.json", []byte("{}\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(6), asset.ID)
}

func TestDownload(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/assets/{id}", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "application/octet-stream", req.Header.Get("Accept"))
		if chi.URLParam(req, "id") == "1" {
			_, _ = io.WriteString(w, `{"version":1}`)
			return
		}
		http.Error(w, "gone", http.StatusGone)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	c, err := New(Config{Token: "tok"})
	require.NoError(t, err)

	data, err := c.Download(context.Background(), srv.URL+"/assets/1")
	require.NoError(t, err)
	assert.Equal(t, `{"version":1}`, string(data))

	_, err = c.Download(context.Background(), srv.URL+"/assets/2")
	var te *domain.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusGone, te.Status)
	assert.Contains(t, te.Body, "gone")
}
