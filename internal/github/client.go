// Package github talks to the GitHub REST and GraphQL APIs on behalf of the
// maintenance commands.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v84/github"
	"github.com/shurcooL/githubv4"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"github.com/pluginmarket/maintainer/internal/domain"
	"github.com/pluginmarket/maintainer/internal/metrics"
)

// Defaults for the public GitHub service.
const (
	DefaultAPIURL     = "https://api.github.com/"
	DefaultUploadURL  = "https://uploads.github.com/"
	DefaultGraphQLURL = "https://api.github.com/graphql"
	userAgent         = "plugin-marketplace-maintainer"
)

// ErrNotFound is returned when GitHub answers 404 for a lookup that callers
// are expected to handle.
var ErrNotFound = errors.New("not found")

// Config holds GitHub client configuration
type Config struct {
	Token           string
	APIURL          string
	UploadURL       string
	GraphQLURL      string
	RequestTimeout  time.Duration
	TransferTimeout time.Duration
	// Transport is the base round tripper, mostly for tests.
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// Client bundles the REST, typed GraphQL and raw GraphQL clients, all
// authenticated with the same bearer token.
type Client struct {
	rest            *gh.Client
	gql             *githubv4.Client
	http            *http.Client
	graphqlURL      string
	requestTimeout  time.Duration
	transferTimeout time.Duration
	logger          *slog.Logger
}

// New creates a new GitHub client instance
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("GITHUB_TOKEN is required: %w", domain.ErrConfiguration)
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.UploadURL == "" {
		cfg.UploadURL = DefaultUploadURL
	}
	if cfg.GraphQLURL == "" {
		cfg.GraphQLURL = DefaultGraphQLURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.TransferTimeout <= 0 {
		cfg.TransferTimeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}),
			Base:   metrics.Transport(cfg.Transport),
		},
	}

	rest := gh.NewClient(httpClient)
	rest.UserAgent = userAgent
	base, err := parseBase(cfg.APIURL)
	if err != nil {
		return nil, fmt.Errorf("invalid GITHUB_API_URL: %w", err)
	}
	upload, err := parseBase(cfg.UploadURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upload URL: %w", err)
	}
	rest.BaseURL = base
	rest.UploadURL = upload

	return &Client{
		rest:            rest,
		gql:             githubv4.NewEnterpriseClient(cfg.GraphQLURL, httpClient),
		http:            httpClient,
		graphqlURL:      cfg.GraphQLURL,
		requestTimeout:  cfg.RequestTimeout,
		transferTimeout: cfg.TransferTimeout,
		logger:          cfg.Logger,
	}, nil
}

// parseBase parses u and makes sure it ends with a slash, as go-github
// resolves relative paths against it.
func parseBase(u string) (*url.URL, error) {
	if !strings.HasSuffix(u, "/") {
		u += "/"
	}
	return url.Parse(u)
}

// GraphQL posts a raw query and returns its data object. It is used for
// documents whose shape is only known at run time, such as aliased batches.
func (c *Client) GraphQL(ctx context.Context, query string, variables map[string]any) (gjson.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.transferTimeout)
	defer cancel()

	payload, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	if err != nil {
		return gjson.Result{}, fmt.Errorf("encode GraphQL request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(payload))
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, domain.NewTransportError(http.MethodPost, c.graphqlURL, 0, nil, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, domain.NewTransportError(http.MethodPost, c.graphqlURL, resp.StatusCode, nil, err)
	}
	if resp.StatusCode/100 != 2 {
		return gjson.Result{}, domain.NewTransportError(http.MethodPost, c.graphqlURL, resp.StatusCode, body, nil)
	}

	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("GitHub GraphQL returned invalid JSON: %.500s: %w", body, domain.ErrMalformedResponse)
	}
	parsed := gjson.ParseBytes(body)
	if errs := parsed.Get("errors"); errs.IsArray() && len(errs.Array()) > 0 {
		return gjson.Result{}, domain.NewTransportError(http.MethodPost, c.graphqlURL, resp.StatusCode,
			[]byte(errs.Raw), errors.New("GitHub GraphQL errors"))
	}
	data := parsed.Get("data")
	if !data.IsObject() {
		return gjson.Result{}, fmt.Errorf("GitHub GraphQL response missing data: %w", domain.ErrMalformedResponse)
	}
	return data, nil
}

// Download fetches the raw bytes behind an asset or file URL.
func (c *Client) Download(ctx context.Context, u string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.transferTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/octet-stream")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.NewTransportError(http.MethodGet, u, 0, nil, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewTransportError(http.MethodGet, u, resp.StatusCode, nil, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, domain.NewTransportError(http.MethodGet, u, resp.StatusCode, body, nil)
	}
	return body, nil
}

// restError converts a go-github failure into a TransportError carrying the
// status code and message.
func restError(method, path string, resp *gh.Response, err error) error {
	if err == nil {
		return nil
	}
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	var body []byte
	var er *gh.ErrorResponse
	if errors.As(err, &er) {
		body = []byte(er.Message)
	}
	return domain.NewTransportError(method, path, status, body, err)
}

// gqlError wraps a githubv4 failure as a transport error.
func (c *Client) gqlError(op string, err error) error {
	if err == nil {
		return nil
	}
	return domain.NewTransportError(http.MethodPost, c.graphqlURL, 0, nil, fmt.Errorf("%s: %w", op, err))
}
