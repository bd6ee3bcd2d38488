// Package metrics holds the Prometheus collectors of a maintainer run.
package metrics

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Registry collects every metric of the process. Runs are short lived, so
// metrics leave the process through Push rather than a scrape endpoint.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	githubRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "github_requests_total",
			Help: "Total number of GitHub API requests",
		},
		[]string{"method", "path", "status"},
	)

	githubRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "github_request_duration_seconds",
			Help:    "GitHub API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	githubResponseSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "github_response_size_bytes",
			Help:    "GitHub API response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 6),
		},
		[]string{"method", "path"},
	)

	// Run metrics
	RunDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "maintainer_run_duration_seconds",
			Help:    "Duration of maintainer commands",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"command"},
	)

	RunErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maintainer_run_errors_total",
			Help: "Total number of failed maintainer commands",
		},
		[]string{"command"},
	)

	ValidationFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maintainer_validation_failures_total",
			Help: "Plugin validation failures by rule",
		},
		[]string{"code"},
	)

	PullRequestsScanned = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "maintainer_pull_requests_scanned_total",
			Help: "Open pull requests examined by the stale sweep",
		},
	)

	PullRequestsClosed = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "maintainer_pull_requests_closed_total",
			Help: "Pull requests closed by the stale sweep",
		},
	)

	Discussions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maintainer_discussions_total",
			Help: "Plugin discussions handled, by outcome",
		},
		[]string{"outcome"},
	)

	IndexChanges = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maintainer_index_changes_total",
			Help: "Index entry mutations, by operation",
		},
		[]string{"op"},
	)

	IndexPlugins = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "maintainer_index_plugins",
			Help: "Number of plugins in the index after the last save",
		},
	)

	StarsApplied = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "maintainer_stars_applied_total",
			Help: "Star counts written into the index",
		},
	)
)

// Transport wraps next so every GitHub API round trip is recorded.
func Transport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return roundTripper(func(r *http.Request) (*http.Response, error) {
		start := time.Now()
		resp, err := next.RoundTrip(r)

		path := normalizePath(r.URL.Path)
		status := "error"
		if err == nil {
			status = strconv.Itoa(resp.StatusCode)
			if resp.ContentLength > 0 {
				githubResponseSize.WithLabelValues(r.Method, path).Observe(float64(resp.ContentLength))
			}
		}

		githubRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		githubRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		return resp, err
	})
}

type roundTripper func(*http.Request) (*http.Response, error)

func (f roundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

var (
	repoPath    = regexp.MustCompile(`^(/api/v3|/api/uploads)?/repos/[^/]+/[^/]+`)
	numericPart = regexp.MustCompile(`/[0-9]+(/|$)`)
)

// normalizePath maps GitHub API paths to static labels.
// This prevents cardinality explosion from owner, repo and id segments.
func normalizePath(path string) string {
	path = repoPath.ReplaceAllString(path, "/repos/{owner}/{repo}")
	for numericPart.MatchString(path) {
		path = numericPart.ReplaceAllString(path, "/{id}$1")
	}
	if len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	return path
}

// Push sends the registry to a Prometheus pushgateway under job. An empty
// url is a no-op.
func Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	return push.New(url, job).Gatherer(Registry).PushContext(ctx)
}
