// Package github implements the ReleaseSource port using the go-github library.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/ericfisherdev/releasewatch/internal/domain/model"
	"github.com/ericfisherdev/releasewatch/internal/domain/port/driven"
)

// releaseTagURLFormat builds a browsable URL for a tag found via the refs fallback.
const releaseTagURLFormat = "https://github.com/%s/%s/releases/tag/%s"

// Compile-time interface satisfaction check.
var _ driven.ReleaseSource = (*Client)(nil)

// Client implements driven.ReleaseSource against the GitHub REST API.
type Client struct {
	gh *gh.Client
}

// NewClient creates a GitHub API client with the following transport stack:
//  1. httpcache (ETag-based conditional requests; 304s do not consume quota)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (REST client, PAT auth when token is non-empty)
//
// timeout bounds every request so a hung call fails that repository only.
func NewClient(token string, timeout time.Duration) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	httpClient := github_ratelimit.NewClient(cacheTransport)
	httpClient.Timeout = timeout

	client := gh.NewClient(httpClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}

	return &Client{gh: client}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{gh: client}, nil
}

// LatestRelease returns the newest release tag of owner/project. The latest
// named release is tried first; when the project has none, the highest tag ref
// is used instead. Returns nil, nil when neither source yields a tag.
func (c *Client) LatestRelease(ctx context.Context, owner, project string) (*model.Release, error) {
	release, err := c.latestNamedRelease(ctx, owner, project)
	if err != nil || release != nil {
		return release, err
	}

	return c.latestTagRef(ctx, owner, project)
}

// latestNamedRelease queries GET /repos/{owner}/{project}/releases/latest.
func (c *Client) latestNamedRelease(ctx context.Context, owner, project string) (*model.Release, error) {
	endpoint := owner + "/" + project + "/releases/latest"
	slog.Debug("fetching latest release", "endpoint", endpoint)

	rel, resp, err := c.gh.Repositories.GetLatestRelease(ctx, owner, project)
	if err != nil {
		return nil, noData(ctx, endpoint, resp, err)
	}
	logRateLimit(resp, endpoint)

	if rel.GetTagName() == "" {
		slog.Warn("latest release has no tag", "endpoint", endpoint)
		return nil, nil
	}

	return &model.Release{Tag: rel.GetTagName(), URL: rel.GetHTMLURL()}, nil
}

// latestTagRef queries GET /repos/{owner}/{project}/git/refs/tags and picks
// the lexicographically greatest ref. This is not semver-aware: v2.0.0 sorts
// after v10.0.0.
func (c *Client) latestTagRef(ctx context.Context, owner, project string) (*model.Release, error) {
	endpoint := owner + "/" + project + "/git/refs/tags"

	refs, resp, err := c.listTagRefs(ctx, owner, project)
	if err != nil {
		return nil, noData(ctx, endpoint, resp, err)
	}

	if len(refs) == 0 {
		slog.Info("repository has no tags", "endpoint", endpoint)
		return nil, nil
	}

	slices.Sort(refs)
	last := refs[len(refs)-1]
	tag := last[strings.LastIndex(last, "/")+1:]
	if tag == "" {
		slog.Warn("malformed tag ref", "endpoint", endpoint, "ref", last)
		return nil, nil
	}

	return &model.Release{
		Tag: tag,
		URL: fmt.Sprintf(releaseTagURLFormat, owner, project, tag),
	}, nil
}

// listTagRefs collects the ref strings of every page of the tag namespace.
// go-github only exposes the matching-refs endpoint, so the request is built by hand.
func (c *Client) listTagRefs(ctx context.Context, owner, project string) ([]string, *gh.Response, error) {
	var all []string
	page := 1

	for {
		u := fmt.Sprintf("repos/%s/%s/git/refs/tags?per_page=100&page=%d",
			url.PathEscape(owner), url.PathEscape(project), page)

		req, err := c.gh.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("build tag refs request: %w", err)
		}

		var refs []*gh.Reference
		resp, err := c.gh.Do(ctx, req, &refs)
		if err != nil {
			return nil, resp, err
		}
		logRateLimit(resp, owner+"/"+project+"/git/refs/tags")

		for _, ref := range refs {
			all = append(all, ref.GetRef())
		}

		if resp.NextPage == 0 {
			return all, resp, nil
		}
		page = resp.NextPage
	}
}

// noData logs a failed lookup and converts it into the "no information" result.
// Only cancellation of the caller's context escapes as an error.
func noData(ctx context.Context, endpoint string, resp *gh.Response, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	status := 0
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
	}

	if status == http.StatusNotFound {
		slog.Info("no data at endpoint", "endpoint", endpoint, "status", status)
		return nil
	}

	slog.Warn("failed to fetch release data", "endpoint", endpoint, "status", status, "error", err)
	return nil
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string) {
	if resp == nil || resp.Response == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Limit > 0 && resp.Rate.Remaining < 10 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}
