// Package github reads what the analysis pipeline needs from GitHub: repository info,
// the latest release, the tag list and raw README content. It is deliberately not a
// general API client.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/dandi-dev/dandi/internal/scm"
	"github.com/dandi-dev/dandi/internal/telemetry"
)

const (
	defaultAPIURL  = "https://api.github.com"
	defaultRawURL  = "https://raw.githubusercontent.com"
	defaultTimeout = 10 * time.Second

	// maxErrorBody caps how much of an error response is kept for diagnostics.
	maxErrorBody = 4096
	// maxRawBody caps a downloaded README; the summarizer only reads a short prefix anyway.
	maxRawBody = 1 << 20
)

// Options configures a Client. Zero values select the public GitHub endpoints,
// a 10s per-call timeout and no repository info cache.
type Options struct {
	APIURL     string
	RawURL     string
	Token      string
	Timeout    time.Duration
	CacheSize  int
	CacheTTL   time.Duration
	HTTPClient *http.Client
}

// Client talks to the GitHub REST API and the raw content host.
type Client struct {
	httpClient *http.Client
	apiURL     string
	rawURL     string
	token      string
	timeout    time.Duration

	repoCache *expirable.LRU[string, *repoInfo]
	repoCalls singleflight.Group
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	c := &Client{
		httpClient: opts.HTTPClient,
		apiURL:     strings.TrimRight(opts.APIURL, "/"),
		rawURL:     strings.TrimRight(opts.RawURL, "/"),
		token:      opts.Token,
		timeout:    opts.Timeout,
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.apiURL == "" {
		c.apiURL = defaultAPIURL
	}
	if c.rawURL == "" {
		c.rawURL = defaultRawURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	if opts.CacheSize > 0 {
		c.repoCache = expirable.NewLRU[string, *repoInfo](opts.CacheSize, nil, opts.CacheTTL)
	}
	return c
}

// repoInfo is the subset of GET /repos/{owner}/{repo} the pipeline reads.
type repoInfo struct {
	DefaultBranch   string `json:"default_branch"`
	StargazersCount int    `json:"stargazers_count"`
	Homepage        string `json:"homepage"`
	License         *struct {
		Name string `json:"name"`
	} `json:"license"`
}

// releaseInfo is the subset of GET /repos/{owner}/{repo}/releases/latest the pipeline reads.
type releaseInfo struct {
	TagName string `json:"tag_name"`
	Name    string `json:"name"`
}

// tagInfo is one entry of GET /repos/{owner}/{repo}/tags.
type tagInfo struct {
	Name string `json:"name"`
}

// repository returns the repository info, served from the cache when possible.
// Concurrent lookups of the same repository share one request. The shared request is
// detached from any single caller's cancellation and bounded by the client timeout;
// each caller still stops waiting when its own context ends.
func (c *Client) repository(ctx context.Context, ref scm.RepositoryRef) (*repoInfo, error) {
	key := strings.ToLower(ref.String())
	if c.repoCache != nil {
		if info, ok := c.repoCache.Get(key); ok {
			return info, nil
		}
	}

	ch := c.repoCalls.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		var info repoInfo
		if err := c.getJSON(fetchCtx, "repo_info", c.repoPath(ref, ""), &info); err != nil {
			return nil, err
		}
		if c.repoCache != nil {
			c.repoCache.Add(key, &info)
		}
		return &info, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*repoInfo), nil
	}
}

func (c *Client) latestRelease(ctx context.Context, ref scm.RepositoryRef) (*releaseInfo, error) {
	var rel releaseInfo
	if err := c.getJSON(ctx, "latest_release", c.repoPath(ref, "/releases/latest"), &rel); err != nil {
		return nil, err
	}
	return &rel, nil
}

func (c *Client) tags(ctx context.Context, ref scm.RepositoryRef) ([]tagInfo, error) {
	var tags []tagInfo
	if err := c.getJSON(ctx, "tags", c.repoPath(ref, "/tags?per_page=1"), &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

func (c *Client) repoPath(ref scm.RepositoryRef, suffix string) string {
	return fmt.Sprintf("%s/repos/%s/%s%s", c.apiURL, ref.Owner, ref.Name, suffix)
}

// getJSON performs an API GET and decodes a 200 response into out.
func (c *Client) getJSON(ctx context.Context, operation, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setAPIHeaders(req)

	resp, err := c.do(req, operation)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return scm.NewAPIError(resp.StatusCode, operation+" request failed", wrapStatus(resp.StatusCode, body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", operation, err)
	}
	return nil
}

// fetchRaw downloads one file from the raw content host.
func (c *Client) fetchRaw(ctx context.Context, ref scm.RepositoryRef, branch, path string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/%s/%s/%s", c.rawURL, ref.Owner, ref.Name, branch, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.do(req, "readme")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", scm.ErrFileNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", scm.NewAPIError(resp.StatusCode, "raw content request failed", wrapStatus(resp.StatusCode, body))
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxRawBody))
	if err != nil {
		return "", fmt.Errorf("failed to read raw content: %w", err)
	}
	return string(content), nil
}

// do sends req and records its latency.
func (c *Client) do(req *http.Request, operation string) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	status := "error"
	if err == nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	telemetry.UpstreamRequestDuration.WithLabelValues("github", operation, status).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("github %s request failed: %w", operation, err)
	}
	return resp, nil
}

func (c *Client) setAPIHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// wrapStatus attaches the matching sentinel (if any) to the response body text.
func wrapStatus(statusCode int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if sentinel := scm.ClassifyStatus(statusCode); sentinel != nil {
		if msg == "" {
			return sentinel
		}
		return fmt.Errorf("%w: %s", sentinel, msg)
	}
	if msg == "" {
		return nil
	}
	return fmt.Errorf("%s", msg)
}
