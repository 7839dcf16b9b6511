package github

import (
	"context"
	"errors"
	"log/slog"
	"regexp"

	"github.com/dandi-dev/dandi/internal/scm"
)

var repositoryURLPattern = regexp.MustCompile(`^https://github\.com/([^/]+)/([^/]+)(/|$)`)

// ParseRepositoryURL extracts owner and name from https://github.com/{owner}/{name}(/...)?.
// It performs no network access.
func ParseRepositoryURL(raw string) (scm.RepositoryRef, error) {
	m := repositoryURLPattern.FindStringSubmatch(raw)
	if m == nil {
		return scm.RepositoryRef{}, scm.ErrInvalidRepositoryURL
	}
	return scm.RepositoryRef{Owner: m[1], Name: m[2]}, nil
}

// ResolveDefaultBranch returns the repository's default branch, or "" when it cannot be
// determined. Failure is not an error: callers stop searching when they get "".
func (c *Client) ResolveDefaultBranch(ctx context.Context, ref scm.RepositoryRef) string {
	info, err := c.repository(ctx, ref)
	if err != nil {
		level := slog.LevelDebug
		if errors.Is(err, scm.ErrRateLimitExceeded) {
			level = slog.LevelWarn
		}
		slog.Log(ctx, level, "github: default branch lookup failed", "repository", ref.String(), "error", err)
		return ""
	}
	return info.DefaultBranch
}
