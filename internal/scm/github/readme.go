package github

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/dandi-dev/dandi/internal/scm"
)

const readmePath = "README.md"

var errEmptyReadme = errors.New("README is empty")

// conventionalBranches are tried first, concurrently; earlier entries win.
var conventionalBranches = [...]string{"main", "master"}

// FetchReadme returns the repository README. main and master are fetched concurrently
// and main wins whenever both exist, regardless of which answers first. If neither has
// a README the default branch is resolved and tried once, unless it is one of the two
// already tried. Per-branch failures and empty files only mean "not on this branch";
// ok is false once every candidate is exhausted.
func (c *Client) FetchReadme(ctx context.Context, ref scm.RepositoryRef) (content string, ok bool) {
	type attempt struct {
		content string
		err     error
	}
	var attempts [len(conventionalBranches)]attempt

	var g errgroup.Group
	for i, branch := range conventionalBranches {
		g.Go(func() error {
			attempts[i].content, attempts[i].err = c.fetchRaw(ctx, ref, branch, readmePath)
			return nil
		})
	}
	_ = g.Wait()

	for i, a := range attempts {
		if a.err == nil && a.content == "" {
			a.err = errEmptyReadme
		}
		if a.err == nil {
			return a.content, true
		}
		slog.Debug("github: README not on branch", "repository", ref.String(), "branch", conventionalBranches[i], "error", a.err)
	}

	branch := c.ResolveDefaultBranch(ctx, ref)
	if branch == "" || isConventionalBranch(branch) {
		return "", false
	}

	content, err := c.fetchRaw(ctx, ref, branch, readmePath)
	if err == nil && content == "" {
		err = errEmptyReadme
	}
	if err != nil {
		slog.Debug("github: README not on default branch", "repository", ref.String(), "branch", branch, "error", err)
		return "", false
	}
	return content, true
}

func isConventionalBranch(branch string) bool {
	for _, b := range conventionalBranches {
		if b == branch {
			return true
		}
	}
	return false
}
