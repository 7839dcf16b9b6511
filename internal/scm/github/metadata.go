package github

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/dandi-dev/dandi/internal/scm"
)

// FetchMetadata gathers stars, license, homepage and latest version. The repository info,
// latest release and tag list are fetched concurrently and all three are awaited; each
// failure only degrades the fields it would have filled, so the result is always complete.
func (c *Client) FetchMetadata(ctx context.Context, ref scm.RepositoryRef) scm.Metadata {
	var (
		info       *repoInfo
		infoErr    error
		release    *releaseInfo
		releaseErr error
		tags       []tagInfo
		tagsErr    error
	)

	var g errgroup.Group
	g.Go(func() error {
		info, infoErr = c.repository(ctx, ref)
		return nil
	})
	g.Go(func() error {
		release, releaseErr = c.latestRelease(ctx, ref)
		return nil
	})
	g.Go(func() error {
		tags, tagsErr = c.tags(ctx, ref)
		return nil
	})
	_ = g.Wait()

	for name, err := range map[string]error{"repo_info": infoErr, "latest_release": releaseErr, "tags": tagsErr} {
		if err != nil {
			slog.Debug("github: metadata sub-fetch failed", "repository", ref.String(), "lookup", name, "error", err)
		}
	}

	return buildMetadata(info, release, tags)
}

// buildMetadata applies the field fallbacks. A nil argument means that lookup failed.
func buildMetadata(info *repoInfo, release *releaseInfo, tags []tagInfo) scm.Metadata {
	md := scm.UnavailableMetadata()

	if info != nil {
		md.Stars = info.StargazersCount
		if info.Homepage != "" {
			homepage := info.Homepage
			md.Website = &homepage
		}
		if info.License != nil && info.License.Name != "" {
			md.License = scm.KnownLicense(info.License.Name)
		} else {
			md.License = scm.NoLicense()
		}
	}

	md.LatestVersion = latestVersion(release, tags)
	return md
}

// latestVersion prefers the latest release (tag name, then display name, then a generic
// sentinel) over the most recent tag.
func latestVersion(release *releaseInfo, tags []tagInfo) string {
	if release != nil {
		switch {
		case release.TagName != "":
			return release.TagName
		case release.Name != "":
			return release.Name
		default:
			return scm.VersionLatestRelease
		}
	}
	if len(tags) > 0 && tags[0].Name != "" {
		return tags[0].Name
	}
	return scm.VersionNoReleases
}
