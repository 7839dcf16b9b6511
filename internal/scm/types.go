// types.go declares the request-scoped values produced by content-hosting clients:
// the parsed repository reference and the always-populated repository metadata.
package scm

import (
	"encoding/json"
	"fmt"
)

const (
	// VersionNoReleases is reported when neither a release nor a tag exists.
	VersionNoReleases = "No releases found"
	// VersionLatestRelease is reported when the latest-release lookup succeeded
	// but carried neither a tag name nor a display name.
	VersionLatestRelease = "Latest release"

	licenseNone        = "No license"
	licenseUnavailable = "Unable to fetch"
)

// RepositoryRef identifies a repository on the host.
type RepositoryRef struct {
	Owner string
	Name  string
}

// String returns "owner/name".
func (r RepositoryRef) String() string {
	return r.Owner + "/" + r.Name
}

// HTMLURL returns the canonical web URL of the repository.
func (r RepositoryRef) HTMLURL() string {
	return fmt.Sprintf("https://github.com/%s/%s", r.Owner, r.Name)
}

// LicenseKind distinguishes a known license from the two ways of not having one.
type LicenseKind int

const (
	// LicenseFetchFailed means the repository info could not be retrieved.
	LicenseFetchFailed LicenseKind = iota
	// LicenseNone means the repository declares no license.
	LicenseNone
	// LicenseKnown means the repository declares a named license.
	LicenseKnown
)

// License keeps "no license" and "could not determine" apart until the JSON boundary,
// where both collapse to the display strings callers expect.
type License struct {
	Kind LicenseKind
	Name string
}

// KnownLicense returns a License with the given SPDX display name.
func KnownLicense(name string) License { return License{Kind: LicenseKnown, Name: name} }

// NoLicense returns the License of a repository that declares none.
func NoLicense() License { return License{Kind: LicenseNone} }

// LicenseUnavailable returns the License used when the lookup itself failed.
func LicenseUnavailable() License { return License{Kind: LicenseFetchFailed} }

// String renders the license for display.
func (l License) String() string {
	switch l.Kind {
	case LicenseKnown:
		return l.Name
	case LicenseNone:
		return licenseNone
	default:
		return licenseUnavailable
	}
}

// MarshalJSON renders the license as its display string.
func (l License) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// Metadata describes a repository. Every field has a fallback, so a Metadata value is
// always complete even when every lookup behind it failed.
type Metadata struct {
	Stars         int     `json:"stars"`
	LatestVersion string  `json:"latest_version"`
	Website       *string `json:"website"`
	License       License `json:"license"`
}

// UnavailableMetadata is the Metadata produced when nothing could be fetched.
func UnavailableMetadata() Metadata {
	return Metadata{
		Stars:         0,
		LatestVersion: VersionNoReleases,
		License:       LicenseUnavailable(),
	}
}
