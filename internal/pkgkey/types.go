// Package pkgkey holds the data model shared across the resolver, the
// package cache, and the request handlers: the Ecosystem enum, PackageKey,
// and the storage key-space conventions.
package pkgkey

import (
	"fmt"
	"regexp"
	"strings"
)

// Ecosystem is the enumerated source tag of a PackageKey.
type Ecosystem string

const (
	EcosystemNPM    Ecosystem = "npm"
	EcosystemJSR    Ecosystem = "jsr"
	EcosystemGH     Ecosystem = "gh"
	EcosystemCDNJS  Ecosystem = "cdnjs"
	EcosystemWP     Ecosystem = "wp"
	EcosystemWinGet Ecosystem = "winget"
)

// Key is the (ecosystem, name, version) triple plus the immutability flag
// the resolver derived for it. Version is always a concrete string after
// resolution, never a range or alias.
type Key struct {
	Ecosystem Ecosystem
	Name      string
	Version   string
	Immutable bool
}

var completeSemverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+`)
var commitSHAPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// IsCompleteSemver reports whether s (after stripping an optional leading
// "v") matches the complete-semver glossary pattern.
func IsCompleteSemver(s string) bool {
	return completeSemverPattern.MatchString(strings.TrimPrefix(s, "v"))
}

// IsCommitSHA reports whether s is a 40-character lower-case hex string.
func IsCommitSHA(s string) bool {
	return commitSHAPattern.MatchString(s)
}

// Immutable derives the immutability flag from a resolved version
// string for the given ecosystem. For WordPress the caller must use
// ImmutableWP instead, since immutability there is carried by URL shape
// rather than by the version string alone.
func Immutable(eco Ecosystem, version string) bool {
	switch eco {
	case EcosystemNPM, EcosystemJSR:
		return IsCompleteSemver(version)
	case EcosystemGH:
		return IsCommitSHA(version) || IsCompleteSemver(version)
	case EcosystemCDNJS:
		return IsCompleteSemver(version)
	default:
		return false
	}
}

// ImmutableWP derives WordPress immutability directly from the request
// path shape: a tags/<version> or themes/<name>/<version> form is
// immutable; trunk is mutable.
func ImmutableWP(pathForm string) bool {
	return pathForm != "trunk"
}

// FileEntry is a single file recorded in a PackageManifest.
type FileEntry struct {
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	Integrity string `json:"integrity,omitempty"`
}

// PackageManifest is the meta object associated with a Key: the full file
// list plus the timestamp it was built at. Its presence at the manifest
// key is the cache's "fully hydrated" marker.
type PackageManifest struct {
	Files     []FileEntry `json:"files"`
	BuiltAtMS int64       `json:"built_at_ms"`
}

// RawKey returns the storage key for a single file's raw bytes:
// cdn/<ecosystem>/<name>/<version>/<relative_path>.
func (k Key) RawKey(relativePath string) string {
	return fmt.Sprintf("cdn/%s/%s/%s/%s", k.Ecosystem, k.Name, k.Version, relativePath)
}

// Prefix returns the storage key prefix for the package:
// cdn/<ecosystem>/<name>/<version>. The PackageManifest is stored as meta
// on this exact key.
func (k Key) Prefix() string {
	return fmt.Sprintf("cdn/%s/%s/%s", k.Ecosystem, k.Name, k.Version)
}

// CacheControl maps the immutability flag to the response header value of
//.
func CacheControl(immutable bool) string {
	if immutable {
		return "public, max-age=31536000, immutable"
	}
	return "public, max-age=600"
}
