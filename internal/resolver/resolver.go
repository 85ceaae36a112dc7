// Package resolver implements translating a caller-supplied
// (ecosystem, name, version-spec) into a concrete, cacheable
// (name, version, is_immutable) triple using upstream metadata and
// semantic-version range matching.
package resolver

import (
	"context"
	"net/http"
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/nexus-cdn/nexus/internal/nexuserr"
	"github.com/nexus-cdn/nexus/internal/pkgkey"
)

// Result is the resolver's output: a concrete version plus the
// immutability flag derived from its shape (not from the caller's input).
type Result struct {
	Name      string
	Version   string
	Immutable bool
}

// Resolver resolves version specs against upstream registry metadata.
type Resolver struct {
	client      *http.Client
	githubToken string
}

// New builds a Resolver. githubToken, if non-empty, is sent as a bearer
// token on GitHub-flavored upstream calls.
func New(client *http.Client, githubToken string) *Resolver {
	return &Resolver{client: client, githubToken: githubToken}
}

// Resolve dispatches to the ecosystem-specific metadata fetch and applies
// the shared candidate-selection algorithm steps 2-6. WordPress
// bypasses metadata entirely: its URL syntax already carries the answer,
// so callers should use ResolveWordPress instead.
func (r *Resolver) Resolve(ctx context.Context, eco pkgkey.Ecosystem, name, spec string) (Result, error) {
	var (
		versions []string
		latest   string
		err      error
	)

	switch eco {
	case pkgkey.EcosystemNPM:
		versions, latest, err = r.fetchNPMCompat(ctx, npmRegistryBase, name)
	case pkgkey.EcosystemJSR:
		versions, latest, err = r.fetchNPMCompat(ctx, jsrNPMCompatBase, name)
	case pkgkey.EcosystemGH:
		versions, latest, err = r.fetchGitHubVersions(ctx, name)
	case pkgkey.EcosystemCDNJS:
		versions, latest, err = r.fetchCDNJSVersions(ctx, name)
	default:
		return Result{}, nexuserr.New(nexuserr.CodeBadRequest, "resolver: unsupported ecosystem "+string(eco))
	}
	if err != nil {
		return Result{}, err
	}
	if len(versions) == 0 {
		return Result{}, nexuserr.New(nexuserr.CodeVersionNotFound, "resolver: no published versions for "+name)
	}

	version, err := pickVersion(versions, latest, spec)
	if err != nil {
		return Result{}, err
	}
	return Result{Name: name, Version: version, Immutable: pkgkey.Immutable(eco, version)}, nil
}

// ResolveWordPress handles the WordPress branch: the URL shape
// (tags/<v> vs trunk) already carries both the version and immutability,
// so there is no metadata fetch.
func ResolveWordPress(name, versionForm string) Result {
	return Result{Name: name, Version: versionForm, Immutable: pkgkey.ImmutableWP(versionForm)}
}

// pickVersion applies the candidate-selection precedence: exact match,
// then semver-range max_satisfying, then the latest tag, then the
// highest published version.
func pickVersion(versions []string, latestTag, spec string) (string, error) {
	if spec == "" {
		spec = "latest"
	}

	for _, v := range versions {
		if v == spec {
			return v, nil
		}
	}

	if spec != "latest" {
		if best := maxSatisfying(versions, spec); best != "" {
			return best, nil
		}
	}

	if latestTag != "" {
		return latestTag, nil
	}

	sorted := sortedDescending(versions)
	if len(sorted) == 0 {
		return "", nexuserr.New(nexuserr.CodeVersionNotFound, "resolver: no parseable versions")
	}
	return sorted[0], nil
}

// maxSatisfying returns the highest version in versions that satisfies the
// semver range/spec constraints, or "" if none parse or none satisfy.
func maxSatisfying(versions []string, spec string) string {
	constraints, err := semver.NewConstraint(spec)
	if err != nil {
		return ""
	}

	var best *semver.Version
	var bestRaw string
	for _, raw := range versions {
		v, err := semver.NewVersion(raw)
		if err != nil {
			continue
		}
		if !constraints.Check(v) {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best, bestRaw = v, raw
		}
	}
	return bestRaw
}

// sortedDescending returns the subset of versions that parse as semver,
// sorted highest first.
func sortedDescending(versions []string) []string {
	type parsed struct {
		raw string
		v   *semver.Version
	}
	var valid []parsed
	for _, raw := range versions {
		if v, err := semver.NewVersion(raw); err == nil {
			valid = append(valid, parsed{raw: raw, v: v})
		}
	}
	sort.Slice(valid, func(i, j int) bool { return valid[i].v.GreaterThan(valid[j].v) })

	out := make([]string, len(valid))
	for i, p := range valid {
		out[i] = p.raw
	}
	return out
}
