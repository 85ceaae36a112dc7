package esmbundle

import (
	"context"

	"github.com/nexus-cdn/nexus/internal/pkgkey"
	"github.com/nexus-cdn/nexus/internal/resolver"
)

// DepResolver is the subset of internal/resolver the bundler needs to
// turn a declared dependency range into a concrete version.
type DepResolver interface {
	Resolve(ctx context.Context, eco pkgkey.Ecosystem, name, spec string) (resolver.Result, error)
}

// WarmChecker reports whether a key is already fully hydrated, so the
// bundler can skip a registry round trip for a dependency it already
// has on hand.
type WarmChecker interface {
	HasManifest(ctx context.Context, key pkgkey.Key) bool
}

// resolveDep resolves a declared dependency range to a concrete version:
// if the exact range string is already warm in cache (the common case
// for a pinned dependency, e.g. "1.2.3"), reuse it directly; otherwise
// resolve against the upstream registry exactly as a direct CDN request
// would, so a dependency and a standalone request for the same specifier
// always land on the same concrete version.
func resolveDep(ctx context.Context, res DepResolver, warm WarmChecker, name, spec string) (resolver.Result, error) {
	candidate := pkgkey.Key{
		Ecosystem: pkgkey.EcosystemNPM,
		Name:      name,
		Version:   spec,
		Immutable: pkgkey.Immutable(pkgkey.EcosystemNPM, spec),
	}
	if warm.HasManifest(ctx, candidate) {
		return resolver.Result{Name: name, Version: spec, Immutable: candidate.Immutable}, nil
	}
	return res.Resolve(ctx, pkgkey.EcosystemNPM, name, spec)
}

// dependencyRanges is the peer-inclusive union of a package.json's
// "dependencies" and "peerDependencies" fields.
type packageJSON struct {
	Dependencies     map[string]string `json:"dependencies"`
	PeerDependencies map[string]string `json:"peerDependencies"`
}

func (p packageJSON) dependencyRanges() map[string]string {
	ranges := make(map[string]string, len(p.Dependencies)+len(p.PeerDependencies))
	for name, spec := range p.Dependencies {
		ranges[name] = spec
	}
	for name, spec := range p.PeerDependencies {
		if _, ok := ranges[name]; !ok {
			ranges[name] = spec
		}
	}
	return ranges
}
