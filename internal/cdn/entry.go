package cdn

import (
	"context"
	"encoding/json"

	"github.com/nexus-cdn/nexus/internal/nexuserr"
	"github.com/nexus-cdn/nexus/internal/pkgkey"
)

// EntryResolver is the subset of internal/resolver the entry-file
// selection logic needs, kept narrow so this package can be tested
// against a fake.
type EntryResolver interface {
	VersionMeta(ctx context.Context, eco pkgkey.Ecosystem, name, version string) (map[string]json.RawMessage, error)
	EntryFilename(ctx context.Context, lib string) (string, error)
}

// FileFetcher is the subset of internal/pkgcache the entry-file and
// error-to-listing logic needs.
type FileFetcher interface {
	GetFile(ctx context.Context, key pkgkey.Key, path string) ([]byte, error)
	List(ctx context.Context, key pkgkey.Key) (pkgkey.PackageManifest, error)
}

// EntryFile implements entry-file selection rules for the package
// root (no sub-path given, no trailing slash on the raw URL).
func EntryFile(ctx context.Context, resolver EntryResolver, cache FileFetcher, key pkgkey.Key) (string, error) {
	switch key.Ecosystem {
	case pkgkey.EcosystemNPM:
		return npmEntryFile(ctx, resolver, key)
	case pkgkey.EcosystemJSR:
		return jsrEntryFile(ctx, resolver, key)
	case pkgkey.EcosystemGH:
		return githubEntryFile(ctx, cache, key)
	case pkgkey.EcosystemCDNJS:
		return resolver.EntryFilename(ctx, key.Name)
	default:
		return "", nexuserr.New(nexuserr.CodeBadRequest, "cdn: no entry-file rule for ecosystem "+string(key.Ecosystem))
	}
}

// npmEntryFile tries browser, then main, then module, then index.js, in
// that order, from the version's registry metadata.
func npmEntryFile(ctx context.Context, resolver EntryResolver, key pkgkey.Key) (string, error) {
	meta, err := resolver.VersionMeta(ctx, pkgkey.EcosystemNPM, key.Name, key.Version)
	if err != nil {
		return "", err
	}
	for _, field := range []string{"browser", "main", "module"} {
		if name := decodeStringField(meta[field]); name != "" {
			return name, nil
		}
	}
	return "index.js", nil
}

// jsrEntryFile reads the "." entry of the exports field (a bare string,
// or an object whose "default" key is followed), falling back to mod.ts.
func jsrEntryFile(ctx context.Context, resolver EntryResolver, key pkgkey.Key) (string, error) {
	meta, err := resolver.VersionMeta(ctx, pkgkey.EcosystemJSR, key.Name, key.Version)
	if err != nil {
		return "", err
	}
	exportsRaw, ok := meta["exports"]
	if !ok {
		return "mod.ts", nil
	}

	if s := decodeStringField(exportsRaw); s != "" {
		return s, nil
	}

	var exportsMap map[string]json.RawMessage
	if err := json.Unmarshal(exportsRaw, &exportsMap); err != nil {
		return "mod.ts", nil
	}
	dot, ok := exportsMap["."]
	if !ok {
		return "mod.ts", nil
	}
	if s := decodeStringField(dot); s != "" {
		return s, nil
	}
	var dotMap map[string]json.RawMessage
	if err := json.Unmarshal(dot, &dotMap); err == nil {
		if def := decodeStringField(dotMap["default"]); def != "" {
			return def, nil
		}
	}
	return "mod.ts", nil
}

// githubEntryFile prefers README.md, then index.js, 404 otherwise — the
// only ecosystem whose entry-file choice depends on the cache rather
// than registry metadata, since GitHub repos carry no "main" field.
func githubEntryFile(ctx context.Context, cache FileFetcher, key pkgkey.Key) (string, error) {
	for _, candidate := range []string{"README.md", "index.js"} {
		if _, err := cache.GetFile(ctx, key, candidate); err == nil {
			return candidate, nil
		} else if !nexuserr.Is(err, nexuserr.CodeFileNotFound) {
			return "", err
		}
	}
	return "", nexuserr.New(nexuserr.CodeFileNotFound, "cdn: no README.md or index.js at repository root")
}

// decodeStringField decodes a json.RawMessage as a string, returning ""
// on absence or a non-string shape (narrowed tagged-union decode, never
// a generic unmarshal-to-any).
func decodeStringField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
