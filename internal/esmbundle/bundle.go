package esmbundle

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nexus-cdn/nexus/internal/nexuserr"
	"github.com/nexus-cdn/nexus/internal/pkgkey"
)

const maxGraphDepth = 64

// Bundler implements internal/cdn's Bundler interface: in-memory
// ESM transform over a resolved package's already-cached files.
type Bundler struct {
	cache    FileFetcher
	resolver DepResolver
	warm     WarmChecker
	logger   *logrus.Logger
}

// New builds a Bundler. resolver and warm are typically the same
// internal/resolver.Resolver and internal/pkgcache.Cache instances the
// rest of the server uses.
func New(cache FileFetcher, resolver DepResolver, warm WarmChecker, logger *logrus.Logger) *Bundler {
	return &Bundler{cache: cache, resolver: resolver, warm: warm, logger: logger}
}

// Bundle reads the package's cached files into a virtual filesystem,
// inlines relative imports reachable from entryPath, resolves bare
// imports to concrete peer-inclusive versions, and rewrites them to
// /cdn/npm/<dep>@<resolved>/+esm.
func (b *Bundler) Bundle(ctx context.Context, key pkgkey.Key, entryPath string) ([]byte, error) {
	vfs := newVirtualFS(b.cache)
	vfs.addPackage(key.Name, key)

	deps := b.dependencyRanges(ctx, vfs, key.Name)

	g := &graphWalker{ctx: ctx, vfs: vfs, pkgName: key.Name, visited: make(map[string]bool)}
	entryVPath := resolvePathSpecifier("", entryPath)
	entryModule, err := g.walk(entryVPath, 0)
	if err != nil {
		return nil, err
	}

	resolved, err := b.resolveExternals(ctx, g.external, deps)
	if err != nil {
		return nil, err
	}

	var out strings.Builder
	for _, m := range g.order {
		if m.vpath == entryModule.vpath {
			continue
		}
		out.WriteString("// --- inlined: " + virtualPath(key.Name, m.vpath) + " ---\n")
		out.WriteString(rewriteBareSpecifiers(stripInternalExports(m.source), resolved))
		out.WriteString("\n")
	}
	out.WriteString("// --- entry: " + virtualPath(key.Name, entryModule.vpath) + " ---\n")
	out.WriteString(rewriteBareSpecifiers(dropInlinedImportLines(entryModule.source), resolved))

	return []byte(out.String()), nil
}

// dependencyRanges reads the root package's package.json (best-effort;
// a missing or malformed manifest yields no declared ranges) and
// returns the peer-inclusive dependency map step 2.
func (b *Bundler) dependencyRanges(ctx context.Context, vfs *virtualFS, name string) map[string]string {
	raw, err := vfs.read(ctx, name, "package.json")
	if err != nil {
		return nil
	}
	var doc packageJSON
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	return doc.dependencyRanges()
}

// resolveExternals resolves every bare specifier reached by the graph
// walk to a concrete version, preferring the range declared for it in
// the root package's package.json (ranges, peer-inclusive) and falling
// back to "latest" for a specifier package.json never mentions (e.g. a
// transitive import pulled in by a relative file rather than declared
// directly).
func (b *Bundler) resolveExternals(ctx context.Context, specifiers map[string]bool, deps map[string]string) (map[string]string, error) {
	resolved := make(map[string]string, len(specifiers))
	for spec := range specifiers {
		name := depPackageName(spec)
		rangeSpec, ok := deps[name]
		if !ok {
			rangeSpec = "latest"
		}
		result, err := resolveDep(ctx, b.resolver, b.warm, name, rangeSpec)
		if err != nil {
			if b.logger != nil {
				b.logger.WithError(err).WithField("dependency", spec).Warn("esmbundle: external dependency resolution failed")
			}
			resolved[spec] = "/cdn/npm/" + name + "/+esm"
			continue
		}
		resolved[spec] = fmt.Sprintf("/cdn/npm/%s@%s/+esm", result.Name, result.Version)
	}
	return resolved, nil
}

// depPackageName strips a subpath off a bare specifier ("lodash/fp" ->
// "lodash", "@scope/pkg/sub" -> "@scope/pkg") so it can be looked up in
// package.json's dependency map, which is keyed by package name only.
func depPackageName(spec string) string {
	parts := strings.Split(spec, "/")
	if strings.HasPrefix(spec, "@") && len(parts) >= 2 {
		return parts[0] + "/" + parts[1]
	}
	return parts[0]
}

type module struct {
	vpath  string
	source string
}

// graphWalker performs a depth-first inline of relative imports reachable
// from the entry file, recording bare specifiers as external along the
// way. It does not cross package boundaries: a bare import always ends
// the walk down that branch.
type graphWalker struct {
	ctx      context.Context
	vfs      *virtualFS
	pkgName  string
	visited  map[string]bool
	order    []module
	external map[string]bool
}

func (g *graphWalker) walk(vpath string, depth int) (module, error) {
	if depth > maxGraphDepth {
		return module{}, nexuserr.New(nexuserr.CodeBadRequest, "esmbundle: import graph too deep (possible cycle)")
	}
	if g.external == nil {
		g.external = make(map[string]bool)
	}
	if cached, ok := g.find(vpath); ok {
		return cached, nil
	}
	g.visited[vpath] = true

	data, err := g.vfs.read(g.ctx, g.pkgName, vpath)
	if err != nil {
		return module{}, err
	}
	src := string(data)

	for _, spec := range extractSpecifiers(src) {
		if !isRelativeSpecifier(spec) {
			g.external[spec] = true
			continue
		}
		childPath := resolvePathSpecifier(dirOf(vpath), spec)
		if g.visited[childPath] {
			continue
		}
		if _, err := g.walk(childPath, depth+1); err != nil {
			return module{}, err
		}
	}

	m := module{vpath: vpath, source: src}
	g.order = append(g.order, m)
	return m, nil
}

func (g *graphWalker) find(vpath string) (module, bool) {
	for _, m := range g.order {
		if m.vpath == vpath {
			return m, true
		}
	}
	return module{}, false
}

var (
	exportKeywordPattern      = regexp.MustCompile(`(?m)^(\s*)export\s+default\s+`)
	exportPrefixPattern       = regexp.MustCompile(`(?m)^(\s*)export\s+((?:const|let|var|function|class|async)\b)`)
	exportListPattern         = regexp.MustCompile(`(?m)^\s*export\s*\{[^}]*\}\s*(from\s*['"][^'"]+['"])?;?\s*$`)
	exportStarPattern         = regexp.MustCompile(`(?m)^\s*export\s*\*\s*from\s*['"][^'"]+['"];?\s*$`)
	relativeImportPattern     = regexp.MustCompile(`(?m)^\s*import\s[^'";]*?from\s*['"](\.\.?/[^'"]+|/virtual/[^'"]+)['"];?\s*$`)
	relativeSideEffectPattern = regexp.MustCompile(`(?m)^\s*import\s*['"](\.\.?/[^'"]+|/virtual/[^'"]+)['"];?\s*$`)
)

// stripInternalExports converts a non-entry inlined module's export
// statements into plain local declarations (dropping "export"/"export
// default"), and removes its own relative import lines since those
// modules are already present elsewhere in the concatenated output.
// Bindings are not renamed to match an importer's local alias, so
// default/renamed imports of an inlined submodule are a known gap —
// out of scope per the non-goal on bundled-code correctness.
func stripInternalExports(src string) string {
	src = exportListPattern.ReplaceAllString(src, "")
	src = exportStarPattern.ReplaceAllString(src, "")
	src = exportKeywordPattern.ReplaceAllString(src, "$1")
	src = exportPrefixPattern.ReplaceAllString(src, "$1$2")
	return dropInlinedImportLines(src)
}

// dropInlinedImportLines removes relative import statements, whose
// target is already inlined elsewhere in the output.
func dropInlinedImportLines(src string) string {
	src = relativeImportPattern.ReplaceAllString(src, "")
	src = relativeSideEffectPattern.ReplaceAllString(src, "")
	return src
}
