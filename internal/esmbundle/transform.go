package esmbundle

import (
	"regexp"
	"strings"
)

// These patterns cover the import/export forms the entry files of small
// npm/JSR packages actually use in practice: named/default/namespace
// static imports, side-effect-only imports, re-exports, and dynamic
// import(). They are not a JS parser — a specifier embedded in an
// unusual expression can slip past — which is acceptable since bundled-
// code correctness beyond the common cases is explicitly out of scope.
var (
	fromClausePattern    = regexp.MustCompile(`(import|export)\s[^'";]*?from\s*['"]([^'"]+)['"]`)
	sideEffectPattern    = regexp.MustCompile(`import\s*['"]([^'"]+)['"]`)
	dynamicImportPattern = regexp.MustCompile(`import\s*\(\s*['"]([^'"]+)['"]\s*\)`)
)

// extractSpecifiers returns every distinct module specifier referenced
// by src's import/export statements, in first-seen order.
func extractSpecifiers(src string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(spec string) {
		if !seen[spec] {
			seen[spec] = true
			out = append(out, spec)
		}
	}
	for _, m := range fromClausePattern.FindAllStringSubmatch(src, -1) {
		add(m[2])
	}
	for _, m := range sideEffectPattern.FindAllStringSubmatch(src, -1) {
		add(m[1])
	}
	for _, m := range dynamicImportPattern.FindAllStringSubmatch(src, -1) {
		add(m[1])
	}
	return out
}

// isRelativeSpecifier reports whether spec addresses a file within the
// same virtual filesystem rather than another package.
func isRelativeSpecifier(spec string) bool {
	return strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") || strings.HasPrefix(spec, "/virtual/")
}

// rewriteBareSpecifiers replaces every occurrence of a bare (non-
// relative) specifier's quoted literal with its resolved replacement,
// leaving relative specifiers untouched for the graph walk to inline.
func rewriteBareSpecifiers(src string, resolved map[string]string) string {
	for original, target := range resolved {
		src = strings.ReplaceAll(src, "'"+original+"'", "'"+target+"'")
		src = strings.ReplaceAll(src, `"`+original+`"`, `"`+target+`"`)
	}
	return src
}

// resolvePathSpecifier joins a relative specifier against the directory
// of the importing file, and appends a default extension when the
// specifier names no file extension — mirroring Node/bundler resolution
// for extensionless relative imports.
func resolvePathSpecifier(fromDir, spec string) string {
	joined := joinVirtualPath(fromDir, spec)
	if hasKnownExtension(joined) {
		return joined
	}
	return joined + ".js"
}

func joinVirtualPath(dir, spec string) string {
	segments := strings.Split(dir, "/")
	if dir == "" {
		segments = nil
	}
	for _, part := range strings.Split(spec, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(segments) > 0 {
				segments = segments[:len(segments)-1]
			}
		default:
			segments = append(segments, part)
		}
	}
	return strings.Join(segments, "/")
}

func hasKnownExtension(path string) bool {
	for _, ext := range []string{".js", ".mjs", ".cjs", ".ts", ".json"} {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func dirOf(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}
