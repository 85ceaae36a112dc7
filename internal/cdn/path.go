// Package cdn implements CDN path grammar parsing, entry-file
// selection, the "+esm" dispatch, and the error-to-listing fallback, on
// top of the resolver and package cache.
package cdn

import (
	"strings"

	"github.com/nexus-cdn/nexus/internal/nexuserr"
)

// ParsedPath is the decoded shape of a /cdn/<ecosystem>/... request path:
// a package name, an optional caller-supplied version spec, and the
// sub-path within the package (empty at the package root).
type ParsedPath struct {
	Name    string
	Spec    string
	SubPath string
	IsESM   bool

	// WPForm carries the raw WordPress version-position segment ("trunk"
	// or "tags/<version>") so the caller can both resolve immutability
	// and address the right upstream SVN path without re-parsing.
	WPForm string
}

// splitNameSpec splits a single "<name>@<spec>" path segment at the
// first '@' that is not the segment's leading character (a leading '@'
// marks an npm/JSR scope, not a version spec).
func splitNameSpec(segment string) (name, spec string) {
	if idx := strings.IndexByte(segment[min(1, len(segment)):], '@'); idx >= 0 {
		at := idx + 1
		return segment[:at], segment[at+1:]
	}
	return segment, ""
}

// stripESM removes a trailing "+esm" path segment, reporting whether it
// was present.
func stripESM(segments []string) ([]string, bool) {
	if len(segments) > 0 && segments[len(segments)-1] == "+esm" {
		return segments[:len(segments)-1], true
	}
	return segments, false
}

func joinSubPath(segments []string) string {
	return strings.Join(segments, "/")
}

// ParseNPM parses an npm (or JSR, which shares the same scoped/unscoped
// grammar) path: "@scope/name[@spec][/path]" or "name[@spec][/path]".
func ParseNPM(raw string) (ParsedPath, error) {
	segments := splitSegments(raw)
	if len(segments) == 0 {
		return ParsedPath{}, nexuserr.New(nexuserr.CodeBadRequest, "cdn: empty package path")
	}
	segments, isESM := stripESM(segments)

	if strings.HasPrefix(segments[0], "@") {
		if len(segments) < 2 {
			return ParsedPath{}, nexuserr.New(nexuserr.CodeBadRequest, "cdn: scoped package missing name segment")
		}
		namePart, spec := splitNameSpec(segments[1])
		return ParsedPath{
			Name:    segments[0] + "/" + namePart,
			Spec:    spec,
			SubPath: joinSubPath(segments[2:]),
			IsESM:   isESM,
		}, nil
	}

	name, spec := splitNameSpec(segments[0])
	return ParsedPath{
		Name:    name,
		Spec:    spec,
		SubPath: joinSubPath(segments[1:]),
		IsESM:   isESM,
	}, nil
}

// ParseGitHub parses "<owner>/<repo>[@ver][/path]".
func ParseGitHub(raw string) (ParsedPath, error) {
	segments := splitSegments(raw)
	if len(segments) < 2 {
		return ParsedPath{}, nexuserr.New(nexuserr.CodeBadRequest, "cdn: github path needs owner/repo")
	}
	owner := segments[0]
	repo, spec := splitNameSpec(segments[1])
	return ParsedPath{
		Name:    owner + "/" + repo,
		Spec:    spec,
		SubPath: joinSubPath(segments[2:]),
	}, nil
}

// ParseCDNJS parses "<lib>[@spec]/<path>" or "<lib>/<version>/<path>".
// The second form is distinguished from the first by the absence of an
// '@' in the first segment: when absent, and a second segment exists
// that itself contains no further path structure hint, it is treated as
// a literal version rather than part of the sub-path — cdnjs has no
// package-relative directories one level deep, every real file lives
// under at least one more segment (e.g. "jquery/3.7.1/jquery.min.js").
func ParseCDNJS(raw string) (ParsedPath, error) {
	segments := splitSegments(raw)
	if len(segments) == 0 {
		return ParsedPath{}, nexuserr.New(nexuserr.CodeBadRequest, "cdn: empty cdnjs path")
	}

	lib, spec := splitNameSpec(segments[0])
	rest := segments[1:]
	if spec == "" && len(rest) > 0 {
		spec = rest[0]
		rest = rest[1:]
	}
	return ParsedPath{Name: lib, Spec: spec, SubPath: joinSubPath(rest)}, nil
}

// ParseWordPressPlugin parses "<slug>/(tags/<ver>|trunk)[/path]".
func ParseWordPressPlugin(raw string) (ParsedPath, error) {
	segments := splitSegments(raw)
	if len(segments) < 2 {
		return ParsedPath{}, nexuserr.New(nexuserr.CodeBadRequest, "cdn: wordpress plugin path needs a version form")
	}
	slug := segments[0]
	if segments[1] == "trunk" {
		return ParsedPath{Name: slug, WPForm: "trunk", SubPath: joinSubPath(segments[2:])}, nil
	}
	if segments[1] == "tags" {
		if len(segments) < 3 {
			return ParsedPath{}, nexuserr.New(nexuserr.CodeBadRequest, "cdn: wordpress plugin tags form missing version")
		}
		return ParsedPath{
			Name:    slug,
			WPForm:  "tags/" + segments[2],
			SubPath: joinSubPath(segments[3:]),
		}, nil
	}
	return ParsedPath{}, nexuserr.New(nexuserr.CodeBadRequest, "cdn: wordpress plugin path must be trunk or tags/<version>")
}

// ParseWordPressTheme parses "<slug>/<ver>[/path]".
func ParseWordPressTheme(raw string) (ParsedPath, error) {
	segments := splitSegments(raw)
	if len(segments) < 2 {
		return ParsedPath{}, nexuserr.New(nexuserr.CodeBadRequest, "cdn: wordpress theme path needs a version")
	}
	return ParsedPath{
		Name:    segments[0],
		WPForm:  segments[1],
		SubPath: joinSubPath(segments[2:]),
	}, nil
}

func splitSegments(raw string) []string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
