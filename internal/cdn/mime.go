package cdn

import (
	"mime"
	"path"
	"strings"
)

// ContentType infers a response Content-Type from a file name's
// extension, appending "; charset=utf-8" for text/* and for the
// handful of application/* types that are text-shaped (JSON, JS, etc).
func ContentType(name string) string {
	ext := path.Ext(name)
	ctype := mime.TypeByExtension(ext)
	if ctype == "" {
		ctype = fallbackByExtension(ext)
	}
	if ctype == "" {
		return "application/octet-stream"
	}

	base, _, _ := strings.Cut(ctype, ";")
	base = strings.TrimSpace(base)
	if needsCharset(base) {
		return base + "; charset=utf-8"
	}
	return base
}

func needsCharset(base string) bool {
	if strings.HasPrefix(base, "text/") {
		return true
	}
	switch base {
	case "application/json", "application/javascript", "application/xml",
		"application/xhtml+xml", "application/x-www-form-urlencoded":
		return true
	}
	return false
}

// fallbackByExtension covers extensions mime.TypeByExtension doesn't
// reliably know across platforms (its table is seeded from the local
// system's mime.types file and varies by OS).
func fallbackByExtension(ext string) string {
	switch ext {
	case ".js", ".mjs", ".cjs":
		return "text/javascript"
	case ".json":
		return "application/json"
	case ".ts", ".tsx":
		return "application/typescript"
	case ".css":
		return "text/css"
	case ".map":
		return "application/json"
	case ".md":
		return "text/markdown"
	case ".yaml", ".yml":
		return "application/yaml"
	case ".svg":
		return "image/svg+xml"
	case ".wasm":
		return "application/wasm"
	default:
		return ""
	}
}
