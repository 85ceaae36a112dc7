// Package tarball implements streaming gzip+tar extraction with
// single-root-directory stripping.
package tarball

import (
	"archive/tar"
	"bytes"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/nexus-cdn/nexus/internal/nexuserr"
)

// Entry is one extracted file: its path relative to the (stripped)
// package root, its bytes, and the size tar declared for it.
type Entry struct {
	Path         string
	Data         []byte
	DeclaredSize int64
}

// Walk streams gzipped tar bytes from r, calling visit for every regular
// file entry after stripping the single leading root-directory segment.
// Symlinks and non-regular entries are skipped. visit may return false to
// stop the walk early (e.g. once the single requested file is found).
//
// The upstream "root directory" is whatever the first entry containing a
// path separator is named, excluding any pax_global_header pseudo-entry —
// matching npm's package/ and GitHub's <repo>-<ref>/ conventions.
func Walk(r io.Reader, visit func(Entry) (keepGoing bool, err error)) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nexuserr.Wrap(nexuserr.CodeInvalidManifest, "tarball: invalid gzip stream", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	root := ""
	rootDetermined := false

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return nexuserr.Wrap(nexuserr.CodeInvalidManifest, "tarball: corrupt tar stream", err)
		}

		name := hdr.Name
		if strings.HasPrefix(name, "pax_global_header") {
			continue
		}

		if !rootDetermined {
			if idx := strings.IndexByte(name, '/'); idx >= 0 {
				root = name[:idx+1]
				rootDetermined = true
			}
		}

		if hdr.Typeflag == tar.TypeSymlink || hdr.Typeflag == tar.TypeLink {
			continue
		}
		if hdr.Typeflag != tar.TypeReg && hdr.Typeflag != tar.TypeRegA {
			continue
		}

		rel := stripRoot(name, root)
		if rel == "" {
			continue
		}

		var buf bytes.Buffer
		if _, err := io.Copy(&buf, tr); err != nil {
			return nexuserr.Wrap(nexuserr.CodeInvalidManifest, "tarball: read entry "+name, err)
		}

		keepGoing, err := visit(Entry{Path: rel, Data: buf.Bytes(), DeclaredSize: hdr.Size})
		if err != nil {
			return err
		}
		if !keepGoing {
			return nil
		}
	}
}

// stripRoot removes the single leading root-directory segment from name.
// If root was never determined (no entry ever contained a separator —
// the empty-tarball-root boundary case), name passes through unchanged
// so the extractor still synthesizes a usable "package" of top-level
// files rather than crashing.
func stripRoot(name, root string) string {
	if root == "" {
		return strings.TrimPrefix(name, "/")
	}
	if strings.HasPrefix(name, root) {
		return strings.TrimPrefix(name[len(root):], "/")
	}
	return strings.TrimPrefix(name, "/")
}
