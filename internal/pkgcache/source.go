package pkgcache

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nexus-cdn/nexus/internal/nexuserr"
	"github.com/nexus-cdn/nexus/internal/pkgkey"
	"github.com/nexus-cdn/nexus/internal/tarball"
)

// EntrySource pulls the full set of (path, bytes) entries for a resolved
// PackageKey from its upstream, once ("pull the upstream tarball once").
// Ecosystems that don't distribute a tar.gz (cdnjs, wp) still satisfy
// this by assembling an equivalent entry list from their own upstream
// shape.
type EntrySource interface {
	FetchEntries(ctx context.Context, key pkgkey.Key) ([]tarball.Entry, error)
}

func fetchBody(ctx context.Context, client *http.Client, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.CodeUpstreamUnavailable, "pkgcache: build request", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.CodeUpstreamUnavailable, "pkgcache: upstream fetch failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nexuserr.New(nexuserr.CodePackageNotFound, "pkgcache: upstream 404 for "+reqURL)
	}
	if resp.StatusCode/100 != 2 {
		return nil, nexuserr.New(nexuserr.CodeUpstreamUnavailable, fmt.Sprintf("pkgcache: upstream status %d for %s", resp.StatusCode, reqURL))
	}

	const maxArchiveBytes = 256 << 20
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxArchiveBytes))
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.CodeUpstreamUnavailable, "pkgcache: read upstream body", err)
	}
	return body, nil
}

// TarGzSource fetches a gzipped tarball from a URL built per-key and
// extracts it via internal/tarball. It backs npm, JSR, and GitHub, whose
// upstreams all distribute versions as tar.gz archives.
type TarGzSource struct {
	Client *http.Client
	URL    func(key pkgkey.Key) string
}

func (s TarGzSource) FetchEntries(ctx context.Context, key pkgkey.Key) ([]tarball.Entry, error) {
	body, err := fetchBody(ctx, s.Client, s.URL(key))
	if err != nil {
		return nil, err
	}
	var entries []tarball.Entry
	err = tarball.Walk(bytes.NewReader(body), func(e tarball.Entry) (bool, error) {
		entries = append(entries, e)
		return true, nil
	})
	return entries, err
}

// NPMTarballURL builds the standard npm/JSR registry tarball URL:
// <base>/<name>/-/<basename>-<version>.tgz, where basename is the part of
// name after any @scope/ prefix.
func NPMTarballURL(base string) func(pkgkey.Key) string {
	return func(key pkgkey.Key) string {
		basename := key.Name
		if idx := strings.LastIndex(key.Name, "/"); idx >= 0 {
			basename = key.Name[idx+1:]
		}
		return fmt.Sprintf("%s/%s/-/%s-%s.tgz", base, key.Name, basename, key.Version)
	}
}

// GitHubTarballURL builds the codeload archive URL for a commit/tag/branch.
func GitHubTarballURL() func(pkgkey.Key) string {
	return func(key pkgkey.Key) string {
		return fmt.Sprintf("https://codeload.github.com/%s/tar.gz/%s", key.Name, key.Version)
	}
}

// CDNJSSource assembles an entry list from the cdnjs library API's file
// listing for a version, fetching each referenced file individually —
// cdnjs has no tar.gz distribution format.
type CDNJSSource struct {
	Client *http.Client
}

type cdnjsVersionFiles struct {
	Files []string `json:"files"`
}

func (s CDNJSSource) FetchEntries(ctx context.Context, key pkgkey.Key) ([]tarball.Entry, error) {
	listURL := fmt.Sprintf("https://api.cdnjs.com/libraries/%s/%s", key.Name, key.Version)
	body, err := fetchBody(ctx, s.Client, listURL)
	if err != nil {
		return nil, err
	}
	var doc cdnjsVersionFiles
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, nexuserr.Wrap(nexuserr.CodeInvalidManifest, "pkgcache: malformed cdnjs version doc", err)
	}

	entries := make([]tarball.Entry, 0, len(doc.Files))
	for _, f := range doc.Files {
		fileURL := fmt.Sprintf("https://cdnjs.cloudflare.com/ajax/libs/%s/%s/%s", key.Name, key.Version, f)
		data, err := fetchBody(ctx, s.Client, fileURL)
		if err != nil {
			continue // an individual asset 404 drops that file; the rest of the package still hydrates
		}
		entries = append(entries, tarball.Entry{Path: f, Data: data, DeclaredSize: int64(len(data))})
	}
	return entries, nil
}

// WordPressSource downloads the plugin/theme zip from wordpress.org's SVN-
// backed distribution and extracts it, stripping the single root directory
// the way the tar-based sources do.
type WordPressSource struct {
	Client *http.Client
}

func (s WordPressSource) FetchEntries(ctx context.Context, key pkgkey.Key) ([]tarball.Entry, error) {
	kind, slug, found := strings.Cut(key.Name, "/")
	if !found {
		return nil, nexuserr.New(nexuserr.CodeBadRequest, "pkgcache: malformed wordpress key "+key.Name)
	}
	singular := strings.TrimSuffix(kind, "s")

	// "trunk" has no tagged zip; downloads.wordpress.org's unsuffixed
	// path always serves the current packaged build, the closest
	// equivalent it offers to an SVN trunk checkout.
	var zipURL string
	if key.Version == "trunk" {
		zipURL = fmt.Sprintf("https://downloads.wordpress.org/%s/%s.zip", singular, slug)
	} else {
		zipURL = fmt.Sprintf("https://downloads.wordpress.org/%s/%s.%s.zip", singular, slug, strings.TrimPrefix(key.Version, "tags/"))
	}

	body, err := fetchBody(ctx, s.Client, zipURL)
	if err != nil {
		return nil, err
	}

	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.CodeInvalidManifest, "pkgcache: invalid wordpress zip", err)
	}

	root := ""
	rootDetermined := false
	var entries []tarball.Entry
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := f.Name
		if !rootDetermined {
			if idx := strings.IndexByte(name, '/'); idx >= 0 {
				root = name[:idx+1]
				rootDetermined = true
			}
		}
		rel := strings.TrimPrefix(name, root)
		if rel == "" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		entries = append(entries, tarball.Entry{Path: rel, Data: data, DeclaredSize: int64(len(data))})
	}
	return entries, nil
}
