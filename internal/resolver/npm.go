package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/nexus-cdn/nexus/internal/nexuserr"
	"github.com/nexus-cdn/nexus/internal/pkgkey"
)

// Package vars rather than consts so tests can point them at a local
// httptest server.
var (
	npmRegistryBase  = "https://registry.npmjs.org"
	jsrNPMCompatBase = "https://npm.jsr.io"
)

type npmPackument struct {
	Versions map[string]json.RawMessage `json:"versions"`
	DistTags map[string]string          `json:"dist-tags"`
}

// fetchNPMCompat fetches an npm-registry-shaped packument from base, used
// by both npm itself and JSR's npm-compatibility endpoint ("JSR-via-
// npm-compat").
func (r *Resolver) fetchNPMCompat(ctx context.Context, base, name string) ([]string, string, error) {
	escaped := strings.ReplaceAll(url.PathEscape(name), "%40", "@")
	reqURL := fmt.Sprintf("%s/%s", base, escaped)

	body, err := r.getJSON(ctx, reqURL)
	if err != nil {
		return nil, "", err
	}

	var doc npmPackument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, "", nexuserr.Wrap(nexuserr.CodeInvalidManifest, "resolver: malformed npm packument", err)
	}

	versions := make([]string, 0, len(doc.Versions))
	for v := range doc.Versions {
		versions = append(versions, v)
	}
	return versions, doc.DistTags["latest"], nil
}

// VersionMeta returns the raw per-version object from an npm-compatible
// packument, used by internal/cdn's npm entry-file selection
// (browser/main/module) and JSR's exports-field lookup.
func (r *Resolver) VersionMeta(ctx context.Context, eco pkgkey.Ecosystem, name, version string) (map[string]json.RawMessage, error) {
	base := npmRegistryBase
	if eco == pkgkey.EcosystemJSR {
		base = jsrNPMCompatBase
	}
	escaped := strings.ReplaceAll(url.PathEscape(name), "%40", "@")
	reqURL := fmt.Sprintf("%s/%s", base, escaped)

	body, err := r.getJSON(ctx, reqURL)
	if err != nil {
		return nil, err
	}
	var doc npmPackument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, nexuserr.Wrap(nexuserr.CodeInvalidManifest, "resolver: malformed npm packument", err)
	}
	raw, ok := doc.Versions[version]
	if !ok {
		return nil, nexuserr.New(nexuserr.CodeVersionNotFound, "resolver: version not in packument: "+version)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, nexuserr.Wrap(nexuserr.CodeInvalidManifest, "resolver: malformed version object", err)
	}
	return fields, nil
}

// getJSON performs the shared fetch-and-classify-failure dance: upstream
// 404 becomes PackageNotFound, any other non-2xx or transport error
// becomes UpstreamUnavailable.
func (r *Resolver) getJSON(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.CodeUpstreamUnavailable, "resolver: build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.githubToken != "" && strings.Contains(reqURL, "github") {
		req.Header.Set("Authorization", "Bearer "+r.githubToken)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.CodeUpstreamUnavailable, "resolver: upstream fetch failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nexuserr.New(nexuserr.CodePackageNotFound, "resolver: upstream 404 for "+reqURL)
	}
	if resp.StatusCode/100 != 2 {
		return nil, nexuserr.New(nexuserr.CodeUpstreamUnavailable, fmt.Sprintf("resolver: upstream status %d for %s", resp.StatusCode, reqURL))
	}

	const maxMetadataBytes = 16 << 20 // registry packuments can be large (many versions)
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataBytes))
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.CodeUpstreamUnavailable, "resolver: read upstream body", err)
	}
	return body, nil
}
