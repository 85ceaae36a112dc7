package winget

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/nexus-cdn/nexus/internal/nexuserr"
)

// Package vars rather than consts so tests can point them at a local
// httptest server.
var (
	githubAPIBase = "https://api.github.com"
	githubRawBase = "https://raw.githubusercontent.com"
)

type gitTreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

type gitTree struct {
	SHA       string         `json:"sha"`
	Tree      []gitTreeEntry `json:"tree"`
	Truncated bool           `json:"truncated"`
}

func (idx *Index) getTree(ctx context.Context, sha string, recursive bool) (gitTree, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s", githubAPIBase, idx.owner, idx.repo, sha)
	if recursive {
		url += "?recursive=1"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return gitTree{}, nexuserr.Wrap(nexuserr.CodeUpstreamUnavailable, "winget: build tree request", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if idx.githubToken != "" {
		req.Header.Set("Authorization", "Bearer "+idx.githubToken)
	}

	resp, err := idx.client.Do(req)
	if err != nil {
		return gitTree{}, nexuserr.Wrap(nexuserr.CodeUpstreamUnavailable, "winget: fetch tree failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return gitTree{}, nexuserr.New(nexuserr.CodePackageNotFound, "winget: tree not found: "+sha)
	}
	if resp.StatusCode/100 != 2 {
		return gitTree{}, nexuserr.New(nexuserr.CodeUpstreamUnavailable, fmt.Sprintf("winget: tree fetch status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return gitTree{}, nexuserr.Wrap(nexuserr.CodeUpstreamUnavailable, "winget: read tree body", err)
	}

	var tree gitTree
	if err := json.Unmarshal(body, &tree); err != nil {
		return gitTree{}, nexuserr.Wrap(nexuserr.CodeInvalidManifest, "winget: malformed tree response", err)
	}
	return tree, nil
}

func (idx *Index) fetchRawManifest(ctx context.Context, path string) ([]byte, error) {
	url := fmt.Sprintf("%s/%s/%s/%s/%s", githubRawBase, idx.owner, idx.repo, idx.branch, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.CodeUpstreamUnavailable, "winget: build raw request", err)
	}
	if idx.githubToken != "" {
		req.Header.Set("Authorization", "Bearer "+idx.githubToken)
	}

	resp, err := idx.client.Do(req)
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.CodeUpstreamUnavailable, "winget: fetch raw manifest failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nexuserr.New(nexuserr.CodeFileNotFound, "winget: manifest not found: "+path)
	}
	if resp.StatusCode/100 != 2 {
		return nil, nexuserr.New(nexuserr.CodeUpstreamUnavailable, fmt.Sprintf("winget: raw fetch status %d", resp.StatusCode))
	}

	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}
