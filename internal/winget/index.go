// Package winget implements a layered, stale-while-revalidate cache
// over the upstream WinGet manifests Git repository's tree API, and the
// per-file manifest fetch/cache used by the registry/winget/* routes.
package winget

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sirupsen/logrus"

	"github.com/nexus-cdn/nexus/internal/nexuserr"
	"github.com/nexus-cdn/nexus/internal/storage"
)

var letterPattern = regexp.MustCompile(`^[a-z0-9]$`)

// manifestPathPattern parses the canonical repo-absolute manifest path
// (Open Question decision #2 in DESIGN.md): manifests/<letter>/<publisher>/<name>/<version>/<file>.yaml.
var manifestPathPattern = regexp.MustCompile(`^manifests/[a-z0-9]/([^/]+)/([^/]+)/([^/]+)/[^/]+\.ya?ml$`)

// Index is the WinGet layered index for one upstream repo.
type Index struct {
	store       storage.Store
	client      *http.Client
	logger      *logrus.Logger
	owner       string
	repo        string
	branch      string
	githubToken string
	refreshTTL  time.Duration
}

// New builds an Index for owner/repo at branch. refreshTTL controls how
// long a layer's cached value is served before staleWhileRevalidate
// triggers a rebuild; a non-positive value falls back to 600s.
func New(store storage.Store, client *http.Client, logger *logrus.Logger, owner, repo, branch, githubToken string, refreshTTL time.Duration) *Index {
	if refreshTTL <= 0 {
		refreshTTL = 600 * time.Second
	}
	return &Index{store: store, client: client, logger: logger, owner: owner, repo: repo, branch: branch, githubToken: githubToken, refreshTTL: refreshTTL}
}

func (idx *Index) keyPrefix() string {
	return fmt.Sprintf("registry/winget/%s/%s", idx.owner, idx.repo)
}

// PackageVersions maps a PackageIdentifier (publisher.name) to its known
// versions, newest first.
type PackageVersions map[string][]string

// staleEntry is the JSON envelope stored under each layer's key.
type staleEntry struct {
	Value json.RawMessage `json:"value"`
}

// readLayer returns the cached value and its age, or storage.ErrNotFound
// if nothing is cached yet.
func (idx *Index) readLayer(ctx context.Context, key string) (json.RawMessage, time.Duration, error) {
	raw, err := idx.store.GetRaw(ctx, key)
	if err != nil {
		return nil, 0, err
	}
	meta, err := idx.store.GetMeta(ctx, key)
	if err != nil {
		return nil, 0, err
	}
	mtimeMS, _ := meta["mtime"].(float64)
	age := time.Since(time.UnixMilli(int64(mtimeMS)))

	var entry staleEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, 0, nexuserr.Wrap(nexuserr.CodeInvalidManifest, "winget: corrupt cache layer "+key, err)
	}
	return entry.Value, age, nil
}

func (idx *Index) writeLayer(ctx context.Context, key string, value json.RawMessage) error {
	encoded, err := json.Marshal(staleEntry{Value: value})
	if err != nil {
		return err
	}
	if err := idx.store.PutRaw(ctx, key, encoded); err != nil {
		return err
	}
	return idx.store.SetMeta(ctx, key, storage.Meta{"mtime": float64(time.Now().UnixMilli())})
}

// staleWhileRevalidate implements freshness discipline: fresh
// values return as-is; stale values return immediately while a rebuild
// runs detached; absent values rebuild synchronously.
func (idx *Index) staleWhileRevalidate(ctx context.Context, key string, rebuild func(context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	value, age, err := idx.readLayer(ctx, key)
	switch {
	case err == nil && age < idx.refreshTTL:
		return value, nil
	case err == nil:
		go func() {
			fresh, rebuildErr := rebuild(context.Background())
			if rebuildErr != nil {
				idx.logger.WithError(rebuildErr).WithField("key", key).Warn("winget: background rebuild failed")
				return
			}
			if writeErr := idx.writeLayer(context.Background(), key, fresh); writeErr != nil {
				idx.logger.WithError(writeErr).WithField("key", key).Warn("winget: background rebuild write failed")
			}
		}()
		return value, nil
	default:
		fresh, rebuildErr := rebuild(ctx)
		if rebuildErr != nil {
			return nil, rebuildErr
		}
		if writeErr := idx.writeLayer(ctx, key, fresh); writeErr != nil {
			idx.logger.WithError(writeErr).WithField("key", key).Warn("winget: synchronous rebuild write failed")
		}
		return fresh, nil
	}
}

// rootSHA returns the SHA of the "manifests" tree at the repo root.
func (idx *Index) rootSHA(ctx context.Context) (string, error) {
	raw, err := idx.staleWhileRevalidate(ctx, idx.keyPrefix()+"/manifests-sha", func(ctx context.Context) (json.RawMessage, error) {
		tree, err := idx.getTree(ctx, idx.branch, false)
		if err != nil {
			return nil, err
		}
		for _, e := range tree.Tree {
			if e.Path == "manifests" && e.Type == "tree" {
				return json.Marshal(e.SHA)
			}
		}
		return nil, nexuserr.New(nexuserr.CodeUpstreamUnavailable, "winget: manifests tree not found at root")
	})
	if err != nil {
		return "", err
	}
	var sha string
	if err := json.Unmarshal(raw, &sha); err != nil {
		return "", err
	}
	return sha, nil
}

// letterSHAs returns the map of single-character bucket name to tree SHA
// one level under "manifests". Fails hard if empty.
func (idx *Index) letterSHAs(ctx context.Context) (map[string]string, error) {
	sha, err := idx.rootSHA(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := idx.staleWhileRevalidate(ctx, idx.keyPrefix()+"/manifests-letters", func(ctx context.Context) (json.RawMessage, error) {
		tree, err := idx.getTree(ctx, sha, false)
		if err != nil {
			return nil, err
		}
		letters := make(map[string]string)
		for _, e := range tree.Tree {
			if e.Type == "tree" && letterPattern.MatchString(e.Path) {
				letters[e.Path] = e.SHA
			}
		}
		if len(letters) == 0 {
			return nil, nexuserr.New(nexuserr.CodeUpstreamUnavailable, "winget: no letter buckets found under manifests")
		}
		return json.Marshal(letters)
	})
	if err != nil {
		return nil, err
	}
	var letters map[string]string
	if err := json.Unmarshal(raw, &letters); err != nil {
		return nil, err
	}
	return letters, nil
}

// letterPaths returns the flattened list of repo-absolute manifest paths
// (manifests/<letter>/...) under one letter bucket.
func (idx *Index) letterPaths(ctx context.Context, letter, sha string) ([]string, error) {
	raw, err := idx.staleWhileRevalidate(ctx, idx.keyPrefix()+"/manifests-"+letter, func(ctx context.Context) (json.RawMessage, error) {
		tree, err := idx.getTree(ctx, sha, true)
		if err != nil {
			return nil, err
		}
		if tree.Truncated {
			idx.logger.WithField("letter", letter).Warn("winget: recursive tree truncated, some manifest paths may be missing")
		}
		paths := make([]string, 0, len(tree.Tree))
		for _, e := range tree.Tree {
			if e.Type == "blob" {
				paths = append(paths, fmt.Sprintf("manifests/%s/%s", letter, e.Path))
			}
		}
		return json.Marshal(paths)
	})
	if err != nil {
		return nil, err
	}
	var paths []string
	if err := json.Unmarshal(raw, &paths); err != nil {
		return nil, err
	}
	return paths, nil
}

// PackageIndex builds (or serves the cached) package -> versions mapping.
// Letter fetches run in parallel via errgroup; a single letter's failure
// drops that letter's packages but does not fail the whole rebuild.
func (idx *Index) PackageIndex(ctx context.Context) (PackageVersions, error) {
	raw, err := idx.staleWhileRevalidate(ctx, idx.keyPrefix()+"/index", func(ctx context.Context) (json.RawMessage, error) {
		built, err := idx.buildPackageIndex(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(built)
	})
	if err != nil {
		return nil, err
	}
	var versions PackageVersions
	if err := json.Unmarshal(raw, &versions); err != nil {
		return nil, err
	}
	return versions, nil
}

func (idx *Index) buildPackageIndex(ctx context.Context) (PackageVersions, error) {
	letters, err := idx.letterSHAs(ctx)
	if err != nil {
		return nil, err
	}

	type letterResult struct {
		letter string
		paths  []string
	}
	results := make([]letterResult, len(letters))
	names := make([]string, 0, len(letters))
	for l := range letters {
		names = append(names, l)
	}
	sort.Strings(names)

	g, gctx := errgroup.WithContext(ctx)
	for pos, letter := range names {
		pos, letter := pos, letter
		g.Go(func() error {
			paths, err := idx.letterPaths(gctx, letter, letters[letter])
			if err != nil {
				idx.logger.WithError(err).WithField("letter", letter).Warn("winget: letter fetch failed, dropping from index")
				return nil // isolate this letter's failure; don't fail the whole rebuild
			}
			results[pos] = letterResult{letter: letter, paths: paths}
			return nil
		})
	}
	_ = g.Wait()

	versions := make(PackageVersions)
	for _, r := range results {
		for _, path := range r.paths {
			if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
				continue
			}
			m := manifestPathPattern.FindStringSubmatch(path)
			if m == nil {
				continue
			}
			publisher, name, version := m[1], m[2], m[3]
			id := publisher + "." + name
			versions[id] = appendUniqueVersion(versions[id], version)
		}
	}
	for id := range versions {
		sortVersionsDescending(versions[id])
	}
	return versions, nil
}

func appendUniqueVersion(versions []string, v string) []string {
	for _, existing := range versions {
		if existing == v {
			return versions
		}
	}
	return append(versions, v)
}

// ManifestBytes fetches (and caches indefinitely) the raw content of a
// single manifest file. Individual manifest files at a branch path
// are effectively immutable once written.
func (idx *Index) ManifestBytes(ctx context.Context, path string) ([]byte, error) {
	key := idx.keyPrefix() + "/files/" + path
	if data, err := idx.store.GetRaw(ctx, key); err == nil {
		return data, nil
	}

	data, err := idx.fetchRawManifest(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := idx.store.PutRaw(ctx, key, data); err != nil {
		idx.logger.WithError(err).WithField("path", path).Warn("winget: manifest cache write failed")
	}
	return data, nil
}
