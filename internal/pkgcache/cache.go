// Package pkgcache implements the read-through, opportunistic-
// warming package cache. For each (ecosystem, name, version) it serves a
// single file on demand, hydrating the whole package from upstream on
// first miss and warming the rest in the background.
package pkgcache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nexus-cdn/nexus/internal/integrity"
	"github.com/nexus-cdn/nexus/internal/nexuserr"
	"github.com/nexus-cdn/nexus/internal/pkgkey"
	"github.com/nexus-cdn/nexus/internal/storage"
	"github.com/nexus-cdn/nexus/internal/tarball"
)

// Cache is the package cache, built against the Storage KV
// interface and a per-ecosystem EntrySource.
type Cache struct {
	store   storage.Store
	sources map[pkgkey.Ecosystem]EntrySource
	logger  *logrus.Logger
}

// New builds a Cache. sources must have an entry for every ecosystem the
// deployment serves; a missing ecosystem yields BadRequest on GetFile.
func New(store storage.Store, sources map[pkgkey.Ecosystem]EntrySource, logger *logrus.Logger) *Cache {
	return &Cache{store: store, sources: sources, logger: logger}
}

// GetFile implements the hot path: a cache hit returns
// immediately; a miss triggers a full upstream pull, returns the
// requested entry as soon as it is found in the walk, and detaches
// persistence of the rest of the package (including the terminal
// PackageManifest write) as a background task.
func (c *Cache) GetFile(ctx context.Context, key pkgkey.Key, path string) ([]byte, error) {
	if data, err := c.store.GetRaw(ctx, key.RawKey(path)); err == nil {
		return data, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		c.logger.WithError(err).Warn("pkgcache: storage read failed, falling back to upstream")
	}

	data, err := c.hydrate(ctx, key, path, false)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nexuserr.New(nexuserr.CodeFileNotFound, "pkgcache: "+path+" not found in package")
	}
	return data, nil
}

// List returns the PackageManifest for key, blocking until the package is
// hydrated if it is not already.
func (c *Cache) List(ctx context.Context, key pkgkey.Key) (pkgkey.PackageManifest, error) {
	manifest, err := c.readManifest(ctx, key)
	if err == nil {
		return manifest, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		c.logger.WithError(err).Warn("pkgcache: storage meta read failed, forcing hydration")
	}

	if _, err := c.hydrate(ctx, key, "", true); err != nil {
		return pkgkey.PackageManifest{}, err
	}
	return c.readManifest(ctx, key)
}

// HasManifest reports whether key is already fully hydrated, without
// triggering a fetch on a miss. Used by the ESM bundler's peer-range
// heuristic to prefer a dependency version already warm in cache.
func (c *Cache) HasManifest(ctx context.Context, key pkgkey.Key) bool {
	_, err := c.readManifest(ctx, key)
	return err == nil
}

// HydrateAsync schedules a full, fire-and-forget warmup of key. It never
// returns an error to the caller; failures are logged.
func (c *Cache) HydrateAsync(key pkgkey.Key) {
	go func() {
		if _, err := c.hydrate(context.Background(), key, "", false); err != nil {
			c.logger.WithError(err).Warn("pkgcache: background hydrate failed")
		}
	}()
}

// hydrate pulls the upstream source once, captures targetPath's bytes if
// asked for one, and persists every entry concurrently. When
// blockOnManifest is true (List's forced-hydration path) the call does
// not return until the terminal manifest write completes; otherwise the
// manifest write is detached so the caller (GetFile) can return the
// single requested file without waiting on the rest of the package.
func (c *Cache) hydrate(ctx context.Context, key pkgkey.Key, targetPath string, blockOnManifest bool) ([]byte, error) {
	source, ok := c.sources[key.Ecosystem]
	if !ok {
		return nil, nexuserr.New(nexuserr.CodeBadRequest, "pkgcache: no source configured for ecosystem "+string(key.Ecosystem))
	}

	entries, err := source.FetchEntries(ctx, key)
	if err != nil {
		return nil, err
	}

	// Hydration policy: a mutable key's prefix is removed before
	// warmup so a concurrent List never observes a mix of old and new
	// files. Best-effort; a storage failure here is logged and swallowed.
	if !key.Immutable {
		if err := c.store.Remove(context.Background(), key.Prefix()); err != nil {
			c.logger.WithError(err).Warn("pkgcache: mutable prefix removal failed")
		}
	}

	var (
		targetBytes []byte
		found       bool
		wg          sync.WaitGroup
		mu          sync.Mutex
		manifest    []pkgkey.FileEntry
	)

	for _, e := range entries {
		if e.Path == targetPath && targetPath != "" {
			targetBytes = e.Data
			found = true
		}
		wg.Add(1)
		go func(e tarball.Entry) {
			defer wg.Done()
			c.persistEntry(context.Background(), key, e, &mu, &manifest)
		}(e)
	}

	finalize := func() {
		wg.Wait()
		c.writeManifest(context.Background(), key, manifest)
	}
	if blockOnManifest {
		finalize()
	} else {
		go finalize()
	}

	if targetPath != "" && !found {
		return nil, nil
	}
	return targetBytes, nil
}

// persistEntry writes a single file's bytes if not already present,
// computes its integrity, and appends its FileEntry to manifest under
// mu. Failures are logged and swallowed: a subsequent GetFile for the
// same path retries from upstream.
func (c *Cache) persistEntry(ctx context.Context, key pkgkey.Key, e tarball.Entry, mu *sync.Mutex, manifest *[]pkgkey.FileEntry) {
	rawKey := key.RawKey(e.Path)

	if _, err := c.store.GetRaw(ctx, rawKey); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.logger.WithError(err).WithField("path", e.Path).Warn("pkgcache: existence probe failed, attempting write")
		}
		if err := c.store.PutRaw(ctx, rawKey, e.Data); err != nil {
			c.logger.WithError(err).WithField("path", e.Path).Warn("pkgcache: persist failed")
			return
		}
	}

	entry := pkgkey.FileEntry{
		Name:      e.Path,
		Size:      int64(len(e.Data)),
		Integrity: integrity.Compute(e.Data),
	}
	mu.Lock()
	*manifest = append(*manifest, entry)
	mu.Unlock()
}

type manifestMeta struct {
	Files     []pkgkey.FileEntry `json:"files"`
	BuiltAtMS int64              `json:"built_at_ms"`
}

func (c *Cache) writeManifest(ctx context.Context, key pkgkey.Key, files []pkgkey.FileEntry) {
	encoded, err := json.Marshal(manifestMeta{Files: files, BuiltAtMS: time.Now().UnixMilli()})
	if err != nil {
		c.logger.WithError(err).Warn("pkgcache: marshal manifest failed")
		return
	}
	if err := c.store.SetMeta(ctx, key.Prefix(), storage.Meta{"manifest": string(encoded)}); err != nil {
		c.logger.WithError(err).Warn("pkgcache: manifest write failed")
	}
}

func (c *Cache) readManifest(ctx context.Context, key pkgkey.Key) (pkgkey.PackageManifest, error) {
	meta, err := c.store.GetMeta(ctx, key.Prefix())
	if err != nil {
		return pkgkey.PackageManifest{}, err
	}
	raw, ok := meta["manifest"].(string)
	if !ok {
		return pkgkey.PackageManifest{}, storage.ErrNotFound
	}
	var decoded manifestMeta
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return pkgkey.PackageManifest{}, nexuserr.Wrap(nexuserr.CodeInvalidManifest, "pkgcache: corrupt manifest", err)
	}
	return pkgkey.PackageManifest{Files: decoded.Files, BuiltAtMS: decoded.BuiltAtMS}, nil
}
