// Package esmbundle implements an in-memory ESM transform over
// files already resolved and cached by internal/pkgcache, run entirely
// in-process since no bundler binary is available in this deployment.
package esmbundle

import (
	"context"

	"github.com/nexus-cdn/nexus/internal/nexuserr"
	"github.com/nexus-cdn/nexus/internal/pkgkey"
)

// FileFetcher is the subset of internal/pkgcache the bundler needs to
// read a resolved package's already-cached files.
type FileFetcher interface {
	GetFile(ctx context.Context, key pkgkey.Key, path string) ([]byte, error)
}

// virtualFS addresses cached package files by the "/virtual/<name>/<path>"
// scheme step 1, backing reads directly against the package
// cache rather than materializing every file up front.
type virtualFS struct {
	cache FileFetcher
	root  map[string]pkgkey.Key // name -> resolved key, one entry per package pulled into the graph
}

func newVirtualFS(cache FileFetcher) *virtualFS {
	return &virtualFS{cache: cache, root: make(map[string]pkgkey.Key)}
}

func virtualPath(name, relPath string) string {
	return "/virtual/" + name + "/" + relPath
}

// addPackage registers a resolved package under the graph so its files
// can be addressed by virtualPath(name, ...).
func (v *virtualFS) addPackage(name string, key pkgkey.Key) {
	v.root[name] = key
}

// read fetches relPath from the package registered under name.
func (v *virtualFS) read(ctx context.Context, name, relPath string) ([]byte, error) {
	key, ok := v.root[name]
	if !ok {
		return nil, nexuserr.New(nexuserr.CodeFileNotFound, "esmbundle: package not in graph: "+name)
	}
	return v.cache.GetFile(ctx, key, relPath)
}
