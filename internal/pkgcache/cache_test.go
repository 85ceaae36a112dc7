package pkgcache

import (
	"archive/tar"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"

	"github.com/nexus-cdn/nexus/internal/pkgkey"
	"github.com/nexus-cdn/nexus/internal/storage"
)

func buildTarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		_ = tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg})
		_, _ = tw.Write([]byte(content))
	}
	_ = tw.Close()
	_ = gz.Close()
	return buf.Bytes()
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.Out = bytes.NewBuffer(nil)
	return logger
}

func newTestCache(t *testing.T, tarGz []byte) (*Cache, pkgkey.Key) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tarGz)
	}))
	t.Cleanup(srv.Close)

	store := storage.NewMemoryStore()
	sources := map[pkgkey.Ecosystem]EntrySource{
		pkgkey.EcosystemNPM: TarGzSource{Client: srv.Client(), URL: func(pkgkey.Key) string { return srv.URL }},
	}
	c := New(store, sources, testLogger())
	key := pkgkey.Key{Ecosystem: pkgkey.EcosystemNPM, Name: "uikit", Version: "3.21.0", Immutable: true}
	return c, key
}

func TestGetFileMissThenHit(t *testing.T) {
	tarGz := buildTarGz(t, map[string]string{
		"package/package.json":  `{"name":"uikit"}`,
		"package/dist/uikit.js": "console.log(1)",
	})
	c, key := newTestCache(t, tarGz)

	data, err := c.GetFile(context.Background(), key, "dist/uikit.js")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if string(data) != "console.log(1)" {
		t.Fatalf("unexpected bytes: %s", data)
	}

	// second call returns the same bytes, from the store once the detached
	// persistence has landed
	data2, err := c.GetFile(context.Background(), key, "dist/uikit.js")
	if err != nil {
		t.Fatalf("GetFile (cached): %v", err)
	}
	if string(data2) != "console.log(1)" {
		t.Fatalf("unexpected cached bytes: %s", data2)
	}
}

func TestListBlocksUntilHydrated(t *testing.T) {
	tarGz := buildTarGz(t, map[string]string{
		"package/package.json": `{"name":"uikit"}`,
		"package/index.js":     "x",
	})
	c, key := newTestCache(t, tarGz)

	manifest, err := c.List(context.Background(), key)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(manifest.Files) != 2 {
		t.Fatalf("expected 2 files in manifest, got %d", len(manifest.Files))
	}
	for _, f := range manifest.Files {
		if f.Integrity == "" {
			t.Fatalf("expected integrity to be computed for %s", f.Name)
		}
	}
}

func TestGetFileMissingPathReturnsFileNotFound(t *testing.T) {
	tarGz := buildTarGz(t, map[string]string{"package/index.js": "x"})
	c, key := newTestCache(t, tarGz)

	_, err := c.GetFile(context.Background(), key, "does-not-exist.js")
	if err == nil {
		t.Fatalf("expected error for missing path")
	}
}

func TestHydrateAsyncEventuallyPopulatesManifest(t *testing.T) {
	tarGz := buildTarGz(t, map[string]string{"package/index.js": "x"})
	c, key := newTestCache(t, tarGz)

	c.HydrateAsync(key)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m, err := c.List(context.Background(), key); err == nil && len(m.Files) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected manifest to be populated by background hydration")
}
