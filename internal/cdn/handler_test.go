package cdn

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/nexus-cdn/nexus/internal/pkgkey"
	"github.com/nexus-cdn/nexus/internal/resolver"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(nopWriter{})
	return logger
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

type fakeHandlerCache struct {
	files map[string][]byte
}

func (f *fakeHandlerCache) GetFile(ctx context.Context, key pkgkey.Key, path string) ([]byte, error) {
	return (&fakeFetcher{files: f.files}).GetFile(ctx, key, path)
}

func (f *fakeHandlerCache) List(ctx context.Context, key pkgkey.Key) (pkgkey.PackageManifest, error) {
	files := make([]pkgkey.FileEntry, 0, len(f.files))
	for name, data := range f.files {
		files = append(files, pkgkey.FileEntry{Name: name, Size: int64(len(data))})
	}
	return pkgkey.PackageManifest{Files: files}, nil
}

func newTestHandler(cache *fakeHandlerCache) *Handler {
	return New(resolver.New(nil, ""), cache, nil, testLogger())
}

func newTestApp(h *Handler) *fiber.App {
	app := fiber.New()
	h.RegisterRoutes(app)
	return app
}

func TestHandlerServesWordPressPluginFile(t *testing.T) {
	cache := &fakeHandlerCache{files: map[string][]byte{
		"readme.txt": []byte("=== Akismet ==="),
	}}
	app := newTestApp(newTestHandler(cache))

	req := httptest.NewRequest("GET", "/cdn/wp/plugins/akismet/trunk/readme.txt", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if cc := resp.Header.Get(fiber.HeaderCacheControl); cc != "public, max-age=600" {
		t.Fatalf("unexpected cache-control for mutable trunk: %q", cc)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte("Akismet")) {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestHandlerImmutableCacheControlForTaggedVersion(t *testing.T) {
	cache := &fakeHandlerCache{files: map[string][]byte{
		"readme.txt": []byte("=== Akismet ==="),
	}}
	app := newTestApp(newTestHandler(cache))

	req := httptest.NewRequest("GET", "/cdn/wp/plugins/akismet/tags/5.3/readme.txt", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if cc := resp.Header.Get(fiber.HeaderCacheControl); cc != "public, max-age=31536000, immutable" {
		t.Fatalf("unexpected cache-control for tagged version: %q", cc)
	}
}

func TestHandlerListingOnTrailingSlash(t *testing.T) {
	cache := &fakeHandlerCache{files: map[string][]byte{
		"readme.txt": []byte("hello"),
		"style.css":  []byte("body{}"),
	}}
	app := newTestApp(newTestHandler(cache))

	req := httptest.NewRequest("GET", "/cdn/wp/themes/twentytwentyfour/1.2/", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte("readme.txt")) || !bytes.Contains(body, []byte("style.css")) {
		t.Fatalf("expected file listing, got %s", body)
	}
	if !bytes.Contains(body, []byte(`"name":"themes/twentytwentyfour"`)) || !bytes.Contains(body, []byte(`"path":""`)) {
		t.Fatalf("expected name/path fields at root, got %s", body)
	}
}

func TestHandlerListingFallbackOnMissingSubPath(t *testing.T) {
	cache := &fakeHandlerCache{files: map[string][]byte{
		"assets/logo.png": []byte("binary"),
		"assets/icon.png": []byte("binary"),
	}}
	app := newTestApp(newTestHandler(cache))

	req := httptest.NewRequest("GET", "/cdn/wp/themes/twentytwentyfour/1.2/assets", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 listing fallback, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte("assets/logo.png")) {
		t.Fatalf("expected filtered listing, got %s", body)
	}
	if !bytes.Contains(body, []byte(`"path":"assets"`)) {
		t.Fatalf("expected path field set to the missing sub-path, got %s", body)
	}
}

func TestHandlerFallbackIs404WhenNothingMatches(t *testing.T) {
	cache := &fakeHandlerCache{files: map[string][]byte{
		"readme.txt": []byte("hello"),
	}}
	app := newTestApp(newTestHandler(cache))

	req := httptest.NewRequest("GET", "/cdn/wp/themes/twentytwentyfour/1.2/nonexistent", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHandlerMalformedPluginPathIsBadRequest(t *testing.T) {
	cache := &fakeHandlerCache{files: map[string][]byte{}}
	app := newTestApp(newTestHandler(cache))

	req := httptest.NewRequest("GET", "/cdn/wp/plugins/akismet/branches/5.3", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
