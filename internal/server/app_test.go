package server

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/nexus-cdn/nexus/internal/cdn"
	"github.com/nexus-cdn/nexus/internal/mirror"
	"github.com/nexus-cdn/nexus/internal/nexuserr"
	"github.com/nexus-cdn/nexus/internal/pkgkey"
	"github.com/nexus-cdn/nexus/internal/resolver"
	"github.com/nexus-cdn/nexus/internal/storage"
	"github.com/nexus-cdn/nexus/internal/winget"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(nopWriter{})
	return logger
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

type emptyCache struct{}

func (emptyCache) GetFile(ctx context.Context, key pkgkey.Key, path string) ([]byte, error) {
	return nil, nexuserr.New(nexuserr.CodeFileNotFound, "not found")
}

func (emptyCache) List(ctx context.Context, key pkgkey.Key) (pkgkey.PackageManifest, error) {
	return pkgkey.PackageManifest{}, nexuserr.New(nexuserr.CodePackageNotFound, "not found")
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	logger := testLogger()

	cdnHandler := cdn.New(resolver.New(nil, ""), emptyCache{}, nil, logger)
	winGetIndex := winget.New(storage.NewMemoryStore(), nil, logger, "microsoft", "winget-pkgs", "master", "", 0)
	mirrorHandler := mirror.New(nil, map[string]string{"npmjs": "https://registry.npmjs.org"}, logger)

	app, err := NewApp(AppOptions{
		Logger:      logger,
		CDN:         cdnHandler,
		WinGet:      winGetIndex,
		Mirror:      mirrorHandler,
		MirrorTable: map[string]string{"npmjs": "https://registry.npmjs.org"},
		Ecosystems:  []string{"npm", "jsr", "gh", "cdnjs", "wp", "winget"},
	})
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	return app
}

func TestNewAppRejectsMissingDependencies(t *testing.T) {
	logger := testLogger()
	if _, err := NewApp(AppOptions{}); err == nil {
		t.Fatal("expected error when no dependencies are supplied")
	}
	if _, err := NewApp(AppOptions{Logger: logger}); err == nil {
		t.Fatal("expected error when cdn handler is missing")
	}
}

func TestStatusEndpointListsMirrorsAndEcosystems(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(fiber.MethodGet, "/_status", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`"npmjs"`)) {
		t.Fatalf("expected mirror name in status body, got %s", body)
	}
	if !bytes.Contains(body, []byte(`"winget"`)) {
		t.Fatalf("expected ecosystem name in status body, got %s", body)
	}
}

func TestRequestIDHeaderIsStamped(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(fiber.MethodGet, "/_status", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header to be set")
	}
}

func TestCORSHeaderIsPermissive(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(fiber.MethodGet, "/_status", nil)
	req.Header.Set("Origin", "https://example.com")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") == "" {
		t.Fatal("expected Access-Control-Allow-Origin header to be set")
	}
}

func TestMirrorUnknownRegistryIs404ThroughApp(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(fiber.MethodGet, "/mirror/unknown-registry/some/path", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
