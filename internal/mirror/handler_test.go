package mirror

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(nopWriter{})
	return logger
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestJoinUpstreamPath(t *testing.T) {
	cases := []struct{ base, path, want string }{
		{"https://registry.npmjs.org", "left-pad", "https://registry.npmjs.org/left-pad"},
		{"https://registry.npmjs.org/", "/left-pad", "https://registry.npmjs.org/left-pad"},
		{"https://registry.npmjs.org", "", "https://registry.npmjs.org"},
	}
	for _, tc := range cases {
		if got := joinUpstreamPath(tc.base, tc.path); got != tc.want {
			t.Fatalf("joinUpstreamPath(%q, %q) = %q, want %q", tc.base, tc.path, got, tc.want)
		}
	}
}

func TestHandlerProxiesToUpstream(t *testing.T) {
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/left-pad" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"left-pad"}`))
	}))
	defer upstreamSrv.Close()

	h := New(upstreamSrv.Client(), map[string]string{"npm": upstreamSrv.URL}, testLogger())
	app := fiber.New()
	h.RegisterRoutes(app)

	req := httptest.NewRequest("GET", "/mirror/npm/left-pad", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if cc := resp.Header.Get(fiber.HeaderCacheControl); cc != "public, max-age=600" {
		t.Fatalf("unexpected cache-control: %q", cc)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"name":"left-pad"}` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestHandlerUnknownRegistryIs404(t *testing.T) {
	h := New(http.DefaultClient, map[string]string{"npm": "https://registry.npmjs.org"}, testLogger())
	app := fiber.New()
	h.RegisterRoutes(app)

	req := httptest.NewRequest("GET", "/mirror/nonexistent/left-pad", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHandlerForwardsUpstreamFailureStatus(t *testing.T) {
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer upstreamSrv.Close()

	h := New(upstreamSrv.Client(), map[string]string{"npm": upstreamSrv.URL}, testLogger())
	app := fiber.New()
	h.RegisterRoutes(app)

	req := httptest.NewRequest("GET", "/mirror/npm/does-not-exist", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected upstream's 404 to propagate, got %d", resp.StatusCode)
	}
}
