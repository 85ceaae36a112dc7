package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nexus-cdn/nexus/internal/nexuserr"
	"github.com/nexus-cdn/nexus/internal/pkgkey"
)

func TestResolveExactVersionPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"versions":{"3.21.0":{},"3.20.0":{}},"dist-tags":{"latest":"3.21.0"}}`))
	}))
	defer srv.Close()

	r := &Resolver{client: srv.Client()}
	npmRegistryBaseOverride(t, srv.URL)

	res, err := r.Resolve(context.Background(), pkgkey.EcosystemNPM, "uikit", "3.21.0")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Version != "3.21.0" || !res.Immutable {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestResolveRangeUsesMaxSatisfying(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"versions":{"18.3.1":{},"18.2.0":{},"17.0.0":{}},"dist-tags":{"latest":"18.3.1"}}`))
	}))
	defer srv.Close()

	r := &Resolver{client: srv.Client()}
	npmRegistryBaseOverride(t, srv.URL)

	res, err := r.Resolve(context.Background(), pkgkey.EcosystemNPM, "react", "18")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Version != "18.3.1" {
		t.Fatalf("expected 18.3.1, got %s", res.Version)
	}
	if !res.Immutable {
		t.Fatalf("expected immutable since resolved string is complete semver")
	}
}

func TestResolveMetadata404IsPackageNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	r := &Resolver{client: srv.Client()}
	npmRegistryBaseOverride(t, srv.URL)

	_, err := r.Resolve(context.Background(), pkgkey.EcosystemNPM, "left-pad", "latest")
	if !nexuserr.Is(err, nexuserr.CodePackageNotFound) {
		t.Fatalf("expected PackageNotFound, got %v", err)
	}
}

func TestResolveMetadata500IsUpstreamUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := &Resolver{client: srv.Client()}
	npmRegistryBaseOverride(t, srv.URL)

	_, err := r.Resolve(context.Background(), pkgkey.EcosystemNPM, "left-pad", "latest")
	if !nexuserr.Is(err, nexuserr.CodeUpstreamUnavailable) {
		t.Fatalf("expected UpstreamUnavailable, got %v", err)
	}
}

func TestResolveWordPress(t *testing.T) {
	res := ResolveWordPress("akismet", "trunk")
	if res.Immutable {
		t.Fatalf("trunk should be mutable")
	}
	res = ResolveWordPress("akismet", "5.3")
	if !res.Immutable {
		t.Fatalf("tagged version should be immutable")
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"versions":{"1.0.0":{}},"dist-tags":{"latest":"1.0.0"}}`))
	}))
	defer srv.Close()

	r := &Resolver{client: srv.Client()}
	npmRegistryBaseOverride(t, srv.URL)

	first, err := r.Resolve(context.Background(), pkgkey.EcosystemNPM, "pkg", "1.0.0")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, err := r.Resolve(context.Background(), pkgkey.EcosystemNPM, "pkg", first.Version)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if second.Version != first.Version || second.Immutable != first.Immutable {
		t.Fatalf("resolve is not idempotent: %+v vs %+v", first, second)
	}
}

// npmRegistryBaseOverride points the package-level npm registry base at a
// test server for the duration of the test.
func npmRegistryBaseOverride(t *testing.T, base string) {
	t.Helper()
	orig := npmRegistryBase
	npmRegistryBase = base
	t.Cleanup(func() { npmRegistryBase = orig })
}
