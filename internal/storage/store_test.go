package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	testStoreRoundTrip(t, NewMemoryStore())
}

func TestFSStoreRoundTrip(t *testing.T) {
	s, err := NewFSStore(filepath.Join(t.TempDir(), "store"))
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	testStoreRoundTrip(t, s)
}

func testStoreRoundTrip(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	key := "cdn/npm/left-pad/1.3.0/package.json"

	if _, err := s.GetRaw(ctx, key); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound before write, got %v", err)
	}

	if err := s.PutRaw(ctx, key, []byte(`{"name":"left-pad"}`)); err != nil {
		t.Fatalf("PutRaw: %v", err)
	}
	data, err := s.GetRaw(ctx, key)
	if err != nil {
		t.Fatalf("GetRaw: %v", err)
	}
	if string(data) != `{"name":"left-pad"}` {
		t.Fatalf("unexpected data: %s", data)
	}

	if _, err := s.GetMeta(ctx, key); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for meta before write, got %v", err)
	}
	if err := s.SetMeta(ctx, key, Meta{"integrity": "sha256-abc"}); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	if err := s.SetMeta(ctx, key, Meta{"size": float64(19)}); err != nil {
		t.Fatalf("SetMeta merge: %v", err)
	}
	meta, err := s.GetMeta(ctx, key)
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if meta["integrity"] != "sha256-abc" || meta["size"] != float64(19) {
		t.Fatalf("expected merged meta, got %#v", meta)
	}
}

func TestMemoryStoreRemovePrefix(t *testing.T) {
	testRemovePrefix(t, NewMemoryStore())
}

func TestFSStoreRemovePrefix(t *testing.T) {
	s, err := NewFSStore(filepath.Join(t.TempDir(), "store"))
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	testRemovePrefix(t, s)
}

func testRemovePrefix(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	prefix := "cdn/npm/left-pad/1.3.0"

	if err := s.PutRaw(ctx, prefix+"/package.json", []byte("{}")); err != nil {
		t.Fatalf("PutRaw: %v", err)
	}
	if err := s.PutRaw(ctx, prefix+"/index.js", []byte("module.exports = {}")); err != nil {
		t.Fatalf("PutRaw: %v", err)
	}
	if err := s.SetMeta(ctx, prefix, Meta{"immutable": true}); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}

	if err := s.Remove(ctx, prefix); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if _, err := s.GetRaw(ctx, prefix+"/package.json"); err != ErrNotFound {
		t.Fatalf("expected package.json removed, got %v", err)
	}
	if _, err := s.GetRaw(ctx, prefix+"/index.js"); err != ErrNotFound {
		t.Fatalf("expected index.js removed, got %v", err)
	}
	if _, err := s.GetMeta(ctx, prefix); err != ErrNotFound {
		t.Fatalf("expected meta removed, got %v", err)
	}
}

func TestFSStoreNeutralizesPathTraversal(t *testing.T) {
	base := filepath.Join(t.TempDir(), "store")
	s, err := NewFSStore(base)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	if err := s.PutRaw(context.Background(), "../../etc/passwd", []byte("x")); err != nil {
		t.Fatalf("PutRaw: %v", err)
	}
	p, err := s.resolve("../../etc/passwd")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	rel, err := filepath.Rel(base, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		t.Fatalf("expected resolved path to stay within base, got %s", p)
	}
}
