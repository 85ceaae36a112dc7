// Package storage implements the Storage KV dependency interface :
// a minimal, transaction-free contract that any object store, embedded KV,
// or filesystem can satisfy. The package cache and the WinGet index are
// built against this interface only and never assume anything about the
// back-end beyond what it promises.
package storage

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the back-end cannot be reached. Callers
// in the core treat this as a cache miss for reads and a best-effort drop
// for writes; see nexuserr.CodeStorageUnavailable for how it surfaces.
var ErrUnavailable = errors.New("storage: backend unavailable")

// Meta is an opaque string-keyed mapping merged into a key's metadata by
// SetMeta. It is intentionally untyped at this layer; callers (PackageCache,
// the WinGet index) decode/encode their own structured values into it.
type Meta map[string]any

// Store is the five-operation contract required of a Storage KV back-end.
// No ordering or transaction guarantees are made across keys: the
// PackageManifest (or equivalent commit-point value) under a given prefix
// is the single source of truth for "this key space is fully populated".
type Store interface {
	// GetRaw returns the bytes stored at key, or ErrNotFound if absent.
	GetRaw(ctx context.Context, key string) ([]byte, error)

	// PutRaw stores bytes at key. Atomic with respect to other GetRaw
	// calls on the same key: a reader never observes a torn write.
	PutRaw(ctx context.Context, key string, data []byte) error

	// Remove deletes key and every key nested under the "prefix/" tree.
	Remove(ctx context.Context, prefix string) error

	// GetMeta returns the metadata mapping associated with key, or
	// ErrNotFound if absent.
	GetMeta(ctx context.Context, key string) (Meta, error)

	// SetMeta merges fields into the metadata mapping associated with
	// key, creating it if absent.
	SetMeta(ctx context.Context, key string, fields Meta) error
}

// ErrNotFound indicates the requested key (or its metadata) is absent.
var ErrNotFound = errors.New("storage: key not found")
