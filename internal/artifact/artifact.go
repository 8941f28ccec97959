// Package artifact provides pluggable storage for the published JSON
// artifacts (chunks, manifests, indexes) and the read-only fetch capability
// consumed by the query layer.
package artifact

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a concrete artifact storage backend.
type Driver string

const (
	DriverFilesystem Driver = "fs"     // local filesystem (default, batch output)
	DriverS3         Driver = "s3"     // S3 / MinIO compatible
	DriverMemory     Driver = "memory" // in-memory (tests)
)

// Info describes a stored artifact.
type Info struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size_bytes"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// Store is the write-capable artifact backend used by the batch pipeline.
// Artifacts are write-once per run, but Put overwrites an existing key: the
// pipeline is a full re-run model and republishing must be idempotent.
type Store interface {
	// Put stores an artifact at key, replacing any existing content.
	Put(ctx context.Context, key string, r io.Reader) (Info, error)
	// Get retrieves artifact content and metadata. Returns ErrNotFound if
	// the key does not exist.
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	// Head returns metadata only.
	Head(ctx context.Context, key string) (Info, error)
	// Delete removes an artifact. Returns (false, nil) if not found.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns artifacts whose key has the given prefix, ordered by key
	// ascending.
	List(ctx context.Context, prefix string) ([]Info, error)
	// Driver returns the configured backend identifier.
	Driver() Driver
}

// ErrNotFound indicates the named artifact does not exist. Remote fetch
// failures in read paths are folded into this error: the query layer treats
// "unreadable" and "absent" identically.
var ErrNotFound = errors.New("artifact: not found")

// Fetcher is the read-only capability handed to the query layer: fetch a
// named artifact by its relative key and get its raw bytes, or ErrNotFound.
type Fetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// StoreFetcher adapts a Store into a Fetcher.
type StoreFetcher struct {
	store Store
}

// NewStoreFetcher wraps a write-capable store for read-side use.
func NewStoreFetcher(store Store) *StoreFetcher {
	return &StoreFetcher{store: store}
}

// Fetch reads the full content of an artifact.
func (f *StoreFetcher) Fetch(ctx context.Context, key string) ([]byte, error) {
	_, rc, err := f.store.Get(ctx, key)
	if err != nil {
		return nil, ErrNotFound
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, ErrNotFound
	}
	return data, nil
}
