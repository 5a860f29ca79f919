// Package cache keeps decoded store entries in process memory, keyed by
// record address.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned for keys that are missing or expired.
var ErrNotFound = errors.New("cache: key not found")

// Versioned is a cached value that knows the store version it was read at.
type Versioned interface {
	CacheVersion() uint64
}

// Cache holds one entry per record key. An entry is never replaced by an
// older version of the same record, so a slow reader cannot undo the
// write-through of a later commit.
type Cache[K comparable, V Versioned] interface {
	Get(ctx context.Context, key K) (V, error)

	// Set stores value for ttl unless a newer version of key is cached.
	Set(ctx context.Context, key K, value V, ttl time.Duration) error

	// Delete drops key, typically after a commit conflict.
	Delete(ctx context.Context, key K) error

	Close() error
}
