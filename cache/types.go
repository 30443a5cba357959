// Package cache keeps recently fetched API resources for a bounded time so
// repeated page renders do not hit the upstream API. Backends implement Cache;
// Loader adds read-through loading with stampede protection on top.
package cache

import (
	"context"
	"time"
)

// Cache defines the byte-level operations every backend supports.
// All implementations must be safe for concurrent use.
type Cache interface {
	// Get retrieves a value by key.
	// Returns ErrNotFound if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL. A TTL of 0 stores without expiration.
	// Returns ErrInvalidTTL for negative TTLs.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Health checks that the backend is reachable.
	Health(ctx context.Context) error

	// Close releases resources. The cache must not be used afterwards.
	Close() error
}
