// Package cache provides the best-effort key/value store that memoizes
// external-service results. The cache is a performance optimization, never a
// source of truth. Get and Put do not return errors; storage faults are
// logged and degrade to a miss or a dropped write.
package cache

import (
	"context"
	"time"
)

// Store is the cache injected into the service.
type Store interface {
	// Get returns the stored value only if an entry exists for key and its
	// expiry is strictly in the future.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Put upserts key with expiry now+ttl, replacing any existing entry.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration)
	// Close releases any resources held by the store.
	Close() error
}
