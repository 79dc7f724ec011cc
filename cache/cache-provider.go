package cache

import (
	"context"
	"time"
)

// CacheProvider is an interface for a cache provider.
// It stores and retrieves serialized upstream responses together with
// their creation and expiration times.
//
// Providers must not drop entries just because they have expired:
// the fetcher decides what is fresh and may still need an expired
// entry as a stale fallback.
//
// Implementations must be thread-safe!
type CacheProvider interface {
	// Name identifies the backend, e.g. in cache statistics.
	Name() string
	// Location describes where entries are stored (file, address).
	Location() string
	// Get returns the cache entry for the given key, if it exists.
	// The boolean is false if there is no entry for the key.
	Get(ctx context.Context, key string) (CacheEntry, bool, error)
	// Put stores the given entry, replacing any entry with the same key.
	Put(ctx context.Context, entry CacheEntry) error
	// Purge removes the cache entry for the given key.
	// It reports whether an entry was actually removed.
	Purge(ctx context.Context, key string) (bool, error)
	// Clear removes all entries.
	// Clearing a provider that has never been used is a no-op.
	Clear(ctx context.Context) error
	// All returns all cache entries that have the specific key prefix.
	All(ctx context.Context, prefix string) ([]CacheEntry, error)
	// Close releases the underlying resources.
	Close() error
}

type CacheEntry struct {
	Key       string
	CreatedAt time.Time
	Expires   time.Time
	Bytes     []byte
}

// Expired reports whether the entry is no longer fresh at the given time.
func (e CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.Expires)
}

// TTL returns the remaining lifetime of the entry, or zero once expired.
func (e CacheEntry) TTL(now time.Time) time.Duration {
	if e.Expired(now) {
		return 0
	}
	return e.Expires.Sub(now)
}

// Age returns how long ago the entry was created.
func (e CacheEntry) Age(now time.Time) time.Duration {
	if now.Before(e.CreatedAt) {
		return 0
	}
	return now.Sub(e.CreatedAt)
}
