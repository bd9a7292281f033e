// Package statestore abstracts the remote key/value service backing the
// response cache and the API-key/rate-limit registry. It exposes exactly the
// primitives the rest of the system needs (string get/set/del, incr+expire,
// set membership, cursor-based scan) so callers never depend on a specific
// backend's client API, and a "fallback" flag so callers can distinguish a
// reachable store from a degraded one.
package statestore

import (
	"context"
	"time"
)

// Store is the key/value abstraction shared by CacheStore, KeyRegistry, and
// RateLimiter. All methods are safe for concurrent use.
type Store interface {
	// Get returns the stored string value for key, or ok=false if absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set stores value under key with the given TTL. A zero or negative TTL
	// means "no expiration".
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Del removes the given keys, returning how many existed.
	Del(ctx context.Context, keys ...string) (deleted int64, err error)
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Incr atomically increments the integer stored at key (treating an
	// absent key as 0) and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
	// Expire sets a TTL on an existing key. It is a no-op if the key is absent.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// SAdd adds member to the set at key.
	SAdd(ctx context.Context, key, member string) error
	// SRem removes member from the set at key.
	SRem(ctx context.Context, key, member string) error
	// SMembers returns all members of the set at key.
	SMembers(ctx context.Context, key string) ([]string, error)

	// Scan performs one cursor step of a pattern scan, mirroring Redis SCAN:
	// callers loop until the returned cursor is 0. match is a glob pattern
	// already escaped by the caller; count is a hint, not a hard limit.
	Scan(ctx context.Context, cursor uint64, match string, count int64) (keys []string, nextCursor uint64, err error)

	// Ping checks connectivity to the backing service.
	Ping(ctx context.Context) error

	// Fallback reports whether the store is currently operating in degraded
	// (no-op / best-effort) mode because the backing service is unreachable.
	Fallback() bool
}
