package admin

import (
	"context"
	"strings"

	"apikeyproxy/internal/cachestore"
	"apikeyproxy/internal/statestore"
)

// scanBatchSize bounds both the per-SCAN COUNT hint and the DEL batch size,
// so a single invalidation request never issues an unbounded multi-key DEL.
const scanBatchSize = 100

// Invalidator removes cache entries by exact key, key prefix, or wholesale,
// always via cursor-based SCAN — it never issues KEYS against the backing
// store.
type Invalidator struct {
	backing statestore.Store
	cache   *cachestore.Store
}

// NewInvalidator returns an Invalidator over backing (used for SCAN/DEL) and
// cache (used for the single-key path, which goes through the cache entry
// envelope rather than touching the backing store directly).
func NewInvalidator(backing statestore.Store, cache *cachestore.Store) *Invalidator {
	return &Invalidator{backing: backing, cache: cache}
}

// InvalidateExact deletes a single, fully-specified cache key.
func (i *Invalidator) InvalidateExact(ctx context.Context, key string) (int, error) {
	if err := i.cache.Delete(ctx, key); err != nil {
		return 0, err
	}
	return 1, nil
}

// InvalidatePrefix deletes every cache entry whose key starts with prefix.
func (i *Invalidator) InvalidatePrefix(ctx context.Context, prefix string) (int, error) {
	return i.scanAndDelete(ctx, escapeGlob(prefix)+"*")
}

// InvalidateAll deletes every proxy cache entry, leaving api key and rate
// limit state untouched.
func (i *Invalidator) InvalidateAll(ctx context.Context) (int, error) {
	return i.scanAndDelete(ctx, "proxy:*")
}

func (i *Invalidator) scanAndDelete(ctx context.Context, match string) (int, error) {
	removed := 0
	var cursor uint64
	for {
		keys, next, err := i.backing.Scan(ctx, cursor, match, scanBatchSize)
		if err != nil {
			return removed, err
		}
		for start := 0; start < len(keys); start += scanBatchSize {
			end := min(start+scanBatchSize, len(keys))
			n, err := i.backing.Del(ctx, keys[start:end]...)
			removed += int(n)
			if err != nil {
				return removed, err
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return removed, nil
}

// escapeGlob escapes Redis glob metacharacters (*, ?, [, ], \) in a literal
// key segment so it is matched verbatim before the trailing wildcard is
// appended.
func escapeGlob(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`*`, `\*`,
		`?`, `\?`,
		`[`, `\[`,
		`]`, `\]`,
	)
	return replacer.Replace(s)
}
