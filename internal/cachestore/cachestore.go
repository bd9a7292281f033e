// Package cachestore implements the cache-aside + stale-while-revalidate
// (SWR) policy on top of a statestore.Store. It knows nothing about HTTP; it
// deals in an opaque CachedValue envelope and a caller-supplied loader.
package cachestore

import (
	"context"
	"encoding/json"
	"time"

	"apikeyproxy/internal/metrics"
	"apikeyproxy/internal/statestore"
)

// Status is the outcome of a cache-aside lookup.
type Status string

const (
	StatusHit    Status = "HIT"
	StatusMiss   Status = "MISS"
	StatusStale  Status = "STALE"
	StatusBypass Status = "BYPASS"
)

// CachedValue is the payload cached under a key: a decoded upstream
// response shape, deliberately independent of the upstream package's own
// response type so this package has no HTTP-client dependency.
type CachedValue struct {
	Status      int               `json:"status"`
	Body        any               `json:"body"`
	ContentType string            `json:"contentType,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// LoaderResult is what a Loader returns: the value to (maybe) serve and
// cache, plus the cacheability/TTL decision for it.
type LoaderResult struct {
	Value           CachedValue
	Cacheable       bool
	TTLSeconds      int
	StaleTTLSeconds int
}

// Loader fetches a fresh value on MISS or to refresh a STALE entry. It is
// the caller's job to fold in CachePolicy.Decide when building the result.
type Loader func(ctx context.Context) (LoaderResult, error)

// Result is returned by SWR.
type Result struct {
	Value  CachedValue
	Status Status
}

// envelope is the on-the-wire cache entry shape. Marker distinguishes it
// from a "legacy" bare CachedValue JSON blob written by an older format;
// Get tolerates both (spec.md Design Notes, §4.9 of SPEC_FULL.md).
type envelope struct {
	Value      CachedValue `json:"value"`
	StaleUntil int64       `json:"staleUntil,omitempty"` // epoch ms, 0 = unset
	Marker     bool        `json:"marker"`
}

// Store wraps a statestore.Store with the cache entry envelope and the
// cache-aside + SWR orchestration.
type Store struct {
	backing statestore.Store
	// refreshTimeout bounds background SWR refreshes, which are detached
	// from the triggering request's context and so need their own deadline.
	refreshTimeout time.Duration
}

// New returns a Store. refreshTimeout bounds background SWR refresh calls;
// a non-positive value defaults to 10s.
func New(backing statestore.Store, refreshTimeout time.Duration) *Store {
	if refreshTimeout <= 0 {
		refreshTimeout = 10 * time.Second
	}
	return &Store{backing: backing, refreshTimeout: refreshTimeout}
}

// Get returns the cached value for key, tolerating both envelope and legacy
// bare-value formats. It never returns a stale value as fresh: callers that
// need STALE semantics must use SWR.
func (s *Store) Get(ctx context.Context, key string) (CachedValue, bool) {
	raw, ok, err := s.backing.Get(ctx, key)
	if err != nil || !ok {
		return CachedValue{}, false
	}
	env, ok := decodeEnvelope(raw)
	if !ok {
		return CachedValue{}, false
	}
	if env.StaleUntil > 0 && nowMs() > env.StaleUntil {
		return CachedValue{}, false
	}
	return env.Value, true
}

// Set stores value under key. If staleTTLSeconds > 0, an envelope is written
// with staleUntil = now + ttlSeconds*1000 and a backing TTL of
// ttlSeconds+staleTTLSeconds; otherwise the raw envelope (staleUntil unset)
// is written with backing TTL = ttlSeconds.
func (s *Store) Set(ctx context.Context, key string, value CachedValue, ttlSeconds, staleTTLSeconds int) error {
	env := envelope{Value: value, Marker: true}
	backingTTL := time.Duration(ttlSeconds) * time.Second
	if staleTTLSeconds > 0 {
		env.StaleUntil = nowMs() + int64(ttlSeconds)*1000
		backingTTL = time.Duration(ttlSeconds+staleTTLSeconds) * time.Second
	}
	blob, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.backing.Set(ctx, key, string(blob), backingTTL)
}

// Delete removes key. Errors are returned to the caller (typically logged,
// not propagated to the foreground response — see CacheStore contract in
// spec.md §4.2).
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.backing.Del(ctx, key)
	return err
}

// SWR implements the cache-aside + stale-while-revalidate operation
// described in spec.md §4.2.
func (s *Store) SWR(ctx context.Context, key string, load Loader) (Result, error) {
	if s.backing.Fallback() {
		lr, err := load(ctx)
		if err != nil {
			return Result{}, err
		}
		return Result{Value: lr.Value, Status: StatusBypass}, nil
	}

	raw, present, err := s.backing.Get(ctx, key)
	if err == nil && present {
		if env, ok := decodeEnvelope(raw); ok {
			if env.StaleUntil == 0 || nowMs() <= env.StaleUntil {
				return Result{Value: env.Value, Status: StatusHit}, nil
			}
			// Stale: serve once, refresh in the background.
			s.backgroundRefresh(key, load)
			return Result{Value: env.Value, Status: StatusStale}, nil
		}
	}

	lr, err := load(ctx)
	if err != nil {
		return Result{}, err
	}
	if !lr.Cacheable {
		return Result{Value: lr.Value, Status: StatusBypass}, nil
	}
	if err := s.Set(ctx, key, lr.Value, lr.TTLSeconds, lr.StaleTTLSeconds); err != nil {
		return Result{Value: lr.Value, Status: StatusBypass}, nil
	}
	return Result{Value: lr.Value, Status: StatusMiss}, nil
}

// backgroundRefresh launches a detached refresh that must outlive the
// triggering request. Its own errors are logged via the metrics counter and
// never surfaced to any caller — the foreground response has already been
// sent by the time this runs.
func (s *Store) backgroundRefresh(key string, load Loader) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.refreshTimeout)
		defer cancel()

		lr, err := load(ctx)
		if err != nil {
			metrics.CacheSWRRefreshObserve("error")
			return
		}
		if !lr.Cacheable {
			metrics.CacheSWRRefreshObserve("ok")
			return
		}
		if err := s.Set(ctx, key, lr.Value, lr.TTLSeconds, lr.StaleTTLSeconds); err != nil {
			metrics.CacheSWRRefreshObserve("error")
			return
		}
		metrics.CacheSWRRefreshObserve("ok")
	}()
}

func decodeEnvelope(raw string) (envelope, bool) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return envelope{}, false
	}
	if env.Marker {
		return env, true
	}
	// Legacy format: the stored bytes ARE the bare value, not an envelope.
	var legacy CachedValue
	if err := json.Unmarshal([]byte(raw), &legacy); err != nil {
		return envelope{}, false
	}
	return envelope{Value: legacy, Marker: true}, true
}

func nowMs() int64 { return time.Now().UnixMilli() }
