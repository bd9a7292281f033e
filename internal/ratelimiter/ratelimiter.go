// Package ratelimiter implements fixed-window rate limiting over a
// statestore.Store, scoped per caller identity (an api key, a pre-auth
// client address, or the admin surface).
package ratelimiter

import (
	"context"
	"fmt"
	"time"

	"apikeyproxy/internal/metrics"
	"apikeyproxy/internal/statestore"
)

// Decision is the outcome of evaluating one request against a scope's
// fixed-window counter.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    int64 // epoch-seconds the current window ends
	RetryAfter int   // seconds until ResetAt, floored at 1
}

// Limiter counts requests per (scope, identifier, window-bucket) tuple.
type Limiter struct {
	store  statestore.Store
	prefix string
}

// New returns a Limiter namespaced under prefix (e.g. "apikeys").
func New(store statestore.Store, prefix string) *Limiter {
	return &Limiter{store: store, prefix: prefix}
}

// Allow increments the counter for (scope, identifier) in the current fixed
// window of windowSeconds and reports whether the request is within
// maxRequests. The window boundary is aligned to Unix epoch time
// (windowStart = floor(now/windowSeconds)*windowSeconds), so every caller
// sharing a window size shares the same window edges.
func (l *Limiter) Allow(ctx context.Context, scope, identifier string, windowSeconds, maxRequests int) (Decision, error) {
	now := time.Now().Unix()
	windowStart := (now / int64(windowSeconds)) * int64(windowSeconds)
	key := fmt.Sprintf("%s:ratelimit:%s:%s:%d", l.prefix, scope, identifier, windowStart)

	count, err := l.store.Incr(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	if count == 1 {
		// First hit in this window: arm expiry so the bucket self-cleans.
		_ = l.store.Expire(ctx, key, time.Duration(windowSeconds+1)*time.Second)
	}

	resetAt := windowStart + int64(windowSeconds)
	retryAfter := int(resetAt - now)
	if retryAfter < 1 {
		retryAfter = 1
	}
	remaining := maxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	allowed := count <= int64(maxRequests)

	metrics.RateLimitDecision(scope, allowed)

	return Decision{
		Allowed:    allowed,
		Limit:      maxRequests,
		Remaining:  remaining,
		ResetAt:    resetAt,
		RetryAfter: retryAfter,
	}, nil
}
