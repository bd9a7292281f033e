package ratelimiter_test

import (
	"context"
	"testing"
	"time"

	"apikeyproxy/internal/ratelimiter"
	"apikeyproxy/internal/statestore"
)

func TestAllow_WithinLimit(t *testing.T) {
	limiter := ratelimiter.New(statestore.NewMemoryStore(false), "apikeys")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := limiter.Allow(ctx, "key", "k1", 60, 3)
		if err != nil {
			t.Fatalf("allow failed: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("request %d should be allowed, got %+v", i, d)
		}
	}
}

func TestAllow_RejectsOverLimit(t *testing.T) {
	limiter := ratelimiter.New(statestore.NewMemoryStore(false), "apikeys")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := limiter.Allow(ctx, "key", "k2", 60, 2); err != nil {
			t.Fatalf("allow failed: %v", err)
		}
	}
	d, err := limiter.Allow(ctx, "key", "k2", 60, 2)
	if err != nil {
		t.Fatalf("allow failed: %v", err)
	}
	if d.Allowed {
		t.Fatalf("third request should be rejected, got %+v", d)
	}
	if d.Remaining != 0 {
		t.Fatalf("expected 0 remaining, got %d", d.Remaining)
	}
}

func TestAllow_ScopesAreIndependent(t *testing.T) {
	limiter := ratelimiter.New(statestore.NewMemoryStore(false), "apikeys")
	ctx := context.Background()

	if _, err := limiter.Allow(ctx, "key", "shared-id", 60, 1); err != nil {
		t.Fatalf("allow failed: %v", err)
	}
	d, err := limiter.Allow(ctx, "admin", "shared-id", 60, 1)
	if err != nil {
		t.Fatalf("allow failed: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("different scope with same identifier should have its own counter, got %+v", d)
	}
}

func TestAllow_IdentifiersAreIndependent(t *testing.T) {
	limiter := ratelimiter.New(statestore.NewMemoryStore(false), "apikeys")
	ctx := context.Background()

	if _, err := limiter.Allow(ctx, "key", "a", 60, 1); err != nil {
		t.Fatalf("allow failed: %v", err)
	}
	d, err := limiter.Allow(ctx, "key", "b", 60, 1)
	if err != nil {
		t.Fatalf("allow failed: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("different identifier should have its own counter, got %+v", d)
	}
}

func TestAllow_ResetAtAndRetryAfter(t *testing.T) {
	limiter := ratelimiter.New(statestore.NewMemoryStore(false), "apikeys")
	ctx := context.Background()

	d, err := limiter.Allow(ctx, "key", "k3", 60, 1)
	if err != nil {
		t.Fatalf("allow failed: %v", err)
	}
	now := time.Now().Unix()
	windowStart := (now / 60) * 60
	if d.ResetAt != windowStart+60 {
		t.Fatalf("expected resetAt aligned to window end, got %d", d.ResetAt)
	}
	if d.RetryAfter < 1 {
		t.Fatalf("expected retryAfter >= 1, got %d", d.RetryAfter)
	}
}
