package statestore_test

import (
	"context"
	"testing"
	"time"

	"apikeyproxy/internal/statestore"
)

func TestMemoryStore_SetGetDel(t *testing.T) {
	s := statestore.NewMemoryStore(false)
	ctx := context.Background()

	if err := s.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || v != "v" {
		t.Fatalf("expected v, true, nil got %q, %v, %v", v, ok, err)
	}

	n, err := s.Del(ctx, "k")
	if err != nil || n != 1 {
		t.Fatalf("expected 1 deleted, got %d, %v", n, err)
	}
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatalf("expected key gone after delete")
	}
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	s := statestore.NewMemoryStore(false)
	ctx := context.Background()

	if err := s.Set(ctx, "k", "v", 50*time.Millisecond); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k"); !ok {
		t.Fatalf("expected key to be present before expiry")
	}
	time.Sleep(80 * time.Millisecond)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatalf("expected key to be expired")
	}
}

func TestMemoryStore_Incr(t *testing.T) {
	s := statestore.NewMemoryStore(false)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := s.Incr(ctx, "counter")
		if err != nil {
			t.Fatalf("incr failed: %v", err)
		}
		if n != i {
			t.Fatalf("expected %d, got %d", i, n)
		}
	}
}

func TestMemoryStore_SetMembership(t *testing.T) {
	s := statestore.NewMemoryStore(false)
	ctx := context.Background()

	if err := s.SAdd(ctx, "set", "a"); err != nil {
		t.Fatalf("sadd failed: %v", err)
	}
	if err := s.SAdd(ctx, "set", "b"); err != nil {
		t.Fatalf("sadd failed: %v", err)
	}
	members, err := s.SMembers(ctx, "set")
	if err != nil || len(members) != 2 {
		t.Fatalf("expected 2 members, got %v, %v", members, err)
	}

	if err := s.SRem(ctx, "set", "a"); err != nil {
		t.Fatalf("srem failed: %v", err)
	}
	members, _ = s.SMembers(ctx, "set")
	if len(members) != 1 || members[0] != "b" {
		t.Fatalf("expected only 'b' remaining, got %v", members)
	}
}

func TestMemoryStore_ScanPrefixMatch(t *testing.T) {
	s := statestore.NewMemoryStore(false)
	ctx := context.Background()

	_ = s.Set(ctx, "proxy:a", "1", 0)
	_ = s.Set(ctx, "proxy:b", "2", 0)
	_ = s.Set(ctx, "other:a", "3", 0)

	keys, cursor, err := s.Scan(ctx, 0, "proxy:*", 10)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if cursor != 0 {
		t.Fatalf("expected cursor 0 (single-step scan), got %d", cursor)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 matching keys, got %v", keys)
	}
}

func TestMemoryStore_FallbackFlag(t *testing.T) {
	s := statestore.NewMemoryStore(true)
	if !s.Fallback() {
		t.Fatalf("expected fallback true")
	}
	s.SetFallback(false)
	if s.Fallback() {
		t.Fatalf("expected fallback false after SetFallback")
	}
}
