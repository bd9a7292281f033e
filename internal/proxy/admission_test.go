package proxy_test

import (
	"context"
	"testing"
	"time"

	"apikeyproxy/internal/proxy"
)

func TestAdmission_DisabledWhenCapacityZero(t *testing.T) {
	a := proxy.NewAdmission(0, 0)
	release, err := a.Acquire(context.Background())
	if err != nil {
		t.Fatalf("expected no error with admission disabled, got %v", err)
	}
	release()
}

func TestAdmission_AllowsUpToCapacity(t *testing.T) {
	a := proxy.NewAdmission(2, 100*time.Millisecond)
	r1, err := a.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire 1 failed: %v", err)
	}
	r2, err := a.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire 2 failed: %v", err)
	}
	r1()
	r2()
}

func TestAdmission_RejectsWhenFullAndWaitExpires(t *testing.T) {
	a := proxy.NewAdmission(1, 30*time.Millisecond)
	release, err := a.Acquire(context.Background())
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	defer release()

	_, err = a.Acquire(context.Background())
	if err == nil {
		t.Fatalf("expected second acquire to fail while the slot is held")
	}
}

func TestAdmission_ReleasedSlotIsReusable(t *testing.T) {
	a := proxy.NewAdmission(1, 200*time.Millisecond)
	release, err := a.Acquire(context.Background())
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	release()

	_, err = a.Acquire(context.Background())
	if err != nil {
		t.Fatalf("expected acquire to succeed after release, got %v", err)
	}
}
