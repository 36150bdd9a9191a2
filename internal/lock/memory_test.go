package lock

import (
	"context"
	"testing"
	"time"

	"github.com/0xBADBAC0N/ghcrawler/internal/engine"
)

func TestMemoryLockExclusive(t *testing.T) {
	l := NewMemoryLock()
	ctx := context.Background()
	url := "https://api.example.com/repos/a"

	lease, err := l.Acquire(ctx, url, time.Minute)
	if err != nil {
		t.Fatalf("Expected first Acquire to succeed, got %v", err)
	}

	if _, err := l.Acquire(ctx, url, time.Minute); err != ErrExceeded {
		t.Errorf("Expected ErrExceeded on second Acquire, got %v", err)
	}

	if err := l.Release(ctx, lease); err != nil {
		t.Fatalf("Release returned error: %v", err)
	}

	if _, err := l.Acquire(ctx, url, time.Minute); err != nil {
		t.Errorf("Expected Acquire to succeed after Release, got %v", err)
	}
}

func TestMemoryLockExpiry(t *testing.T) {
	l := NewMemoryLock()
	ctx := context.Background()
	url := "https://api.example.com/repos/b"

	if _, err := l.Acquire(ctx, url, 10*time.Millisecond); err != nil {
		t.Fatalf("Expected first Acquire to succeed, got %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	if _, err := l.Acquire(ctx, url, time.Minute); err != nil {
		t.Errorf("Expected Acquire to succeed after expiry, got %v", err)
	}
}

func TestMemoryLockReleaseWrongToken(t *testing.T) {
	l := NewMemoryLock()
	ctx := context.Background()
	url := "https://api.example.com/repos/c"

	if _, err := l.Acquire(ctx, url, time.Minute); err != nil {
		t.Fatalf("Expected Acquire to succeed, got %v", err)
	}

	stale := &engine.Lease{URL: url, Token: "not-the-real-token"}
	if err := l.Release(ctx, stale); err != nil {
		t.Fatalf("Release returned error: %v", err)
	}

	if _, err := l.Acquire(ctx, url, time.Minute); err != ErrExceeded {
		t.Errorf("Expected lease to still be held after a mismatched release, got %v", err)
	}
}
