package queue

import (
	"context"
	"testing"
	"time"

	"github.com/0xBADBAC0N/ghcrawler/internal/engine"
)

func TestMemorySetPriorityOrder(t *testing.T) {
	s := NewMemorySet()
	ctx := context.Background()

	_ = s.Push(ctx, PriorityNormal, engine.NewRequest("repo", "https://api.example.com/repos/a", engine.Policy{}))
	_ = s.Push(ctx, PriorityHigh, engine.NewRequest("org", "https://api.example.com/orgs/a", engine.Policy{}))

	d, err := s.Pop(ctx)
	if err != nil {
		t.Fatalf("Pop returned error: %v", err)
	}
	if d.Request.Type != "org" {
		t.Errorf("Expected priority queue item first, got type %q", d.Request.Type)
	}

	d, err = s.Pop(ctx)
	if err != nil {
		t.Fatalf("Pop returned error: %v", err)
	}
	if d.Request.Type != "repo" {
		t.Errorf("Expected normal queue item second, got type %q", d.Request.Type)
	}

	if _, err := s.Pop(ctx); err != ErrEmpty {
		t.Errorf("Expected ErrEmpty once drained, got %v", err)
	}
}

func TestMemorySetDelayedBecomesVisible(t *testing.T) {
	s := NewMemorySet()
	ctx := context.Background()

	req := engine.NewRequest("issue", "https://api.example.com/issues/1", engine.Policy{})
	if err := s.PushDelayed(ctx, req, 10*time.Millisecond); err != nil {
		t.Fatalf("PushDelayed returned error: %v", err)
	}

	if _, err := s.Pop(ctx); err != ErrEmpty {
		t.Errorf("Expected delayed item to stay hidden, got %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	d, err := s.Pop(ctx)
	if err != nil {
		t.Fatalf("Expected delayed item to become visible, got error: %v", err)
	}
	if d.Request.Type != "issue" {
		t.Errorf("Expected the delayed request back, got type %q", d.Request.Type)
	}
}

func TestMemorySetDeadLetter(t *testing.T) {
	s := NewMemorySet()
	ctx := context.Background()

	req := engine.NewRequest("commit", "https://api.example.com/commits/abc", engine.Policy{})
	req.AttemptCount = engine.MaxAttempts
	d := &Delivery{Request: req}

	if err := s.Dead(ctx, d, "exceeded max attempts"); err != nil {
		t.Fatalf("Dead returned error: %v", err)
	}

	depths, err := s.Depths(ctx)
	if err != nil {
		t.Fatalf("Depths returned error: %v", err)
	}
	if depths[PriorityDead] != 1 {
		t.Errorf("Expected 1 item in dead queue, got %d", depths[PriorityDead])
	}
	if depths[PriorityNormal] != 0 {
		t.Errorf("Expected normal queue untouched, got %d", depths[PriorityNormal])
	}
}
