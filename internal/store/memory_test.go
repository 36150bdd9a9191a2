package store

import (
	"context"
	"testing"
	"time"

	"github.com/0xBADBAC0N/ghcrawler/internal/engine"
)

func TestMemoryStoreUpsertAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	doc := engine.NewDocument(map[string]any{"id": float64(1), "name": "octo"})
	doc.Metadata.Type = "repo"
	doc.Metadata.URL = "https://api.example.com/repos/octo"
	doc.Metadata.ETag = `"abc123"`
	doc.Metadata.FetchedAt = time.Now()

	if err := s.Upsert(ctx, doc); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	etag, ok, err := s.ETag(ctx, "repo", doc.Metadata.URL)
	if err != nil {
		t.Fatalf("ETag returned error: %v", err)
	}
	if !ok || etag != `"abc123"` {
		t.Errorf("Expected stored etag, got %q (ok=%v)", etag, ok)
	}

	got, err := s.Get(ctx, "repo", doc.Metadata.URL)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got == nil {
		t.Fatal("Expected a document, got nil")
	}
	if name, _ := got.Get("name"); name != "octo" {
		t.Errorf("Expected field to round-trip, got %v", name)
	}
}

func TestMemoryStoreMissing(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, ok, err := s.ETag(ctx, "repo", "https://api.example.com/repos/missing"); ok || err != nil {
		t.Errorf("Expected no etag for unseen document, got ok=%v err=%v", ok, err)
	}

	doc, err := s.Get(ctx, "repo", "https://api.example.com/repos/missing")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if doc != nil {
		t.Errorf("Expected nil for unseen document, got %v", doc)
	}
}
