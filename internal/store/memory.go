package store

import (
	"context"
	"sync"

	"github.com/0xBADBAC0N/ghcrawler/internal/engine"
)

// MemoryStore is an in-process Store used by tests.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*engine.Document
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: map[string]*engine.Document{}}
}

func key(resourceType, url string) string {
	return resourceType + "\x00" + url
}

func (s *MemoryStore) Upsert(ctx context.Context, doc *engine.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[key(doc.Metadata.Type, doc.Metadata.URL)] = doc
	return nil
}

func (s *MemoryStore) ETag(ctx context.Context, resourceType, url string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[key(resourceType, url)]
	if !ok || doc.Metadata.ETag == "" {
		return "", false, nil
	}
	return doc.Metadata.ETag, true, nil
}

func (s *MemoryStore) Get(ctx context.Context, resourceType, url string) (*engine.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs[key(resourceType, url)], nil
}

func (s *MemoryStore) Close() error {
	return nil
}
