package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/0xBADBAC0N/ghcrawler/internal/engine"
)

// MemoryLock is an in-process Service used by tests and single-process
// development runs with no Redis available.
type MemoryLock struct {
	mu      sync.Mutex
	holders map[string]memoryHold
}

type memoryHold struct {
	token   string
	expires time.Time
}

// NewMemoryLock constructs an empty MemoryLock.
func NewMemoryLock() *MemoryLock {
	return &MemoryLock{holders: map[string]memoryHold{}}
}

func (l *MemoryLock) Acquire(ctx context.Context, url string, ttl time.Duration) (*engine.Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if h, ok := l.holders[url]; ok && time.Now().Before(h.expires) {
		return nil, ErrExceeded
	}

	token := uuid.New().String()
	l.holders[url] = memoryHold{token: token, expires: time.Now().Add(ttl)}
	return &engine.Lease{URL: url, Token: token}, nil
}

func (l *MemoryLock) Release(ctx context.Context, lease *engine.Lease) error {
	if lease == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if h, ok := l.holders[lease.URL]; ok && h.token == lease.Token {
		delete(l.holders, lease.URL)
	}
	return nil
}
