package queue

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/0xBADBAC0N/ghcrawler/internal/engine"
)

// MemorySet is an in-process Set backed by plain linked lists guarded by a
// mutex, used by tests and by single-process development runs that have no
// broker available. It mirrors the teacher's preference for a small
// goroutine-free collaborator wherever an external dependency can be
// swapped for an equivalent in-memory structure in tests.
type MemorySet struct {
	mu      sync.Mutex
	queues  map[Priority]*list.List
	delayed []delayedItem
	closed  bool
}

type delayedItem struct {
	req     *engine.Request
	visible time.Time
}

// NewMemorySet constructs an empty MemorySet.
func NewMemorySet() *MemorySet {
	return &MemorySet{
		queues: map[Priority]*list.List{
			PriorityHigh:   list.New(),
			PriorityNormal: list.New(),
			PrioritySoon:   list.New(),
			PriorityDead:   list.New(),
		},
	}
}

func (s *MemorySet) Push(ctx context.Context, priority Priority, req *engine.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[priority].PushBack(req)
	return nil
}

func (s *MemorySet) PushDelayed(ctx context.Context, req *engine.Request, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delayed = append(s.delayed, delayedItem{req: req, visible: time.Now().Add(delay)})
	return nil
}

func (s *MemorySet) promoteDelayedLocked() {
	now := time.Now()
	kept := s.delayed[:0]
	for _, d := range s.delayed {
		if !now.Before(d.visible) {
			s.queues[PriorityNormal].PushBack(d.req)
			continue
		}
		kept = append(kept, d)
	}
	s.delayed = kept
}

func (s *MemorySet) Pop(ctx context.Context) (*Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promoteDelayedLocked()
	for _, p := range []Priority{PriorityHigh, PriorityNormal, PrioritySoon} {
		q := s.queues[p]
		if el := q.Front(); el != nil {
			q.Remove(el)
			return &Delivery{Request: el.Value.(*engine.Request)}, nil
		}
	}
	return nil, ErrEmpty
}

func (s *MemorySet) Ack(ctx context.Context, d *Delivery) error {
	return nil
}

func (s *MemorySet) Requeue(ctx context.Context, d *Delivery, priority Priority) error {
	return s.Push(ctx, priority, d.Request)
}

func (s *MemorySet) Dead(ctx context.Context, d *Delivery, reason string) error {
	d.Request.SetMeta("deadLetterReason", reason)
	return s.Push(ctx, PriorityDead, d.Request)
}

// Abandon is a no-op for MemorySet: a popped item is simply gone, the
// closest in-process approximation of "left for broker redelivery" when
// there is no broker.
func (s *MemorySet) Abandon(ctx context.Context, d *Delivery) error {
	return nil
}

func (s *MemorySet) Depths(ctx context.Context) (map[Priority]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[Priority]int{}
	for p, q := range s.queues {
		out[p] = q.Len()
	}
	return out, nil
}

func (s *MemorySet) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
