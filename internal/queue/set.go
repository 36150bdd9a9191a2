// Package queue implements the four-queue priority set (priority, normal,
// soon, dead) that the Crawler pipeline pops Requests from and pushes
// requeues and dead letters into.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/0xBADBAC0N/ghcrawler/internal/engine"
)

// Priority names the four queues a Set maintains, popped in this fixed
// order: a priority item is always preferred over a normal one, which is
// always preferred over a soon one. dead is terminal and is never popped by
// the crawl loop; nothing in this module drains it (the crawler's optional
// archiver writes a copy of each request at the moment it is dead-lettered).
type Priority string

const (
	PriorityHigh   Priority = "priority"
	PriorityNormal Priority = "normal"
	PrioritySoon   Priority = "soon"
	PriorityDead   Priority = "dead"
)

// ErrEmpty is returned by Pop when every non-dead queue is currently empty.
var ErrEmpty = errors.New("queue: empty")

// Delivery wraps a popped Request together with the broker-specific token
// Ack/Nack/Requeue needs to settle it.
type Delivery struct {
	Request *engine.Request
	token   any
}

// Set is the broker-agnostic contract the Crawler and LoopSupervisor use to
// move Requests through their lifecycle. Implementations must be safe for
// concurrent use by many worker loops.
type Set interface {
	// Pop removes and returns the next Request in priority order. It
	// returns ErrEmpty, bare or wrapped, if nothing is ready; compare it
	// with errors.Is.
	Pop(ctx context.Context) (*Delivery, error)

	// Push enqueues a brand new Request onto the named priority queue.
	Push(ctx context.Context, priority Priority, req *engine.Request) error

	// PushDelayed enqueues a Request that becomes visible only after delay
	// has elapsed, at which point it is delivered onto the normal queue.
	PushDelayed(ctx context.Context, req *engine.Request, delay time.Duration) error

	// Ack permanently removes a Delivery from its queue after successful
	// completion.
	Ack(ctx context.Context, d *Delivery) error

	// Requeue pushes d's Request onto priority as a brand new message
	// (attempt count already incremented by the caller) for another try. It
	// does not settle d itself — the caller still owes it an Ack or Abandon.
	Requeue(ctx context.Context, d *Delivery, priority Priority) error

	// Dead pushes d's Request onto the terminal dead queue once it has
	// exhausted MaxAttempts. Like Requeue, it does not settle d itself.
	Dead(ctx context.Context, d *Delivery, reason string) error

	// Abandon leaves a Delivery unsettled for broker-level redelivery, used
	// when a lock release fails after a requeue/ack attempt already ran.
	Abandon(ctx context.Context, d *Delivery) error

	// Depths reports the approximate length of each queue, used by the
	// Operator API's /queues endpoint and by the dead-letter depth monitor.
	Depths(ctx context.Context) (map[Priority]int, error)

	// Close releases broker resources.
	Close() error
}
