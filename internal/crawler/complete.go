package crawler

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/0xBADBAC0N/ghcrawler/internal/engine"
	"github.com/0xBADBAC0N/ghcrawler/internal/queue"
)

// completeRequest is stage 9: release the lock and settle the delivery with
// the broker, choosing between the happy path and the requeue path per the
// outcome the earlier stages landed on.
func (c *Crawler) completeRequest(ctx context.Context, req *engine.Request, delivery *queue.Delivery) {
	if delivery == nil {
		c.releaseLock(ctx, req)
		return
	}

	if req.Outcome == engine.OutcomeRequeued || req.Outcome == engine.OutcomeError {
		c.requeuePath(ctx, req, delivery)
		return
	}

	c.happyPath(ctx, req, delivery)
}

// happyPath waits on every promise the Processor accumulated before
// settling the delivery. A rejected promise demotes the cycle to the
// requeue path with a forced requeue, since the side effects it represents
// may not have landed.
func (c *Crawler) happyPath(ctx context.Context, req *engine.Request, delivery *queue.Delivery) {
	for _, p := range req.Promises {
		if err := <-p; err != nil {
			req.MarkRequeue("Error")
			c.requeuePath(ctx, req, delivery)
			return
		}
	}

	if err := c.releaseLock(ctx, req); err != nil {
		if aerr := c.queue.Abandon(ctx, delivery); aerr != nil {
			log.Error().Err(aerr).Str("url", req.URL).Msg("crawler: abandon after failed release also failed")
		}
		return
	}

	if err := c.queue.Ack(ctx, delivery); err != nil {
		log.Error().Err(err).Str("url", req.URL).Msg("crawler: ack failed")
	}
}

// requeuePath implements _requeue: bump attemptCount, dead-letter past
// MaxAttempts, otherwise repush the queuable projection to the origin
// queue. Whatever happens to the requeue attempt itself, the lock is
// always released (or the delivery abandoned) before returning.
func (c *Crawler) requeuePath(ctx context.Context, req *engine.Request, delivery *queue.Delivery) {
	req.AttemptCount++

	var requeueErr error
	if req.AttemptCount > engine.MaxAttempts {
		requeueErr = c.queue.Dead(ctx, delivery, req.Message)
		if requeueErr == nil && c.archiver != nil {
			if aerr := c.archiver.DeadLetter(ctx, req, req.AttemptCount); aerr != nil {
				log.Error().Err(aerr).Str("url", req.URL).Msg("crawler: dead-letter archival failed")
			}
		}
	} else {
		req.SetMeta("attempt", req.AttemptCount)
		requeueErr = c.queue.Requeue(ctx, delivery, originPriority(req))
	}

	if requeueErr != nil {
		log.Error().Err(requeueErr).Str("url", req.URL).Msg("crawler: requeue failed, leaving for broker retry")
		if err := c.releaseLock(ctx, req); err != nil {
			log.Error().Err(err).Str("url", req.URL).Msg("crawler: release after failed requeue also failed")
		}
		if err := c.queue.Abandon(ctx, delivery); err != nil {
			log.Error().Err(err).Str("url", req.URL).Msg("crawler: abandon after failed requeue also failed")
		}
		return
	}

	if err := c.releaseLock(ctx, req); err != nil {
		if err := c.queue.Abandon(ctx, delivery); err != nil {
			log.Error().Err(err).Str("url", req.URL).Msg("crawler: abandon after failed release also failed")
		}
		return
	}
	if err := c.queue.Ack(ctx, delivery); err != nil {
		log.Error().Err(err).Str("url", req.URL).Msg("crawler: ack after requeue failed")
	}
}

// originPriority chooses the queue a requeue lands on. Requests that were
// already contending for a lock ("Could not lock") go back to priority so
// they are retried ahead of fresh discovery work; everything else returns
// to normal.
func originPriority(req *engine.Request) queue.Priority {
	if req.Message == "Could not lock" {
		return queue.PriorityHigh
	}
	return queue.PriorityNormal
}

// releaseLock releases a held lease, if any, and clears it from the
// Request regardless of outcome — a failed release still means this
// worker no longer has write access to the lease.
func (c *Crawler) releaseLock(ctx context.Context, req *engine.Request) error {
	if req.Lock == nil || c.lock == nil {
		return nil
	}
	lease := req.Lock
	req.Lock = nil
	return c.lock.Release(ctx, lease)
}
