// Package crawler wires the Fetcher, Processor, Store, LockService and
// QueueSet into the ten-stage pipeline that turns one popped Request into a
// finished cycle: getRequest, acquireLock, filter, fetch, convertToDocument,
// processDocument, storeDocument, errorHandler, completeRequest, logOutcome.
package crawler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/0xBADBAC0N/ghcrawler/internal/engine"
	"github.com/0xBADBAC0N/ghcrawler/internal/fetcher"
	"github.com/0xBADBAC0N/ghcrawler/internal/lock"
	"github.com/0xBADBAC0N/ghcrawler/internal/observability"
	"github.com/0xBADBAC0N/ghcrawler/internal/policy"
	"github.com/0xBADBAC0N/ghcrawler/internal/processor"
	"github.com/0xBADBAC0N/ghcrawler/internal/queue"
	"github.com/0xBADBAC0N/ghcrawler/internal/store"
)

// DefaultPollDelay is how long a loop sleeps after finding every queue
// empty.
const DefaultPollDelay = 2000 * time.Millisecond

// DefaultProcessingTTL is the lock lease duration granted while a Request
// moves through fetch/convert/process/store.
const DefaultProcessingTTL = 60 * time.Second

// Config holds the Crawler's tunables.
type Config struct {
	ProcessingTTL time.Duration
	PollDelay     time.Duration
	OrgAllowlist  []string
	Archiver      DeadLetterArchiver
}

// DeadLetterArchiver persists the queuable projection of a Request that has
// exhausted its retries somewhere durable and queryable outside the broker.
// Optional: a nil Archiver simply skips this step.
type DeadLetterArchiver interface {
	DeadLetter(ctx context.Context, req *engine.Request, seq int) error
}

// Crawler is shared across worker loops; all mutable state lives on the
// Request each cycle carries, except rawPayload which is a same-goroutine
// scratch slot threaded between the fetch and convertToDocument stages of a
// single cycle (never read across cycles or loops).
type Crawler struct {
	queue     queue.Set
	lock      lock.Service
	fetcher   fetcher.Fetcher
	store     store.Store
	processor *processor.Processor
	policy    *policy.Engine

	processingTTL time.Duration
	pollDelay     time.Duration
	orgAllowlist  map[string]bool
	archiver      DeadLetterArchiver

	rawPayload any
}

// New assembles a Crawler from its collaborators.
func New(q queue.Set, lk lock.Service, f fetcher.Fetcher, st store.Store, proc *processor.Processor, pol *policy.Engine, cfg Config) *Crawler {
	if cfg.ProcessingTTL == 0 {
		cfg.ProcessingTTL = DefaultProcessingTTL
	}
	if cfg.PollDelay == 0 {
		cfg.PollDelay = DefaultPollDelay
	}
	allow := map[string]bool{}
	for _, org := range cfg.OrgAllowlist {
		allow[strings.ToLower(org)] = true
	}
	return &Crawler{
		queue:         q,
		lock:          lk,
		fetcher:       f,
		store:         st,
		processor:     proc,
		policy:        pol,
		processingTTL: cfg.ProcessingTTL,
		pollDelay:     cfg.PollDelay,
		orgAllowlist:  allow,
		archiver:      cfg.Archiver,
	}
}

// Cycle runs one full pass of the pipeline for loopName and returns the
// delay the owning loop should sleep before its next cycle.
func (c *Crawler) Cycle(ctx context.Context, loopName string) time.Duration {
	start := time.Now()
	ctx, span := observability.StartCycleSpan(ctx, observability.CycleSpanInfo{LoopName: loopName})
	req := c.runCycle(ctx, loopName)
	span.SetAttributes(
		attribute.String("request.type", req.Type),
		attribute.String("request.url", req.URL),
	)
	span.End()
	observability.RecordCycle(ctx, observability.CycleMetrics{
		LoopName: loopName,
		Outcome:  string(req.Outcome),
		Duration: time.Since(start),
	})
	c.logOutcome(req)
	return c.nextDelay(req)
}

func (c *Crawler) runCycle(ctx context.Context, loopName string) (req *engine.Request) {
	var delivery *queue.Delivery

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("loop", loopName).Msg("crawler: PANIC in cycle, continuing")
			if req == nil {
				req = engine.NewRequest(engine.TypeErrorTrap, "", engine.Policy{})
			}
			req.MarkError(fmt.Errorf("panic: %v", r))
		}
	}()

	req, delivery = c.getRequest(ctx, loopName)
	c.acquireLock(ctx, req)
	c.filter(req)
	c.fetch(ctx, req)
	c.convertToDocument(req)
	c.processDocument(ctx, req)
	c.storeDocument(ctx, req)
	c.completeRequest(ctx, req, delivery)
	return req
}

// getRequest is stage 1: pop the next Request, or synthesize a _blank
// sentinel when every queue is empty.
func (c *Crawler) getRequest(ctx context.Context, loopName string) (*engine.Request, *queue.Delivery) {
	d, err := c.queue.Pop(ctx)
	if err != nil {
		req := engine.NewRequest(engine.TypeBlank, "", engine.Policy{})
		req.MarkSkip("Exhausted queue")
		req.Start = time.Now()
		req.LoopName = loopName
		req.NextRequestTime = time.Now().Add(c.pollDelay)
		return req, nil
	}
	req := d.Request
	req.Start = time.Now()
	req.LoopName = loopName
	return req, d
}

// acquireLock is stage 2: take an exclusive lease on the Request's URL.
func (c *Crawler) acquireLock(ctx context.Context, req *engine.Request) {
	if req.ShouldSkip() || req.URL == "" || c.lock == nil {
		return
	}
	lease, err := c.lock.Acquire(ctx, req.URL, c.processingTTL)
	if err != nil {
		if err == lock.ErrExceeded {
			req.MarkRequeue("Could not lock")
			return
		}
		req.MarkRequeue("Error")
		return
	}
	req.Lock = lease
}

// filter is stage 3: reject malformed Requests and ones outside the
// configured org allowlist.
func (c *Crawler) filter(req *engine.Request) {
	if req.ShouldSkip() {
		return
	}
	if req.Type == "" || req.URL == "" {
		req.Outcome = engine.OutcomeSkipped
		req.Message = "Error malformed"
		return
	}
	if len(c.orgAllowlist) == 0 {
		return
	}
	if req.Type != "repo" && req.Type != "repos" && req.Type != "org" {
		return
	}
	org := orgFromURL(req.URL)
	if org != "" && !c.orgAllowlist[strings.ToLower(org)] {
		req.MarkSkip("Filtered")
	}
}

// orgFromURL extracts the second path segment of a GitHub-shaped API URL,
// e.g. "https://api.example.com/repos/acme/widget" -> "acme".
func orgFromURL(rawURL string) string {
	idx := strings.Index(rawURL, "://")
	if idx < 0 {
		return ""
	}
	rest := rawURL[idx+3:]
	slash := strings.Index(rest, "/")
	if slash < 0 {
		return ""
	}
	segments := strings.Split(strings.Trim(rest[slash:], "/"), "/")
	if len(segments) < 2 {
		return ""
	}
	return segments[1]
}

// fetch is stage 4: call the Fetcher unless an earlier stage already
// decided this Request's fate.
func (c *Crawler) fetch(ctx context.Context, req *engine.Request) {
	if req.ShouldSkip() || c.fetcher == nil {
		return
	}
	if !c.policy.ShouldFetch(req) {
		req.MarkSkip("Excluded")
		return
	}

	if etag, ok, err := c.store.ETag(ctx, req.Type, req.URL); err == nil && ok {
		req.SetMeta("ifNoneMatch", etag)
	}

	start := time.Now()
	resp, payload, err := c.fetcher.Fetch(ctx, req)
	req.SetMeta("fetch", time.Since(start).Milliseconds())
	if resp != nil {
		req.SetMeta("status", resp.StatusCode)
		req.Response = resp
	}
	if err != nil {
		req.MarkRequeue("Error")
		return
	}

	if resp != nil && resp.StatusCode == http.StatusConflict {
		req.MarkSkip("Empty repo")
		return
	}

	if resp != nil && resp.StatusCode == fetcher.StatusNotModified {
		if !req.Context.Force {
			req.MarkSkip("Unmodified")
			return
		}
		existing, gerr := c.store.Get(ctx, req.Type, req.URL)
		if gerr == nil && existing != nil {
			req.Document = existing
		}
		return
	}

	c.rawPayload = payload
}

// convertToDocument is stage 5: wrap the raw payload into a Document and
// stamp its _metadata.
func (c *Crawler) convertToDocument(req *engine.Request) {
	if req.ShouldSkip() {
		return
	}
	if req.Document != nil {
		return // rehydrated from Store on a forced 304
	}
	payload := c.rawPayload
	c.rawPayload = nil

	doc := engine.NewDocument(payload)
	doc.Metadata.Type = req.Type
	doc.Metadata.URL = req.URL
	doc.Metadata.FetchedAt = time.Now().UTC()
	if req.Response != nil {
		doc.Metadata.ETag = req.Response.ETag
		if req.Response.LinkHeader != "" {
			doc.Metadata.Headers = map[string][]string{"link": {req.Response.LinkHeader}}
		}
		if req.Response.MetadataTemplate != nil {
			for k, v := range req.Response.MetadataTemplate {
				doc.Fields[k] = v
			}
		}
	}
	req.Document = doc
}

// processDocument is stage 6: run the Processor.
func (c *Crawler) processDocument(ctx context.Context, req *engine.Request) {
	if req.ShouldSkip() {
		return
	}
	span := sentry.StartSpan(ctx, "crawler.process_document")
	span.SetTag("type", req.Type)
	defer span.Finish()

	if err := c.processor.Process(span.Context(), req); err != nil {
		req.MarkRequeue("Error")
	}
}

// storeDocument is stage 7: persist the Document if policy allows it.
func (c *Crawler) storeDocument(ctx context.Context, req *engine.Request) {
	if req.ShouldSkip() || req.Document == nil || !c.policy.ShouldSave(req) {
		return
	}
	start := time.Now()
	if err := c.store.Upsert(ctx, req.Document); err != nil {
		req.MarkRequeue("Error")
		return
	}
	req.SetMeta("store", time.Since(start).Milliseconds())
}

// logOutcome is stage 10: emit a single structured log line summarizing the
// cycle.
func (c *Crawler) logOutcome(req *engine.Request) {
	evt := log.Info()
	if req.Outcome == engine.OutcomeError {
		evt = log.Error()
	}
	evt.
		Str("outcome", string(req.Outcome)).
		Str("policy", c.policy.GetShortForm(req)).
		Str("type", req.Type).
		Str("url", req.URL).
		Str("message", req.Message).
		Interface("meta", req.Meta).
		Msg("crawler: cycle complete")
}

// nextDelay implements the end-of-cycle delay formula: the loop sleeps
// until the later of "now" and the Request's own backpressure signal.
func (c *Crawler) nextDelay(req *engine.Request) time.Duration {
	if req.IsBlank() || req.IsErrorTrap() {
		return c.pollDelay
	}
	if req.NextRequestTime.IsZero() {
		return 0
	}
	d := time.Until(req.NextRequestTime)
	if d < 0 {
		return 0
	}
	return d
}
