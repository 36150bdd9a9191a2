// Package processor turns a fetched Document into graph links and new
// Requests. It has no side effects of its own beyond what it records on the
// Request it is given: link mutations on document._metadata.links, and
// queue pushes tracked as promises the Crawler's completion protocol waits
// on before acking.
package processor

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/0xBADBAC0N/ghcrawler/internal/engine"
	"github.com/0xBADBAC0N/ghcrawler/internal/policy"
	"github.com/0xBADBAC0N/ghcrawler/internal/queue"
)

// Handler processes one Request's Document, mutating its links and
// enqueuing derived work through the Processor it is invoked on.
type Handler func(ctx context.Context, p *Processor, req *engine.Request) error

// Processor is shared across worker loops; it carries no per-request state.
type Processor struct {
	// version is stamped onto every produced document so a processor
	// upgrade can be detected and stale documents reprocessed.
	version int

	policy *policy.Engine
	queue  queue.Set

	handlers map[string]Handler
}

// New constructs a Processor at the given version, wired to the queue a
// handler's side effects are pushed onto.
func New(version int, pol *policy.Engine, q queue.Set) *Processor {
	p := &Processor{version: version, policy: pol, queue: q}
	p.handlers = map[string]Handler{
		"collection":    handleCollection,
		"org":           handleOrg,
		"user":          handleUser,
		"repo":          handleRepo,
		"team":          handleTeam,
		"commit":        handleCommit,
		"issue":         handleIssue,
		"issue_comment": handleIssueComment,
		"IssuesEvent":   handleIssuesEvent,
		"PushEvent":     handlePushEvent,
		"PullRequestEvent": handlePullRequestEvent,
		"page_build":    handlePageBuildEvent,
	}
	return p
}

// Version reports the processor's current output version.
func (p *Processor) Version() int {
	return p.version
}

// Process is the processDocument pipeline stage: it resolves a handler,
// gates on policy, and invokes the handler against req.Document. It never
// returns an error for conditions the spec treats as a Skip; it returns an
// error only for genuine programmer-visible failures a handler chose to
// surface, which the pipeline routes through its cross-cutting error
// handler like any other stage failure.
func (p *Processor) Process(ctx context.Context, req *engine.Request) error {
	if req.ShouldSkip() || req.Document == nil {
		return nil
	}

	if !p.policy.ShouldProcess(req) {
		req.MarkSkip("Excluded")
		return nil
	}

	handler, name := p.getHandler(req)
	if handler == nil {
		req.MarkSkip("No handler")
		return nil
	}

	req.Document.Metadata.Version = p.version

	if err := handler(ctx, p, req); err != nil {
		return fmt.Errorf("processor: handler %s: %w", name, err)
	}

	if req.Outcome == "" {
		req.Outcome = engine.OutcomeProcessed
	}
	return nil
}

// getHandler implements the dispatch order from the spec: an explicit
// page=N query parameter wins, then collection shape, then a type-keyed
// lookup.
func (p *Processor) getHandler(req *engine.Request) (Handler, string) {
	if n, ok := pageNumber(req.URL); ok {
		return pageHandler(n), "page"
	}
	if _, isCollection := req.GetCollectionType(); isCollection {
		return handleCollection, "collection"
	}
	if h, ok := p.handlers[req.Type]; ok {
		return h, req.Type
	}
	return nil, req.Type
}

func pageNumber(rawURL string) (int, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, false
	}
	q := u.Query().Get("page")
	if q == "" {
		return 0, false
	}
	n, err := strconv.Atoi(q)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// enqueue pushes a derived Request onto priority and records the push as a
// promise on the parent so the completion protocol waits for it.
func (p *Processor) enqueue(ctx context.Context, parent *engine.Request, priority queue.Priority, child *engine.Request) {
	done := make(chan error, 1)
	err := p.queue.Push(ctx, priority, child)
	done <- err
	close(done)
	parent.Promises = append(parent.Promises, engine.Promise(done))
	if err != nil {
		log.Error().Err(err).Str("type", child.Type).Str("url", child.URL).Msg("processor: enqueue failed")
	}
}

// queueRoot enqueues a top-level entity Request onto the normal queue,
// inheriting the parent's policy.
func (p *Processor) queueRoot(ctx context.Context, parent *engine.Request, resourceType, rawURL string) {
	if rawURL == "" {
		return
	}
	child := engine.NewRequest(resourceType, rawURL, parent.Policy)
	p.enqueue(ctx, parent, queue.PriorityNormal, child)
}

// queueChild enqueues a sub-resource Request, nesting it under the parent's
// qualifier so its URN space stays scoped to the parent.
func (p *Processor) queueChild(ctx context.Context, parent *engine.Request, resourceType, rawURL, qualifier string) {
	if rawURL == "" {
		return
	}
	child := engine.NewRequest(resourceType, rawURL, parent.Policy)
	child.Context.Qualifier = qualifier
	p.enqueue(ctx, parent, queue.PriorityNormal, child)
}

// queueRelationRoot enqueues a root entity reached through a relation link
// (e.g. repo -> collaborators), tagging the derived Request with the
// relation descriptor so _processRelation can later emit siblings/resources.
func (p *Processor) queueRelationRoot(ctx context.Context, parent *engine.Request, resourceType, rawURL, originType, name string) {
	if rawURL == "" {
		return
	}
	child := engine.NewRequest(resourceType, rawURL, parent.Policy)
	child.Context.Relation = &engine.Relation{Origin: originType, Name: name, Type: resourceType}
	p.enqueue(ctx, parent, queue.PriorityNormal, child)
}
