// Package policy decides, per Request, whether the Crawler pipeline should
// fetch, process or save a resource, and how that Request should render in
// short diagnostic form. It is deliberately a thin, stateless evaluator over
// the Request.Policy struct rather than a stateful service, mirroring the
// teacher's preference for small collaborators the Crawler can construct
// once and reuse across every cycle.
package policy

import (
	"strings"

	"github.com/0xBADBAC0N/ghcrawler/internal/engine"
)

// Engine evaluates the Policy attached to a Request against the crawler's
// current processor version and exclusion rules.
type Engine struct {
	// ProcessorVersion is bumped whenever a handler's output shape changes.
	// On a forced 304 the stored Document is rehydrated and reprocessed only
	// if it is stamped with an older version; an unforced 304 is skipped as
	// Unmodified before processing, whatever its stored version.
	ProcessorVersion int
}

// NewEngine constructs a policy Engine pinned to the given processor version.
func NewEngine(processorVersion int) *Engine {
	return &Engine{ProcessorVersion: processorVersion}
}

// ShouldFetch reports whether the Fetcher stage should run at all. A
// read-only policy still fetches (it only forbids persisting side effects
// of processing), so the only reason to skip fetching is an explicit
// exclusion of the Request's own type.
func (e *Engine) ShouldFetch(r *engine.Request) bool {
	return !e.excluded(r.Type, r.Policy)
}

// ShouldProcess reports whether a fetched Document is stale enough, or the
// processor new enough, to warrant running it through the Processor.
// A document fetched fresh (no prior version) always processes. A document
// whose existing version is at least the current processor's version, and
// whose fetch returned 304 Not Modified, is already current and can be
// skipped.
func (e *Engine) ShouldProcess(r *engine.Request) bool {
	if e.excluded(r.Type, r.Policy) {
		return false
	}
	if r.Response != nil && r.Response.StatusCode == 304 {
		if existing := r.Document; existing != nil && existing.Metadata.Version >= e.ProcessorVersion {
			return false
		}
	}
	return true
}

// ShouldSave reports whether a processed Document should be persisted. A
// read-only Policy processes a Request for its link side effects but never
// writes the Document itself, matching the "ReadOnly" contract used by
// diagnostic and backfill-preview Requests.
func (e *Engine) ShouldSave(r *engine.Request) bool {
	return !r.Policy.ReadOnly
}

// GetShortForm renders the compact diagnostic label a Policy carries for
// log lines, falling back to a generic label when the Policy never set one.
func (e *Engine) GetShortForm(r *engine.Request) string {
	if r.Policy.ShortForm != "" {
		return r.Policy.ShortForm
	}
	return "default"
}

func (e *Engine) excluded(resourceType string, p engine.Policy) bool {
	for _, excluded := range p.ExcludeTypes {
		if strings.EqualFold(excluded, resourceType) {
			return true
		}
	}
	return false
}
