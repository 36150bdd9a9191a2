package processor

import (
	"context"
	"strconv"

	"github.com/0xBADBAC0N/ghcrawler/internal/engine"
)

// payloadRef reads a nested {id, url} reference out of the "payload"
// sub-object many webhook-style events carry, falling back gracefully when
// the field is absent so a partial event still links what it can.
func payloadRef(doc *engine.Document, field string) (rawURL, id string, ok bool) {
	v, present := doc.Get("payload")
	if !present {
		return "", "", false
	}
	payload, isObj := v.(map[string]any)
	if !isObj {
		return "", "", false
	}
	nested, isObj := payload[field].(map[string]any)
	if !isObj {
		return "", "", false
	}
	u, _ := nested["url"].(string)
	if nested["id"] == nil || u == "" {
		return "", "", false
	}
	return u, fmtID(nested["id"]), true
}

func fmtID(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case float64:
		return trimFloat(n)
	default:
		return ""
	}
}

func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// handleIssuesEvent links the repo and issue an IssuesEvent acted on.
func handleIssuesEvent(ctx context.Context, p *Processor, req *engine.Request) error {
	doc := req.Document
	setSelf(req, "event", docID(doc))

	if u, id, ok := ref(doc, "repo"); ok {
		addRoot(ctx, p, req, "repo", "repo", u, id)
	}
	if u, id, ok := payloadRef(doc, "issue"); ok {
		addRoot(ctx, p, req, "issue", "issue", u, id)
	}
	return nil
}

// handlePushEvent links the repo a PushEvent landed commits on.
func handlePushEvent(ctx context.Context, p *Processor, req *engine.Request) error {
	doc := req.Document
	setSelf(req, "event", docID(doc))

	if u, id, ok := ref(doc, "repo"); ok {
		addRoot(ctx, p, req, "repo", "repo", u, id)
	}
	return nil
}

// handlePullRequestEvent links the repo and the pull request a
// PullRequestEvent acted on.
func handlePullRequestEvent(ctx context.Context, p *Processor, req *engine.Request) error {
	doc := req.Document
	setSelf(req, "event", docID(doc))

	if u, id, ok := ref(doc, "repo"); ok {
		addRoot(ctx, p, req, "repo", "repo", u, id)
	}
	if u, id, ok := payloadRef(doc, "pull_request"); ok {
		addRoot(ctx, p, req, "pull_request", "issue", u, id)
	}
	return nil
}

// handlePageBuildEvent links the repo a GitHub Pages build event belongs
// to. The upstream payload's build-url field is inconsistently shaped
// across API versions (sometimes payload.build.url, sometimes absent
// entirely), so this handler treats it as strictly best-effort: a missing
// field is a no-op, never an error.
func handlePageBuildEvent(ctx context.Context, p *Processor, req *engine.Request) error {
	doc := req.Document
	setSelf(req, "event", docID(doc))

	if u, id, ok := ref(doc, "repo"); ok {
		addRoot(ctx, p, req, "repo", "repo", u, id)
	}
	return nil
}
