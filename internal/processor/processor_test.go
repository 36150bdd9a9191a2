package processor

import (
	"net/http"
	"testing"

	"github.com/0xBADBAC0N/ghcrawler/internal/engine"
	"github.com/0xBADBAC0N/ghcrawler/internal/policy"
	"github.com/0xBADBAC0N/ghcrawler/internal/queue"
)

func newTestProcessor() (*Processor, *queue.MemorySet) {
	q := queue.NewMemorySet()
	p := New(1, policy.NewEngine(1), q)
	return p, q
}

func TestProcessRepoEmitsLinksAndChildren(t *testing.T) {
	p, q := newTestProcessor()

	req := engine.NewRequest("repo", "https://api.example.com/repos/acme/widget", engine.Policy{})
	req.Document = engine.NewDocument(map[string]any{
		"id":         float64(42),
		"owner":      map[string]any{"id": float64(7), "url": "https://api.example.com/users/acme"},
		"owner_type": "Organization",
		"teams_url":  "https://api.example.com/repos/acme/widget/teams",
		"issues_url": "https://api.example.com/repos/acme/widget/issues{/number}",
	})

	if err := p.Process(t.Context(), req); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if req.Outcome != engine.OutcomeProcessed {
		t.Errorf("Expected Processed outcome, got %v", req.Outcome)
	}

	links := req.Document.Metadata.Links
	if links["self"].Target != "urn:repo:42" {
		t.Errorf("Expected self link urn:repo:42, got %q", links["self"].Target)
	}
	if links["owner"].Target != "urn:user:7" {
		t.Errorf("Expected owner link urn:user:7, got %q", links["owner"].Target)
	}

	depths, err := q.Depths(t.Context())
	if err != nil {
		t.Fatalf("Depths returned error: %v", err)
	}
	if depths[queue.PriorityNormal] == 0 {
		t.Error("Expected child requests enqueued onto normal queue")
	}
}

func TestProcessCollectionFansOutPages(t *testing.T) {
	p, q := newTestProcessor()

	req := engine.NewRequest("collection", "https://api.example.com/repos/acme/widget/issues", engine.Policy{})
	req.Context.SubType = "issue"
	req.Response = &engine.FetchResponse{
		StatusCode: http.StatusOK,
		LinkHeader: `<https://api.example.com/repos/acme/widget/issues?page=2>; rel="next", <https://api.example.com/repos/acme/widget/issues?page=7>; rel="last"`,
	}
	req.Document = engine.NewDocument([]any{
		map[string]any{"id": float64(1), "url": "https://api.example.com/repos/acme/widget/issues/1"},
		map[string]any{"id": float64(2), "url": "https://api.example.com/repos/acme/widget/issues/2"},
	})

	if err := p.Process(t.Context(), req); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	depths, err := q.Depths(t.Context())
	if err != nil {
		t.Fatalf("Depths returned error: %v", err)
	}
	// Pages 2-7 onto soon (6 requests), plus 2 issue elements onto normal.
	if depths[queue.PrioritySoon] != 6 {
		t.Errorf("Expected 6 page requests on soon queue, got %d", depths[queue.PrioritySoon])
	}
	if depths[queue.PriorityNormal] != 2 {
		t.Errorf("Expected 2 element requests on normal queue, got %d", depths[queue.PriorityNormal])
	}

	self := req.Document.Metadata.Links["self"]
	if self.Target != "urn:issue:page:1" {
		t.Errorf("Expected self URN to include the page number, got %q", self.Target)
	}
}

func TestProcessSkipsExcludedType(t *testing.T) {
	p, q := newTestProcessor()

	req := engine.NewRequest("repo", "https://api.example.com/repos/acme/widget", engine.Policy{ExcludeTypes: []string{"repo"}})
	req.Document = engine.NewDocument(map[string]any{"id": float64(1)})

	if err := p.Process(t.Context(), req); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if req.Outcome != engine.OutcomeSkipped || req.Message != "Excluded" {
		t.Errorf("Expected Skip/Excluded, got %v/%q", req.Outcome, req.Message)
	}

	depths, _ := q.Depths(t.Context())
	if depths[queue.PriorityNormal] != 0 {
		t.Errorf("Expected no enqueues for an excluded type, got %d", depths[queue.PriorityNormal])
	}
}

func TestProcessUnknownTypeNoHandler(t *testing.T) {
	p, _ := newTestProcessor()

	req := engine.NewRequest("widget_flavor", "https://api.example.com/flavors/1", engine.Policy{})
	req.Document = engine.NewDocument(map[string]any{"id": float64(1)})

	if err := p.Process(t.Context(), req); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if req.Outcome != engine.OutcomeSkipped || req.Message != "No handler" {
		t.Errorf("Expected Skip/\"No handler\", got %v/%q", req.Outcome, req.Message)
	}
}
