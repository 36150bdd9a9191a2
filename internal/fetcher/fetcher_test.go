package fetcher

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/0xBADBAC0N/ghcrawler/internal/engine"
)

func TestFetchDecodesObjectPayload(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"abc123"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id": 1, "name": "octo"}`))
	}))
	defer ts.Close()

	f := New(Config{})
	req := engine.NewRequest("repo", ts.URL, engine.Policy{})

	resp, payload, err := f.Fetch(t.Context(), req)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if resp.ETag != `"abc123"` {
		t.Errorf("Expected etag to be captured, got %q", resp.ETag)
	}

	obj, ok := payload.(map[string]any)
	if !ok {
		t.Fatalf("Expected object payload, got %T", payload)
	}
	if obj["name"] != "octo" {
		t.Errorf("Expected name field to decode, got %v", obj["name"])
	}
}

func TestFetchArrayPayload(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`[{"id": 1}, {"id": 2}]`))
	}))
	defer ts.Close()

	f := New(Config{})
	req := engine.NewRequest("collection", ts.URL, engine.Policy{})

	_, payload, err := f.Fetch(t.Context(), req)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	arr, ok := payload.([]any)
	if !ok {
		t.Fatalf("Expected array payload, got %T", payload)
	}
	if len(arr) != 2 {
		t.Errorf("Expected 2 elements, got %d", len(arr))
	}
}

func TestFetchNotModified(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"cached"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		t.Errorf("Expected If-None-Match header to be sent")
	}))
	defer ts.Close()

	f := New(Config{})
	req := engine.NewRequest("repo", ts.URL, engine.Policy{})
	req.SetMeta("ifNoneMatch", `"cached"`)

	resp, payload, err := f.Fetch(t.Context(), req)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if resp.StatusCode != http.StatusNotModified {
		t.Errorf("Expected 304, got %d", resp.StatusCode)
	}
	if payload != nil {
		t.Errorf("Expected nil payload on 304, got %v", payload)
	}
}

func TestFetchConflict(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer ts.Close()

	f := New(Config{})
	req := engine.NewRequest("repo", ts.URL, engine.Policy{})

	resp, payload, err := f.Fetch(t.Context(), req)
	if err != nil {
		t.Errorf("Expected no error for 409 conflict (empty repo is a terminal skip, not a fetch failure), got %v", err)
	}
	if resp == nil || resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected a 409 FetchResponse, got %v", resp)
	}
	if payload != nil {
		t.Errorf("Expected nil payload on 409, got %v", payload)
	}
}
