package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/0xBADBAC0N/ghcrawler/internal/loop"
	"github.com/0xBADBAC0N/ghcrawler/internal/queue"
)

func instantCycle(ctx context.Context, name string) time.Duration {
	return time.Hour
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	sup := loop.NewSupervisor(instantCycle)
	q := queue.NewMemorySet()
	return NewServer(sup, q, "ghcrawler-test")
}

func TestHealthEndpointReturns200(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestRunSetsSupervisorTarget(t *testing.T) {
	s := newTestServer(t)
	body := strings.NewReader(`{"count": 3}`)
	req := httptest.NewRequest(http.MethodPost, "/run", body)
	w := httptest.NewRecorder()

	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := s.supervisor.Target(); got != 3 {
		t.Errorf("Expected supervisor target 3, got %d", got)
	}
	if got := s.supervisor.Running(); got != 3 {
		t.Errorf("Expected 3 running loops, got %d", got)
	}
}

func TestRunRejectsNonPositiveCount(t *testing.T) {
	s := newTestServer(t)
	body := strings.NewReader(`{"count": 0}`)
	req := httptest.NewRequest(http.MethodPost, "/run", body)
	w := httptest.NewRecorder()

	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for non-positive count, got %d", w.Code)
	}
}

func TestStopReconcilesTargetToZero(t *testing.T) {
	s := newTestServer(t)
	s.supervisor.SetTarget(2)

	req := httptest.NewRequest(http.MethodPost, "/stop", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if got := s.supervisor.Target(); got != 0 {
		t.Errorf("Expected target 0 after stop, got %d", got)
	}
}

func TestStatusReportsTargetAndRunning(t *testing.T) {
	s := newTestServer(t)
	s.supervisor.SetTarget(1)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var resp SuccessResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("Expected data to be a map, got %T", resp.Data)
	}
	if data["target"] != float64(1) {
		t.Errorf("Expected target 1, got %v", data["target"])
	}
}

func TestQueuesReportsDepths(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/queues", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
}
