package notify

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDeadLetterThresholdCrossedPostsToWebhook(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL)
	n.DeadLetterThresholdCrossed(t.Context(), 42, 10)

	if !called {
		t.Error("Expected the webhook endpoint to be called")
	}
}

func TestDisabledNotifierSkipsWebhookCall(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	n := New("")
	if n.Enabled() {
		t.Error("Expected Notifier with empty URL to be disabled")
	}

	n.SupervisorPanic(t.Context(), "loop-1", "boom")

	if called {
		t.Error("Expected no webhook call when notifier is disabled")
	}
}
