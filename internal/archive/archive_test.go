package archive

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/0xBADBAC0N/ghcrawler/internal/engine"
)

func newTestArchiver(t *testing.T, handler http.Handler) (*Archiver, func()) {
	t.Helper()

	server := httptest.NewServer(handler)
	client, err := gcs.NewClient(t.Context(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	if err != nil {
		t.Fatalf("failed to construct GCS client: %v", err)
	}

	a, err := New(client, Config{Bucket: "dead-letters"})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return a, server.Close
}

func TestDeadLetterUploadsQueuableProjection(t *testing.T) {
	var uploadedBody string

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/upload/storage/v1/b/dead-letters/o") {
			t.Errorf("Expected upload path for bucket dead-letters, got %q", r.URL.Path)
		}
		body := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(body)
		uploadedBody += string(body)
		fmt.Fprintln(w, `{"name": "dead-letters/repo/1-0.json"}`)
	})

	a, cleanup := newTestArchiver(t, handler)
	defer cleanup()

	req := engine.NewRequest("repo", "https://api.example.com/repos/acme/widget", engine.Policy{})

	if err := a.DeadLetter(t.Context(), req, 0); err != nil {
		t.Fatalf("DeadLetter returned error: %v", err)
	}
	if !strings.Contains(uploadedBody, `"url":"https://api.example.com/repos/acme/widget"`) {
		t.Errorf("Expected uploaded body to contain the request URL, got %q", uploadedBody)
	}
}

func TestPutObjectRejectsEmptyPath(t *testing.T) {
	a, cleanup := newTestArchiver(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer cleanup()

	_, err := a.PutObject(t.Context(), "", "application/json", strings.NewReader("{}"))
	if err == nil {
		t.Error("Expected an error for an empty path")
	}
}
