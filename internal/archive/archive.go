// Package archive persists dead-lettered requests to Google Cloud Storage,
// giving the dead-letter queue a durable, queryable home distinct from the
// broker itself.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/0xBADBAC0N/ghcrawler/internal/engine"
)

// Config captures the parameters required to connect to the archive bucket.
type Config struct {
	Bucket string
}

// Archiver writes the queuable projection of dead-lettered requests to a
// configured GCS bucket, one JSON object per request.
type Archiver struct {
	client *storage.Client
	bucket string
}

// New creates a GCS-backed Archiver.
func New(client *storage.Client, cfg Config) (*Archiver, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Archiver{client: client, bucket: cfg.Bucket}, nil
}

// PutObject uploads data to the configured bucket under path and returns a
// gs:// URI, mirroring the teacher pack's blob-store upload shape.
func (a *Archiver) PutObject(ctx context.Context, path, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	writer := a.client.Bucket(a.bucket).Object(path).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, r); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", a.bucket, path), nil
}

// DeadLetter archives the queuable projection of req under
// dead-letters/<type>/<unix-seconds>-<seq>.json. Two dead letters of the
// same type written in the same second with the same seq share a key, and
// the later one overwrites the earlier.
func (a *Archiver) DeadLetter(ctx context.Context, req *engine.Request, seq int) error {
	body, err := json.Marshal(req.ToQueueable())
	if err != nil {
		return fmt.Errorf("marshal queuable: %w", err)
	}

	path := fmt.Sprintf("dead-letters/%s/%d-%d.json", req.Type, time.Now().UTC().Unix(), seq)
	_, err = a.PutObject(ctx, path, "application/json", bytes.NewReader(body))
	return err
}
