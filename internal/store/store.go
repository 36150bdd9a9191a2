// Package store persists Documents as JSONB rows keyed by (type, url), the
// ghcrawler equivalent of the teacher's PostgreSQL-backed data layer.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"

	"github.com/0xBADBAC0N/ghcrawler/internal/engine"
)

// Config holds the connection settings for the document store.
type Config struct {
	DatabaseURL  string
	MaxIdleConns int
	MaxOpenConns int
	MaxLifetime  time.Duration
}

// Store is the contract the Crawler pipeline's storeDocument stage and the
// Fetcher's conditional-GET lookup depend on.
type Store interface {
	Upsert(ctx context.Context, doc *engine.Document) error
	ETag(ctx context.Context, resourceType, url string) (string, bool, error)
	Get(ctx context.Context, resourceType, url string) (*engine.Document, error)
	Close() error
}

// PostgresStore implements Store over a single jsonb-typed documents table.
type PostgresStore struct {
	db *sql.DB
}

// New opens a connection pool and ensures the documents table exists.
func New(cfg Config) (*PostgresStore, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("store: DATABASE_URL is required")
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 10
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxLifetime == 0 {
		cfg.MaxLifetime = 20 * time.Minute
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if err := setupSchema(db); err != nil {
		return nil, fmt.Errorf("store: setup schema: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func setupSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			resource_type TEXT NOT NULL,
			url           TEXT NOT NULL,
			etag          TEXT,
			version       INTEGER NOT NULL DEFAULT 0,
			body          JSONB NOT NULL,
			fetched_at    TIMESTAMPTZ NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (resource_type, url)
		)
	`)
	return err
}

// Upsert writes a Document, overwriting any prior version at the same
// (type, url) key. Documents are idempotent by construction (the processor
// always derives the same body from the same remote payload), so a plain
// last-write-wins upsert is sufficient even under at-least-once delivery.
func (s *PostgresStore) Upsert(ctx context.Context, doc *engine.Document) error {
	body, err := json.Marshal(doc.MarshalMap())
	if err != nil {
		return fmt.Errorf("store: marshal document: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (resource_type, url, etag, version, body, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (resource_type, url) DO UPDATE SET
			etag       = EXCLUDED.etag,
			version    = EXCLUDED.version,
			body       = EXCLUDED.body,
			fetched_at = EXCLUDED.fetched_at,
			updated_at = now()
	`, doc.Metadata.Type, doc.Metadata.URL, doc.Metadata.ETag, doc.Metadata.Version, body, doc.Metadata.FetchedAt)
	if err != nil {
		log.Error().Err(err).Str("type", doc.Metadata.Type).Str("url", doc.Metadata.URL).Msg("store: upsert failed")
		return fmt.Errorf("store: upsert %s %s: %w", doc.Metadata.Type, doc.Metadata.URL, err)
	}
	return nil
}

// ETag returns the stored ETag for a (type, url) pair, used by the Fetcher
// to make conditional GET requests.
func (s *PostgresStore) ETag(ctx context.Context, resourceType, url string) (string, bool, error) {
	var etag sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT etag FROM documents WHERE resource_type = $1 AND url = $2`,
		resourceType, url,
	).Scan(&etag)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: etag lookup %s %s: %w", resourceType, url, err)
	}
	return etag.String, etag.Valid && etag.String != "", nil
}

// Get loads a previously stored Document.
func (s *PostgresStore) Get(ctx context.Context, resourceType, url string) (*engine.Document, error) {
	var body []byte
	var version int
	var etag sql.NullString
	var fetchedAt time.Time

	err := s.db.QueryRowContext(ctx,
		`SELECT body, version, etag, fetched_at FROM documents WHERE resource_type = $1 AND url = $2`,
		resourceType, url,
	).Scan(&body, &version, &etag, &fetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s %s: %w", resourceType, url, err)
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("store: decode %s %s: %w", resourceType, url, err)
	}
	doc := engine.NewDocument(payload)
	doc.Metadata.Type = resourceType
	doc.Metadata.URL = url
	doc.Metadata.Version = version
	doc.Metadata.ETag = etag.String
	doc.Metadata.FetchedAt = fetchedAt
	return doc, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
