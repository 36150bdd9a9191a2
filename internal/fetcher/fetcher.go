// Package fetcher performs the conditional HTTP GET against the upstream
// hypermedia API that the Crawler pipeline's fetch stage depends on.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"

	"github.com/0xBADBAC0N/ghcrawler/internal/engine"
)

// StatusNotModified mirrors http.StatusNotModified for readability at call
// sites that branch on it alongside other crawler-specific status handling.
const StatusNotModified = http.StatusNotModified

// Fetcher is the contract the Crawler pipeline's fetch stage depends on.
type Fetcher interface {
	Fetch(ctx context.Context, req *engine.Request) (*engine.FetchResponse, any, error)
}

// HTTPFetcher issues conditional GETs against a JSON hypermedia API. Unlike
// the teacher's scraping collector, there is no HTML parsing, no cache
// warming and no second pass against a CDN edge: the origin and the API are
// the same host, and every response is either a fresh JSON document or a
// 304 confirming the previously stored one is still current.
type HTTPFetcher struct {
	client    *http.Client
	token     string
	userAgent string
}

// Config configures an HTTPFetcher.
type Config struct {
	Token     string
	UserAgent string
	Timeout   time.Duration
}

// New builds an HTTPFetcher with a connection-reusing transport sized for a
// worker pool making many small, short-lived API calls.
func New(cfg Config) *HTTPFetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "ghcrawler"
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 25,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     120 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: cfg.Timeout, Transport: transport},
		token:     cfg.Token,
		userAgent: cfg.UserAgent,
	}
}

// Fetch issues the GET, attaching If-None-Match when the store already has
// an ETag for this (type, url). It returns the decoded payload (a
// map[string]any or []any) on 200, and a nil payload on 304 — the caller is
// expected to reuse its previously stored Document in that case.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *engine.Request) (*engine.FetchResponse, any, error) {
	span := sentry.StartSpan(ctx, "fetcher.fetch")
	span.SetTag("url", req.URL)
	defer span.Finish()

	httpReq, err := http.NewRequestWithContext(span.Context(), http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("fetcher: build request for %s: %w", req.URL, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", f.userAgent)
	if f.token != "" {
		httpReq.Header.Set("Authorization", "token "+f.token)
	}
	if etag, ok := req.Meta["ifNoneMatch"].(string); ok && etag != "" {
		httpReq.Header.Set("If-None-Match", etag)
	}

	start := time.Now()
	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("fetcher: request %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	elapsed := time.Since(start)
	log.Debug().
		Str("url", req.URL).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("fetcher: request completed")

	fr := &engine.FetchResponse{
		StatusCode: resp.StatusCode,
		ETag:       resp.Header.Get("ETag"),
		Headers:    resp.Header.Clone(),
		LinkHeader: resp.Header.Get("Link"),
	}

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return fr, nil, nil
	case resp.StatusCode == http.StatusConflict:
		// Empty repo (or similar client-side conflict): terminal, not an error.
		return fr, nil, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fr, nil, fmt.Errorf("fetcher: read body %s: %w", req.URL, err)
		}
		if len(body) == 0 {
			return fr, map[string]any{}, nil
		}
		var payload any
		if err := json.Unmarshal(body, &payload); err != nil {
			return fr, nil, fmt.Errorf("fetcher: decode body %s: %w", req.URL, err)
		}
		return fr, payload, nil
	default:
		return fr, nil, fmt.Errorf("fetcher: %s returned unexpected status %d", req.URL, resp.StatusCode)
	}
}
