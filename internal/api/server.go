package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/0xBADBAC0N/ghcrawler/internal/loop"
	"github.com/0xBADBAC0N/ghcrawler/internal/queue"
)

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// Server exposes the operator's control surface over the crawl engine: start
// and stop the worker loops, and inspect queue depths.
type Server struct {
	router     chi.Router
	supervisor *loop.Supervisor
	queue      queue.Set
	name       string
}

// NewServer wires middleware and routes onto a fresh chi router.
func NewServer(supervisor *loop.Supervisor, q queue.Set, name string) *Server {
	s := &Server{
		supervisor: supervisor,
		queue:      q,
		name:       name,
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(RecoverMiddleware)

	r.Get("/health", s.health)
	r.Post("/run", s.run)
	r.Post("/stop", s.stop)
	r.Get("/status", s.status)
	r.Get("/queues", s.queues)

	s.router = r
	return s
}

// Handler returns the router for mounting on an http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	WriteHealthy(w, r, s.name, "")
}

type runRequest struct {
	Count int `json:"count"`
}

func (s *Server) run(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, r, "invalid JSON body")
		return
	}
	if req.Count <= 0 {
		BadRequest(w, r, "count must be positive")
		return
	}

	s.supervisor.SetTarget(req.Count)
	WriteSuccess(w, r, statusPayload(s.supervisor), "loop count updated")
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	s.supervisor.Stop()
	WriteSuccess(w, r, statusPayload(s.supervisor), "stop requested")
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, statusPayload(s.supervisor), "")
}

func (s *Server) queues(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	depths, err := s.queue.Depths(ctx)
	if err != nil {
		InternalError(w, r, err)
		return
	}
	WriteSuccess(w, r, depths, "")
}

func statusPayload(s *loop.Supervisor) map[string]int {
	return map[string]int{
		"target":  s.Target(),
		"running": s.Running(),
	}
}
