package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"icsync/internal/models"
)

// Runner is the sync entry point the server triggers on demand.
type Runner interface {
	Sync(ctx context.Context) (*models.SyncResult, error)
}

// Server exposes the on-demand sync trigger over HTTP.
type Server struct {
	logger *slog.Logger
	runner Runner
	token  string

	// running rejects overlapping runs: two reconciliations racing on the
	// same destination calendar could duplicate or resurrect events.
	running sync.Mutex
}

// New creates the HTTP trigger. token guards POST /sync; an empty token
// disables the endpoint entirely.
func New(logger *slog.Logger, runner Runner, token string) *Server {
	return &Server{logger: logger, runner: runner, token: token}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Post("/sync", s.handleSync)

	return r
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	// An unauthorized caller gets the same 404 as a wrong path. The
	// endpoint's existence is not revealed to probes.
	if !s.authorized(r) {
		http.NotFound(w, r)
		return
	}

	if !s.running.TryLock() {
		http.Error(w, "sync already running", http.StatusConflict)
		return
	}
	defer s.running.Unlock()

	result, err := s.runner.Sync(r.Context())
	if err != nil {
		s.logger.Error("On-demand sync failed", "error", err)
		http.Error(w, "sync failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.logger.Error("Failed to encode sync result", "error", err)
	}
}

func (s *Server) authorized(r *http.Request) bool {
	if s.token == "" {
		return false
	}
	presented := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return subtle.ConstantTimeCompare([]byte(presented), []byte(s.token)) == 1
}
