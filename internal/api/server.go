package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	chi "github.com/go-chi/chi/v5"

	"github.com/datasmith-ai/datasmith/internal/common"
	"github.com/datasmith-ai/datasmith/internal/config"
	"github.com/datasmith-ai/datasmith/internal/enrich"
	"github.com/datasmith-ai/datasmith/internal/session"
)

// Server exposes the orchestration engine over HTTP. It holds one session:
// uploading a dataset replaces the previous lineage, matching the
// single-user scope of the engine.
type Server struct {
	router  chi.Router
	session *session.Session
	cfg     config.Config

	// Suggestions from the most recent enrichment call, addressable for
	// acceptance. Replaced wholesale on every /v1/enrich. Handlers run on
	// per-request goroutines, so every access goes through pendingMu.
	pendingMu sync.Mutex
	pending   map[string]enrich.Suggestion
}

func (s *Server) setPending(suggestions []enrich.Suggestion) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	s.pending = make(map[string]enrich.Suggestion, len(suggestions))
	for _, suggestion := range suggestions {
		s.pending[suggestion.ID] = suggestion
	}
}

func (s *Server) getPending(id string) (enrich.Suggestion, bool) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	suggestion, ok := s.pending[id]
	return suggestion, ok
}

func (s *Server) removePending(id string) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	delete(s.pending, id)
}

// NewServer wires the routes around an existing session.
func NewServer(sess *session.Session, cfg config.Config) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		session: sess,
		cfg:     cfg,
		pending: make(map[string]enrich.Suggestion),
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.router.Post("/v1/datasets", s.handleUploadCSV)
	s.router.Post("/v1/datasets/sqlite", s.handleImportSQLite)
	s.router.Get("/v1/datasets/current", s.handleDatasetInfo)
	s.router.Get("/v1/datasets/current/profile", s.handleProfile)
	s.router.Post("/v1/chat", s.handleChat)
	s.router.Get("/v1/chat/history", s.handleHistory)
	s.router.Get("/v1/insights", s.handleInsights)
	s.router.Post("/v1/enrich", s.handleEnrich)
	s.router.Post("/v1/enrich/accept", s.handleEnrichAccept)
	s.router.Get("/v1/logs", s.handleLogs)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"entries": common.LogEntries()})
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	logger := common.Logger()
	if status >= http.StatusInternalServerError {
		logger.Error("api: request failed", "status", status, "error", err)
	} else {
		logger.Warn("api: request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
