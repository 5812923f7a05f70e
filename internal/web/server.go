// Package web exposes read-only status endpoints over the
// orchestrator's aggregate views. It never mutates engine state.
package web

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"helmsman/internal/orchestrator"
)

// Server provides the JSON status handlers.
type Server struct {
	orc *orchestrator.Orchestrator
}

// NewServer creates a status server over an orchestrator.
func NewServer(orc *orchestrator.Orchestrator) *Server {
	return &Server{orc: orc}
}

// Routes returns the router for the status API.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /sessions/{id}", s.handleSession)
	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orc.GetFullStatus())
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	status := s.orc.GetSessionStatus(id)
	if status == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode status response")
	}
}
