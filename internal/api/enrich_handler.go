package api

import (
	"fmt"
	"net/http"

	"github.com/datasmith-ai/datasmith/internal/common"
	"github.com/datasmith-ai/datasmith/internal/gateway"
)

type enrichRequest struct {
	Goal           string `json:"goal,omitempty"`
	AllowWebSearch bool   `json:"allow_web_search,omitempty"`
}

func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger()
	var req enrichRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	suggestions, err := s.session.Enrich(r.Context(), req.Goal, req.AllowWebSearch)
	if err != nil {
		if gateway.IsUnavailable(err) {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		writeError(w, http.StatusNotFound, err)
		return
	}
	s.setPending(suggestions)
	logger.Info("api: enrichment suggestions produced", "count", len(suggestions))
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

type acceptRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleEnrichAccept(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	suggestion, ok := s.getPending(req.ID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown suggestion id %q", req.ID))
		return
	}
	ds, err := s.session.Accept(suggestion)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	s.removePending(req.ID)
	writeJSON(w, http.StatusOK, datasetInfo(ds))
}
