package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/datasmith-ai/datasmith/internal/common"
	"github.com/datasmith-ai/datasmith/internal/gateway"
	"github.com/datasmith-ai/datasmith/internal/query"
)

type chatRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger()
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("question required"))
		return
	}
	logger.Info("api: chat request received", "question_length", len(req.Question))

	turn, err := s.session.Ask(r.Context(), req.Question)
	if err != nil {
		var unresolvable *query.UnresolvableError
		var invalid *query.PlanValidationError
		switch {
		case errors.As(err, &unresolvable), errors.As(err, &invalid):
			// The turn is still recorded; report the mapping failure with
			// its specific reason.
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error": err.Error(),
				"turn":  turn,
			})
		case gateway.IsUnavailable(err):
			writeError(w, http.StatusBadGateway, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"state": s.session.State(),
		"turns": s.session.Turns(),
	})
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	text, err := s.session.Insights(r.Context())
	if err != nil {
		if gateway.IsUnavailable(err) {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"insights": text})
}
