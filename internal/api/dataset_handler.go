package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/datasmith-ai/datasmith/internal/common"
	"github.com/datasmith-ai/datasmith/internal/dataset"
	"github.com/datasmith-ai/datasmith/internal/session"
)

const maxUploadBytes = 64 << 20

// handleUploadCSV ingests a CSV file from a multipart form (field "file")
// and starts a fresh session lineage around it.
func (s *Server) handleUploadCSV(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger()
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse upload: %w", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing file field: %w", err))
		return
	}
	defer file.Close()

	ds, err := dataset.FromCSV(header.Filename, file)
	if err != nil {
		var violation *dataset.SchemaViolationError
		if errors.As(err, &violation) {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.session.Reset(ds)
	s.setPending(nil)
	logger.Info("api: dataset uploaded", "name", ds.Name(), "rows", ds.RowCount(), "version", ds.Version())
	writeJSON(w, http.StatusCreated, datasetInfo(ds))
}

type importSQLiteRequest struct {
	Path  string `json:"path"`
	Table string `json:"table"`
}

// handleImportSQLite loads one table from a SQLite database file on the
// server host.
func (s *Server) handleImportSQLite(w http.ResponseWriter, r *http.Request) {
	var req importSQLiteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Path == "" || req.Table == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("path and table required"))
		return
	}
	ds, err := dataset.FromSQLiteTable(r.Context(), req.Path, req.Table)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.session.Reset(ds)
	s.setPending(nil)
	writeJSON(w, http.StatusCreated, datasetInfo(ds))
}

func (s *Server) handleDatasetInfo(w http.ResponseWriter, r *http.Request) {
	ds := s.session.Dataset()
	if ds == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("no dataset loaded"))
		return
	}
	writeJSON(w, http.StatusOK, datasetInfo(ds))
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	prof, err := s.session.Profile()
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, prof)
}

func datasetInfo(ds *dataset.Dataset) map[string]any {
	return map[string]any{
		"name":    ds.Name(),
		"version": ds.Version(),
		"parent":  ds.Parent(),
		"rows":    ds.RowCount(),
		"columns": ds.Columns(),
		"state":   session.StateActive,
	}
}
