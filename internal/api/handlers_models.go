package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	enginerrors "github.com/mediaengine/engine/internal/errors"
)

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": s.d.Downloads.List()})
}

func (s *Server) handleModelProgress(w http.ResponseWriter, r *http.Request) {
	status := s.d.Downloads.Status(chi.URLParam(r, "name"))
	if status.Filename == "" {
		writeError(w, http.StatusNotFound, enginerrors.KindModelMissing, "unknown model")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleModelImport copies an offline model pack from a local
// directory into the models directory — the no-egress path to a
// working model set.
func (s *Server) handleModelImport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, enginerrors.KindUnknown, "path is required")
		return
	}
	imported, err := s.d.Downloads.ImportPack(req.Path)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"imported": imported})
}
