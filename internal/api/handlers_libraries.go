package api

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	enginerrors "github.com/mediaengine/engine/internal/errors"
	"github.com/mediaengine/engine/internal/store"
)

type libraryJSON struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Recursive bool      `json:"recursive"`
	CreatedAt time.Time `json:"created_at"`
}

func toLibraryJSON(l *store.Library) libraryJSON {
	return libraryJSON{ID: l.ID, Path: l.Path, Name: l.Name, Recursive: l.Recursive, CreatedAt: l.CreatedAt}
}

func (s *Server) handleListLibraries(w http.ResponseWriter, r *http.Request) {
	libs, err := s.d.Store.ListLibraries(s.ctx(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]libraryJSON, 0, len(libs))
	for _, l := range libs {
		out = append(out, toLibraryJSON(l))
	}
	writeJSON(w, http.StatusOK, map[string]any{"libraries": out})
}

func (s *Server) handleCreateLibrary(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path      string `json:"path"`
		Name      string `json:"name"`
		Recursive *bool  `json:"recursive"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, enginerrors.KindUnknown, err.Error())
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, enginerrors.KindUnknown, "invalid path")
		return
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		writeError(w, http.StatusBadRequest, enginerrors.KindFileNotFound, "path is not an existing directory")
		return
	}
	if req.Name == "" {
		req.Name = filepath.Base(abs)
	}
	recursive := true
	if req.Recursive != nil {
		recursive = *req.Recursive
	}

	lib, err := s.d.Store.CreateLibrary(s.ctx(r), abs, req.Name, recursive)
	if err != nil {
		writeErr(w, err)
		return
	}
	// Kick off the first scan in the background so the add call
	// returns immediately; progress arrives on the event stream.
	go s.scanLibrary(*lib)
	writeJSON(w, http.StatusCreated, toLibraryJSON(lib))
}

func (s *Server) handleGetLibrary(w http.ResponseWriter, r *http.Request) {
	lib, err := s.d.Store.GetLibrary(s.ctx(r), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLibraryJSON(lib))
}

func (s *Server) handleUpdateLibrary(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, enginerrors.KindUnknown, "name is required")
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.d.Store.RenameLibrary(s.ctx(r), id, req.Name); err != nil {
		writeErr(w, err)
		return
	}
	lib, err := s.d.Store.GetLibrary(s.ctx(r), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLibraryJSON(lib))
}

func (s *Server) handleDeleteLibrary(w http.ResponseWriter, r *http.Request) {
	if err := s.d.Store.DeleteLibrary(s.ctx(r), chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (s *Server) handleScanLibrary(w http.ResponseWriter, r *http.Request) {
	lib, err := s.d.Store.GetLibrary(s.ctx(r), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	go s.scanLibrary(*lib)
	writeJSON(w, http.StatusAccepted, map[string]any{"scanning": true})
}

// scanLibrary runs one scan detached from the request, then kicks the
// pipeline so newly queued items start indexing without waiting for
// the sweep.
func (s *Server) scanLibrary(lib store.Library) {
	summary, err := s.d.Scanner.ScanLibrary(context.Background(), lib)
	if err != nil {
		s.d.Log.Error("scan failed",
			"library_id", lib.ID, "error", err.Error())
		return
	}
	s.d.Log.Info("scan complete",
		"library_id", lib.ID,
		"found", summary.FilesFound,
		"new", summary.FilesNew,
		"changed", summary.FilesChanged,
		"deleted", summary.FilesDeleted)
	if s.d.Coordinator != nil {
		s.d.Coordinator.Kick()
	}
}
