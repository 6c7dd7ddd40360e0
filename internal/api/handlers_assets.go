package api

import (
	"net/http"
	"path/filepath"
	"strings"

	enginerrors "github.com/mediaengine/engine/internal/errors"
)

// pathWithin reports whether candidate resolves to a path inside root.
// Both are cleaned to absolute form first, so `..` segments and
// symlink-free traversal tricks cannot escape the root.
func pathWithin(root, candidate string) (string, bool) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", false
	}
	abs, err := filepath.Abs(candidate)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(absRoot, abs)
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return abs, true
}

// handleAssetThumbnail serves a thumbnail strictly from inside the
// thumbnails directory.
func (s *Server) handleAssetThumbnail(w http.ResponseWriter, r *http.Request) {
	s.serveContained(w, r, s.d.Config.ThumbnailsDir())
}

// handleAssetFace serves a face crop strictly from inside the faces
// directory — the containment check is server-side policy, not client
// discipline.
func (s *Server) handleAssetFace(w http.ResponseWriter, r *http.Request) {
	s.serveContained(w, r, s.d.Config.FacesDir())
}

func (s *Server) serveContained(w http.ResponseWriter, r *http.Request, root string) {
	requested := r.URL.Query().Get("path")
	if requested == "" {
		writeError(w, http.StatusBadRequest, enginerrors.KindUnknown, "path is required")
		return
	}
	// Relative paths are taken relative to the containment root.
	if !filepath.IsAbs(requested) {
		requested = filepath.Join(root, requested)
	}
	abs, ok := pathWithin(root, requested)
	if !ok {
		writeError(w, http.StatusForbidden, enginerrors.KindOriginRejected, "path outside data root")
		return
	}
	http.ServeFile(w, r, abs)
}

// handleAssetVideo streams an original media file, with HTTP range
// support via http.ServeFile. Only paths registered as an Item are
// served; an arbitrary filesystem path is rejected even if readable.
func (s *Server) handleAssetVideo(w http.ResponseWriter, r *http.Request) {
	itemID := r.URL.Query().Get("id")
	if itemID == "" {
		writeError(w, http.StatusBadRequest, enginerrors.KindUnknown, "id is required")
		return
	}
	item, err := s.d.Store.GetItem(s.ctx(r), itemID)
	if err != nil {
		writeErr(w, err)
		return
	}
	lib, err := s.d.Store.GetLibrary(s.ctx(r), item.LibraryID)
	if err != nil {
		writeErr(w, err)
		return
	}
	abs, ok := pathWithin(lib.Path, filepath.Join(lib.Path, item.Path))
	if !ok {
		writeError(w, http.StatusForbidden, enginerrors.KindOriginRejected, "item path outside its library")
		return
	}
	http.ServeFile(w, r, abs)
}
