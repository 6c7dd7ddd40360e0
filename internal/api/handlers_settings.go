package api

import (
	"encoding/json"
	"net/http"

	enginerrors "github.com/mediaengine/engine/internal/errors"
	"github.com/mediaengine/engine/internal/store"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.d.Settings.Get())
}

// handlePatchSettings applies a partial update: current settings are
// serialized, the patch is merged over them, and the merged result is
// validated before it is persisted.
func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	current := s.d.Settings.Get()

	base, err := json.Marshal(current)
	if err != nil {
		writeErr(w, err)
		return
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		writeErr(w, err)
		return
	}
	var patch map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, enginerrors.KindUnknown, err.Error())
		return
	}
	for k, v := range patch {
		if _, known := merged[k]; !known {
			writeError(w, http.StatusBadRequest, enginerrors.KindUnknown, "unknown setting "+k)
			return
		}
		merged[k] = v
	}

	remarshaled, err := json.Marshal(merged)
	if err != nil {
		writeErr(w, err)
		return
	}
	next := current
	if err := json.Unmarshal(remarshaled, &next); err != nil {
		writeError(w, http.StatusBadRequest, enginerrors.KindUnknown, err.Error())
		return
	}
	if err := next.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, enginerrors.KindUnknown, err.Error())
		return
	}
	if err := s.d.Settings.Set(s.ctx(r), next); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, next)
}

func favoriteKind(raw string) (store.FavoriteKind, bool) {
	switch store.FavoriteKind(raw) {
	case store.FavoriteItem, store.FavoritePerson:
		return store.FavoriteKind(raw), true
	case "":
		return store.FavoriteItem, true
	}
	return "", false
}

func (s *Server) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	kind, ok := favoriteKind(r.URL.Query().Get("kind"))
	if !ok {
		writeError(w, http.StatusBadRequest, enginerrors.KindUnknown, "kind must be item or person")
		return
	}
	ids, err := s.d.Store.ListFavorites(s.ctx(r), kind)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "ids": ids})
}

// handleSetFavorite serves both POST (favorite) and DELETE
// (unfavorite) on /favorites.
func (s *Server) handleSetFavorite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind     string `json:"kind"`
		TargetID string `json:"target_id"`
	}
	if err := decodeJSON(r, &req); err != nil || req.TargetID == "" {
		writeError(w, http.StatusBadRequest, enginerrors.KindUnknown, "target_id is required")
		return
	}
	kind, ok := favoriteKind(req.Kind)
	if !ok {
		writeError(w, http.StatusBadRequest, enginerrors.KindUnknown, "kind must be item or person")
		return
	}
	favorite := r.Method == http.MethodPost
	if err := s.d.Store.SetFavorite(s.ctx(r), kind, req.TargetID, favorite); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"favorite": favorite})
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	itemID := r.URL.Query().Get("item_id")
	if itemID == "" {
		writeError(w, http.StatusBadRequest, enginerrors.KindUnknown, "item_id is required")
		return
	}
	tags, err := s.d.Store.ListTags(s.ctx(r), itemID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item_id": itemID, "tags": tags})
}

func (s *Server) handleAddTag(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemID string `json:"item_id"`
		Tag    string `json:"tag"`
	}
	if err := decodeJSON(r, &req); err != nil || req.ItemID == "" || req.Tag == "" {
		writeError(w, http.StatusBadRequest, enginerrors.KindUnknown, "item_id and tag are required")
		return
	}
	if err := s.d.Store.AddTag(s.ctx(r), req.ItemID, req.Tag); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tagged": true})
}

func (s *Server) handleRemoveTag(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemID string `json:"item_id"`
		Tag    string `json:"tag"`
	}
	if err := decodeJSON(r, &req); err != nil || req.ItemID == "" || req.Tag == "" {
		writeError(w, http.StatusBadRequest, enginerrors.KindUnknown, "item_id and tag are required")
		return
	}
	if err := s.d.Store.RemoveTag(s.ctx(r), req.ItemID, req.Tag); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tagged": false})
}
