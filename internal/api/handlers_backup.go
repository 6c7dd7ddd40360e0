package api

import (
	"net/http"
	"os"
	"path/filepath"

	enginerrors "github.com/mediaengine/engine/internal/errors"
	"github.com/mediaengine/engine/internal/store"
)

func (s *Server) handleBackupExport(w http.ResponseWriter, r *http.Request) {
	backup, err := s.d.Store.ExportBackup(s.ctx(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="media-engine-backup.json"`)
	writeJSON(w, http.StatusOK, backup)
}

func (s *Server) handleBackupRestore(w http.ResponseWriter, r *http.Request) {
	var backup store.Backup
	if err := decodeJSON(r, &backup); err != nil {
		writeError(w, http.StatusBadRequest, enginerrors.KindUnknown, err.Error())
		return
	}
	if err := s.d.Store.RestoreBackup(s.ctx(r), backup); err != nil {
		writeErr(w, err)
		return
	}
	// A restored settings blob may change OfflineMode, job limits, etc.
	if err := s.d.Settings.Reload(s.ctx(r)); err != nil {
		s.d.Log.Warn("settings reload after restore failed", "error", err.Error())
	}
	writeJSON(w, http.StatusOK, map[string]any{"restored": true})
}

// handleWipeDerived drops every derived row and artifact — transcripts,
// frames, detections, faces, thumbnails, crops, shards, the FTS index —
// leaving libraries, persons, and user metadata intact. Items return to
// QUEUED so the next scan/index pass rebuilds everything.
func (s *Server) handleWipeDerived(w http.ResponseWriter, r *http.Request) {
	if err := s.d.Store.WipeDerived(s.ctx(r)); err != nil {
		writeErr(w, err)
		return
	}
	if s.d.FTS != nil {
		if err := s.d.FTS.Reset(); err != nil {
			s.d.Log.Warn("wipe: resetting transcript index failed", "error", err.Error())
		}
	}
	if s.d.Shards != nil {
		if err := s.d.Shards.DropAll(); err != nil {
			s.d.Log.Warn("wipe: dropping vector shards failed", "error", err.Error())
		}
	}
	for _, dir := range []string{
		s.d.Config.ThumbnailsDir(),
		s.d.Config.FacesDir(),
		s.d.Config.AudioDir(),
	} {
		if err := clearDir(dir); err != nil {
			s.d.Log.Warn("wipe: clearing directory failed", "dir", dir, "error", err.Error())
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"wiped": true})
}

func (s *Server) handleWipeFaces(w http.ResponseWriter, r *http.Request) {
	if err := s.d.Store.WipeFaces(s.ctx(r)); err != nil {
		writeErr(w, err)
		return
	}
	if err := clearDir(s.d.Config.FacesDir()); err != nil {
		s.d.Log.Warn("wipe: clearing faces directory failed", "error", err.Error())
	}
	writeJSON(w, http.StatusOK, map[string]any{"wiped": true})
}

// clearDir removes a directory's contents without removing the
// directory itself.
func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) handleNetworkStatus(w http.ResponseWriter, r *http.Request) {
	rep := s.network.report()
	writeJSON(w, http.StatusOK, map[string]any{
		"offline_mode":   s.d.Settings.Get().OfflineMode,
		"total_requests": rep.TotalRequests,
		"total_blocked":  rep.TotalBlocked,
	})
}

func (s *Server) handleNetworkPrivacyReport(w http.ResponseWriter, r *http.Request) {
	rep := s.network.report()
	writeJSON(w, http.StatusOK, map[string]any{
		"offline_mode": s.d.Settings.Get().OfflineMode,
		"report":       rep,
	})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"shutting_down": true})
	if s.d.Shutdown != nil {
		go s.d.Shutdown()
	}
}
