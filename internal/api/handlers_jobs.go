package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	enginerrors "github.com/mediaengine/engine/internal/errors"
	"github.com/mediaengine/engine/internal/store"
)

type jobJSON struct {
	ID           string    `json:"id"`
	ItemID       string    `json:"item_id"`
	Status       string    `json:"status"`
	CurrentStage string    `json:"current_stage,omitempty"`
	Progress     float64   `json:"progress"`
	Message      string    `json:"message,omitempty"`
	ErrorCode    string    `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toJobJSON(j store.Job) jobJSON {
	return jobJSON{
		ID: j.ID, ItemID: j.ItemID, Status: string(j.Status),
		CurrentStage: j.CurrentStage, Progress: j.Progress, Message: j.Message,
		ErrorCode: j.ErrorCode, ErrorMessage: j.ErrorMessage,
		CreatedAt: j.CreatedAt, UpdatedAt: j.UpdatedAt,
	}
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.d.Store.ListJobs(s.ctx(r), queryInt(r, "limit", 100))
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]jobJSON, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobJSON(j))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.d.Store.GetJob(s.ctx(r), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobJSON(*job))
}

// handleJobsStart requeues the named items (or, with an empty body,
// simply nudges the dispatcher) and unpauses the queue.
func (s *Server) handleJobsStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemIDs []string `json:"item_ids"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, enginerrors.KindUnknown, err.Error())
			return
		}
	}

	requeued := 0
	for _, id := range req.ItemIDs {
		it, err := s.d.Store.GetItem(s.ctx(r), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		switch it.Status {
		case store.StatusQueued:
			// Already waiting; the kick below covers it.
		case store.StatusDone:
			// Re-index from scratch on explicit request.
			if err := s.d.Store.SetItemStatus(s.ctx(r), it.ID, store.StatusQueued, ""); err != nil {
				writeErr(w, err)
				return
			}
			requeued++
		default:
			if err := s.requeueItem(r, it); err != nil {
				writeErr(w, err)
				return
			}
			requeued++
		}
	}

	s.d.Coordinator.Resume()
	s.d.Coordinator.Kick()
	writeJSON(w, http.StatusOK, map[string]any{"started": true, "requeued": requeued})
}

func (s *Server) handleJobsPause(w http.ResponseWriter, r *http.Request) {
	s.d.Coordinator.Pause()
	writeJSON(w, http.StatusOK, map[string]any{"paused": true})
}

func (s *Server) handleJobsResume(w http.ResponseWriter, r *http.Request) {
	s.d.Coordinator.Resume()
	s.d.Coordinator.Kick()
	writeJSON(w, http.StatusOK, map[string]any{"paused": false})
}

func (s *Server) handleJobsStatus(w http.ResponseWriter, r *http.Request) {
	running, err := s.d.Store.ListRunningJobs(s.ctx(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	queued, _, err := s.d.Store.ListItems(s.ctx(r), store.ItemFilter{Status: store.StatusQueued}, false, store.Pagination{Limit: 500})
	if err != nil {
		writeErr(w, err)
		return
	}

	runningOut := make([]jobJSON, 0, len(running))
	for _, j := range running {
		runningOut = append(runningOut, toJobJSON(j))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"paused":       s.d.Coordinator.Paused(),
		"running":      runningOut,
		"queued_count": len(queued),
	})
}
