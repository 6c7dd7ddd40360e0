package api

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	enginerrors "github.com/mediaengine/engine/internal/errors"
	"github.com/mediaengine/engine/internal/store"
)

type itemJSON struct {
	ID                 string     `json:"id"`
	LibraryID          string     `json:"library_id"`
	Path               string     `json:"path"`
	Filename           string     `json:"filename"`
	Size               int64      `json:"size"`
	MTime              time.Time  `json:"mtime"`
	MediaType          string     `json:"media_type"`
	Status             string     `json:"status"`
	LastCompletedStage string     `json:"last_completed_stage,omitempty"`
	Progress           float64    `json:"progress"`
	ErrorCode          string     `json:"error_code,omitempty"`
	ErrorMessage       string     `json:"error_message,omitempty"`
	Duration           float64    `json:"duration,omitempty"`
	Width              int        `json:"width,omitempty"`
	Height             int        `json:"height,omitempty"`
	FPS                float64    `json:"fps,omitempty"`
	Codecs             string     `json:"codecs,omitempty"`
	Container          string     `json:"container,omitempty"`
	CreationTime       *time.Time `json:"creation_time,omitempty"`
	CameraMake         string     `json:"camera_make,omitempty"`
	CameraModel        string     `json:"camera_model,omitempty"`
	IsLiveComponent    bool       `json:"is_live_component"`
	LivePairID         string     `json:"live_pair_id,omitempty"`
	IndexedAt          *time.Time `json:"indexed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

func toItemJSON(it *store.Item) itemJSON {
	return itemJSON{
		ID: it.ID, LibraryID: it.LibraryID, Path: it.Path, Filename: it.Filename,
		Size: it.Size, MTime: it.MTime, MediaType: string(it.MediaType),
		Status: string(it.Status), LastCompletedStage: it.LastCompletedStage,
		Progress: it.Progress, ErrorCode: it.ErrorCode, ErrorMessage: it.ErrorMessage,
		Duration: it.Duration, Width: it.Width, Height: it.Height, FPS: it.FPS,
		Codecs: it.Codecs, Container: it.Container, CreationTime: it.CreationTime,
		CameraMake: it.CameraMake, CameraModel: it.CameraModel,
		IsLiveComponent: it.IsLiveComponent, LivePairID: it.LivePairID,
		IndexedAt: it.IndexedAt, CreatedAt: it.CreatedAt,
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// handleListItems serves both /videos (mediaType pinned to video) and
// /media (all media types).
func (s *Server) handleListItems(mediaType store.MediaType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := store.ItemFilter{
			LibraryID: r.URL.Query().Get("library_id"),
			MediaType: mediaType,
		}
		if st := r.URL.Query().Get("status"); st != "" {
			filter.Status = store.ItemStatus(st)
		}
		page := store.Pagination{
			Cursor: r.URL.Query().Get("cursor"),
			Limit:  queryInt(r, "limit", 100),
		}
		prioritizeRecent := s.d.Settings.Get().PrioritizeRecentMedia

		items, next, err := s.d.Store.ListItems(s.ctx(r), filter, prioritizeRecent, page)
		if err != nil {
			writeErr(w, err)
			return
		}
		out := make([]itemJSON, 0, len(items))
		for _, it := range items {
			// Live-pair clips are hidden from the main grid; the still
			// carries the pair.
			if it.IsLiveComponent {
				continue
			}
			out = append(out, toItemJSON(it))
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": out, "next_cursor": next})
	}
}

// itemGroupDate picks the date an item is grouped under: EXIF/container
// creation time first, file mtime second, DB insert time last.
func itemGroupDate(it *store.Item) time.Time {
	if it.CreationTime != nil && !it.CreationTime.IsZero() {
		return *it.CreationTime
	}
	if !it.MTime.IsZero() {
		return it.MTime
	}
	return it.CreatedAt
}

type mediaGroup struct {
	YearMonth string     `json:"year_month"`
	Items     []itemJSON `json:"items"`
}

func (s *Server) handleGroupedMedia(w http.ResponseWriter, r *http.Request) {
	filter := store.ItemFilter{LibraryID: r.URL.Query().Get("library_id")}

	groups := make(map[string]*mediaGroup)
	cursor := ""
	for {
		items, next, err := s.d.Store.ListItems(s.ctx(r), filter, false, store.Pagination{Cursor: cursor, Limit: 500})
		if err != nil {
			writeErr(w, err)
			return
		}
		for _, it := range items {
			if it.IsLiveComponent {
				continue
			}
			ym := itemGroupDate(it).Format("2006-01")
			g, ok := groups[ym]
			if !ok {
				g = &mediaGroup{YearMonth: ym}
				groups[ym] = g
			}
			g.Items = append(g.Items, toItemJSON(it))
		}
		if next == "" {
			break
		}
		cursor = next
	}

	out := make([]mediaGroup, 0, len(groups))
	for _, g := range groups {
		sort.Slice(g.Items, func(i, j int) bool { return g.Items[i].MTime.After(g.Items[j].MTime) })
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].YearMonth > out[j].YearMonth })
	writeJSON(w, http.StatusOK, map[string]any{"groups": out})
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	it, err := s.d.Store.GetItem(s.ctx(r), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	resp := map[string]any{"item": toItemJSON(it)}
	if it.Transcript != "" {
		resp["transcript"] = it.Transcript
	}
	writeJSON(w, http.StatusOK, resp)
}

type frameJSON struct {
	ID            string   `json:"id"`
	Index         int      `json:"index"`
	TimestampMs   int      `json:"timestamp_ms"`
	ThumbnailPath string   `json:"thumbnail_path,omitempty"`
	Colors        []string `json:"colors,omitempty"`
}

func (s *Server) handleItemFrames(w http.ResponseWriter, r *http.Request) {
	frames, err := s.d.Store.ListFrames(s.ctx(r), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]frameJSON, 0, len(frames))
	for _, f := range frames {
		out = append(out, frameJSON{
			ID: f.ID, Index: f.Index, TimestampMs: f.TimestampMs,
			ThumbnailPath: f.ThumbnailPath, Colors: f.Colors,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"frames": out})
}

func (s *Server) handleItemMetadata(w http.ResponseWriter, r *http.Request) {
	meta, err := s.d.Store.ListItemMetadata(s.ctx(r), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"metadata": meta})
}

// handleRetryItem requeues one FAILED or CANCELLED item from its last
// completed stage.
func (s *Server) handleRetryItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	it, err := s.d.Store.GetItem(s.ctx(r), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if it.Status != store.StatusFailed && it.Status != store.StatusCancelled {
		writeError(w, http.StatusConflict, enginerrors.KindUnknown, "item is not failed or cancelled")
		return
	}
	if err := s.requeueItem(r, it); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requeued": true})
}

func (s *Server) handleRetryAllFailed(w http.ResponseWriter, r *http.Request) {
	requeued := 0
	for _, status := range []store.ItemStatus{store.StatusFailed, store.StatusCancelled} {
		cursor := ""
		for {
			items, next, err := s.d.Store.ListItems(s.ctx(r), store.ItemFilter{Status: status}, false, store.Pagination{Cursor: cursor, Limit: 500})
			if err != nil {
				writeErr(w, err)
				return
			}
			for _, it := range items {
				if err := s.requeueItem(r, it); err != nil {
					writeErr(w, err)
					return
				}
				requeued++
			}
			if next == "" {
				break
			}
			cursor = next
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"requeued": requeued})
}

func (s *Server) requeueItem(r *http.Request, it *store.Item) error {
	if err := s.d.Store.SetItemError(s.ctx(r), it.ID, "", ""); err != nil {
		return err
	}
	if err := s.d.Store.SetItemStatus(s.ctx(r), it.ID, store.StatusQueued, it.LastCompletedStage); err != nil {
		return err
	}
	if s.d.Coordinator != nil {
		s.d.Coordinator.Kick()
	}
	return nil
}
