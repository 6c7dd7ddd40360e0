package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	enginerrors "github.com/mediaengine/engine/internal/errors"
	"github.com/mediaengine/engine/internal/search"
)

type searchRequest struct {
	Query       string   `json:"query"`
	Mode        string   `json:"mode"`
	Labels      []string `json:"labels"`
	LibraryID   string   `json:"library_id"`
	PersonIDs   []string `json:"person_ids"`
	PersonTolMs int      `json:"person_tolerance_ms"`
	Limit       int      `json:"limit"`
	Offset      int      `json:"offset"`
}

type searchResultJSON struct {
	ItemID         string   `json:"item_id"`
	TimestampMs    int      `json:"timestamp_ms"`
	Score          float64  `json:"score"`
	MatchSources   []string `json:"match_sources"`
	Snippet        string   `json:"snippet,omitempty"`
	Thumbnail      string   `json:"thumbnail,omitempty"`
	MatchedLabels  []string `json:"matched_labels,omitempty"`
	MatchedPersons []string `json:"matched_persons,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, enginerrors.KindUnknown, err.Error())
		return
	}

	mode := search.Mode(req.Mode)
	switch mode {
	case search.ModeTranscript, search.ModeVisual, search.ModeBoth:
	case "":
		mode = search.ModeBoth
	default:
		writeError(w, http.StatusBadRequest, enginerrors.KindUnknown, "mode must be transcript, visual, or both")
		return
	}

	q := search.Query{
		Text:        req.Query,
		Mode:        mode,
		Labels:      req.Labels,
		LibraryID:   req.LibraryID,
		PersonIDs:   req.PersonIDs,
		PersonTolMs: req.PersonTolMs,
		Limit:       req.Limit,
		Offset:      req.Offset,
	}
	results, total, err := s.d.Searcher.Search(s.ctx(r), q)
	if err != nil {
		writeErr(w, err)
		return
	}

	out := make([]searchResultJSON, 0, len(results))
	for _, res := range results {
		out = append(out, searchResultJSON{
			ItemID:         res.ItemID,
			TimestampMs:    res.TimestampMs,
			Score:          res.Score,
			MatchSources:   res.MatchSources,
			Snippet:        res.Snippet,
			Thumbnail:      res.ThumbnailPath,
			MatchedLabels:  res.MatchedLabels,
			MatchedPersons: res.MatchedPersons,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out, "total": total})
}

func (s *Server) handleExportCaptions(w http.ResponseWriter, r *http.Request) {
	format := search.CaptionFormat(strings.ToLower(r.URL.Query().Get("format")))
	if format == "" {
		format = search.CaptionSRT
	}
	if format != search.CaptionSRT && format != search.CaptionVTT {
		writeError(w, http.StatusBadRequest, enginerrors.KindUnknown, "format must be srt or vtt")
		return
	}

	itemID := chi.URLParam(r, "id")
	body, err := s.d.Searcher.ExportCaptions(s.ctx(r), itemID, format)
	if err != nil {
		writeErr(w, err)
		return
	}

	contentType := "application/x-subrip"
	ext := "srt"
	if format == search.CaptionVTT {
		contentType = "text/vtt"
		ext = "vtt"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+itemID+`.`+ext+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
