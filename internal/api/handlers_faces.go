package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	enginerrors "github.com/mediaengine/engine/internal/errors"
	"github.com/mediaengine/engine/internal/store"
)

// faceJSON deliberately omits the embedding: it is large, useless to
// the shell, and never leaves the engine.
type faceJSON struct {
	ID                   string     `json:"id"`
	ItemID               string     `json:"item_id"`
	FrameID              string     `json:"frame_id"`
	TimestampMs          int        `json:"timestamp_ms"`
	Confidence           float64    `json:"confidence"`
	CropPath             string     `json:"crop_path,omitempty"`
	PersonID             string     `json:"person_id,omitempty"`
	ClusterID            string     `json:"cluster_id,omitempty"`
	AssignmentSource     string     `json:"assignment_source,omitempty"`
	AssignmentConfidence float64    `json:"assignment_confidence,omitempty"`
	AssignedAt           *time.Time `json:"assigned_at,omitempty"`
}

func toFaceJSON(f store.Face) faceJSON {
	return faceJSON{
		ID: f.ID, ItemID: f.ItemID, FrameID: f.FrameID, TimestampMs: f.TimestampMs,
		Confidence: f.Confidence, CropPath: f.CropPath,
		PersonID: f.PersonID, ClusterID: f.ClusterID,
		AssignmentSource: string(f.AssignmentSource), AssignmentConfidence: f.AssignmentConfidence,
		AssignedAt: f.AssignedAt,
	}
}

type personJSON struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	FaceCount       int       `json:"face_count"`
	ThumbnailFaceID string    `json:"thumbnail_face_id,omitempty"`
	RecognitionMode string    `json:"recognition_mode"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toPersonJSON(p store.Person) personJSON {
	return personJSON{
		ID: p.ID, Name: p.Name, FaceCount: p.FaceCount,
		ThumbnailFaceID: p.ThumbnailFaceID, RecognitionMode: string(p.RecognitionMode),
		CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}

func (s *Server) handleListUnassignedFaces(w http.ResponseWriter, r *http.Request) {
	faces, err := s.d.Store.ListUnassignedFaces(s.ctx(r), queryInt(r, "limit", 200))
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]faceJSON, 0, len(faces))
	for _, f := range faces {
		out = append(out, toFaceJSON(f))
	}
	writeJSON(w, http.StatusOK, map[string]any{"faces": out})
}

// handleGetFace returns one face with re-analysis suggestions attached
// so the shell can offer "is this X?" alternatives.
func (s *Server) handleGetFace(w http.ResponseWriter, r *http.Request) {
	face, err := s.d.Store.GetFace(s.ctx(r), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}

	type suggestionJSON struct {
		Person     personJSON `json:"person"`
		Similarity float64    `json:"similarity"`
	}
	var suggestions []suggestionJSON
	if face.PersonID == "" {
		sugg, err := s.d.Faces.Suggestions(s.ctx(r), *face)
		if err == nil {
			for _, sg := range sugg {
				suggestions = append(suggestions, suggestionJSON{Person: toPersonJSON(sg.Person), Similarity: sg.Similarity})
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"face": toFaceJSON(*face), "suggestions": suggestions})
}

func (s *Server) handleAssignFace(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PersonID string `json:"person_id"`
	}
	if err := decodeJSON(r, &req); err != nil || req.PersonID == "" {
		writeError(w, http.StatusBadRequest, enginerrors.KindUnknown, "person_id is required")
		return
	}
	if err := s.d.Faces.Assign(s.ctx(r), chi.URLParam(r, "id"), req.PersonID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assigned": true})
}

func (s *Server) handleMarkReferenceFace(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PersonID string `json:"person_id"`
	}
	if err := decodeJSON(r, &req); err != nil || req.PersonID == "" {
		writeError(w, http.StatusBadRequest, enginerrors.KindUnknown, "person_id is required")
		return
	}
	if err := s.d.Faces.MarkReference(s.ctx(r), chi.URLParam(r, "id"), req.PersonID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reference": true})
}

func (s *Server) handleClusterFaces(w http.ResponseWriter, r *http.Request) {
	clusters, err := s.d.Faces.ClusterUnassigned(s.ctx(r), queryInt(r, "limit", 500))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clusters": clusters})
}

func (s *Server) handleMergeFaces(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DstPersonID string `json:"dst_person_id"`
		SrcPersonID string `json:"src_person_id"`
	}
	if err := decodeJSON(r, &req); err != nil || req.DstPersonID == "" || req.SrcPersonID == "" {
		writeError(w, http.StatusBadRequest, enginerrors.KindUnknown, "dst_person_id and src_person_id are required")
		return
	}
	if req.DstPersonID == req.SrcPersonID {
		writeError(w, http.StatusBadRequest, enginerrors.KindUnknown, "cannot merge a person into itself")
		return
	}
	if err := s.d.Faces.Merge(s.ctx(r), req.DstPersonID, req.SrcPersonID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"merged": true})
}

func (s *Server) handleFaceStats(w http.ResponseWriter, r *http.Request) {
	persons, err := s.d.Store.ListPersons(s.ctx(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	unassigned, err := s.d.Store.ListUnassignedFaces(s.ctx(r), 10_000)
	if err != nil {
		writeErr(w, err)
		return
	}
	assigned := 0
	for _, p := range persons {
		assigned += p.FaceCount
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"persons":          len(persons),
		"assigned_faces":   assigned,
		"unassigned_faces": len(unassigned),
	})
}

func (s *Server) handleReviewQueue(w http.ResponseWriter, r *http.Request) {
	queue, err := s.d.Faces.ReviewQueue(s.ctx(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	type reviewJSON struct {
		Face       faceJSON   `json:"face"`
		Person     personJSON `json:"person"`
		Confidence float64    `json:"confidence"`
	}
	out := make([]reviewJSON, 0, len(queue))
	for _, item := range queue {
		out = append(out, reviewJSON{Face: toFaceJSON(item.Face), Person: toPersonJSON(item.Person), Confidence: item.Confidence})
	}
	writeJSON(w, http.StatusOK, map[string]any{"review_queue": out})
}

// handleConfusingPairs lists every person pair whose threshold has
// been raised above the default by cross-corrections.
func (s *Server) handleConfusingPairs(w http.ResponseWriter, r *http.Request) {
	pairs, err := s.d.Store.ListPairThresholds(s.ctx(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	persons, err := s.d.Store.ListPersons(s.ctx(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	names := make(map[string]string, len(persons))
	for _, p := range persons {
		names[p.ID] = p.Name
	}

	type pairJSON struct {
		PersonA   string  `json:"person_a"`
		PersonB   string  `json:"person_b"`
		NameA     string  `json:"name_a"`
		NameB     string  `json:"name_b"`
		Threshold float64 `json:"threshold"`
	}
	out := make([]pairJSON, 0, len(pairs))
	for _, p := range pairs {
		if p.Threshold <= store.DefaultPairThreshold {
			continue
		}
		out = append(out, pairJSON{
			PersonA: p.PersonA, PersonB: p.PersonB,
			NameA: names[p.PersonA], NameB: names[p.PersonB],
			Threshold: p.Threshold,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Threshold > out[j].Threshold })
	writeJSON(w, http.StatusOK, map[string]any{"pairs": out})
}

func (s *Server) handleListPersons(w http.ResponseWriter, r *http.Request) {
	persons, err := s.d.Store.ListPersons(s.ctx(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]personJSON, 0, len(persons))
	for _, p := range persons {
		out = append(out, toPersonJSON(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"persons": out})
}

func (s *Server) handleCreatePerson(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string   `json:"name"`
		Mode    string   `json:"recognition_mode"`
		FaceIDs []string `json:"face_ids"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, enginerrors.KindUnknown, "name is required")
		return
	}
	mode := store.RecognitionMode(req.Mode)
	if mode == "" {
		mode = store.RecognitionAverage
	}
	switch mode {
	case store.RecognitionAverage, store.RecognitionReferenceOnly, store.RecognitionWeighted:
	default:
		writeError(w, http.StatusBadRequest, enginerrors.KindUnknown, "invalid recognition_mode")
		return
	}

	var person *store.Person
	var err error
	if len(req.FaceIDs) > 0 {
		person, err = s.d.Faces.CreatePersonFromFaces(s.ctx(r), req.Name, mode, req.FaceIDs)
	} else {
		person, err = s.d.Store.CreatePerson(s.ctx(r), req.Name, mode)
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPersonJSON(*person))
}

func (s *Server) handleGetPerson(w http.ResponseWriter, r *http.Request) {
	person, err := s.d.Store.GetPerson(s.ctx(r), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonJSON(*person))
}

func (s *Server) handleRenamePerson(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, enginerrors.KindUnknown, "name is required")
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.d.Store.RenamePerson(s.ctx(r), id, req.Name); err != nil {
		writeErr(w, err)
		return
	}
	person, err := s.d.Store.GetPerson(s.ctx(r), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonJSON(*person))
}

func (s *Server) handleDeletePerson(w http.ResponseWriter, r *http.Request) {
	if err := s.d.Store.DeletePerson(s.ctx(r), chi.URLParam(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// handlePersonTimeline lists a person's appearances in item/timestamp
// order so the shell can render a "moments with X" strip.
func (s *Server) handlePersonTimeline(w http.ResponseWriter, r *http.Request) {
	faces, err := s.d.Store.ListFacesByPerson(s.ctx(r), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	sort.Slice(faces, func(i, j int) bool {
		if faces[i].ItemID != faces[j].ItemID {
			return faces[i].ItemID < faces[j].ItemID
		}
		return faces[i].TimestampMs < faces[j].TimestampMs
	})
	out := make([]faceJSON, 0, len(faces))
	for _, f := range faces {
		out = append(out, toFaceJSON(f))
	}
	writeJSON(w, http.StatusOK, map[string]any{"timeline": out})
}

func (s *Server) handlePersonRecognitionMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"recognition_mode"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, enginerrors.KindUnknown, err.Error())
		return
	}
	mode := store.RecognitionMode(req.Mode)
	switch mode {
	case store.RecognitionAverage, store.RecognitionReferenceOnly, store.RecognitionWeighted:
	default:
		writeError(w, http.StatusBadRequest, enginerrors.KindUnknown, "invalid recognition_mode")
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.d.Store.SetPersonRecognitionMode(s.ctx(r), id, mode); err != nil {
		writeErr(w, err)
		return
	}
	// Mode changes what "closest to centroid" means, so refresh the
	// thumbnail too.
	if err := s.d.Faces.RecomputeThumbnail(s.ctx(r), id); err != nil {
		s.d.Log.Warn("thumbnail recompute after mode change failed", "person_id", id, "error", err.Error())
	}
	writeJSON(w, http.StatusOK, map[string]any{"recognition_mode": string(mode)})
}
