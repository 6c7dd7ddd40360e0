package faces

import (
	"context"
	"fmt"

	"github.com/mediaengine/engine/internal/store"
)

// RecomputeThumbnail picks the face closest to personID's weighted
// centroid, among faces with a non-empty crop path, and records it as
// the person's representative thumbnail. The thumbnail is cleared
// first and committed on its own: a face row holds a crop path but a
// person row points back at a face id, so recomputing in place risks
// a reader observing a thumbnail_face_id that momentarily points at a
// face mid-reassignment. Clearing first makes that window "no
// thumbnail yet" instead of "wrong thumbnail".
func (l *Learner) RecomputeThumbnail(ctx context.Context, personID string) error {
	if err := l.st.SetPersonThumbnail(ctx, personID, ""); err != nil {
		return fmt.Errorf("clear thumbnail: %w", err)
	}

	person, err := l.st.GetPerson(ctx, personID)
	if err != nil {
		return fmt.Errorf("get person: %w", err)
	}
	faces, err := l.st.ListFacesByPerson(ctx, personID)
	if err != nil {
		return fmt.Errorf("list faces by person: %w", err)
	}
	if len(faces) == 0 {
		return nil
	}

	centroid, err := l.Centroid(ctx, *person)
	if err != nil {
		return fmt.Errorf("centroid: %w", err)
	}
	if centroid == nil {
		return nil
	}

	var closest *store.Face
	bestSim := -2.0
	for i := range faces {
		f := &faces[i]
		if f.CropPath == "" {
			continue
		}
		sim := cosineSimilarity(f.Embedding, centroid)
		if sim > bestSim {
			bestSim = sim
			closest = f
		}
	}
	if closest == nil {
		return nil
	}
	return l.st.SetPersonThumbnail(ctx, personID, closest.ID)
}
