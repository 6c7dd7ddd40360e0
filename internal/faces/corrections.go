package faces

import (
	"context"
	"fmt"

	"github.com/mediaengine/engine/internal/store"
)

// Assign records a user correction: face is assigned to personID as a
// manual assignment. If the face was previously (auto- or
// manually-)assigned to a different person, that prior assignment is
// recorded as a negative example and the pair threshold between the
// two persons is raised, making future auto-assignment between them
// stricter.
func (l *Learner) Assign(ctx context.Context, faceID, personID string) error {
	face, err := l.st.GetFace(ctx, faceID)
	if err != nil {
		return fmt.Errorf("get face: %w", err)
	}

	priorPersonID := face.PersonID
	if err := l.st.AssignFace(ctx, faceID, personID, store.AssignManual, 1.0); err != nil {
		return fmt.Errorf("assign face: %w", err)
	}

	if priorPersonID != "" && priorPersonID != personID {
		if err := l.st.AddFaceExample(ctx, faceID, priorPersonID, store.ExampleNegative); err != nil {
			return fmt.Errorf("record negative example: %w", err)
		}
		a, b := orderedPair(priorPersonID, personID)
		if _, err := l.st.RaisePairThreshold(ctx, a, b); err != nil {
			return fmt.Errorf("raise pair threshold: %w", err)
		}
		if err := l.st.RefreshPersonStats(ctx, priorPersonID); err != nil {
			return fmt.Errorf("refresh prior person stats: %w", err)
		}
		if err := l.RecomputeThumbnail(ctx, priorPersonID); err != nil {
			l.logger().Warn("recompute thumbnail after reassignment failed", "person_id", priorPersonID, "error", err.Error())
		}
	}

	if err := l.st.RefreshPersonStats(ctx, personID); err != nil {
		return fmt.Errorf("refresh person stats: %w", err)
	}
	return l.RecomputeThumbnail(ctx, personID)
}

// MarkReference promotes a face already assigned to personID to a
// reference example, giving it outsized weight in the person's
// centroid (or making it authoritative, under reference_only mode).
func (l *Learner) MarkReference(ctx context.Context, faceID, personID string) error {
	face, err := l.st.GetFace(ctx, faceID)
	if err != nil {
		return fmt.Errorf("get face: %w", err)
	}
	if face.PersonID != personID {
		if err := l.st.AssignFace(ctx, faceID, personID, store.AssignReference, 1.0); err != nil {
			return fmt.Errorf("assign face: %w", err)
		}
	}
	if err := l.st.AddFaceExample(ctx, faceID, personID, store.ExampleReference); err != nil {
		return fmt.Errorf("add reference example: %w", err)
	}
	if err := l.st.RefreshPersonStats(ctx, personID); err != nil {
		return fmt.Errorf("refresh person stats: %w", err)
	}
	return l.RecomputeThumbnail(ctx, personID)
}

// CreatePersonFromFaces creates a new person and assigns every given
// face to it as manual corrections, the "new person" flow from the
// review queue or a multi-select in the faces UI.
func (l *Learner) CreatePersonFromFaces(ctx context.Context, name string, mode store.RecognitionMode, faceIDs []string) (*store.Person, error) {
	person, err := l.st.CreatePerson(ctx, name, mode)
	if err != nil {
		return nil, fmt.Errorf("create person: %w", err)
	}
	for _, id := range faceIDs {
		if err := l.st.AssignFace(ctx, id, person.ID, store.AssignManual, 1.0); err != nil {
			return nil, fmt.Errorf("assign face %s: %w", id, err)
		}
	}
	if err := l.st.RefreshPersonStats(ctx, person.ID); err != nil {
		return nil, fmt.Errorf("refresh person stats: %w", err)
	}
	if err := l.RecomputeThumbnail(ctx, person.ID); err != nil {
		l.logger().Warn("recompute thumbnail after person creation failed", "person_id", person.ID, "error", err.Error())
	}
	return person, nil
}

// Merge folds src's faces and examples into dst and deletes src,
// then recomputes dst's thumbnail over the combined face set.
func (l *Learner) Merge(ctx context.Context, dst, src string) error {
	if err := l.st.MergePersons(ctx, dst, src); err != nil {
		return fmt.Errorf("merge persons: %w", err)
	}
	if err := l.st.RefreshPersonStats(ctx, dst); err != nil {
		return fmt.Errorf("refresh person stats: %w", err)
	}
	return l.RecomputeThumbnail(ctx, dst)
}

// Reject undoes a wrong auto-assignment: the face is unassigned and
// recorded as a negative example against personID so it is never
// auto-suggested for that person again.
func (l *Learner) Reject(ctx context.Context, faceID, personID string) error {
	if err := l.st.AddFaceExample(ctx, faceID, personID, store.ExampleNegative); err != nil {
		return fmt.Errorf("add negative example: %w", err)
	}
	if err := l.st.UnassignFace(ctx, faceID); err != nil {
		return fmt.Errorf("unassign face: %w", err)
	}
	if err := l.st.RefreshPersonStats(ctx, personID); err != nil {
		return fmt.Errorf("refresh person stats: %w", err)
	}
	return l.RecomputeThumbnail(ctx, personID)
}

// ReviewItem is one auto-assignment whose confidence fell below the
// review threshold and is awaiting user confirmation.
type ReviewItem struct {
	Face       store.Face
	Person     store.Person
	Confidence float64
}

// ReviewQueue lists every face currently assigned by auto-recognition
// at a confidence below ReviewQueueThreshold, across every person.
func (l *Learner) ReviewQueue(ctx context.Context) ([]ReviewItem, error) {
	persons, err := l.st.ListPersons(ctx)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	threshold := l.ReviewQueueThreshold
	if threshold <= 0 {
		threshold = ReviewQueueThreshold
	}

	var out []ReviewItem
	for _, p := range persons {
		faces, err := l.st.ListFacesByPerson(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("list faces by person %s: %w", p.ID, err)
		}
		for _, f := range faces {
			if f.AssignmentSource != store.AssignAuto {
				continue
			}
			if f.AssignmentConfidence >= threshold {
				continue
			}
			out = append(out, ReviewItem{Face: f, Person: p, Confidence: f.AssignmentConfidence})
		}
	}
	return out, nil
}

// Suggestion is one known person surfaced as a re-analysis suggestion,
// exported for callers (internal/api) outside the package.
type Suggestion struct {
	Person     store.Person
	Similarity float64
}

// Suggestions returns every known person whose similarity to face
// clears MinAutoAssignSimilarity, most similar first, for the
// re-analysis-after-retag flow where a user wants alternatives beyond
// whatever AutoRecognize already committed to.
func (l *Learner) Suggestions(ctx context.Context, face store.Face) ([]Suggestion, error) {
	persons, err := l.st.ListPersons(ctx)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	var out []candidateScore
	for _, p := range persons {
		if l.isNegativeFor(ctx, face, p.ID) {
			continue
		}
		sim, err := l.similarityTo(ctx, face, p)
		if err != nil {
			return nil, err
		}
		if sim >= MinAutoAssignSimilarity {
			out = append(out, candidateScore{person: p, similarity: sim})
		}
	}
	sortCandidatesDesc(out)

	suggestions := make([]Suggestion, len(out))
	for i, c := range out {
		suggestions[i] = Suggestion{Person: c.person, Similarity: c.similarity}
	}
	return suggestions, nil
}

func sortCandidatesDesc(cs []candidateScore) {
	for i := 1; i < len(cs); i++ {
		for j := i; j > 0 && cs[j].similarity > cs[j-1].similarity; j-- {
			cs[j], cs[j-1] = cs[j-1], cs[j]
		}
	}
}
