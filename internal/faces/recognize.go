package faces

import (
	"context"
	"fmt"

	"github.com/mediaengine/engine/internal/store"
)

// candidateScore is one person's similarity to a face under
// evaluation, kept alongside the person itself so AutoRecognize can
// compare the best against the second-best for the pair-threshold
// check.
type candidateScore struct {
	person     store.Person
	similarity float64
}

// AutoRecognize implements pipeline.FaceRecognizer: for a freshly
// detected face, it scores every known person by the similarity rule
// their RecognitionMode calls for, excludes any person the face is
// too close to a recorded negative for, and accepts the best match
// only if it clears both the absolute floor and the pair threshold
// against the runner-up.
func (l *Learner) AutoRecognize(ctx context.Context, face store.Face) (personID string, confidence float64, err error) {
	if len(face.Embedding) == 0 {
		return "", 0, nil
	}

	persons, err := l.st.ListPersons(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("list persons: %w", err)
	}
	if len(persons) == 0 {
		return "", 0, nil
	}

	var scores []candidateScore
	for _, p := range persons {
		if l.isNegativeFor(ctx, face, p.ID) {
			continue
		}
		sim, err := l.similarityTo(ctx, face, p)
		if err != nil {
			return "", 0, err
		}
		if sim <= 0 {
			continue
		}
		scores = append(scores, candidateScore{person: p, similarity: sim})
	}
	if len(scores) == 0 {
		return "", 0, nil
	}

	best, second := topTwo(scores)

	if best.similarity < MinAutoAssignSimilarity {
		return "", 0, nil
	}

	threshold := MinAutoAssignSimilarity
	if second != nil {
		a, b := orderedPair(best.person.ID, second.person.ID)
		pairThreshold, err := l.st.PairThreshold(ctx, a, b)
		if err != nil {
			return "", 0, fmt.Errorf("pair threshold: %w", err)
		}
		if pairThreshold > threshold {
			threshold = pairThreshold
		}
	}

	if best.similarity < threshold {
		return "", 0, nil
	}
	return best.person.ID, best.similarity, nil
}

// isNegativeFor reports whether face is too similar to any negative
// example recorded for personID, excluding that person from
// candidacy entirely regardless of how well it otherwise matches.
func (l *Learner) isNegativeFor(ctx context.Context, face store.Face, personID string) bool {
	examples, err := l.st.ListFaceExamples(ctx, personID)
	if err != nil {
		l.logger().Warn("list face examples failed", "person_id", personID, "error", err.Error())
		return false
	}
	for _, ex := range examples {
		if ex.Kind != store.ExampleNegative {
			continue
		}
		negFace, err := l.st.GetFace(ctx, ex.FaceID)
		if err != nil {
			continue
		}
		if cosineSimilarity(face.Embedding, negFace.Embedding) >= l.tolerance() {
			return true
		}
	}
	return false
}

func (l *Learner) tolerance() float64 {
	if l.NegativeTolerance > 0 {
		return l.NegativeTolerance
	}
	return NegativeTolerance
}

// similarityTo computes the similarity rule for one person's
// RecognitionMode: reference_only compares against the best
// reference; average/weighted compare against a source-weighted
// centroid of the person's assigned faces.
func (l *Learner) similarityTo(ctx context.Context, face store.Face, p store.Person) (float64, error) {
	switch p.RecognitionMode {
	case store.RecognitionReferenceOnly:
		return l.bestReferenceSimilarity(ctx, face, p.ID)
	default:
		centroid, err := l.Centroid(ctx, p)
		if err != nil {
			return 0, err
		}
		if centroid == nil {
			return 0, nil
		}
		return cosineSimilarity(face.Embedding, centroid), nil
	}
}

func (l *Learner) bestReferenceSimilarity(ctx context.Context, face store.Face, personID string) (float64, error) {
	examples, err := l.st.ListFaceExamples(ctx, personID)
	if err != nil {
		return 0, fmt.Errorf("list face examples: %w", err)
	}
	best := 0.0
	for _, ex := range examples {
		if ex.Kind != store.ExampleReference {
			continue
		}
		refFace, err := l.st.GetFace(ctx, ex.FaceID)
		if err != nil {
			continue
		}
		if sim := cosineSimilarity(face.Embedding, refFace.Embedding); sim > best {
			best = sim
		}
	}
	return best, nil
}

// Centroid computes p's weighted centroid over its assigned,
// non-negative faces: references weigh 3 (5 under "weighted" mode),
// manual corrections weigh 2, auto-assignments weigh 1 — see
// sourceWeight. Returns nil if p has no faces to average.
func (l *Learner) Centroid(ctx context.Context, p store.Person) ([]float32, error) {
	assigned, err := l.st.ListFacesByPerson(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("list faces by person: %w", err)
	}
	if len(assigned) == 0 {
		return nil, nil
	}

	dims := len(assigned[0].Embedding)
	if dims == 0 {
		return nil, nil
	}
	sum := make([]float64, dims)
	var totalWeight float64
	for _, f := range assigned {
		if len(f.Embedding) != dims {
			continue
		}
		w := sourceWeight(p.RecognitionMode, f.AssignmentSource)
		for i, x := range f.Embedding {
			sum[i] += float64(x) * w
		}
		totalWeight += w
	}
	if totalWeight == 0 {
		return nil, nil
	}
	out := make([]float32, dims)
	for i, x := range sum {
		out[i] = float32(x / totalWeight)
	}
	return out, nil
}

func topTwo(scores []candidateScore) (best candidateScore, second *candidateScore) {
	best = scores[0]
	for i := 1; i < len(scores); i++ {
		s := scores[i]
		switch {
		case s.similarity > best.similarity:
			prevBest := best
			second = &prevBest
			best = s
		case second == nil || s.similarity > second.similarity:
			sCopy := s
			second = &sCopy
		}
	}
	return best, second
}
