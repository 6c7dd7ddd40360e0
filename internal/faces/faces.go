// Package faces maintains person identities under user correction:
// auto-recognition of newly detected faces, clustering of unassigned
// faces as a grouping aid, thumbnail selection, and the pair-threshold
// bookkeeping that makes auto-assignment stricter between two
// frequently confused people. Every decision here reduces to cosine
// similarity between face embeddings, applied to centroids rather
// than nearest neighbors.
package faces

import (
	"log/slog"
	"math"

	"github.com/mediaengine/engine/internal/store"
)

// NegativeTolerance is the default similarity floor above which a
// face is excluded from a person due to a recorded negative example.
const NegativeTolerance = 0.70

// MinAutoAssignSimilarity is the absolute floor below which
// auto-recognition never accepts, regardless of how depressed the
// pair threshold between the best and second-best candidate is.
const MinAutoAssignSimilarity = 0.65

// ClusterThreshold is the similarity-to-centroid cutoff of the greedy
// agglomeration used to group unassigned faces for UI review.
const ClusterThreshold = 0.6

// ReviewQueueThreshold is the default confidence ceiling below which
// an auto-assignment is surfaced for user confirmation rather than
// treated as settled.
const ReviewQueueThreshold = 0.75

// Learner is the Face Learner component: it owns auto-recognition,
// corrections, clustering, and thumbnail recomputation, all driven
// off the Store's faces/persons/face_examples/pair_thresholds tables.
type Learner struct {
	st  *store.Store
	log *slog.Logger

	// NegativeTolerance and ReviewQueueThreshold are per-Learner fields
	// rather than hardcoded constants; New sets them from the package
	// defaults, and nothing in the settings surface changes them.
	NegativeTolerance    float64
	ReviewQueueThreshold float64
}

// New builds a Learner against st.
func New(st *store.Store, log *slog.Logger) *Learner {
	if log == nil {
		log = slog.Default()
	}
	return &Learner{st: st, log: log, NegativeTolerance: NegativeTolerance, ReviewQueueThreshold: ReviewQueueThreshold}
}

// cosineSimilarity computes cosine similarity between two equal-length
// embeddings, mirroring store.ShardStore's own normalize-then-dot
// approach (vectors here are typically already L2-normalized by the
// face model, but this does not assume that).
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// orderedPair returns a, b sorted lexicographically, matching the
// Store's PairThreshold/RaisePairThreshold convention that PersonA <
// PersonB.
func orderedPair(a, b string) (string, string) {
	if a <= b {
		return a, b
	}
	return b, a
}

func (l *Learner) logger() *slog.Logger {
	if l.log != nil {
		return l.log
	}
	return slog.Default()
}

// sourceWeight is the centroid weighting of the "average" and
// "weighted" recognition modes: 3:2:1 (reference:manual:auto) in
// "average", 5:2:1 in "weighted".
func sourceWeight(mode store.RecognitionMode, source store.AssignmentSource) float64 {
	switch source {
	case store.AssignReference:
		if mode == store.RecognitionWeighted {
			return 5 // "weighted" biases further toward references than "average" does
		}
		return 3
	case store.AssignManual:
		return 2
	default: // auto, legacy
		return 1
	}
}
