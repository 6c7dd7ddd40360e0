package faces

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mediaengine/engine/internal/store"
)

func TestCosineSimilarity_IdenticalAndOrthogonal(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}

	assert.InDelta(t, 1.0, cosineSimilarity(a, a), 1e-6)
	assert.InDelta(t, 0.0, cosineSimilarity(a, b), 1e-6)
}

func TestCosineSimilarity_MismatchedOrZeroVectors(t *testing.T) {
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{0, 0}))
}

// Pair thresholds are stored with the lexicographically smaller person
// first; orderedPair must be symmetric.
func TestOrderedPair_Canonicalizes(t *testing.T) {
	a1, b1 := orderedPair("p-zeta", "p-alpha")
	a2, b2 := orderedPair("p-alpha", "p-zeta")

	assert.Equal(t, "p-alpha", a1)
	assert.Equal(t, "p-zeta", b1)
	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)
}

// The centroid weights samples by source: references heaviest, then
// manual, then auto — and "weighted" mode biases further toward
// references than "average" does.
func TestSourceWeight_Ordering(t *testing.T) {
	ref := sourceWeight(store.RecognitionAverage, store.AssignReference)
	manual := sourceWeight(store.RecognitionAverage, store.AssignManual)
	auto := sourceWeight(store.RecognitionAverage, store.AssignAuto)

	assert.Greater(t, ref, manual)
	assert.Greater(t, manual, auto)
	assert.Greater(t,
		sourceWeight(store.RecognitionWeighted, store.AssignReference),
		ref)
}

func TestMergeInto_WeightedRunningMean(t *testing.T) {
	centroid := []float32{1, 0}
	mergeInto(centroid, 1, []float32{0, 1}, 1)

	assert.InDelta(t, 0.5, centroid[0], 1e-6)
	assert.InDelta(t, 0.5, centroid[1], 1e-6)
}
