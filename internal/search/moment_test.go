package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Given: three hits on one item, two within the window and one far away
// Then: they group into two moments, each keeping its best hit's score
func TestGroupHits_WindowsPerItem(t *testing.T) {
	hits := []rawHit{
		{itemID: "a", timestampMs: 1000, score: 0.4},
		{itemID: "a", timestampMs: 2500, score: 0.9},
		{itemID: "a", timestampMs: 60_000, score: 0.2},
	}

	moments := groupHits(hits, 2000)

	require.Len(t, moments, 2)
	scores := map[int]float64{}
	for _, m := range moments {
		scores[m.timestampMs] = m.score
	}
	assert.Equal(t, 0.9, scores[2500])
	assert.Equal(t, 0.2, scores[60_000])
}

func TestGroupHits_SeparateItemsNeverMerge(t *testing.T) {
	hits := []rawHit{
		{itemID: "a", timestampMs: 1000, score: 0.5},
		{itemID: "b", timestampMs: 1000, score: 0.5},
	}

	moments := groupHits(hits, 2000)
	assert.Len(t, moments, 2)
}

// Given: raw scores with a spread
// Then: min-max normalization maps them onto [0,1]
func TestNormalizeScores_MinMax(t *testing.T) {
	hits := []rawHit{{score: 2}, {score: 4}, {score: 6}}

	normalizeScores(hits)

	assert.Equal(t, 0.0, hits[0].score)
	assert.Equal(t, 0.5, hits[1].score)
	assert.Equal(t, 1.0, hits[2].score)
}

// Given: two hits with equal scores (no spread)
// Then: it normalizes to 1.0 rather than dividing by zero
func TestNormalizeScores_ZeroSpread(t *testing.T) {
	hits := []rawHit{{score: 3}, {score: 3}}

	normalizeScores(hits)

	assert.Equal(t, 1.0, hits[0].score)
	assert.Equal(t, 1.0, hits[1].score)
}

// Given: a transcript moment and a visual moment on the same item
// within the merge window
// Then: they fuse into one moment carrying both modality scores
func TestMergeMoments_FusesNearbyModalities(t *testing.T) {
	transcript := []moment{{itemID: "a", timestampMs: 4000, score: 0.8}}
	visual := []moment{{itemID: "a", timestampMs: 4500, score: 0.6}}

	out := mergeMoments(transcript, visual)

	require.Len(t, out, 1)
	assert.True(t, out[0].hasTranscript)
	assert.True(t, out[0].hasVisual)
	assert.InDelta(t, 0.8, out[0].transcriptScore, 1e-9)
	assert.InDelta(t, 0.6, out[0].visualScore, 1e-9)
}

// Given: a moment present in only one modality
// Then: only that modality's flag and score are set
func TestMergeMoments_SingleModality(t *testing.T) {
	transcript := []moment{{itemID: "a", timestampMs: 1000, score: 0.7}}

	out := mergeMoments(transcript, nil)

	require.Len(t, out, 1)
	assert.InDelta(t, 0.7, out[0].transcriptScore, 1e-9)
	assert.False(t, out[0].hasVisual)
	assert.Equal(t, []string{"transcript"}, out[0].sources())
}

func TestMergeMoments_DistantMomentsStaySeparate(t *testing.T) {
	transcript := []moment{{itemID: "a", timestampMs: 1000, score: 0.9}}
	visual := []moment{{itemID: "a", timestampMs: 30_000, score: 0.9}}

	out := mergeMoments(transcript, visual)
	assert.Len(t, out, 2)
}
