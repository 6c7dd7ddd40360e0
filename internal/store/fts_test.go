package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Given: transcript segments indexed for two different items
// When: a text query matches one of them
// Then: only the matching segment is returned, with BM25 scoring
func TestTranscriptIndex_SearchFindsMatchingSegment(t *testing.T) {
	idx, err := OpenTranscriptIndex(filepath.Join(t.TempDir(), "transcripts.bleve"))
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	err = idx.Index(ctx, map[string]TranscriptDoc{
		"seg-1": {ItemID: "item-1", StartMs: 0, EndMs: 2000, Text: "the dog ran across the yard"},
		"seg-2": {ItemID: "item-2", StartMs: 0, EndMs: 2000, Text: "happy birthday to you"},
	})
	require.NoError(t, err)

	hits, err := idx.Search(ctx, "dog", "", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "seg-1", hits[0].SegmentID)
	assert.Equal(t, "item-1", hits[0].ItemID)
}

// Given: a search scoped to a single item
// Then: matches outside that item are excluded even if the text matches
func TestTranscriptIndex_SearchScopedToItem(t *testing.T) {
	idx, err := OpenTranscriptIndex(filepath.Join(t.TempDir(), "transcripts.bleve"))
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	err = idx.Index(ctx, map[string]TranscriptDoc{
		"seg-1": {ItemID: "item-1", Text: "birthday cake"},
		"seg-2": {ItemID: "item-2", Text: "birthday candles"},
	})
	require.NoError(t, err)

	hits, err := idx.Search(ctx, "birthday", "item-2", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "seg-2", hits[0].SegmentID)
}

// Given: a segment removed via Delete
// Then: it no longer surfaces in search results
func TestTranscriptIndex_Delete(t *testing.T) {
	idx, err := OpenTranscriptIndex(filepath.Join(t.TempDir(), "transcripts.bleve"))
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, map[string]TranscriptDoc{
		"seg-1": {ItemID: "item-1", Text: "unique marker phrase"},
	}))
	require.NoError(t, idx.Delete(ctx, []string{"seg-1"}))

	hits, err := idx.Search(ctx, "marker", "", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
