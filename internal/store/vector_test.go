package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Given: an empty shard store
// When: vectors are added under one item and searched
// Then: the closest vector is returned first
func TestShardStore_AddAndSearch(t *testing.T) {
	ss, err := NewShardStore(t.TempDir(), 4)
	require.NoError(t, err)
	defer ss.Close()

	ctx := context.Background()
	err = ss.Add(ctx, "item-1", []string{"a", "b", "c"}, [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0.9, 0.1, 0, 0},
	})
	require.NoError(t, err)

	results, err := ss.Search(ctx, "item-1", []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
}

// Given: two different items
// When: each gets its own vectors
// Then: searching one item's shard never returns the other's IDs —
// shards are isolated, unlike a single global index
func TestShardStore_ShardsAreIsolatedPerItem(t *testing.T) {
	ss, err := NewShardStore(t.TempDir(), 4)
	require.NoError(t, err)
	defer ss.Close()

	ctx := context.Background()
	require.NoError(t, ss.Add(ctx, "item-1", []string{"a"}, [][]float32{{1, 0, 0, 0}}))
	require.NoError(t, ss.Add(ctx, "item-2", []string{"b"}, [][]float32{{1, 0, 0, 0}}))

	results, err := ss.Search(ctx, "item-1", []float32{1, 0, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

// Given: a shard evicted from the warm cache after being written
// When: it is looked up again
// Then: Save/Load round-trips it from disk transparently
func TestShardStore_PersistsAcrossEviction(t *testing.T) {
	dir := t.TempDir()
	ss, err := NewShardStore(dir, 1) // warm capacity of 1 forces eviction
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, ss.Add(ctx, "item-1", []string{"a"}, [][]float32{{1, 0, 0, 0}}))
	require.NoError(t, ss.Add(ctx, "item-2", []string{"b"}, [][]float32{{0, 1, 0, 0}})) // evicts item-1

	assert.FileExists(t, filepath.Join(dir, "item-1.hnsw"))

	results, err := ss.Search(ctx, "item-1", []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	require.NoError(t, ss.Close())
}

// Given: a face deleted from a shard
// Then: it no longer appears in search results
func TestShardStore_Delete(t *testing.T) {
	ss, err := NewShardStore(t.TempDir(), 4)
	require.NoError(t, err)
	defer ss.Close()

	ctx := context.Background()
	require.NoError(t, ss.Add(ctx, "item-1", []string{"a", "b"}, [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}))
	require.NoError(t, ss.Delete(ctx, "item-1", []string{"a"}))

	results, err := ss.Search(ctx, "item-1", []float32{1, 0, 0, 0}, 10)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "a", r.ID)
	}
}
