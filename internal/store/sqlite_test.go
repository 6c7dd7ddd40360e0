package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Given: a fresh in-memory database
// When: Open runs
// Then: migration succeeds and every table exists
func TestOpen_MigratesFreshDatabase(t *testing.T) {
	s := openTestStore(t)

	var name string
	err := s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='items'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "items", name)
}

// Given: migrate runs twice against the same database
// Then: it is idempotent (IF NOT EXISTS statements don't error)
func TestOpen_MigrationIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.migrate(context.Background()))
	require.NoError(t, s.migrate(context.Background()))
}

// Given: two items in the same library sharing a path
// When: the second is upserted
// Then: the unique (library_id, path) constraint updates the row in place
func TestUpsertItem_PathUniqueWithinLibrary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	lib, err := s.CreateLibrary(ctx, "/photos", "Photos", true)
	require.NoError(t, err)

	it := &Item{ID: "item-1", LibraryID: lib.ID, Path: "a.jpg", Filename: "a.jpg", Size: 100, Status: StatusQueued}
	require.NoError(t, s.UpsertItem(ctx, it))

	it2 := &Item{ID: "item-2", LibraryID: lib.ID, Path: "a.jpg", Filename: "a.jpg", Size: 200, Status: StatusQueued}
	require.NoError(t, s.UpsertItem(ctx, it2))

	got, err := s.FindItemByPath(ctx, lib.ID, "a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "item-1", got.ID, "insert keeps the original row's identity; conflict only updates mutable columns")
	assert.EqualValues(t, 200, got.Size)
}

// Given: an item transitions through pipeline stages
// When: SetItemStatus and IndexDone are called
// Then: the terminal row reflects DONE with an indexed_at timestamp
func TestItemLifecycle_ReachesDone(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	lib, err := s.CreateLibrary(ctx, "/videos", "Videos", true)
	require.NoError(t, err)

	it := &Item{ID: "v1", LibraryID: lib.ID, Path: "clip.mp4", Filename: "clip.mp4", MediaType: MediaVideo, Status: StatusQueued}
	require.NoError(t, s.UpsertItem(ctx, it))

	require.NoError(t, s.SetItemStatus(ctx, it.ID, StatusExtractingAudio, ""))
	require.NoError(t, s.IndexDone(ctx, it.ID))

	got, err := s.GetItem(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, got.Status)
	require.NotNil(t, got.IndexedAt)
}

// Given: a pair threshold that has never been set
// When: PairThreshold is read
// Then: it returns DefaultPairThreshold
func TestPairThreshold_DefaultsWhenUnset(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	threshold, err := s.PairThreshold(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, DefaultPairThreshold, threshold)
}

// Given: repeated cross-corrections between the same two persons
// When: RaisePairThreshold is called each time
// Then: the threshold increases monotonically and saturates at MaxPairThreshold
func TestRaisePairThreshold_SaturatesAtMax(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var last float64
	for i := 0; i < 20; i++ {
		next, err := s.RaisePairThreshold(ctx, "alice", "bob")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, next, last)
		last = next
	}
	assert.Equal(t, MaxPairThreshold, last)
}

// Given: transcript segments replaced twice for the same item
// When: ReplaceTranscriptSegments runs the second time
// Then: only the new segments remain
func TestReplaceTranscriptSegments_ReplacesWholeSet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	lib, err := s.CreateLibrary(ctx, "/videos", "Videos", true)
	require.NoError(t, err)
	it := &Item{ID: "v1", LibraryID: lib.ID, Path: "clip.mp4", Filename: "clip.mp4", MediaType: MediaVideo, Status: StatusQueued}
	require.NoError(t, s.UpsertItem(ctx, it))

	_, err = s.ReplaceTranscriptSegments(ctx, it.ID, []TranscriptSegment{
		{StartMs: 0, EndMs: 1000, Text: "hello"},
	})
	require.NoError(t, err)

	_, err = s.ReplaceTranscriptSegments(ctx, it.ID, []TranscriptSegment{
		{StartMs: 0, EndMs: 1000, Text: "goodbye"},
	})
	require.NoError(t, err)

	segs, err := s.ListTranscriptSegments(ctx, it.ID)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, "goodbye", segs[0].Text)
}

// Given: a face embedding round-tripped through the blob encoding
// Then: every component survives exactly
func TestFaceEmbedding_RoundTrips(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	lib, err := s.CreateLibrary(ctx, "/photos", "Photos", true)
	require.NoError(t, err)
	it := &Item{ID: "p1", LibraryID: lib.ID, Path: "a.jpg", Filename: "a.jpg", MediaType: MediaPhoto, Status: StatusQueued}
	require.NoError(t, s.UpsertItem(ctx, it))
	frames, err := s.InsertFrames(ctx, it.ID, []Frame{{Index: 0, TimestampMs: 0}})
	require.NoError(t, err)

	embedding := []float32{0.125, -0.5, 1.0, 3.25}
	_, err = s.InsertFaces(ctx, it.ID, []Face{{FrameID: frames[0].ID, Embedding: embedding}})
	require.NoError(t, err)

	faces, err := s.ListFacesByItem(ctx, it.ID)
	require.NoError(t, err)
	require.Len(t, faces, 1)
	assert.Equal(t, embedding, faces[0].Embedding)
}

// Given: a library deleted via DeleteLibrary
// Then: its items are cascaded away
func TestDeleteLibrary_CascadesItems(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	lib, err := s.CreateLibrary(ctx, "/photos", "Photos", true)
	require.NoError(t, err)
	it := &Item{ID: "p1", LibraryID: lib.ID, Path: "a.jpg", Filename: "a.jpg", MediaType: MediaPhoto, Status: StatusQueued}
	require.NoError(t, s.UpsertItem(ctx, it))

	require.NoError(t, s.DeleteLibrary(ctx, lib.ID))

	_, err = s.GetItem(ctx, it.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
