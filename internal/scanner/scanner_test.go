package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediaengine/engine/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

// Given: a fresh library directory with one video file
// When: ScanLibrary runs
// Then: exactly one NEW item is queued
func TestScanLibrary_DiscoversNewFile(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	dir := t.TempDir()
	writeFile(t, dir, "clip.mp4", []byte("fake video bytes"))

	lib, err := s.CreateLibrary(ctx, dir, "Test", true)
	require.NoError(t, err)

	sc := New(s, nil, nil, nil)
	summary, err := sc.ScanLibrary(ctx, *lib)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FilesFound)
	assert.Equal(t, 1, summary.FilesNew)

	items, _, err := s.ListItems(ctx, store.ItemFilter{LibraryID: lib.ID}, false, store.Pagination{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, store.StatusQueued, items[0].Status)
	assert.Equal(t, store.MediaVideo, items[0].MediaType)
}

// Given: a library already scanned once with no filesystem changes
// When: ScanLibrary runs again
// Then: zero deltas are produced
func TestScanLibrary_RescanUnchangedIsNoOp(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	dir := t.TempDir()
	writeFile(t, dir, "photo.jpg", []byte("fake jpeg bytes"))

	lib, err := s.CreateLibrary(ctx, dir, "Test", true)
	require.NoError(t, err)
	sc := New(s, nil, nil, nil)

	_, err = sc.ScanLibrary(ctx, *lib)
	require.NoError(t, err)

	summary, err := sc.ScanLibrary(ctx, *lib)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FilesFound)
	assert.Equal(t, 0, summary.FilesNew)
	assert.Equal(t, 0, summary.FilesChanged)
	assert.Equal(t, 0, summary.FilesDeleted)
}

// Given: an indexed item whose file content changes on disk
// When: ScanLibrary runs again
// Then: the item is reported CHANGED and requeued
func TestScanLibrary_DetectsContentChange(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "photo.jpg", []byte("original bytes"))

	lib, err := s.CreateLibrary(ctx, dir, "Test", true)
	require.NoError(t, err)
	sc := New(s, nil, nil, nil)
	_, err = sc.ScanLibrary(ctx, *lib)
	require.NoError(t, err)

	require.NoError(t, s.IndexDone(ctx, mustItemID(ctx, t, s, lib.ID, "photo.jpg")))
	require.NoError(t, os.WriteFile(path, []byte("completely different bytes, much longer content here"), 0o644))

	summary, err := sc.ScanLibrary(ctx, *lib)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FilesChanged)

	it, err := s.FindItemByPath(ctx, lib.ID, "photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, store.StatusQueued, it.Status)
}

// Given: an indexed item whose file is moved to a new path with
// byte-identical content
// When: ScanLibrary runs again
// Then: the item's path is updated in place and no new item is created
func TestScanLibrary_DetectsRename(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	dir := t.TempDir()
	writeFile(t, dir, "old_name.mp4", []byte("stable content"))

	lib, err := s.CreateLibrary(ctx, dir, "Test", true)
	require.NoError(t, err)
	sc := New(s, nil, nil, nil)
	_, err = sc.ScanLibrary(ctx, *lib)
	require.NoError(t, err)

	require.NoError(t, os.Rename(filepath.Join(dir, "old_name.mp4"), filepath.Join(dir, "new_name.mp4")))

	summary, err := sc.ScanLibrary(ctx, *lib)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FilesFound)
	assert.Equal(t, 0, summary.FilesNew)
	assert.Equal(t, 0, summary.FilesChanged)

	items, _, err := s.ListItems(ctx, store.ItemFilter{LibraryID: lib.ID}, false, store.Pagination{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "new_name.mp4", items[0].Path)
}

// Given: an indexed item whose file is deleted from disk
// When: ScanLibrary runs again
// Then: the item row is removed
func TestScanLibrary_DetectsDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "gone.mp4", []byte("will be deleted"))

	lib, err := s.CreateLibrary(ctx, dir, "Test", true)
	require.NoError(t, err)
	sc := New(s, nil, nil, nil)
	_, err = sc.ScanLibrary(ctx, *lib)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))

	summary, err := sc.ScanLibrary(ctx, *lib)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FilesDeleted)

	_, err = s.FindItemByPath(ctx, lib.ID, "gone.mp4")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// Given: a still and a clip sharing a filename stem within 5 seconds
// When: ScanLibrary runs
// Then: both items are linked as a live-photo pair
func TestScanLibrary_PairsLivePhotos(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	dir := t.TempDir()
	stillPath := writeFile(t, dir, "IMG_0001.heic", []byte("still bytes"))
	clipPath := writeFile(t, dir, "IMG_0001.mov", []byte("clip bytes"))

	now := time.Now()
	require.NoError(t, os.Chtimes(stillPath, now, now))
	require.NoError(t, os.Chtimes(clipPath, now, now))

	lib, err := s.CreateLibrary(ctx, dir, "Test", true)
	require.NoError(t, err)
	sc := New(s, nil, nil, nil)
	_, err = sc.ScanLibrary(ctx, *lib)
	require.NoError(t, err)

	clip, err := s.FindItemByPath(ctx, lib.ID, "IMG_0001.mov")
	require.NoError(t, err)
	assert.True(t, clip.IsLiveComponent)
	assert.NotEmpty(t, clip.LivePairID)
}

// Given: two files whose filenames share a stem but whose extension
// doesn't indicate a live-photo relationship (e.g. two stills)
// When: FindLivePairs runs
// Then: no pair is produced
func TestFindLivePairs_RequiresOneStillAndOneClip(t *testing.T) {
	files := []*FileInfo{
		{Path: "a/IMG_01.heic", ModTime: time.Now()},
		{Path: "a/IMG_01.jpg", ModTime: time.Now()},
	}
	pairs := FindLivePairs(files)
	assert.Empty(t, pairs)
}

func mustItemID(ctx context.Context, t *testing.T, s *store.Store, libraryID, path string) string {
	t.Helper()
	it, err := s.FindItemByPath(ctx, libraryID, path)
	require.NoError(t, err)
	return it.ID
}
