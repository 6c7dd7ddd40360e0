package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/uuid"

	"github.com/mediaengine/engine/internal/config"
	"github.com/mediaengine/engine/internal/store"
)

func openRepairTestStore(t *testing.T) (*store.Store, config.EngineConfig) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultEngineConfig()
	cfg.DataRoot = dir
	require.NoError(t, cfg.EnsureLayout())

	st, err := store.Open(context.Background(), cfg.DBPath())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st, cfg
}

func mustCreateItem(t *testing.T, st *store.Store, libID string, status store.ItemStatus) *store.Item {
	t.Helper()
	it := &store.Item{
		ID:          uuid.NewString(),
		LibraryID:   libID,
		Path:        "/media/" + string(status) + "-" + time.Now().UTC().Format(time.RFC3339Nano),
		Filename:    "clip.mp4",
		Size:        1,
		MTime:       time.Now().UTC(),
		Fingerprint: "fp",
		MediaType:   store.MediaVideo,
		Status:      store.StatusQueued,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, st.UpsertItem(context.Background(), it))
	require.NoError(t, st.SetItemStatus(context.Background(), it.ID, status, ""))
	got, err := st.GetItem(context.Background(), it.ID)
	require.NoError(t, err)
	return got
}

// Given: an item left in an intermediate pipeline stage by an unclean shutdown
// Then: repair resets it to QUEUED
func TestRepair_RequeuesIntermediateStatusItems(t *testing.T) {
	st, cfg := openRepairTestStore(t)
	lib, err := st.CreateLibrary(context.Background(), "/media", "lib", true)
	require.NoError(t, err)
	it := mustCreateItem(t, st, lib.ID, store.StatusTranscribing)

	report, err := Repair(context.Background(), st, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ItemsRequeued)

	got, err := st.GetItem(context.Background(), it.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusQueued, got.Status)
}

// Given: a job left RUNNING by an unclean shutdown
// Then: repair marks it LOST
func TestRepair_MarksRunningJobsLost(t *testing.T) {
	st, cfg := openRepairTestStore(t)
	lib, err := st.CreateLibrary(context.Background(), "/media", "lib", true)
	require.NoError(t, err)
	it := mustCreateItem(t, st, lib.ID, store.StatusQueued)
	_, err = st.CreateJob(context.Background(), it.ID)
	require.NoError(t, err)

	report, err := Repair(context.Background(), st, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.JobsMarkedLost)

	jobs, err := st.ListRunningJobs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

// Given: a thumbnail file on disk with no owning Frame row
// Then: repair deletes the orphan file
func TestRepair_DeletesOrphanThumbnails(t *testing.T) {
	st, cfg := openRepairTestStore(t)
	orphan := filepath.Join(cfg.ThumbnailsDir(), "orphan.jpg")
	require.NoError(t, os.WriteFile(orphan, []byte("x"), 0o644))

	report, err := Repair(context.Background(), st, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.OrphanFilesDeleted)

	_, statErr := os.Stat(orphan)
	assert.True(t, os.IsNotExist(statErr))
}

// Given: a leftover *.tmp-* scratch file from an interrupted atomic write
// Then: repair purges it
func TestRepair_PurgesTempFiles(t *testing.T) {
	st, cfg := openRepairTestStore(t)
	tmp := filepath.Join(cfg.ShardsDir(), "item-1.hnsw.tmp-123")
	require.NoError(t, os.WriteFile(tmp, []byte("x"), 0o644))

	report, err := Repair(context.Background(), st, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.TempFilesPurged)

	_, statErr := os.Stat(tmp)
	assert.True(t, os.IsNotExist(statErr))
}

// Given: a data root already repaired once
// Then: running repair again reports zero changes
func TestRepair_IsIdempotent(t *testing.T) {
	st, cfg := openRepairTestStore(t)
	lib, err := st.CreateLibrary(context.Background(), "/media", "lib", true)
	require.NoError(t, err)
	mustCreateItem(t, st, lib.ID, store.StatusEmbedding)

	_, err = Repair(context.Background(), st, cfg, nil)
	require.NoError(t, err)

	second, err := Repair(context.Background(), st, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, RepairReport{}, second)
}
