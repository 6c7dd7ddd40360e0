package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mediaengine/engine/internal/config"
	"github.com/mediaengine/engine/internal/store"
)

// RepairReport summarizes what a consistency repair pass changed, for
// a one-line "repair completed" log and the CLI's `engined repair`
// subcommand output.
type RepairReport struct {
	ItemsRequeued      int
	JobsMarkedLost     int
	StaleArtifactsFound int
	OrphanFilesDeleted int
	TempFilesPurged    int
}

func (r RepairReport) String() string {
	return fmt.Sprintf(
		"items_requeued=%d jobs_marked_lost=%d stale_artifacts=%d orphan_files_deleted=%d temp_files_purged=%d",
		r.ItemsRequeued, r.JobsMarkedLost, r.StaleArtifactsFound, r.OrphanFilesDeleted, r.TempFilesPurged)
}

// Repair runs the startup consistency pass. It must be idempotent:
// running it twice in a row against an already-repaired store reports
// zero changes the second time.
func Repair(ctx context.Context, st *store.Store, cfg config.EngineConfig, log *slog.Logger) (RepairReport, error) {
	if log == nil {
		log = slog.Default()
	}
	var report RepairReport

	if err := requeueInterruptedItems(ctx, st, &report); err != nil {
		return report, fmt.Errorf("requeue interrupted items: %w", err)
	}
	if err := markOrphanedJobsLost(ctx, st, &report); err != nil {
		return report, fmt.Errorf("mark orphaned jobs lost: %w", err)
	}
	if err := requeueItemsMissingArtifacts(ctx, st, cfg, &report); err != nil {
		return report, fmt.Errorf("verify done-item artifacts: %w", err)
	}
	if err := purgeTempFiles(cfg, &report); err != nil {
		return report, fmt.Errorf("purge temp files: %w", err)
	}
	if err := sweepOrphanFiles(ctx, st, cfg, &report); err != nil {
		return report, fmt.Errorf("sweep orphan files: %w", err)
	}

	log.Info("startup consistency repair completed", "report", report.String())
	return report, nil
}

// requeueInterruptedItems resets every item left in a non-terminal,
// non-QUEUED stage back to QUEUED: an unclean shutdown (crash, power
// loss) can only have left them mid-pipeline, never genuinely running.
func requeueInterruptedItems(ctx context.Context, st *store.Store, report *RepairReport) error {
	for _, status := range store.IntermediateStatuses {
		items, err := listAllItemsByStatus(ctx, st, status)
		if err != nil {
			return err
		}
		for _, it := range items {
			if err := st.SetItemStatus(ctx, it.ID, store.StatusQueued, ""); err != nil {
				return err
			}
			if err := st.SetItemProgress(ctx, it.ID, 0); err != nil {
				return err
			}
			report.ItemsRequeued++
		}
	}
	return nil
}

// markOrphanedJobsLost transitions every job still RUNNING to LOST:
// its owning process is this one, and we just started, so nothing can
// legitimately still be running it.
func markOrphanedJobsLost(ctx context.Context, st *store.Store, report *RepairReport) error {
	jobs, err := st.ListRunningJobs(ctx)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return nil
	}
	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	if err := st.MarkJobsLost(ctx, ids); err != nil {
		return err
	}
	report.JobsMarkedLost += len(ids)
	return nil
}

// requeueItemsMissingArtifacts re-checks every DONE item's on-disk
// footprint (frame thumbnails, the item's vector shard). A DONE item
// whose backing files are gone — the data root was partially deleted,
// a disk was unmounted mid-write — is requeued from scratch rather
// than left to serve broken asset URLs forever.
func requeueItemsMissingArtifacts(ctx context.Context, st *store.Store, cfg config.EngineConfig, report *RepairReport) error {
	items, err := listAllItemsByStatus(ctx, st, store.StatusDone)
	if err != nil {
		return err
	}
	for _, it := range items {
		frames, err := st.ListFrames(ctx, it.ID)
		if err != nil {
			return err
		}
		missing := false
		for _, f := range frames {
			if f.ThumbnailPath == "" {
				continue
			}
			if _, statErr := os.Stat(f.ThumbnailPath); statErr != nil {
				missing = true
				break
			}
		}
		if !missing {
			shardPath := filepath.Join(cfg.ShardsDir(), it.ID+".hnsw")
			if len(frames) > 0 {
				if _, statErr := os.Stat(shardPath); statErr != nil {
					missing = true
				}
			}
		}
		if !missing {
			continue
		}

		report.StaleArtifactsFound++
		if err := st.SetItemStatus(ctx, it.ID, store.StatusQueued, ""); err != nil {
			return err
		}
		if err := st.SetItemProgress(ctx, it.ID, 0); err != nil {
			return err
		}
		report.ItemsRequeued++
	}
	return nil
}

// sweepOrphanFiles deletes thumbnail, face-crop, and vector-shard files
// on disk that no longer have an owning row in the database — left
// behind when a mid-write crash persisted the file but not the row
// referencing it.
func sweepOrphanFiles(ctx context.Context, st *store.Store, cfg config.EngineConfig, report *RepairReport) error {
	liveThumbnails, err := liveThumbnailPaths(ctx, st)
	if err != nil {
		return err
	}
	if err := sweepDir(cfg.ThumbnailsDir(), liveThumbnails, report); err != nil {
		return err
	}

	liveCrops, err := liveFaceCropPaths(ctx, st)
	if err != nil {
		return err
	}
	if err := sweepDir(cfg.FacesDir(), liveCrops, report); err != nil {
		return err
	}

	liveItemIDs, err := liveItemIDSet(ctx, st)
	if err != nil {
		return err
	}
	return sweepShards(cfg.ShardsDir(), liveItemIDs, report)
}

func sweepDir(dir string, keep map[string]bool, report *RepairReport) error {
	err := filepath.WalkDir(dir, func(full string, e os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() || keep[full] {
			return nil
		}
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return err
		}
		report.OrphanFilesDeleted++
		return nil
	})
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func sweepShards(dir string, liveItemIDs map[string]bool, report *RepairReport) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		itemID := strings.TrimSuffix(strings.TrimSuffix(name, ".meta"), ".hnsw")
		if liveItemIDs[itemID] {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return err
		}
		report.OrphanFilesDeleted++
	}
	return nil
}

// purgeTempFiles removes leftover *.tmp and *.tmp-* scratch files from
// interrupted atomic writes (thumbnails, shards, audio extraction).
// It runs before the orphan sweep so scratch files are counted here
// rather than as orphans.
func purgeTempFiles(cfg config.EngineConfig, report *RepairReport) error {
	for _, dir := range []string{cfg.ThumbnailsDir(), cfg.FacesDir(), cfg.ShardsDir(), cfg.AudioDir()} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		for _, e := range entries {
			if e.IsDir() || !(strings.Contains(e.Name(), ".tmp-") || strings.HasSuffix(e.Name(), ".tmp")) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !os.IsNotExist(err) {
				return err
			}
			report.TempFilesPurged++
		}
	}
	return nil
}

func listAllItemsByStatus(ctx context.Context, st *store.Store, status store.ItemStatus) ([]*store.Item, error) {
	var out []*store.Item
	cursor := ""
	for {
		page, next, err := st.ListItems(ctx, store.ItemFilter{Status: status}, false, store.Pagination{Cursor: cursor, Limit: 200})
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if next == "" {
			return out, nil
		}
		cursor = next
	}
}

func liveThumbnailPaths(ctx context.Context, st *store.Store) (map[string]bool, error) {
	items, err := listAllItemsByAnyStatus(ctx, st)
	if err != nil {
		return nil, err
	}
	paths := map[string]bool{}
	for _, it := range items {
		frames, err := st.ListFrames(ctx, it.ID)
		if err != nil {
			return nil, err
		}
		for _, f := range frames {
			if f.ThumbnailPath != "" {
				paths[f.ThumbnailPath] = true
			}
		}
	}
	return paths, nil
}

func liveFaceCropPaths(ctx context.Context, st *store.Store) (map[string]bool, error) {
	items, err := listAllItemsByAnyStatus(ctx, st)
	if err != nil {
		return nil, err
	}
	paths := map[string]bool{}
	for _, it := range items {
		faces, err := st.ListFacesByItem(ctx, it.ID)
		if err != nil {
			return nil, err
		}
		for _, f := range faces {
			if f.CropPath != "" {
				paths[f.CropPath] = true
			}
		}
	}
	return paths, nil
}

func liveItemIDSet(ctx context.Context, st *store.Store) (map[string]bool, error) {
	items, err := listAllItemsByAnyStatus(ctx, st)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(items))
	for _, it := range items {
		ids[it.ID] = true
	}
	return ids, nil
}

func listAllItemsByAnyStatus(ctx context.Context, st *store.Store) ([]*store.Item, error) {
	var out []*store.Item
	cursor := ""
	for {
		page, next, err := st.ListItems(ctx, store.ItemFilter{}, false, store.Pagination{Cursor: cursor, Limit: 200})
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if next == "" {
			return out, nil
		}
		cursor = next
	}
}
