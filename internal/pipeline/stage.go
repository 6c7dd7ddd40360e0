// Package pipeline advances each Item through its indexing stages to
// DONE, FAILED, or CANCELLED, fully resumable across a crash. The
// work is split in two: a stage runner executes one stage of work for
// one item, and a Coordinator owns queueing, concurrency, and
// continuation.
package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/mediaengine/engine/internal/config"
	"github.com/mediaengine/engine/internal/store"
)

// Stage is a pipeline state: one of the six stage names, or a terminal
// status (QUEUED/DONE/FAILED/CANCELLED) borrowed directly from
// store.ItemStatus since the two vocabularies are the same by design.
type Stage = store.ItemStatus

// primaryVisualStages runs first so items become visually searchable
// quickly; enhancedAudioStages runs afterward as a background
// continuation, video only.
var (
	primaryVisualStages = []Stage{
		store.StatusExtractingFrames,
		store.StatusEmbedding,
		store.StatusDetecting,
	}
	enhancedAudioStages = []Stage{
		store.StatusExtractingAudio,
		store.StatusTranscribing,
	}
)

// StagesFor returns the ordered stage list an item of mediaType must
// pass through. Photos skip the audio/transcript stages outright, and
// skip DETECTING_FACES unless faceDetectionOnPhotos is set.
func StagesFor(mediaType store.MediaType, faceDetectionOnPhotos bool) []Stage {
	stages := append([]Stage(nil), primaryVisualStages...)

	runFaces := mediaType == store.MediaVideo || faceDetectionOnPhotos
	if runFaces {
		stages = append(stages, store.StatusDetectingFaces)
	}
	if mediaType == store.MediaVideo {
		stages = append(stages, enhancedAudioStages...)
	}
	return stages
}

// NextStage returns the stage that follows lastCompleted in the given
// ordered list. An empty lastCompleted (nothing done yet) yields the
// first stage. Returns done=true once every stage has completed.
func NextStage(stages []Stage, lastCompleted Stage) (next Stage, done bool) {
	if lastCompleted == "" {
		if len(stages) == 0 {
			return "", true
		}
		return stages[0], false
	}
	for i, s := range stages {
		if s == lastCompleted {
			if i+1 == len(stages) {
				return "", true
			}
			return stages[i+1], false
		}
	}
	// lastCompleted isn't in this item's stage list (e.g. settings
	// changed media handling after the item was queued) — restart it.
	if len(stages) == 0 {
		return "", true
	}
	return stages[0], false
}

// IsPrimaryPhaseStage reports whether stage belongs to the visual
// phase that runs before any audio/transcript work.
func IsPrimaryPhaseStage(stage Stage) bool {
	for _, s := range primaryVisualStages {
		if s == stage {
			return true
		}
	}
	return stage == store.StatusDetectingFaces
}

// earliestMissingArtifact walks stages in order and returns the first
// one whose on-disk artifact is absent, given the item has recorded
// lastCompleted as done. If every completed stage's artifact is still
// present, it returns ("", false) — proceed as planned. This is the
// pipeline's entry-to-each-stage artifact check: it lets an item step
// *back* to the earliest missing stage rather than resume from
// scratch when something was deleted out from under it.
func earliestMissingArtifact(st *store.Store, cfg config.EngineConfig, item *store.Item, stages []Stage, lastCompleted Stage) (Stage, bool, error) {
	ctx := context.Background()
	for _, s := range stages {
		if !stageAtOrBefore(stages, s, lastCompleted) {
			break
		}
		ok, err := stageArtifactPresent(ctx, st, cfg, item, s)
		if err != nil {
			return "", false, err
		}
		if !ok {
			return s, true, nil
		}
	}
	return "", false, nil
}

func stageAtOrBefore(stages []Stage, s, lastCompleted Stage) bool {
	if lastCompleted == "" {
		return false
	}
	for _, x := range stages {
		if x == s {
			return true
		}
		if x == lastCompleted {
			return false
		}
	}
	return false
}

// stageArtifactPresent checks the on-disk artifact a completed stage
// is supposed to have left behind. Stages whose output lives only in
// the database (DETECTING, DETECTING_FACES, TRANSCRIBING) have no file
// artifact to verify here — a missing DB row is not something a file
// stat can detect. repair.go's startup pass does not check such rows
// either; for DONE items it stats only thumbnails and the vector shard.
func stageArtifactPresent(ctx context.Context, st *store.Store, cfg config.EngineConfig, item *store.Item, stage Stage) (bool, error) {
	switch stage {
	case store.StatusExtractingAudio:
		return fileNonEmpty(audioPath(cfg, item.ID)), nil
	case store.StatusExtractingFrames:
		frames, err := st.ListFrames(ctx, item.ID)
		if err != nil {
			return false, fmt.Errorf("list frames: %w", err)
		}
		if len(frames) == 0 {
			return false, nil
		}
		for _, f := range frames {
			if f.ThumbnailPath == "" {
				continue // already trimmed by retention; not a missing artifact
			}
			if !fileNonEmpty(f.ThumbnailPath) {
				return false, nil
			}
		}
		return true, nil
	case store.StatusEmbedding:
		return fileNonEmpty(cfg.ShardsDir() + "/" + item.ID + ".hnsw"), nil
	default:
		return true, nil
	}
}

func fileNonEmpty(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Size() > 0
}
