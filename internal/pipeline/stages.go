package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	enginerrors "github.com/mediaengine/engine/internal/errors"
	"github.com/mediaengine/engine/internal/store"
)

// retainedFrameCount bounds on-disk thumbnail storage once an item's
// primary phase completes: frames beyond this index keep their row
// (so Detection/Face rows referencing them stay valid) but lose their
// thumbnail file.
const retainedFrameCount = 15

type stageFunc func(ctx context.Context, rt *Runtime, item *store.Item) error

var stageFuncs = map[Stage]stageFunc{
	store.StatusExtractingAudio:  runExtractAudio,
	store.StatusTranscribing:     runTranscribe,
	store.StatusExtractingFrames: runExtractFrames,
	store.StatusEmbedding:        runEmbedding,
	store.StatusDetecting:        runDetecting,
	store.StatusDetectingFaces:   runDetectingFaces,
}

// RunStage executes the work for one stage against one item.
func RunStage(ctx context.Context, rt *Runtime, item *store.Item, stage Stage) error {
	fn, ok := stageFuncs[stage]
	if !ok {
		return fmt.Errorf("no stage runner registered for %q", stage)
	}
	return fn(ctx, rt, item)
}

func runExtractAudio(ctx context.Context, rt *Runtime, item *store.Item) error {
	if rt.Audio == nil || !rt.Audio.Available(ctx) {
		return enginerrors.New(enginerrors.KindDependencyMissing, "ffmpeg not available for audio extraction")
	}
	src, err := itemAbsPath(ctx, rt.Store, item)
	if err != nil {
		return enginerrors.Wrap(enginerrors.KindFileNotFound, "resolve item path", err)
	}
	return rt.Audio.ExtractAudio(ctx, src, audioPath(rt.Config, item.ID))
}

func runTranscribe(ctx context.Context, rt *Runtime, item *store.Item) error {
	settings := rt.Settings.Get()

	segments, err := rt.Segmenter.Segment(ctx, audioPath(rt.Config, item.ID), settings.ChunkLengthSeconds, settings.VADEnabled)
	if err != nil {
		return enginerrors.Wrap(enginerrors.KindTranscriptionErr, "segment audio", err)
	}

	recognizer, err := rt.Models.GetSpeechRecognizer(ctx)
	if err != nil {
		return enginerrors.Wrap(enginerrors.KindModelMissing, "load speech recognizer", err)
	}

	var segs []store.TranscriptSegment
	var parts []string
	for _, seg := range segments {
		select {
		case <-ctx.Done():
			return enginerrors.New(enginerrors.KindCancelled, "transcription cancelled")
		default:
		}

		result, err := recognizer.Transcribe(ctx, seg, settings.TranscriptionLanguage)
		if err != nil {
			// Per-segment failures are logged and skipped, not fatal —
			// only a whole-stage failure propagates.
			rt.logger().Warn("segment transcription failed",
				slog.String("item_id", item.ID), slog.Int("start_ms", seg.StartMs), slog.String("error", err.Error()))
			continue
		}
		if strings.TrimSpace(result.Text) == "" {
			continue
		}
		segs = append(segs, store.TranscriptSegment{
			StartMs: result.StartMs, EndMs: result.EndMs, Text: result.Text, Confidence: result.Confidence,
		})
		parts = append(parts, result.Text)
	}

	saved, err := rt.Store.ReplaceTranscriptSegments(ctx, item.ID, segs)
	if err != nil {
		return enginerrors.Wrap(enginerrors.KindTranscriptionErr, "persist transcript segments", err)
	}

	if rt.FTS != nil {
		docs := make(map[string]store.TranscriptDoc, len(saved))
		for _, s := range saved {
			docs[s.ID] = store.TranscriptDoc{ItemID: s.ItemID, StartMs: s.StartMs, EndMs: s.EndMs, Text: s.Text}
		}
		if err := rt.FTS.Index(ctx, docs); err != nil {
			return enginerrors.Wrap(enginerrors.KindTranscriptionErr, "index transcript segments", err)
		}
	}

	if err := rt.Store.SetItemTranscript(ctx, item.ID, strings.Join(parts, " ")); err != nil {
		return enginerrors.Wrap(enginerrors.KindTranscriptionErr, "store flattened transcript", err)
	}
	return nil
}

func runExtractFrames(ctx context.Context, rt *Runtime, item *store.Item) error {
	if rt.Frames == nil || !rt.Frames.Available(ctx) {
		return enginerrors.New(enginerrors.KindDependencyMissing, "ffmpeg not available for frame sampling")
	}
	src, err := itemAbsPath(ctx, rt.Store, item)
	if err != nil {
		return enginerrors.Wrap(enginerrors.KindFileNotFound, "resolve item path", err)
	}

	settings := rt.Settings.Get()
	sampled, err := rt.Frames.SampleFrames(ctx, src, item.MediaType, settings.FrameSampleIntervalSec, thumbnailDir(rt.Config, item.ID))
	if err != nil {
		return err
	}

	frames := make([]store.Frame, 0, len(sampled))
	for _, sf := range sampled {
		select {
		case <-ctx.Done():
			return enginerrors.New(enginerrors.KindCancelled, "frame extraction cancelled")
		default:
		}
		cats, err := dominantColors(sf.ImagePath)
		if err != nil {
			rt.logger().Warn("dominant color sampling failed",
				slog.String("item_id", item.ID), slog.String("path", sf.ImagePath), slog.String("error", err.Error()))
		}
		frames = append(frames, store.Frame{Index: sf.Index, TimestampMs: sf.TimestampMs, ThumbnailPath: sf.ImagePath, Colors: cats})
	}

	if _, err = rt.Store.InsertFrames(ctx, item.ID, frames); err != nil {
		return enginerrors.Wrap(enginerrors.KindFFmpegError, "persist sampled frames", err)
	}
	return nil
}

func runEmbedding(ctx context.Context, rt *Runtime, item *store.Item) error {
	frames, err := rt.Store.ListFrames(ctx, item.ID)
	if err != nil {
		return enginerrors.Wrap(enginerrors.KindEmbeddingError, "list frames", err)
	}
	if len(frames) == 0 {
		return nil
	}

	embedder, err := rt.Models.GetVisualEmbedder(ctx)
	if err != nil {
		return enginerrors.Wrap(enginerrors.KindModelMissing, "load visual embedder", err)
	}

	var ids []string
	var vectors [][]float32
	for _, f := range frames {
		select {
		case <-ctx.Done():
			return enginerrors.New(enginerrors.KindCancelled, "embedding cancelled")
		default:
		}
		if f.ThumbnailPath == "" {
			continue
		}
		vec, err := embedder.EmbedImage(ctx, f.ThumbnailPath)
		if err != nil {
			return enginerrors.Wrap(enginerrors.KindEmbeddingError, "embed frame "+f.ID, err)
		}
		ids = append(ids, "frame:"+f.ID)
		vectors = append(vectors, vec)
	}
	if len(ids) == 0 {
		return nil
	}
	if err := rt.Shards.Add(ctx, item.ID, ids, vectors); err != nil {
		return enginerrors.Wrap(enginerrors.KindEmbeddingError, "write vector shard", err)
	}
	return nil
}

func runDetecting(ctx context.Context, rt *Runtime, item *store.Item) error {
	frames, err := rt.Store.ListFrames(ctx, item.ID)
	if err != nil {
		return enginerrors.Wrap(enginerrors.KindDetectionError, "list frames", err)
	}
	if len(frames) == 0 {
		return nil
	}

	detector, err := rt.Models.GetObjectDetector(ctx)
	if err != nil {
		return enginerrors.Wrap(enginerrors.KindModelMissing, "load object detector", err)
	}

	var dets []store.Detection
	for _, f := range frames {
		select {
		case <-ctx.Done():
			return enginerrors.New(enginerrors.KindCancelled, "detection cancelled")
		default:
		}
		if f.ThumbnailPath == "" {
			continue
		}
		hits, err := detector.Detect(ctx, f.ThumbnailPath)
		if err != nil {
			return enginerrors.Wrap(enginerrors.KindDetectionError, "detect frame "+f.ID, err)
		}
		for _, h := range hits {
			dets = append(dets, store.Detection{
				FrameID:     f.ID,
				TimestampMs: f.TimestampMs,
				Label:       h.Label,
				Confidence:  h.Confidence,
				BBox:        store.BBox{X: h.BBox[0], Y: h.BBox[1], W: h.BBox[2], H: h.BBox[3]},
			})
		}
	}
	if len(dets) == 0 {
		return nil
	}
	if _, err = rt.Store.InsertDetections(ctx, item.ID, dets); err != nil {
		return enginerrors.Wrap(enginerrors.KindDetectionError, "persist detections", err)
	}
	return nil
}

func runDetectingFaces(ctx context.Context, rt *Runtime, item *store.Item) error {
	frames, err := rt.Store.ListFrames(ctx, item.ID)
	if err != nil {
		return enginerrors.Wrap(enginerrors.KindFaceError, "list frames", err)
	}
	if len(frames) == 0 {
		return nil
	}

	faceModel, err := rt.Models.GetFaceModel(ctx)
	if err != nil {
		return enginerrors.Wrap(enginerrors.KindModelMissing, "load face model", err)
	}

	cropDir := faceCropDir(rt.Config, item.ID)
	if err := os.MkdirAll(cropDir, 0o755); err != nil {
		return enginerrors.Wrap(enginerrors.KindFaceError, "create face crop dir", err)
	}

	var faces []store.Face
	for _, f := range frames {
		select {
		case <-ctx.Done():
			return enginerrors.New(enginerrors.KindCancelled, "face detection cancelled")
		default:
		}
		if f.ThumbnailPath == "" {
			continue
		}
		hits, err := faceModel.DetectFaces(ctx, f.ThumbnailPath)
		if err != nil {
			return enginerrors.Wrap(enginerrors.KindFaceError, "detect faces in frame "+f.ID, err)
		}
		for i, h := range hits {
			crop := fmt.Sprintf("%s/face_%d_%d.jpg", cropDir, f.Index, i)
			if err := copyFile(f.ThumbnailPath, crop); err != nil {
				rt.logger().Warn("face crop copy failed", slog.String("item_id", item.ID), slog.String("error", err.Error()))
				crop = ""
			}
			faces = append(faces, store.Face{
				FrameID:     f.ID,
				TimestampMs: f.TimestampMs,
				BBox:        store.BBox{X: h.BBox[0], Y: h.BBox[1], W: h.BBox[2], H: h.BBox[3]},
				Confidence:  h.Confidence,
				CropPath:    crop,
				Embedding:   h.Embedding,
			})
		}
	}
	if len(faces) == 0 {
		return nil
	}

	saved, err := rt.Store.InsertFaces(ctx, item.ID, faces)
	if err != nil {
		return enginerrors.Wrap(enginerrors.KindFaceError, "persist faces", err)
	}

	if rt.Faces == nil {
		return nil
	}
	for _, face := range saved {
		personID, confidence, err := rt.Faces.AutoRecognize(ctx, face)
		if err != nil {
			rt.logger().Warn("auto-recognition failed", slog.String("face_id", face.ID), slog.String("error", err.Error()))
			continue
		}
		if personID == "" {
			continue
		}
		if err := rt.Store.AssignFace(ctx, face.ID, personID, store.AssignAuto, confidence); err != nil {
			rt.logger().Warn("auto-assign failed", slog.String("face_id", face.ID), slog.String("error", err.Error()))
		}
	}
	return nil
}

// copyFile backs the face crop files: the crop reuses the frame's own
// thumbnail JPEG with the bounding box persisted alongside it, rather
// than re-encoding a cropped region per face.
func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// isLastPrimaryStage reports whether stage is the final entry of the
// contiguous primary-phase block at the front of stages, i.e. the
// point at which the frame-retention trim should run.
func isLastPrimaryStage(stages []Stage, stage Stage) bool {
	var last Stage
	for _, s := range stages {
		if !IsPrimaryPhaseStage(s) {
			break
		}
		last = s
	}
	return stage == last
}

// trimRetainedFrames clears thumbnail storage for sampled frames
// beyond retainedFrameCount once the visual phase is done, preserving
// every Frame row (and anything referencing it).
func trimRetainedFrames(ctx context.Context, rt *Runtime, itemID string) error {
	frames, err := rt.Store.ListFrames(ctx, itemID)
	if err != nil {
		return fmt.Errorf("list frames for retention trim: %w", err)
	}
	for i, f := range frames {
		if i < retainedFrameCount || f.ThumbnailPath == "" {
			continue
		}
		if err := rt.Store.ClearFrameThumbnail(ctx, f.ID); err != nil {
			return fmt.Errorf("clear frame thumbnail: %w", err)
		}
		if err := os.Remove(f.ThumbnailPath); err != nil && !os.IsNotExist(err) {
			rt.logger().Warn("failed to remove trimmed frame file", slog.String("path", f.ThumbnailPath), slog.String("error", err.Error()))
		}
	}
	return nil
}
