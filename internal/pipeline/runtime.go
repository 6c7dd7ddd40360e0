package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/mediaengine/engine/internal/config"
	"github.com/mediaengine/engine/internal/eventbus"
	"github.com/mediaengine/engine/internal/ml"
	"github.com/mediaengine/engine/internal/store"
)

// AudioExtractor decodes an item's audio track to the canonical mono
// 16kHz waveform the speech recognizer expects, matching the
// scanner's MetadataProber pattern of keeping an external tool (here,
// ffmpeg) behind a narrow interface.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, sourcePath, outWavPath string) error
	Available(ctx context.Context) bool
}

// SampledFrame is one still produced by a FrameSampler, already
// written to disk as a JPEG.
type SampledFrame struct {
	Index       int
	TimestampMs int
	ImagePath   string
}

// FrameSampler extracts stills from a video at a fixed interval, or
// the single still a photo already is.
type FrameSampler interface {
	SampleFrames(ctx context.Context, sourcePath string, mediaType store.MediaType, intervalSec float64, outDir string) ([]SampledFrame, error)
	Available(ctx context.Context) bool
}

// AudioSegmenter splits a canonical waveform into bounded segments
// for transcription, optionally dropping near-silent ones when VAD is
// enabled.
type AudioSegmenter interface {
	Segment(ctx context.Context, wavPath string, chunkSeconds int, vadEnabled bool) ([]ml.AudioSegment, error)
}

// FaceRecognizer attempts auto-recognition of one freshly detected
// face against known persons. A narrow interface so the pipeline
// depends on what it needs from internal/faces without importing its
// full surface.
type FaceRecognizer interface {
	AutoRecognize(ctx context.Context, face store.Face) (personID string, confidence float64, err error)
}

// SettingsProvider resolves the live, possibly user-edited Settings.
// Pipeline stages read it on every run rather than capturing a single
// snapshot at startup, since PATCH /settings can change
// FrameSampleIntervalSec etc. mid-session. ConcurrentJobLimit is the
// exception: the Coordinator reads it once when it starts running.
type SettingsProvider interface {
	Get() config.Settings
}

// Runtime bundles everything a stage needs to do its work. It is
// constructed once at startup and shared by every concurrent job.
type Runtime struct {
	Store     *store.Store
	Config    config.EngineConfig
	Settings  SettingsProvider
	Models    *ml.Cache
	Shards    *store.ShardStore
	FTS       *store.TranscriptIndex
	Audio     AudioExtractor
	Frames    FrameSampler
	Segmenter AudioSegmenter
	Faces     FaceRecognizer
	Bus       *eventbus.Bus
	Log       *slog.Logger
}

func (rt *Runtime) logger() *slog.Logger {
	if rt.Log != nil {
		return rt.Log
	}
	return slog.Default()
}

func (rt *Runtime) publish(ev eventbus.Event) {
	if rt.Bus != nil {
		rt.Bus.Publish(ev)
	}
}

// itemAbsPath resolves an item's absolute file path via its owning
// library, since Item only stores a library-relative path.
func itemAbsPath(ctx context.Context, st *store.Store, item *store.Item) (string, error) {
	lib, err := st.GetLibrary(ctx, item.LibraryID)
	if err != nil {
		return "", fmt.Errorf("resolve library for item %s: %w", item.ID, err)
	}
	return filepath.Join(lib.Path, item.Path), nil
}

func audioPath(cfg config.EngineConfig, itemID string) string {
	return filepath.Join(cfg.AudioDir(), itemID+".wav")
}

func thumbnailDir(cfg config.EngineConfig, itemID string) string {
	return filepath.Join(cfg.ThumbnailsDir(), itemID)
}

func faceCropDir(cfg config.EngineConfig, itemID string) string {
	return filepath.Join(cfg.FacesDir(), itemID)
}
