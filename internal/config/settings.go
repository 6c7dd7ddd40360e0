package config

import "fmt"

// TranscriptionBackend selects which speech-recognition backend to use.
type TranscriptionBackend string

const (
	BackendAuto   TranscriptionBackend = "auto"
	BackendOpenAI TranscriptionBackend = "openai"
)

// IndexingPreset trades thoroughness for speed across the Pipeline.
type IndexingPreset string

const (
	PresetQuick IndexingPreset = "quick"
	PresetDeep  IndexingPreset = "deep"
)

// Settings is the single key-value namespace governing indexing
// behavior. It is persisted as rows in the Store and mutated only
// through PATCH /settings.
type Settings struct {
	TranscriptionModel    string               `json:"transcription_model"`
	TranscriptionLanguage string               `json:"transcription_language"`
	TranscriptionBackend  TranscriptionBackend `json:"transcription_backend"`
	VADEnabled            bool                 `json:"vad_enabled"`
	ChunkingEnabled        bool                `json:"chunking_enabled"`
	ChunkLengthSeconds     int                 `json:"chunk_length_seconds"`
	FrameSampleIntervalSec float64             `json:"frame_sample_interval_seconds"`
	ThumbnailQuality       int                 `json:"thumbnail_quality"`
	FaceRecognitionEnabled bool                `json:"face_recognition_enabled"`
	OfflineMode            bool                `json:"offline_mode"`
	IndexingPreset         IndexingPreset       `json:"indexing_preset"`
	PrioritizeRecentMedia  bool                `json:"prioritize_recent_media"`
	ConcurrentJobLimit     int                 `json:"concurrent_job_limit"`

	// FaceDetectionOnPhotos controls whether photos run face detection
	// by default. Default: true, since photos are exactly the media
	// type where people are the primary subject and the per-photo cost
	// of the face-detection stage is a single frame.
	FaceDetectionOnPhotos bool `json:"face_detection_on_photos"`
}

// DefaultSettings returns the engine's factory defaults.
func DefaultSettings() Settings {
	return Settings{
		TranscriptionModel:     "base",
		TranscriptionLanguage:  "auto",
		TranscriptionBackend:   BackendAuto,
		VADEnabled:             true,
		ChunkingEnabled:        true,
		ChunkLengthSeconds:     30,
		FrameSampleIntervalSec: 2.0,
		ThumbnailQuality:       80,
		FaceRecognitionEnabled: true,
		OfflineMode:            false,
		IndexingPreset:         PresetDeep,
		PrioritizeRecentMedia:  false,
		ConcurrentJobLimit:     10,
		FaceDetectionOnPhotos:  true,
	}
}

// Validate rejects settings values outside their documented ranges.
func (s Settings) Validate() error {
	if s.ChunkLengthSeconds <= 0 || s.ChunkLengthSeconds > 30 {
		return fmt.Errorf("chunk_length_seconds must be in (0, 30]")
	}
	if s.FrameSampleIntervalSec <= 0 {
		return fmt.Errorf("frame_sample_interval_seconds must be positive")
	}
	if s.ThumbnailQuality < 1 || s.ThumbnailQuality > 100 {
		return fmt.Errorf("thumbnail_quality must be in [1, 100]")
	}
	if s.ConcurrentJobLimit <= 0 {
		return fmt.Errorf("concurrent_job_limit must be positive")
	}
	switch s.TranscriptionBackend {
	case BackendAuto, BackendOpenAI:
	default:
		return fmt.Errorf("invalid transcription_backend %q", s.TranscriptionBackend)
	}
	switch s.IndexingPreset {
	case PresetQuick, PresetDeep:
	default:
		return fmt.Errorf("invalid indexing_preset %q", s.IndexingPreset)
	}
	return nil
}
