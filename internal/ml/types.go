// Package ml defines narrow, interchangeable contracts for four model
// families: the speech recognizer, the visual embedder (and its
// paired text tower), the object detector, and the face
// detector/embedder. Each contract is deliberately small — load a
// model once, run it on one unit of work — so a real model backend
// can be swapped in behind it without the Pipeline or Searcher
// changing. Each interface has its own work method (Transcribe,
// EmbedImage, EmbedText, Detect, DetectFaces) plus the shared
// ModelName/Available/Close methods; the embedders also report
// Dimensions, the face model EmbeddingDimensions.
package ml

import (
	"context"
	"errors"
)

// ErrModelClosed is returned by any model method called after Close.
var ErrModelClosed = errors.New("ml: model handle closed")

// AudioSegment is a decoded slice of the canonical mono 16kHz waveform
// handed to the speech recognizer.
type AudioSegment struct {
	StartMs int
	EndMs   int
	PCM     []byte // little-endian 16-bit mono PCM at 16kHz
}

// TranscribedSegment is one recognized span of speech.
type TranscribedSegment struct {
	StartMs    int
	EndMs      int
	Text       string
	Confidence float64
}

// SpeechRecognizer transcribes a pre-chopped audio segment into text.
// A failed segment is reported as a plain error, never a panic,
// leaving "log and continue" to the caller.
type SpeechRecognizer interface {
	Transcribe(ctx context.Context, seg AudioSegment, language string) (TranscribedSegment, error)
	ModelName() string
	Available(ctx context.Context) bool
	Close() error
}

// VisualEmbedder produces a fixed-dimension embedding for one decoded
// image (a sampled frame or a photo's single still).
type VisualEmbedder interface {
	EmbedImage(ctx context.Context, imagePath string) ([]float32, error)
	Dimensions() int
	ModelName() string
	Available(ctx context.Context) bool
	Close() error
}

// TextEmbedder produces a query embedding in the same space as a
// VisualEmbedder, so a text query and an image can be compared
// directly by the Searcher's visual path.
type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	ModelName() string
	Available(ctx context.Context) bool
	Close() error
}

// DetectedObject is one object-detector hit on a frame.
type DetectedObject struct {
	Label      string
	Confidence float64
	BBox       [4]float64 // x, y, w, h, normalized [0,1]
}

// ObjectDetector runs inference over one decoded image.
type ObjectDetector interface {
	Detect(ctx context.Context, imagePath string) ([]DetectedObject, error)
	ModelName() string
	Available(ctx context.Context) bool
	Close() error
}

// DetectedFace is one face-detector hit, already cropped and embedded.
type DetectedFace struct {
	BBox       [4]float64
	Confidence float64
	Embedding  []float32
}

// FaceModel detects and embeds faces in one decoded image; a single
// contract because nearly every real face pipeline shares weights
// between detection and embedding.
type FaceModel interface {
	DetectFaces(ctx context.Context, imagePath string) ([]DetectedFace, error)
	EmbeddingDimensions() int
	ModelName() string
	Available(ctx context.Context) bool
	Close() error
}
