package ml

import (
	"context"
	"fmt"
	"sync"
)

// Cache holds the process-wide singleton model handles: each family's
// weights load at most once per process, on first use. Each of the
// five model families gets its own sync.Once so loading a face model
// never blocks a concurrent request for the visual embedder.
type Cache struct {
	speechOnce sync.Once
	speechErr  error
	speech     SpeechRecognizer
	newSpeech  func(ctx context.Context) (SpeechRecognizer, error)

	visualOnce sync.Once
	visualErr  error
	visual     VisualEmbedder
	newVisual  func(ctx context.Context) (VisualEmbedder, error)

	textOnce sync.Once
	textErr  error
	text     TextEmbedder
	newText  func(ctx context.Context) (TextEmbedder, error)

	detectorOnce sync.Once
	detectorErr  error
	detector     ObjectDetector
	newDetector  func(ctx context.Context) (ObjectDetector, error)

	faceOnce sync.Once
	faceErr  error
	face     FaceModel
	newFace  func(ctx context.Context) (FaceModel, error)

	mu     sync.Mutex
	closed bool
}

// NewCache builds a Cache whose constructors are invoked at most once
// each, the first time the corresponding Get* method is called.
func NewCache(
	newSpeech func(ctx context.Context) (SpeechRecognizer, error),
	newVisual func(ctx context.Context) (VisualEmbedder, error),
	newText func(ctx context.Context) (TextEmbedder, error),
	newDetector func(ctx context.Context) (ObjectDetector, error),
	newFace func(ctx context.Context) (FaceModel, error),
) *Cache {
	return &Cache{
		newSpeech:   newSpeech,
		newVisual:   newVisual,
		newText:     newText,
		newDetector: newDetector,
		newFace:     newFace,
	}
}

// GetSpeechRecognizer returns the process-wide speech recognizer,
// constructing it on first call.
func (c *Cache) GetSpeechRecognizer(ctx context.Context) (SpeechRecognizer, error) {
	c.speechOnce.Do(func() {
		c.speech, c.speechErr = c.newSpeech(ctx)
	})
	return c.speech, c.speechErr
}

// GetVisualEmbedder returns the process-wide visual embedder,
// constructing it on first call.
func (c *Cache) GetVisualEmbedder(ctx context.Context) (VisualEmbedder, error) {
	c.visualOnce.Do(func() {
		c.visual, c.visualErr = c.newVisual(ctx)
	})
	return c.visual, c.visualErr
}

// GetTextEmbedder returns the process-wide query-text tower,
// constructing it on first call.
func (c *Cache) GetTextEmbedder(ctx context.Context) (TextEmbedder, error) {
	c.textOnce.Do(func() {
		c.text, c.textErr = c.newText(ctx)
	})
	return c.text, c.textErr
}

// GetObjectDetector returns the process-wide object detector,
// constructing it on first call.
func (c *Cache) GetObjectDetector(ctx context.Context) (ObjectDetector, error) {
	c.detectorOnce.Do(func() {
		c.detector, c.detectorErr = c.newDetector(ctx)
	})
	return c.detector, c.detectorErr
}

// GetFaceModel returns the process-wide face detector/embedder,
// constructing it on first call.
func (c *Cache) GetFaceModel(ctx context.Context) (FaceModel, error) {
	c.faceOnce.Do(func() {
		c.face, c.faceErr = c.newFace(ctx)
	})
	return c.face, c.faceErr
}

// Close releases every model handle that was actually constructed.
// Safe to call multiple times.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	closeIfSet := func(closer interface{ Close() error }) {
		if closer == nil {
			return
		}
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.speech != nil {
		closeIfSet(c.speech)
	}
	if c.visual != nil {
		closeIfSet(c.visual)
	}
	if c.text != nil {
		closeIfSet(c.text)
	}
	if c.detector != nil {
		closeIfSet(c.detector)
	}
	if c.face != nil {
		closeIfSet(c.face)
	}
	if len(errs) > 0 {
		return fmt.Errorf("model cache close: %v", errs)
	}
	return nil
}
