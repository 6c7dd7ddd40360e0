package ml

import (
	"context"
	"errors"
	"testing"
)

func TestCacheConstructsEachFamilyOnce(t *testing.T) {
	ctx := context.Background()
	var visualCalls int
	c := NewCache(
		func(ctx context.Context) (SpeechRecognizer, error) { return NewStaticSpeechRecognizer(), nil },
		func(ctx context.Context) (VisualEmbedder, error) {
			visualCalls++
			return NewStaticVisualEmbedder(), nil
		},
		func(ctx context.Context) (TextEmbedder, error) { return NewStaticTextEmbedder(), nil },
		func(ctx context.Context) (ObjectDetector, error) { return NewStaticObjectDetector(), nil },
		func(ctx context.Context) (FaceModel, error) { return NewStaticFaceModel(), nil },
	)

	v1, err := c.GetVisualEmbedder(ctx)
	if err != nil {
		t.Fatalf("GetVisualEmbedder: %v", err)
	}
	v2, err := c.GetVisualEmbedder(ctx)
	if err != nil {
		t.Fatalf("GetVisualEmbedder: %v", err)
	}
	if v1 != v2 {
		t.Fatal("expected same visual embedder instance across calls")
	}
	if visualCalls != 1 {
		t.Fatalf("expected constructor called once, got %d", visualCalls)
	}
}

func TestCacheFamiliesAreIndependentlyLazy(t *testing.T) {
	ctx := context.Background()
	var faceCalls int
	c := NewCache(
		func(ctx context.Context) (SpeechRecognizer, error) { return NewStaticSpeechRecognizer(), nil },
		func(ctx context.Context) (VisualEmbedder, error) { return NewStaticVisualEmbedder(), nil },
		func(ctx context.Context) (TextEmbedder, error) { return NewStaticTextEmbedder(), nil },
		func(ctx context.Context) (ObjectDetector, error) { return NewStaticObjectDetector(), nil },
		func(ctx context.Context) (FaceModel, error) {
			faceCalls++
			return NewStaticFaceModel(), nil
		},
	)

	if _, err := c.GetVisualEmbedder(ctx); err != nil {
		t.Fatalf("GetVisualEmbedder: %v", err)
	}
	if faceCalls != 0 {
		t.Fatalf("expected face constructor untouched, got %d calls", faceCalls)
	}
}

func TestCacheConstructorErrorIsCached(t *testing.T) {
	ctx := context.Background()
	wantErr := errors.New("model weights unavailable")
	var calls int
	c := NewCache(
		func(ctx context.Context) (SpeechRecognizer, error) {
			calls++
			return nil, wantErr
		},
		func(ctx context.Context) (VisualEmbedder, error) { return NewStaticVisualEmbedder(), nil },
		func(ctx context.Context) (TextEmbedder, error) { return NewStaticTextEmbedder(), nil },
		func(ctx context.Context) (ObjectDetector, error) { return NewStaticObjectDetector(), nil },
		func(ctx context.Context) (FaceModel, error) { return NewStaticFaceModel(), nil },
	)

	if _, err := c.GetSpeechRecognizer(ctx); !errors.Is(err, wantErr) {
		t.Fatalf("expected wantErr, got %v", err)
	}
	if _, err := c.GetSpeechRecognizer(ctx); !errors.Is(err, wantErr) {
		t.Fatalf("expected cached wantErr, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected constructor called once even on error, got %d", calls)
	}
}

func TestCacheCloseClosesConstructedHandlesOnly(t *testing.T) {
	ctx := context.Background()
	visual := NewStaticVisualEmbedder()
	c := NewCache(
		func(ctx context.Context) (SpeechRecognizer, error) { return NewStaticSpeechRecognizer(), nil },
		func(ctx context.Context) (VisualEmbedder, error) { return visual, nil },
		func(ctx context.Context) (TextEmbedder, error) { return NewStaticTextEmbedder(), nil },
		func(ctx context.Context) (ObjectDetector, error) { return NewStaticObjectDetector(), nil },
		func(ctx context.Context) (FaceModel, error) { return NewStaticFaceModel(), nil },
	)

	if _, err := c.GetVisualEmbedder(ctx); err != nil {
		t.Fatalf("GetVisualEmbedder: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if visual.Available(ctx) {
		t.Fatal("expected visual embedder closed")
	}
	// Closing again must not panic or double-close.
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestStaticTextAndVisualEmbeddersShareDimensions(t *testing.T) {
	ctx := context.Background()
	text := NewStaticTextEmbedder()
	visual := NewStaticVisualEmbedder()
	if text.Dimensions() != visual.Dimensions() {
		t.Fatalf("text dims %d != visual dims %d", text.Dimensions(), visual.Dimensions())
	}

	vec, err := text.EmbedText(ctx, "a dog running on a beach")
	if err != nil {
		t.Fatalf("EmbedText: %v", err)
	}
	if len(vec) != StaticDimensions {
		t.Fatalf("expected %d dims, got %d", StaticDimensions, len(vec))
	}
}

func TestStaticTextEmbedderDeterministic(t *testing.T) {
	ctx := context.Background()
	e := NewStaticTextEmbedder()
	v1, err := e.EmbedText(ctx, "sunset over the ocean")
	if err != nil {
		t.Fatalf("EmbedText: %v", err)
	}
	v2, err := e.EmbedText(ctx, "sunset over the ocean")
	if err != nil {
		t.Fatalf("EmbedText: %v", err)
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("expected deterministic embedding, differed at index %d: %f vs %f", i, v1[i], v2[i])
		}
	}
}

func TestStaticModelsRejectUseAfterClose(t *testing.T) {
	ctx := context.Background()
	text := NewStaticTextEmbedder()
	if err := text.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := text.EmbedText(ctx, "anything"); !errors.Is(err, ErrModelClosed) {
		t.Fatalf("expected ErrModelClosed, got %v", err)
	}
	if text.Available(ctx) {
		t.Fatal("expected Available false after Close")
	}
}

func TestStaticDetectorAndFaceModelReportNoFindings(t *testing.T) {
	ctx := context.Background()
	det := NewStaticObjectDetector()
	objs, err := det.Detect(ctx, "/nonexistent/path.jpg")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(objs) != 0 {
		t.Fatalf("expected no detections, got %d", len(objs))
	}

	face := NewStaticFaceModel()
	faces, err := face.DetectFaces(ctx, "/nonexistent/path.jpg")
	if err != nil {
		t.Fatalf("DetectFaces: %v", err)
	}
	if len(faces) != 0 {
		t.Fatalf("expected no faces, got %d", len(faces))
	}
}
