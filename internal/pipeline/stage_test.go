package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediaengine/engine/internal/store"
)

// Given: a video item
// Then: stages run visual-first (primary phase), then audio (enhanced)
func TestStagesFor_VideoOrdersPrimaryBeforeEnhanced(t *testing.T) {
	stages := StagesFor(store.MediaVideo, false)

	require.Equal(t, []Stage{
		store.StatusExtractingFrames,
		store.StatusEmbedding,
		store.StatusDetecting,
		store.StatusDetectingFaces,
		store.StatusExtractingAudio,
		store.StatusTranscribing,
	}, stages)
}

// Given: a photo item with face detection on photos disabled
// Then: only the three visual stages run
func TestStagesFor_PhotoSkipsAudioAndOptionallyFaces(t *testing.T) {
	withFaces := StagesFor(store.MediaPhoto, true)
	withoutFaces := StagesFor(store.MediaPhoto, false)

	assert.Equal(t, []Stage{
		store.StatusExtractingFrames,
		store.StatusEmbedding,
		store.StatusDetecting,
		store.StatusDetectingFaces,
	}, withFaces)
	assert.Equal(t, []Stage{
		store.StatusExtractingFrames,
		store.StatusEmbedding,
		store.StatusDetecting,
	}, withoutFaces)
}

func TestNextStage_WalksForwardAndTerminates(t *testing.T) {
	stages := StagesFor(store.MediaPhoto, false)

	next, done := NextStage(stages, "")
	require.False(t, done)
	assert.Equal(t, store.StatusExtractingFrames, next)

	next, done = NextStage(stages, store.StatusExtractingFrames)
	require.False(t, done)
	assert.Equal(t, store.StatusEmbedding, next)

	_, done = NextStage(stages, store.StatusDetecting)
	assert.True(t, done)
}

// Given: a lastCompleted stage no longer in the item's stage list
// (settings changed since it was queued)
// Then: the item restarts from the first stage instead of wedging
func TestNextStage_UnknownLastCompletedRestarts(t *testing.T) {
	stages := StagesFor(store.MediaPhoto, false)

	next, done := NextStage(stages, store.StatusExtractingAudio)
	require.False(t, done)
	assert.Equal(t, store.StatusExtractingFrames, next)
}

func TestIsPrimaryPhaseStage(t *testing.T) {
	assert.True(t, IsPrimaryPhaseStage(store.StatusExtractingFrames))
	assert.True(t, IsPrimaryPhaseStage(store.StatusDetectingFaces))
	assert.False(t, IsPrimaryPhaseStage(store.StatusTranscribing))
	assert.False(t, IsPrimaryPhaseStage(store.StatusExtractingAudio))
}

func TestStageAtOrBefore(t *testing.T) {
	stages := StagesFor(store.MediaVideo, false)

	assert.True(t, stageAtOrBefore(stages, store.StatusExtractingFrames, store.StatusDetecting))
	assert.True(t, stageAtOrBefore(stages, store.StatusDetecting, store.StatusDetecting))
	assert.False(t, stageAtOrBefore(stages, store.StatusExtractingAudio, store.StatusDetecting))
	assert.False(t, stageAtOrBefore(stages, store.StatusExtractingFrames, ""))
}

func TestPreviousStage(t *testing.T) {
	stages := StagesFor(store.MediaVideo, false)

	assert.Equal(t, Stage(""), previousStage(stages, store.StatusExtractingFrames))
	assert.Equal(t, store.StatusEmbedding, previousStage(stages, store.StatusDetecting))
}
