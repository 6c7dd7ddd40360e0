package config

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettings_Validate(t *testing.T) {
	assert.NoError(t, DefaultSettings().Validate())
}

func TestSettings_ValidateRejectsOutOfRange(t *testing.T) {
	cases := []func(*Settings){
		func(s *Settings) { s.ChunkLengthSeconds = 0 },
		func(s *Settings) { s.ChunkLengthSeconds = 31 },
		func(s *Settings) { s.FrameSampleIntervalSec = 0 },
		func(s *Settings) { s.ThumbnailQuality = 0 },
		func(s *Settings) { s.ThumbnailQuality = 101 },
		func(s *Settings) { s.ConcurrentJobLimit = 0 },
		func(s *Settings) { s.TranscriptionBackend = "whisperx" },
		func(s *Settings) { s.IndexingPreset = "turbo" },
	}
	for _, mutate := range cases {
		s := DefaultSettings()
		mutate(&s)
		assert.Error(t, s.Validate())
	}
}

// fakeSettingsStore is an in-memory stand-in for the Store's settings
// row.
type fakeSettingsStore struct {
	raw string
}

func (f *fakeSettingsStore) LoadSettingsJSON(ctx context.Context) (string, error) {
	if f.raw == "" {
		return "", errors.New("not found")
	}
	return f.raw, nil
}

func (f *fakeSettingsStore) SaveSettingsJSON(ctx context.Context, raw string) error {
	f.raw = raw
	return nil
}

func jsonMarshal(v any) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}

func jsonUnmarshal(raw string, v any) error {
	return json.Unmarshal([]byte(raw), v)
}

// Given: no persisted settings blob
// Then: LiveSettings starts from factory defaults
func TestLiveSettings_StartsFromDefaults(t *testing.T) {
	fake := &fakeSettingsStore{}
	ls, err := NewLiveSettings(context.Background(), fake, jsonMarshal, jsonUnmarshal)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), ls.Get())
}

// Given: a valid Set
// Then: it persists and the live snapshot swaps
func TestLiveSettings_SetPersistsAndSwaps(t *testing.T) {
	fake := &fakeSettingsStore{}
	ls, err := NewLiveSettings(context.Background(), fake, jsonMarshal, jsonUnmarshal)
	require.NoError(t, err)

	next := DefaultSettings()
	next.ConcurrentJobLimit = 3
	next.OfflineMode = true
	require.NoError(t, ls.Set(context.Background(), next))

	assert.Equal(t, 3, ls.Get().ConcurrentJobLimit)
	assert.True(t, ls.Get().OfflineMode)
	assert.Contains(t, fake.raw, `"concurrent_job_limit":3`)
}

func TestLiveSettings_SetRejectsInvalid(t *testing.T) {
	fake := &fakeSettingsStore{}
	ls, err := NewLiveSettings(context.Background(), fake, jsonMarshal, jsonUnmarshal)
	require.NoError(t, err)

	bad := DefaultSettings()
	bad.ThumbnailQuality = 0
	assert.Error(t, ls.Set(context.Background(), bad))
	assert.Equal(t, DefaultSettings(), ls.Get())
}

// Reload picks up a blob written out-of-band (backup restore).
func TestLiveSettings_Reload(t *testing.T) {
	fake := &fakeSettingsStore{}
	ls, err := NewLiveSettings(context.Background(), fake, jsonMarshal, jsonUnmarshal)
	require.NoError(t, err)

	restored := DefaultSettings()
	restored.PrioritizeRecentMedia = true
	raw, err := jsonMarshal(restored)
	require.NoError(t, err)
	fake.raw = raw

	require.NoError(t, ls.Reload(context.Background()))
	assert.True(t, ls.Get().PrioritizeRecentMedia)
}
