package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediaengine/engine/internal/config"
)

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

func settingsServer(t *testing.T) *Server {
	t.Helper()
	s := testServer(t)
	ls, err := config.NewLiveSettings(context.Background(), &fakeSettingsStore{},
		func(v any) (string, error) {
			b, err := json.Marshal(v)
			return string(b), err
		},
		func(raw string, v any) error {
			return json.Unmarshal([]byte(raw), v)
		})
	require.NoError(t, err)
	s.d.Settings = ls
	return s
}

// Given: a PATCH carrying one field
// Then: that field changes and every other setting keeps its value
func TestPatchSettings_PartialUpdate(t *testing.T) {
	s := settingsServer(t)
	req := httptest.NewRequest(http.MethodPatch, "/settings", strings.NewReader(`{"concurrent_job_limit": 4}`))
	rec := httptest.NewRecorder()

	s.handlePatchSettings(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	got := s.d.Settings.Get()
	assert.Equal(t, 4, got.ConcurrentJobLimit)
	assert.Equal(t, config.DefaultSettings().FrameSampleIntervalSec, got.FrameSampleIntervalSec)
}

func TestPatchSettings_UnknownKeyRejected(t *testing.T) {
	s := settingsServer(t)
	req := httptest.NewRequest(http.MethodPatch, "/settings", strings.NewReader(`{"no_such_setting": true}`))
	rec := httptest.NewRecorder()

	s.handlePatchSettings(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// Given: a patch pushing a setting outside its documented range
// Then: nothing is persisted
func TestPatchSettings_InvalidValueRejected(t *testing.T) {
	s := settingsServer(t)
	req := httptest.NewRequest(http.MethodPatch, "/settings", strings.NewReader(`{"thumbnail_quality": 0}`))
	rec := httptest.NewRecorder()

	s.handlePatchSettings(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, config.DefaultSettings().ThumbnailQuality, s.d.Settings.Get().ThumbnailQuality)
}

func TestGetSettings_ReturnsLiveSnapshot(t *testing.T) {
	s := settingsServer(t)
	req := httptest.NewRequest(http.MethodGet, "/settings", nil)
	rec := httptest.NewRecorder()

	s.handleGetSettings(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"indexing_preset":"deep"`)
}
