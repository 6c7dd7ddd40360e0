package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediaengine/engine/internal/store"
)

func storeServer(t *testing.T) (*Server, *store.Store, *store.Library) {
	t.Helper()
	s := settingsServer(t)

	st, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	s.d.Store = st

	lib, err := st.CreateLibrary(context.Background(), t.TempDir(), "Clips", true)
	require.NoError(t, err)
	return s, st, lib
}

func seedItem(t *testing.T, st *store.Store, lib *store.Library, id, path string, status store.ItemStatus) *store.Item {
	t.Helper()
	it := &store.Item{
		ID: id, LibraryID: lib.ID, Path: path, Filename: path,
		Size: 1, MTime: time.Now(), MediaType: store.MediaVideo, Status: status,
	}
	require.NoError(t, st.UpsertItem(context.Background(), it))
	if status != store.StatusQueued {
		require.NoError(t, st.SetItemStatus(context.Background(), id, status, ""))
	}
	return it
}

func TestHandleListItems_ReturnsSeededItems(t *testing.T) {
	s, st, lib := storeServer(t)
	seedItem(t, st, lib, "item-1", "a.mp4", store.StatusQueued)
	seedItem(t, st, lib, "item-2", "b.mp4", store.StatusQueued)

	req := httptest.NewRequest(http.MethodGet, "/videos", nil)
	rec := httptest.NewRecorder()
	s.handleListItems(store.MediaVideo)(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "item-1")
	assert.Contains(t, rec.Body.String(), "item-2")
}

// Live-pair clips never surface in the main grid.
func TestHandleListItems_HidesLiveComponents(t *testing.T) {
	s, st, lib := storeServer(t)
	seedItem(t, st, lib, "still-1", "img.heic", store.StatusQueued)
	seedItem(t, st, lib, "clip-1", "img.mov", store.StatusQueued)
	require.NoError(t, st.MarkLivePair(context.Background(), "still-1", "clip-1", "pair-1"))

	req := httptest.NewRequest(http.MethodGet, "/media", nil)
	rec := httptest.NewRecorder()
	s.handleListItems("")(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "still-1")
	assert.NotContains(t, rec.Body.String(), `"id":"clip-1"`)
}

// Given: a FAILED item
// When: POST /videos/{id}/retry
// Then: it returns to QUEUED with its error cleared
func TestHandleRetryItem_RequeuesFailed(t *testing.T) {
	s, st, lib := storeServer(t)
	seedItem(t, st, lib, "item-1", "a.mp4", store.StatusQueued)
	require.NoError(t, st.SetItemError(context.Background(), "item-1", "FFMPEG_ERROR", "decode failed"))

	req := httptest.NewRequest(http.MethodPost, "/videos/item-1/retry", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "item-1")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rec := httptest.NewRecorder()

	s.handleRetryItem(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := st.GetItem(context.Background(), "item-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusQueued, got.Status)
	assert.Empty(t, got.ErrorCode)
}

// Retrying an item that isn't FAILED or CANCELLED is a conflict.
func TestHandleRetryItem_RejectsQueuedItem(t *testing.T) {
	s, st, lib := storeServer(t)
	seedItem(t, st, lib, "item-1", "a.mp4", store.StatusQueued)

	req := httptest.NewRequest(http.MethodPost, "/videos/item-1/retry", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "item-1")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rec := httptest.NewRecorder()

	s.handleRetryItem(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleGroupedMedia_GroupsByYearMonth(t *testing.T) {
	s, st, lib := storeServer(t)
	jan := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	jun := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	a := seedItem(t, st, lib, "item-1", "a.mp4", store.StatusQueued)
	b := seedItem(t, st, lib, "item-2", "b.mp4", store.StatusQueued)
	require.NoError(t, st.SetItemMetadataFields(context.Background(), a.ID, store.ItemMetadataFields{CreationTime: &jan}))
	require.NoError(t, st.SetItemMetadataFields(context.Background(), b.ID, store.ItemMetadataFields{CreationTime: &jun}))

	req := httptest.NewRequest(http.MethodGet, "/media/grouped", nil)
	rec := httptest.NewRecorder()
	s.handleGroupedMedia(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"year_month":"2025-01"`)
	assert.Contains(t, body, `"year_month":"2025-06"`)
}
