package api

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathWithin_AcceptsContainedPaths(t *testing.T) {
	root := t.TempDir()
	abs, ok := pathWithin(root, filepath.Join(root, "item-1", "frame_0.jpg"))
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(root, "item-1", "frame_0.jpg"), abs)
}

func TestPathWithin_RejectsTraversal(t *testing.T) {
	root := t.TempDir()
	_, ok := pathWithin(root, filepath.Join(root, "..", "escape.jpg"))
	assert.False(t, ok)

	_, ok = pathWithin(root, "/etc/passwd")
	assert.False(t, ok)
}

func TestPathWithin_RootItselfIsContained(t *testing.T) {
	root := t.TempDir()
	_, ok := pathWithin(root, root)
	assert.True(t, ok)
}

// Given: a face crop inside the faces directory and a path outside it
// Then: the contained file is served; the escape attempt is forbidden
func TestServeContained_EnforcesFacesDirectory(t *testing.T) {
	s := testServer(t)
	facesDir := s.d.Config.FacesDir()
	require.NoError(t, os.MkdirAll(filepath.Join(facesDir, "item-1"), 0o755))
	crop := filepath.Join(facesDir, "item-1", "face_0.jpg")
	require.NoError(t, os.WriteFile(crop, []byte("jpeg-bytes"), 0o644))

	// Outside the faces dir but inside the data root.
	outside := filepath.Join(s.d.Config.DataRoot, "engine.db")
	require.NoError(t, os.WriteFile(outside, []byte("db"), 0o644))

	req := httptest.NewRequest(http.MethodGet, "/assets/face?path="+url.QueryEscape(crop), nil)
	rec := httptest.NewRecorder()
	s.handleAssetFace(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpeg-bytes", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/assets/face?path="+url.QueryEscape(outside), nil)
	rec = httptest.NewRecorder()
	s.handleAssetFace(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// Relative paths resolve against the containment root, so a bare
// "item-1/frame_0.jpg" works without the client knowing the data root.
func TestServeContained_RelativePath(t *testing.T) {
	s := testServer(t)
	thumbs := s.d.Config.ThumbnailsDir()
	require.NoError(t, os.MkdirAll(filepath.Join(thumbs, "item-1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(thumbs, "item-1", "frame_0.jpg"), []byte("t"), 0o644))

	req := httptest.NewRequest(http.MethodGet, "/assets/thumbnail?path=item-1%2Fframe_0.jpg", nil)
	rec := httptest.NewRecorder()
	s.handleAssetThumbnail(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServeContained_MissingPathParam(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/assets/thumbnail", nil)
	rec := httptest.NewRecorder()
	s.handleAssetThumbnail(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
