package ml

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloader_MissingModelsReflectsDisk(t *testing.T) {
	dir := t.TempDir()
	d := NewDownloader(dir, nil, nil)

	missing := d.MissingModels()
	assert.Len(t, missing, len(DefaultModelSpecs))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "speech-base.bin"), []byte("weights"), 0o644))
	missing = d.MissingModels()
	assert.NotContains(t, missing, "speech-base")
	assert.Len(t, missing, len(DefaultModelSpecs)-1)
}

func TestDownloader_StatusForPresentModel(t *testing.T) {
	dir := t.TempDir()
	d := NewDownloader(dir, nil, nil)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "face-model.bin"), []byte("w"), 0o644))

	st := d.Status("face-model")
	assert.True(t, st.Present)
	assert.Equal(t, int64(1), st.SizeBytes)
	assert.False(t, st.Downloading)
}

func TestDownloader_StatusUnknownModel(t *testing.T) {
	d := NewDownloader(t.TempDir(), nil, nil)
	st := d.Status("nope")
	assert.Empty(t, st.Filename)
	assert.NotEmpty(t, st.Error)
}

// Given: offline mode is on
// Then: a download is refused before any request is sent, and the
// blocked hook fires
func TestDownloader_OfflineBlocksDownload(t *testing.T) {
	specs := []ModelSpec{{Name: "m", Filename: "m.bin", URL: "http://example.invalid/m.bin"}}
	d := NewDownloader(t.TempDir(), specs, nil)
	d.Offline = func() bool { return true }

	var blocked []string
	d.OnBlocked = func(url string) { blocked = append(blocked, url) }
	var sent []string
	d.OnRequest = func(url string) { sent = append(sent, url) }

	err := d.Download(context.Background(), "m")
	require.Error(t, err)
	assert.Len(t, blocked, 1)
	assert.Empty(t, sent)
}

func TestDownloader_DownloadWithoutURLFails(t *testing.T) {
	d := NewDownloader(t.TempDir(), nil, nil)
	err := d.Download(context.Background(), "speech-base")
	require.Error(t, err)
}

// Given: a directory holding a subset of catalog model files
// Then: ImportPack copies the recognized ones and names them
func TestDownloader_ImportPack(t *testing.T) {
	packDir := t.TempDir()
	modelsDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(packDir, "visual-embedder.bin"), []byte("vv"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(packDir, "unrelated.txt"), []byte("x"), 0o644))

	d := NewDownloader(modelsDir, nil, nil)
	imported, err := d.ImportPack(packDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"visual-embedder"}, imported)

	data, err := os.ReadFile(filepath.Join(modelsDir, "visual-embedder.bin"))
	require.NoError(t, err)
	assert.Equal(t, []byte("vv"), data)
}

func TestDownloader_ImportPackEmptyDirFails(t *testing.T) {
	d := NewDownloader(t.TempDir(), nil, nil)
	_, err := d.ImportPack(t.TempDir())
	assert.Error(t, err)
}
