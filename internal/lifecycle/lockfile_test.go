package lifecycle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockfile_WriteThenRead_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	lf := NewLockfile(dir)

	data := LockfileData{
		Port:       48123,
		Token:      "tok",
		EngineUUID: "uuid-1",
		EnginePID:  os.Getpid(),
		ParentPID:  os.Getppid(),
	}
	require.NoError(t, lf.Write(data))

	got, ok, err := lf.Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, data.Port, got.Port)
	assert.Equal(t, data.Token, got.Token)
	assert.Equal(t, data.EngineUUID, got.EngineUUID)
}

func TestLockfile_Read_MissingFileReturnsNotOK(t *testing.T) {
	dir := t.TempDir()
	lf := NewLockfile(dir)

	got, ok, err := lf.Read()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestLockfile_Write_IsOwnerOnlyPermissions(t *testing.T) {
	dir := t.TempDir()
	lf := NewLockfile(dir)
	require.NoError(t, lf.Write(LockfileData{Port: 1, Token: "t"}))

	info, err := os.Stat(LockfilePath(dir))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLockfile_Remove_SafeWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	lf := NewLockfile(dir)
	assert.NoError(t, lf.Remove())
}

func TestLockfile_Remove_DeletesFile(t *testing.T) {
	dir := t.TempDir()
	lf := NewLockfile(dir)
	require.NoError(t, lf.Write(LockfileData{Port: 1, Token: "t"}))
	require.NoError(t, lf.Remove())

	_, err := os.Stat(LockfilePath(dir))
	assert.True(t, os.IsNotExist(err))
}

func TestNewToken_ProducesDistinctURLSafeTokens(t *testing.T) {
	a, err := NewToken()
	require.NoError(t, err)
	b, err := NewToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "+")
	assert.NotContains(t, a, "/")
}

func TestLockfilePath_IsUnderDataRoot(t *testing.T) {
	assert.Equal(t, filepath.Join("/data", "engine.lock"), LockfilePath("/data"))
}
