package lifecycle

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	enginerrors "github.com/mediaengine/engine/internal/errors"
)

func neverProbes(ctx context.Context, port int, token string) (string, error) {
	return "", assert.AnError
}

// Given: no lockfile present
// Then: Acquire picks a port, writes a fresh lockfile, and succeeds
func TestAcquire_FreshDataRoot_Succeeds(t *testing.T) {
	dir := t.TempDir()
	res, err := Acquire(context.Background(), dir, PortRange{Low: 48100, High: 48199}, os.Getpid(), neverProbes)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Port, 48100)
	assert.LessOrEqual(t, res.Port, 48199)
	assert.NotEmpty(t, res.Token)

	got, ok, err := NewLockfile(dir).Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, res.Port, got.Port)
}

// Given: an existing lockfile whose process answers a healthy probe
// with the same engine_uuid
// Then: Acquire fails with KindAlreadyRunning
func TestAcquire_HealthyMatchingProbe_ReturnsAlreadyRunning(t *testing.T) {
	dir := t.TempDir()
	existing := LockfileData{Port: 48150, Token: "tok", EngineUUID: "same-uuid", EnginePID: os.Getpid(), ParentPID: os.Getpid()}
	require.NoError(t, NewLockfile(dir).Write(existing))

	probe := func(ctx context.Context, port int, token string) (string, error) {
		return "same-uuid", nil
	}

	_, err := Acquire(context.Background(), dir, PortRange{Low: 48100, High: 48199}, os.Getpid(), probe)
	require.Error(t, err)
	assert.Equal(t, enginerrors.KindAlreadyRunning, enginerrors.KindOf(err))
}

// Given: an existing lockfile whose process answers a healthy probe
// with a different engine_uuid than recorded
// Then: Acquire fails with KindConflictingEngine
func TestAcquire_HealthyMismatchedProbe_ReturnsConflicting(t *testing.T) {
	dir := t.TempDir()
	existing := LockfileData{Port: 48150, Token: "tok", EngineUUID: "old-uuid", EnginePID: os.Getpid(), ParentPID: os.Getpid()}
	require.NoError(t, NewLockfile(dir).Write(existing))

	probe := func(ctx context.Context, port int, token string) (string, error) {
		return "different-uuid", nil
	}

	_, err := Acquire(context.Background(), dir, PortRange{Low: 48100, High: 48199}, os.Getpid(), probe)
	require.Error(t, err)
	assert.Equal(t, enginerrors.KindConflictingEngine, enginerrors.KindOf(err))
}

// Given: an existing lockfile referencing a dead PID and an
// unreachable probe
// Then: Acquire treats it as stale, removes it, and starts cleanly
func TestAcquire_StaleLockfileDeadPID_IsRemovedAndReplaced(t *testing.T) {
	dir := t.TempDir()
	existing := LockfileData{Port: 48150, Token: "tok", EngineUUID: "stale-uuid", EnginePID: 4194304, ParentPID: os.Getpid()}
	require.NoError(t, NewLockfile(dir).Write(existing))

	res, err := Acquire(context.Background(), dir, PortRange{Low: 48100, High: 48199}, os.Getpid(), neverProbes)
	require.NoError(t, err)
	assert.NotEqual(t, existing.EngineUUID, res.Manager.Data().EngineUUID)
}

// Given: an existing lockfile referencing a live PID with an
// unreachable probe (process alive but not answering health checks)
// Then: Acquire fails with KindConflictingEngine rather than stomping it
func TestAcquire_LivePIDUnresponsiveProbe_ReturnsConflicting(t *testing.T) {
	dir := t.TempDir()
	existing := LockfileData{Port: 48150, Token: "tok", EngineUUID: "uuid", EnginePID: os.Getpid(), ParentPID: os.Getpid()}
	require.NoError(t, NewLockfile(dir).Write(existing))

	_, err := Acquire(context.Background(), dir, PortRange{Low: 48100, High: 48199}, os.Getpid(), neverProbes)
	require.Error(t, err)
	assert.Equal(t, enginerrors.KindConflictingEngine, enginerrors.KindOf(err))
}

func TestManager_Release_DeletesLockfile(t *testing.T) {
	dir := t.TempDir()
	res, err := Acquire(context.Background(), dir, PortRange{Low: 48100, High: 48199}, os.Getpid(), neverProbes)
	require.NoError(t, err)

	require.NoError(t, res.Manager.Release())
	_, ok, err := NewLockfile(dir).Read()
	require.NoError(t, err)
	assert.False(t, ok)
}
