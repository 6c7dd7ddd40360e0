// Package lifecycle owns the engine's single-instance lockfile, its
// startup and shutdown protocol, the parent-process watchdog, and the
// startup consistency repair pass. Nothing outside this package
// reaches the lockfile or the pause flag directly — they are passed
// explicitly to the components that need them.
package lifecycle

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// LockfileData is the JSON shape written to disk, advertising how a
// supervising shell can reach this engine instance.
type LockfileData struct {
	Port      int       `json:"port"`
	Token     string    `json:"token"`
	EngineUUID string   `json:"engine_uuid"`
	EnginePID int       `json:"engine_pid"`
	ParentPID int       `json:"parent_pid"`
	CreatedAt time.Time `json:"created_at"`
}

// Lockfile wraps a gofrs/flock-guarded JSON file: PID bookkeeping for
// liveness checks, plus flock-based cross-process exclusion while the
// file itself is written. Reads take no lock.
type Lockfile struct {
	path string
	fl   *flock.Flock
}

// LockfilePath returns the conventional path under a data root.
func LockfilePath(dataRoot string) string {
	return filepath.Join(dataRoot, "engine.lock")
}

// NewLockfile creates a Lockfile manager for the given data root.
func NewLockfile(dataRoot string) *Lockfile {
	path := LockfilePath(dataRoot)
	return &Lockfile{path: path, fl: flock.New(path + ".flock")}
}

// Read loads the lockfile's current contents, or (nil, false) if it
// doesn't exist.
func (l *Lockfile) Read() (*LockfileData, bool, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read lockfile: %w", err)
	}
	var lf LockfileData
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, false, fmt.Errorf("failed to parse lockfile: %w", err)
	}
	return &lf, true, nil
}

// Write persists lf with owner-only permissions, guarded by an
// exclusive flock so two engines racing for the same data root never
// interleave writes.
func (l *Lockfile) Write(lf LockfileData) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lockfile directory: %w", err)
	}
	if err := l.fl.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lockfile guard: %w", err)
	}
	defer l.fl.Unlock()

	data, err := json.Marshal(lf)
	if err != nil {
		return fmt.Errorf("failed to marshal lockfile: %w", err)
	}
	return os.WriteFile(l.path, data, 0o600)
}

// Remove deletes the lockfile. Safe to call when it doesn't exist.
func (l *Lockfile) Remove() error {
	err := os.Remove(l.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lockfile: %w", err)
	}
	return nil
}

// NewToken generates a 32-byte URL-safe random token for bearer auth.
func NewToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewEngineUUID returns a fresh engine instance identifier.
func NewEngineUUID() string {
	return uuid.NewString()
}
