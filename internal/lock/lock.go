// Package lock implements advisory, PID-based, cross-process mutual
// exclusion for session log files. Locks are sidecar files created with
// O_EXCL; there is no blocking wait — a conflicting acquisition fails
// immediately, and stale-lock recovery is the only retry path.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Suffix is appended to the session id to name the lock sidecar.
const Suffix = ".lock"

// staleAge guards against PID reuse: a lock older than this is treated as
// stale even if some process with the recorded PID is alive.
const staleAge = 48 * time.Hour

// Lifecycle states persisted in the lock file. A session is implicitly
// materialized once its data file exists; the lock content is not rewritten
// at that point.
const (
	StatePreMaterialization = "pre_materialization"
	StateMaterialized       = "materialized"
)

// ErrInUse reports a lock held by a live process.
var ErrInUse = errors.New("in use")

// Content is the persisted lock record.
type Content struct {
	PID       int    `json:"pid"`
	Timestamp string `json:"timestamp"`
	SessionID string `json:"sessionId"`
	State     string `json:"state"`
}

// Handle owns one on-disk lock file for its lifetime.
type Handle struct {
	LockPath string

	releaseOnce sync.Once
}

// Release removes the lock file. Idempotent and best-effort: a removal
// failure is ignored, the lock will age out as stale.
func (h *Handle) Release() {
	h.releaseOnce.Do(func() {
		_ = os.Remove(h.LockPath)
	})
}

// Path returns the deterministic lock sidecar path for a session.
func Path(dir, sessionID string) string {
	return filepath.Join(dir, sessionID+Suffix)
}

// Acquire creates the lock file for (dir, sessionID) with exclusive
// semantics. A missing parent directory is created and the creation retried;
// an existing stale lock is removed and the creation retried once; an
// existing live lock fails with ErrInUse.
func Acquire(dir, sessionID string) (*Handle, error) {
	path := Path(dir, sessionID)
	retriedStale := false

	for {
		created, err := tryCreate(path, sessionID)
		if err != nil {
			return nil, err
		}
		if created {
			return &Handle{LockPath: path}, nil
		}
		if !retriedStale && IsStale(path) {
			_ = os.Remove(path)
			retriedStale = true
			continue
		}
		return nil, fmt.Errorf("session %s is %w by another process (lock: %s)", sessionID, ErrInUse, path)
	}
}

func tryCreate(path, sessionID string) (bool, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if os.IsNotExist(err) {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return false, fmt.Errorf("create lock directory: %w", mkErr)
		}
		f, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	}
	if os.IsExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}

	content := Content{
		PID:       os.Getpid(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		SessionID: sessionID,
		State:     StatePreMaterialization,
	}
	encoded, err := json.Marshal(content)
	if err == nil {
		_, err = f.Write(append(encoded, '\n'))
	}
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return false, fmt.Errorf("write lock content: %w", err)
	}
	return true, nil
}

// IsStale reports whether the lock at path can be reclaimed: its content is
// unreadable or unparseable, its owning process is dead, or it is older than
// the PID-reuse trust threshold.
func IsStale(path string) bool {
	return isStaleAt(path, time.Now().UTC())
}

func isStaleAt(path string, now time.Time) bool {
	raw, err := os.ReadFile(path)
	if err != nil {
		return true
	}
	var content Content
	if err := json.Unmarshal(raw, &content); err != nil {
		return true
	}
	if content.PID <= 0 {
		return true
	}
	alive, err := process.PidExists(int32(content.PID))
	if err == nil && !alive {
		return true
	}
	created, err := time.Parse(time.RFC3339, content.Timestamp)
	if err != nil {
		return true
	}
	return now.Sub(created) > staleAge
}

// IsLocked reports whether a live (non-stale) lock exists for the session.
func IsLocked(dir, sessionID string) bool {
	path := Path(dir, sessionID)
	if _, err := os.Stat(path); err != nil {
		return false
	}
	return !IsStale(path)
}

// RemoveStale deletes the lock at path if it is stale. Returns true when a
// stale lock was removed.
func RemoveStale(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	if !IsStale(path) {
		return false
	}
	return os.Remove(path) == nil
}

// CleanupOrphaned scans dir for lock sidecars and removes the stale ones.
// Data files are never touched; whether a lock has a corresponding data file
// does not matter here. Returns the number of locks removed. A missing
// directory removes nothing.
func CleanupOrphaned(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("scan lock directory: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != Suffix {
			continue
		}
		if RemoveStale(filepath.Join(dir, e.Name())) {
			removed++
		}
	}
	return removed, nil
}

// Read returns the parsed lock content, mainly for diagnostics.
func Read(path string) (*Content, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lock: %w", err)
	}
	var content Content
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, fmt.Errorf("parse lock: %w", err)
	}
	return &content, nil
}
