package lock

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSessionID = "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"

func writeLock(t *testing.T, dir string, content Content) string {
	t.Helper()
	raw, err := json.Marshal(content)
	if err != nil {
		t.Fatal(err)
	}
	path := Path(dir, testSessionID)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAcquireRelease(t *testing.T) {
	dir := t.TempDir()

	h, err := Acquire(dir, testSessionID)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	content, err := Read(h.LockPath)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if content.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", content.PID, os.Getpid())
	}
	if content.SessionID != testSessionID {
		t.Errorf("SessionID = %q", content.SessionID)
	}
	if content.State != StatePreMaterialization {
		t.Errorf("State = %q", content.State)
	}

	h.Release()
	if _, err := os.Stat(h.LockPath); !os.IsNotExist(err) {
		t.Error("lock file should be gone after Release")
	}

	// Idempotent.
	h.Release()
}

func TestAcquireConflict(t *testing.T) {
	dir := t.TempDir()

	h, err := Acquire(dir, testSessionID)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer h.Release()

	_, err = Acquire(dir, testSessionID)
	if !errors.Is(err, ErrInUse) {
		t.Fatalf("second Acquire err = %v, want ErrInUse", err)
	}
	if !strings.Contains(err.Error(), "in use") {
		t.Errorf("error message %q should contain %q", err.Error(), "in use")
	}
}

func TestAcquireCreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sessions", "deadbeef")

	h, err := Acquire(dir, testSessionID)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer h.Release()

	if _, err := os.Stat(h.LockPath); err != nil {
		t.Errorf("lock file missing: %v", err)
	}
}

func TestStaleDeadPID(t *testing.T) {
	dir := t.TempDir()
	// PID far beyond any real pid_max.
	path := writeLock(t, dir, Content{
		PID:       1 << 28,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		SessionID: testSessionID,
		State:     StatePreMaterialization,
	})

	if !IsStale(path) {
		t.Error("lock with a dead PID should be stale")
	}

	// Stale locks are reclaimable.
	h, err := Acquire(dir, testSessionID)
	if err != nil {
		t.Fatalf("Acquire over stale lock: %v", err)
	}
	h.Release()
}

func TestStaleUnparseable(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir, testSessionID)
	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	if !IsStale(path) {
		t.Error("unparseable lock should be stale")
	}
}

func TestStaleByAgeDespiteLivePID(t *testing.T) {
	dir := t.TempDir()
	path := writeLock(t, dir, Content{
		PID:       os.Getpid(),
		Timestamp: time.Now().UTC().Add(-49 * time.Hour).Format(time.RFC3339),
		SessionID: testSessionID,
		State:     StatePreMaterialization,
	})

	if !IsStale(path) {
		t.Error("lock older than the trust threshold should be stale even with a live PID")
	}
}

func TestNotStaleWhenFresh(t *testing.T) {
	dir := t.TempDir()
	path := writeLock(t, dir, Content{
		PID:       os.Getpid(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		SessionID: testSessionID,
		State:     StatePreMaterialization,
	})

	if IsStale(path) {
		t.Error("fresh lock owned by a live process should not be stale")
	}
	if !IsLocked(dir, testSessionID) {
		t.Error("IsLocked should report a live lock")
	}
}

func TestCleanupOrphaned(t *testing.T) {
	dir := t.TempDir()

	// One live lock.
	live, err := Acquire(dir, "live-session")
	if err != nil {
		t.Fatal(err)
	}
	defer live.Release()

	// One dead-PID lock and one corrupt lock.
	writeLock(t, dir, Content{PID: 1 << 28, Timestamp: time.Now().UTC().Format(time.RFC3339), SessionID: testSessionID})
	if err := os.WriteFile(Path(dir, "corrupt-session"), []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	// A data file that must never be touched.
	dataPath := filepath.Join(dir, "live-session.jsonl")
	if err := os.WriteFile(dataPath, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	removed, err := CleanupOrphaned(dir)
	if err != nil {
		t.Fatalf("CleanupOrphaned: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if _, err := os.Stat(live.LockPath); err != nil {
		t.Error("live lock should survive cleanup")
	}
	if _, err := os.Stat(dataPath); err != nil {
		t.Error("data file should survive cleanup")
	}
}

func TestCleanupOrphanedMissingDir(t *testing.T) {
	removed, err := CleanupOrphaned(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("CleanupOrphaned: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
}
