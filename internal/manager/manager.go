// Package manager implements destructive session maintenance: deleting
// sessions, retiring them to the archive, and restoring archived ones. Every
// operation respects the advisory lock protocol — a session held by a live
// process is never touched.
package manager

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/johns/chatlog/internal/archive"
	"github.com/johns/chatlog/internal/catalog"
	"github.com/johns/chatlog/internal/lock"
)

// Manager operates on one project's session store.
type Manager struct {
	Dir         string
	ArchiveDir  string
	ProjectHash string
	Cache       *catalog.Cache
	Log         *logrus.Logger
}

func (m *Manager) logger() *logrus.Logger {
	if m.Log != nil {
		return m.Log
	}
	return logrus.StandardLogger()
}

func (m *Manager) catalog() *catalog.Catalog {
	return &catalog.Catalog{
		Dir:         m.Dir,
		ProjectHash: m.ProjectHash,
		Cache:       m.Cache,
		Log:         m.Log,
	}
}

// resolve maps a session reference onto a catalog entry and verifies no live
// process holds it. A stale lock is reclaimed on the spot.
func (m *Manager) resolve(ref string) (*catalog.Summary, error) {
	summaries, err := m.catalog().List()
	if err != nil {
		return nil, err
	}
	target, err := catalog.ResolveRef(ref, summaries)
	if err != nil {
		return nil, err
	}

	lockPath := lock.Path(m.Dir, target.SessionID)
	if lock.RemoveStale(lockPath) {
		m.logger().WithField("session_id", target.SessionID).Info("reclaimed stale lock")
	}
	if lock.IsLocked(m.Dir, target.SessionID) {
		return nil, fmt.Errorf("session %s is %w by another process", target.SessionID, lock.ErrInUse)
	}
	return target, nil
}

// Delete permanently removes a session's log and lock sidecar. Blocked while
// another process holds the session.
func (m *Manager) Delete(ref string) error {
	target, err := m.resolve(ref)
	if err != nil {
		return err
	}

	if err := os.Remove(target.FilePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete session log: %w", err)
	}
	_ = os.Remove(lock.Path(m.Dir, target.SessionID))
	if m.Cache != nil {
		m.Cache.Forget(target.FilePath)
	}

	m.logger().WithField("session_id", target.SessionID).Info("session deleted")
	return nil
}

// ArchiveSession compresses a session into the archive directory and removes
// the original log. Blocked while another process holds the session.
func (m *Manager) ArchiveSession(ref string) (string, error) {
	target, err := m.resolve(ref)
	if err != nil {
		return "", err
	}
	return m.archiveOne(target)
}

func (m *Manager) archiveOne(target *catalog.Summary) (string, error) {
	archivePath, err := archive.Compress(target.FilePath, m.ArchiveDir)
	if err != nil {
		return "", err
	}
	if err := os.Remove(target.FilePath); err != nil {
		// The archive exists but the original could not be removed; leave
		// both rather than risk losing the only good copy.
		return "", fmt.Errorf("remove archived session log: %w", err)
	}
	_ = os.Remove(lock.Path(m.Dir, target.SessionID))
	if m.Cache != nil {
		m.Cache.Forget(target.FilePath)
	}

	m.logger().WithFields(logrus.Fields{
		"session_id": target.SessionID,
		"archive":    archivePath,
	}).Info("session archived")
	return archivePath, nil
}

// ArchiveOlderThan archives every session whose log has not been modified for
// at least maxAge. Locked sessions are skipped, not failed. Returns the
// number of sessions archived.
func (m *Manager) ArchiveOlderThan(maxAge time.Duration) (int, error) {
	summaries, err := m.catalog().List()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	archived := 0
	for i := range summaries {
		s := &summaries[i]
		if s.LastModified.After(cutoff) {
			continue
		}
		if lock.IsLocked(m.Dir, s.SessionID) {
			m.logger().WithField("session_id", s.SessionID).Debug("skipping locked session during archive sweep")
			continue
		}
		if _, err := m.archiveOne(s); err != nil {
			return archived, err
		}
		archived++
	}
	return archived, nil
}

// Restore decompresses an archived session back into the live store so it can
// be resumed again. The archive copy is removed on success.
func (m *Manager) Restore(sessionID string) (string, error) {
	archivePath := archive.Path(sessionID, m.ArchiveDir)
	restored, err := archive.Restore(archivePath, m.Dir)
	if err != nil {
		return "", err
	}
	_ = os.Remove(archivePath)

	m.logger().WithField("session_id", sessionID).Info("session restored from archive")
	return restored, nil
}

// CleanupLocks removes stale lock files from the session directory without
// touching any session log. Returns the number removed.
func (m *Manager) CleanupLocks() (int, error) {
	return lock.CleanupOrphaned(m.Dir)
}
