// Package writer appends session records to a per-session JSONL log.
// Enqueue never blocks: records go onto an in-memory queue and a single
// background drain pass writes them in FIFO order. The log file is not
// created until the first content record arrives; everything enqueued before
// that is buffered in memory and drained ahead of it in original order.
package writer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/johns/chatlog/internal/envelope"
)

// FileSuffix names session log files: <sessionID>.jsonl.
const FileSuffix = ".jsonl"

// Writer is the single legitimate appender for one session log. All methods
// are safe for concurrent use; only the drain loop touches the disk.
type Writer struct {
	dir       string
	sessionID string
	log       *logrus.Logger
	now       func() time.Time

	mu        sync.Mutex
	seq       uint64
	filePath  string // empty until materialization
	buffer    [][]byte
	queue     [][]byte
	active    bool
	disposed  bool
	draining  bool
	drainDone chan struct{}
}

// New returns a writer for a session that does not exist on disk yet.
func New(dir, sessionID string, log *logrus.Logger) *Writer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Writer{
		dir:       dir,
		sessionID: sessionID,
		log:       log,
		now:       time.Now,
		active:    true,
	}
}

// Enqueue appends one event to the writer's queue and returns immediately.
// It is a no-op once the writer has been disabled or disposed. A session
// start or metadata record enqueued before the first content record is
// buffered; the first content record materializes the file and schedules the
// buffer plus itself for a single drain pass.
func (w *Writer) Enqueue(ev envelope.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.active {
		return
	}

	w.seq++
	line, err := envelope.Encode(w.seq, w.now().UTC().Format(time.RFC3339), ev)
	if err != nil {
		w.seq--
		w.log.WithError(err).WithField("session_id", w.sessionID).Error("dropping unencodable record")
		return
	}

	if w.filePath == "" {
		if ev.Kind() != envelope.KindContent {
			w.buffer = append(w.buffer, line)
			return
		}
		// Materialization: the buffered records drain first, in the
		// exact order they were enqueued.
		w.filePath = filepath.Join(w.dir, w.sessionID+FileSuffix)
		w.queue = append(w.queue, w.buffer...)
		w.buffer = nil
	}

	w.queue = append(w.queue, line)
	w.kickDrain()
}

// kickDrain starts the background drain loop if it is not already running.
// Caller holds w.mu.
func (w *Writer) kickDrain() {
	if w.draining {
		return
	}
	w.draining = true
	w.drainDone = make(chan struct{})
	go w.drain(w.drainDone)
}

// drain writes queued batches until the queue is empty, then parks. Exactly
// one drain runs at a time; records enqueued mid-pass are picked up by the
// next iteration rather than by a concurrent pass.
func (w *Writer) drain(done chan struct{}) {
	for {
		w.mu.Lock()
		if !w.active || len(w.queue) == 0 {
			w.draining = false
			w.drainDone = nil
			w.mu.Unlock()
			close(done)
			return
		}
		batch := w.queue
		w.queue = nil
		path := w.filePath
		w.mu.Unlock()

		if err := appendBatch(path, batch); err != nil {
			w.deactivate(err)
			close(done)
			return
		}
	}
}

// deactivate permanently disables recording for this session and discards
// whatever is still queued. Nothing is raised to the enqueuing caller.
func (w *Writer) deactivate(cause error) {
	w.mu.Lock()
	w.active = false
	w.queue = nil
	w.buffer = nil
	w.draining = false
	w.drainDone = nil
	w.mu.Unlock()

	w.log.WithError(cause).WithFields(logrus.Fields{
		"session_id": w.sessionID,
		"reason":     classifyWriteError(cause),
	}).Warn("session recording disabled")
}

func classifyWriteError(err error) string {
	switch {
	case errors.Is(err, syscall.ENOSPC):
		return "disk full"
	case errors.Is(err, os.ErrPermission):
		return "permission denied"
	default:
		return "write failure"
	}
}

func appendBatch(path string, batch [][]byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open session log: %w", err)
	}
	for _, line := range batch {
		if _, err := f.Write(line); err != nil {
			_ = f.Close()
			return fmt.Errorf("append session log: %w", err)
		}
		if _, err := f.Write([]byte{'\n'}); err != nil {
			_ = f.Close()
			return fmt.Errorf("append session log: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync session log: %w", err)
	}
	return f.Close()
}

// Flush blocks until every record enqueued before the call is durably on
// disk, or the writer has gone inactive, or ctx expires. Buffered
// pre-materialization records are not written by Flush; only materialization
// schedules them.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	done := w.drainDone
	w.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active reports whether the writer is still recording. A disk-write failure
// or Dispose turns it false for the remainder of the session.
func (w *Writer) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// FilePath returns the on-disk log path, or "" before materialization.
func (w *Writer) FilePath() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.filePath
}

// SessionID returns the session identity this writer appends for.
func (w *Writer) SessionID() string {
	return w.sessionID
}

// InitializeForResume rebinds the writer to an existing log file and
// continues sequence numbering from lastSeq+1. The writer is considered
// materialized: the next enqueued record of any kind is appended directly.
func (w *Writer) InitializeForResume(filePath string, lastSeq uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.disposed {
		return fmt.Errorf("writer for session %s is disposed", w.sessionID)
	}
	w.filePath = filePath
	w.seq = lastSeq
	w.buffer = nil
	w.active = true
	return nil
}

// Dispose flushes pending records and permanently deactivates the writer.
func (w *Writer) Dispose(ctx context.Context) error {
	err := w.Flush(ctx)

	w.mu.Lock()
	w.active = false
	w.disposed = true
	w.buffer = nil
	w.queue = nil
	w.mu.Unlock()

	return err
}
