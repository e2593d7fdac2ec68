// Package resume orchestrates the session lifecycle: starting a fresh
// recording and reopening a prior session so the conversation continues in
// the same log file.
package resume

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/johns/chatlog/internal/catalog"
	"github.com/johns/chatlog/internal/envelope"
	"github.com/johns/chatlog/internal/lock"
	"github.com/johns/chatlog/internal/replay"
	"github.com/johns/chatlog/internal/writer"
)

// RefLatest selects the newest resumable session instead of a specific one.
const RefLatest = "latest"

// ErrAllLocked means every candidate session is held by a live process.
var ErrAllLocked = errors.New("all sessions are in use")

// Request carries everything needed to start or resume a session.
type Request struct {
	Dir         string
	ProjectHash string
	Ref         string // session reference; "latest" or "" picks the newest free session
	Provider    string // provider of the resuming client, recorded on mismatch
	Model       string
	Log         *logrus.Logger
	Cache       *catalog.Cache
}

func (r *Request) logger() *logrus.Logger {
	if r.Log != nil {
		return r.Log
	}
	return logrus.StandardLogger()
}

// Session is a live, lock-holding recording session. The caller owns the
// writer and the lock and must Dispose/Release them when the session ends.
type Session struct {
	SessionID     string
	History       []envelope.ContentItem
	Metadata      replay.Metadata
	Writer        *writer.Writer
	Lock          *lock.Handle
	Warnings      []string
	SessionEvents []replay.SessionEventRecord
}

// Close releases the session's resources in the right order: pending records
// are flushed before the lock is dropped.
func (s *Session) Close(ctx context.Context) error {
	err := s.Writer.Dispose(ctx)
	s.Lock.Release()
	return err
}

// Start creates a brand-new session: a fresh id, its lock, and a writer that
// has recorded the session_start header (still in memory until the first
// content record materializes the log file).
func Start(req Request, workspaceDirs []string) (*Session, error) {
	sessionID := uuid.NewString()
	handle, err := lock.Acquire(req.Dir, sessionID)
	if err != nil {
		return nil, err
	}

	w := writer.New(req.Dir, sessionID, req.Log)
	started := time.Now().UTC().Format(time.RFC3339)
	w.Enqueue(&envelope.SessionStart{
		SessionID:     sessionID,
		ProjectHash:   req.ProjectHash,
		WorkspaceDirs: workspaceDirs,
		Provider:      req.Provider,
		Model:         req.Model,
		StartTime:     started,
	})

	return &Session{
		SessionID: sessionID,
		Metadata: replay.Metadata{
			SessionID:     sessionID,
			ProjectHash:   req.ProjectHash,
			Provider:      req.Provider,
			Model:         req.Model,
			WorkspaceDirs: workspaceDirs,
			StartedAt:     started,
		},
		Writer: w,
		Lock:   handle,
	}, nil
}

// Resume reopens an existing session. The reference is resolved against the
// newest-first catalog; "latest" (or an empty ref) picks the newest session
// not held by another process. The session is locked, its history replayed,
// and its writer rebound so new records continue the sequence.
func Resume(req Request) (*Session, error) {
	cat := &catalog.Catalog{
		Dir:         req.Dir,
		ProjectHash: req.ProjectHash,
		Cache:       req.Cache,
		Log:         req.Log,
	}
	summaries, err := cat.List()
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, fmt.Errorf("%w: no sessions recorded", catalog.ErrNotFound)
	}

	target, err := pickTarget(req, summaries)
	if err != nil {
		return nil, err
	}

	handle, err := lock.Acquire(req.Dir, target.SessionID)
	if err != nil {
		return nil, err
	}

	result, err := replay.Session(target.FilePath, req.ProjectHash)
	if err != nil {
		handle.Release()
		return nil, fmt.Errorf("replay session %s: %w", target.SessionID, err)
	}

	w := writer.New(req.Dir, target.SessionID, req.Log)
	if err := w.InitializeForResume(target.FilePath, result.LastSeq); err != nil {
		handle.Release()
		return nil, err
	}

	warnings := result.Warnings
	if switched, ev := providerSwitch(result.Metadata, req); switched {
		warnings = append(warnings, fmt.Sprintf(
			"session was recorded with %s/%s, resuming with %s/%s",
			result.Metadata.Provider, result.Metadata.Model, req.Provider, req.Model))
		w.Enqueue(ev)
	}
	w.Enqueue(&envelope.SessionEvent{
		Severity: envelope.SeverityInfo,
		Message:  "session resumed",
	})

	req.logger().WithFields(logrus.Fields{
		"session_id": target.SessionID,
		"records":    result.EventCount,
		"turns":      len(result.History),
	}).Info("session resumed")

	return &Session{
		SessionID:     target.SessionID,
		History:       result.History,
		Metadata:      result.Metadata,
		Writer:        w,
		Lock:          handle,
		Warnings:      warnings,
		SessionEvents: result.SessionEvents,
	}, nil
}

// pickTarget resolves the request's reference. The latest-session sentinel
// skips sessions locked by live processes; an explicit reference does not —
// the subsequent Acquire reports the conflict.
func pickTarget(req Request, summaries []catalog.Summary) (*catalog.Summary, error) {
	if req.Ref != "" && req.Ref != RefLatest {
		return catalog.ResolveRef(req.Ref, summaries)
	}
	for i := range summaries {
		if !lock.IsLocked(req.Dir, summaries[i].SessionID) {
			return &summaries[i], nil
		}
	}
	return nil, ErrAllLocked
}

// providerSwitch reports whether the resuming client differs from the
// recorded provider or model, and the record to append when it does. Empty
// request fields mean "keep whatever the session used" and never count as a
// switch.
func providerSwitch(meta replay.Metadata, req Request) (bool, *envelope.ProviderSwitch) {
	provider := req.Provider
	model := req.Model
	if provider == "" && model == "" {
		return false, nil
	}
	if provider == "" {
		provider = meta.Provider
	}
	if model == "" {
		model = meta.Model
	}
	if provider == meta.Provider && model == meta.Model {
		return false, nil
	}
	return true, &envelope.ProviderSwitch{Provider: provider, Model: model}
}
