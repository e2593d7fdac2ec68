// Package replay reconstructs conversation state from a session log. It
// streams the file line by line and tolerates corruption: bad records are
// skipped with a warning, and a parse failure on the final line is treated
// as crash truncation and not reported at all.
package replay

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/johns/chatlog/internal/archive"
	"github.com/johns/chatlog/internal/envelope"
)

var (
	// ErrNoSessionStart means the log has no usable session_start record
	// and cannot anchor a session.
	ErrNoSessionStart = errors.New("no session_start record found")

	// ErrProjectHashMismatch means the log belongs to a different project
	// than the caller expected.
	ErrProjectHashMismatch = errors.New("project hash mismatch")
)

// malformedRateThreshold triggers a single summary warning when exceeded.
// The rate is computed over known event types only.
const malformedRateThreshold = 0.05

// Metadata is the session identity and settings derived during replay.
// provider_switch and directories_changed records update it in place.
type Metadata struct {
	SessionID     string
	ProjectHash   string
	Provider      string
	Model         string
	WorkspaceDirs []string
	StartedAt     string
}

// SessionEventRecord is one operational notice collected during replay.
// These never enter History.
type SessionEventRecord struct {
	Message   string
	Severity  envelope.Severity
	Timestamp string
	Seq       uint64
}

// Result is a successful replay.
type Result struct {
	History       []envelope.ContentItem
	Metadata      Metadata
	LastSeq       uint64
	EventCount    int
	Warnings      []string
	SessionEvents []SessionEventRecord
}

// Session replays the log at path. expectedProjectHash, when non-empty, is
// checked against the session_start record; a mismatch is fatal. Archived
// (.zst) logs are decompressed transparently.
func Session(path, expectedProjectHash string) (*Result, error) {
	reader, err := openLog(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	res := &Result{}
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024) // 10MB max line

	var (
		lineNo             int
		firstLine          = true
		sawRecord          bool
		haveStart          bool
		total              int
		malformed          int
		unknown            int
		pendingUnparseable int // line number, 0 when none pending
	)

	warnf := func(format string, args ...any) {
		res.Warnings = append(res.Warnings, fmt.Sprintf(format, args...))
	}

	trackSeq := func(env envelope.Envelope, line int) {
		if env.Seq <= res.LastSeq {
			warnf("line %d: sequence %d out of order after %d", line, env.Seq, res.LastSeq)
			return
		}
		res.LastSeq = env.Seq
	}

	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if firstLine {
			firstLine = false
			text = strings.TrimPrefix(text, "\uFEFF")
		}
		if text == "" {
			continue
		}

		// The previous unparseable line turned out not to be the last
		// one, so it was mid-file corruption, not truncation.
		if pendingUnparseable != 0 {
			warnf("line %d: unparseable record skipped", pendingUnparseable)
			pendingUnparseable = 0
		}

		env, err := envelope.Decode([]byte(text))
		switch {
		case errors.Is(err, envelope.ErrUnknownKind):
			total++
			unknown++
			warnf("line %d: unknown event type %q skipped", lineNo, env.Type)
			trackSeq(env, lineNo)
			continue
		case errors.Is(err, envelope.ErrMalformedPayload):
			total++
			malformed++
			warnf("line %d: malformed %s payload skipped", lineNo, env.Type)
			trackSeq(env, lineNo)
			continue
		case err != nil:
			pendingUnparseable = lineNo
			continue
		}

		total++
		trackSeq(env, lineNo)
		firstRecord := !sawRecord
		sawRecord = true

		switch p := env.Payload.(type) {
		case *envelope.SessionStart:
			if haveStart || !firstRecord {
				warnf("line %d: unexpected session_start ignored", lineNo)
				continue
			}
			if p.SessionID == "" {
				warnf("line %d: session_start missing sessionId", lineNo)
				continue
			}
			if expectedProjectHash != "" && p.ProjectHash != expectedProjectHash {
				return nil, fmt.Errorf("%w: log has %q, expected %q",
					ErrProjectHashMismatch, p.ProjectHash, expectedProjectHash)
			}
			haveStart = true
			res.Metadata = Metadata{
				SessionID:     p.SessionID,
				ProjectHash:   p.ProjectHash,
				Provider:      p.Provider,
				Model:         p.Model,
				WorkspaceDirs: p.WorkspaceDirs,
				StartedAt:     p.StartTime,
			}

		case *envelope.Content:
			if p.Item == nil {
				malformed++
				warnf("line %d: content record missing item", lineNo)
				continue
			}
			res.History = append(res.History, *p.Item)

		case *envelope.Compressed:
			if p.Summary == nil || p.CompressedCount == nil {
				malformed++
				warnf("line %d: compressed record missing summary or compressedCount", lineNo)
				continue
			}
			res.History = []envelope.ContentItem{*p.Summary}

		case *envelope.Rewind:
			if p.Count == nil || *p.Count < 0 {
				malformed++
				warnf("line %d: rewind record with missing or negative count", lineNo)
				continue
			}
			n := *p.Count
			if n > len(res.History) {
				n = len(res.History)
			}
			res.History = res.History[:len(res.History)-n]

		case *envelope.ProviderSwitch:
			if p.Provider == "" {
				malformed++
				warnf("line %d: provider_switch missing provider", lineNo)
				continue
			}
			res.Metadata.Provider = p.Provider
			if p.Model != "" {
				res.Metadata.Model = p.Model
			}

		case *envelope.DirectoriesChanged:
			if len(p.WorkspaceDirs) == 0 {
				malformed++
				warnf("line %d: directories_changed missing workspaceDirs", lineNo)
				continue
			}
			res.Metadata.WorkspaceDirs = p.WorkspaceDirs

		case *envelope.SessionEvent:
			res.SessionEvents = append(res.SessionEvents, SessionEventRecord{
				Message:   p.Message,
				Severity:  p.Severity,
				Timestamp: env.TS,
				Seq:       env.Seq,
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read session log: %w", err)
	}
	// A pending parse failure at EOF is crash truncation: silently dropped.

	if !haveStart {
		return nil, fmt.Errorf("%s: %w", path, ErrNoSessionStart)
	}

	res.EventCount = total
	if known := total - unknown; known > 0 {
		if rate := float64(malformed) / float64(known); rate > malformedRateThreshold {
			warnf("%d of %d known records malformed (%.0f%%)", malformed, known, rate*100)
		}
	}
	return res, nil
}

// ReadHeader reads only the first line of a session log and returns its
// metadata, or nil when the file does not begin with a usable session_start
// record. A leading byte-order mark is tolerated.
func ReadHeader(path string) (*Metadata, error) {
	reader, err := openLog(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	if !scanner.Scan() {
		return nil, nil
	}
	text := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\uFEFF"))
	if text == "" {
		return nil, nil
	}

	env, err := envelope.Decode([]byte(text))
	if err != nil {
		return nil, nil
	}
	start, ok := env.Payload.(*envelope.SessionStart)
	if !ok || start.SessionID == "" {
		return nil, nil
	}
	return &Metadata{
		SessionID:     start.SessionID,
		ProjectHash:   start.ProjectHash,
		Provider:      start.Provider,
		Model:         start.Model,
		WorkspaceDirs: start.WorkspaceDirs,
		StartedAt:     start.StartTime,
	}, nil
}

func openLog(path string) (io.ReadCloser, error) {
	if archive.IsArchivePath(path) {
		return archive.OpenReader(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}
	return f, nil
}
