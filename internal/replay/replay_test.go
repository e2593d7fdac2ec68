package replay

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/johns/chatlog/internal/archive"
	"github.com/johns/chatlog/internal/envelope"
)

const testSessionID = "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"

func startLine(seq int) string {
	return fmt.Sprintf(`{"v":1,"seq":%d,"ts":"2026-08-23T10:00:00Z","type":"session_start","payload":{"sessionId":%q,"projectHash":"deadbeef","workspaceDirs":["/w"],"provider":"anthropic","model":"m1","startTime":"2026-08-23T10:00:00Z"}}`, seq, testSessionID)
}

func contentLine(seq int, speaker, text string) string {
	return fmt.Sprintf(`{"v":1,"seq":%d,"ts":"2026-08-23T10:00:01Z","type":"content","payload":{"item":{"speaker":%q,"blocks":[{"type":"text","text":%q}]}}}`, seq, speaker, text)
}

func writeLog(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), testSessionID+".jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func hasWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestReplayBasicSession(t *testing.T) {
	path := writeLog(t,
		startLine(1),
		contentLine(2, "user", "hello"),
		contentLine(3, "assistant", "hi there"),
	)

	res, err := Session(path, "deadbeef")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if len(res.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(res.History))
	}
	if res.History[0].Speaker != "user" || res.History[1].Speaker != "assistant" {
		t.Errorf("speakers = %q, %q", res.History[0].Speaker, res.History[1].Speaker)
	}
	if res.LastSeq != 3 {
		t.Errorf("LastSeq = %d, want 3", res.LastSeq)
	}
	if res.EventCount != 3 {
		t.Errorf("EventCount = %d, want 3", res.EventCount)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}
	if res.Metadata.SessionID != testSessionID || res.Metadata.Provider != "anthropic" {
		t.Errorf("metadata = %+v", res.Metadata)
	}
}

func TestReplayCompactionInvariant(t *testing.T) {
	// 5 content records, one compressed(count=5), 2 more -> exactly 3 items.
	lines := []string{startLine(1)}
	seq := 2
	for i := 0; i < 5; i++ {
		lines = append(lines, contentLine(seq, "user", fmt.Sprintf("turn %d", i)))
		seq++
	}
	lines = append(lines, fmt.Sprintf(`{"v":1,"seq":%d,"ts":"t","type":"compressed","payload":{"summary":{"speaker":"assistant","blocks":[{"type":"text","text":"summary"}]},"compressedCount":5}}`, seq))
	seq++
	lines = append(lines, contentLine(seq, "user", "after one"), contentLine(seq+1, "assistant", "after two"))

	res, err := Session(writeLog(t, lines...), "")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if len(res.History) != 3 {
		t.Fatalf("history length = %d, want 3", len(res.History))
	}
	if res.History[0].Blocks[0].Text != "summary" {
		t.Errorf("first item should be the summary, got %+v", res.History[0])
	}
}

func TestReplayRewind(t *testing.T) {
	path := writeLog(t,
		startLine(1),
		contentLine(2, "user", "a"),
		contentLine(3, "assistant", "b"),
		contentLine(4, "user", "c"),
		`{"v":1,"seq":5,"ts":"t","type":"rewind","payload":{"count":2}}`,
	)

	res, err := Session(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.History) != 1 {
		t.Fatalf("history length = %d, want 1", len(res.History))
	}
	if res.History[0].Blocks[0].Text != "a" {
		t.Errorf("remaining item = %+v", res.History[0])
	}
}

func TestReplayRewindClampsToZero(t *testing.T) {
	path := writeLog(t,
		startLine(1),
		contentLine(2, "user", "a"),
		`{"v":1,"seq":3,"ts":"t","type":"rewind","payload":{"count":10}}`,
	)

	res, err := Session(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.History) != 0 {
		t.Errorf("history length = %d, want 0", len(res.History))
	}
}

func TestReplayRewindNegativeIsMalformed(t *testing.T) {
	path := writeLog(t,
		startLine(1),
		contentLine(2, "user", "a"),
		`{"v":1,"seq":3,"ts":"t","type":"rewind","payload":{"count":-1}}`,
	)

	res, err := Session(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.History) != 1 {
		t.Errorf("malformed rewind must leave history untouched, length = %d", len(res.History))
	}
	if !hasWarning(res.Warnings, "rewind") {
		t.Errorf("expected rewind warning, got %v", res.Warnings)
	}
}

func TestReplayTruncatedFinalLineIsSilent(t *testing.T) {
	path := filepath.Join(t.TempDir(), testSessionID+".jsonl")
	content := startLine(1) + "\n" + contentLine(2, "user", "complete") + "\n" + `{"v":1,"seq":3,"ts":"2026-0`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := Session(path, "")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if len(res.History) != 1 {
		t.Errorf("history length = %d, want 1", len(res.History))
	}
	if len(res.Warnings) != 0 {
		t.Errorf("truncated final line must not warn, got %v", res.Warnings)
	}
}

func TestReplayMidFileGarbageWarns(t *testing.T) {
	path := writeLog(t,
		startLine(1),
		"%% not json at all %%",
		contentLine(2, "user", "still here"),
	)

	res, err := Session(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.History) != 1 {
		t.Errorf("history length = %d, want 1", len(res.History))
	}
	if !hasWarning(res.Warnings, "unparseable") {
		t.Errorf("expected unparseable warning, got %v", res.Warnings)
	}
}

func TestReplayLeadingBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), testSessionID+".jsonl")
	content := "\uFEFF" + startLine(1) + "\n" + contentLine(2, "user", "bom") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := Session(path, "")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if len(res.History) != 1 {
		t.Errorf("history length = %d", len(res.History))
	}

	meta, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if meta == nil || meta.SessionID != testSessionID {
		t.Errorf("header = %+v", meta)
	}
}

func TestReplayMissingSessionStartIsFatal(t *testing.T) {
	path := writeLog(t, contentLine(1, "user", "orphan"))

	_, err := Session(path, "")
	if !errors.Is(err, ErrNoSessionStart) {
		t.Fatalf("err = %v, want ErrNoSessionStart", err)
	}
}

func TestReplayLateSessionStartIgnoredWithWarning(t *testing.T) {
	path := writeLog(t,
		startLine(1),
		contentLine(2, "user", "a"),
		startLine(3),
	)

	res, err := Session(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if !hasWarning(res.Warnings, "session_start") {
		t.Errorf("expected session_start warning, got %v", res.Warnings)
	}
}

func TestReplayProjectHashMismatchIsFatal(t *testing.T) {
	path := writeLog(t, startLine(1), contentLine(2, "user", "a"))

	_, err := Session(path, "0th3rh4sh")
	if !errors.Is(err, ErrProjectHashMismatch) {
		t.Fatalf("err = %v, want ErrProjectHashMismatch", err)
	}
}

func TestReplayMetadataUpdates(t *testing.T) {
	path := writeLog(t,
		startLine(1),
		contentLine(2, "user", "a"),
		`{"v":1,"seq":3,"ts":"t","type":"provider_switch","payload":{"provider":"openai","model":"gpt-5"}}`,
		`{"v":1,"seq":4,"ts":"t","type":"directories_changed","payload":{"workspaceDirs":["/new","/extra"]}}`,
	)

	res, err := Session(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Metadata.Provider != "openai" || res.Metadata.Model != "gpt-5" {
		t.Errorf("provider/model = %q/%q", res.Metadata.Provider, res.Metadata.Model)
	}
	if len(res.Metadata.WorkspaceDirs) != 2 || res.Metadata.WorkspaceDirs[0] != "/new" {
		t.Errorf("workspaceDirs = %v", res.Metadata.WorkspaceDirs)
	}
}

func TestReplaySessionEventsExcludedFromHistory(t *testing.T) {
	path := writeLog(t,
		startLine(1),
		contentLine(2, "user", "a"),
		`{"v":1,"seq":3,"ts":"2026-08-23T11:00:00Z","type":"session_event","payload":{"severity":"info","message":"session resumed"}}`,
		contentLine(4, "assistant", "b"),
	)

	res, err := Session(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.History) != 2 {
		t.Errorf("history length = %d, want 2", len(res.History))
	}
	if len(res.SessionEvents) != 1 {
		t.Fatalf("sessionEvents length = %d, want 1", len(res.SessionEvents))
	}
	ev := res.SessionEvents[0]
	if ev.Message != "session resumed" || ev.Severity != envelope.SeverityInfo || ev.Seq != 3 {
		t.Errorf("session event = %+v", ev)
	}
}

func TestReplayUnknownTypeIsForwardCompatible(t *testing.T) {
	path := writeLog(t,
		startLine(1),
		`{"v":1,"seq":2,"ts":"t","type":"telepathy","payload":{"x":1}}`,
		contentLine(3, "user", "a"),
	)

	res, err := Session(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.History) != 1 {
		t.Errorf("history length = %d", len(res.History))
	}
	if !hasWarning(res.Warnings, "unknown event type") {
		t.Errorf("expected unknown-type warning, got %v", res.Warnings)
	}
	// One unknown among two known records is not a malformed-rate problem.
	if hasWarning(res.Warnings, "malformed (") {
		t.Errorf("unknown types must not count toward the malformed rate: %v", res.Warnings)
	}
}

func TestReplayOutOfOrderSequenceWarns(t *testing.T) {
	path := writeLog(t,
		startLine(1),
		contentLine(5, "user", "a"),
		contentLine(3, "assistant", "b"),
	)

	res, err := Session(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if !hasWarning(res.Warnings, "out of order") {
		t.Errorf("expected out-of-order warning, got %v", res.Warnings)
	}
	if res.LastSeq != 5 {
		t.Errorf("LastSeq = %d, want 5", res.LastSeq)
	}
	// Out-of-order records still count.
	if len(res.History) != 2 {
		t.Errorf("history length = %d, want 2", len(res.History))
	}
}

func TestReplayMalformedRateSummaryWarning(t *testing.T) {
	// 1 good start + 1 malformed content out of 2 known records: 50% > 5%.
	path := writeLog(t,
		startLine(1),
		`{"v":1,"seq":2,"ts":"t","type":"content","payload":{"wrong":"shape"}}`,
	)

	res, err := Session(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if !hasWarning(res.Warnings, "known records malformed") {
		t.Errorf("expected malformed-rate summary warning, got %v", res.Warnings)
	}
}

func TestReplayArchivedLog(t *testing.T) {
	logPath := writeLog(t,
		startLine(1),
		contentLine(2, "user", "archived away"),
	)
	archiveDir := t.TempDir()
	archPath, err := archive.Compress(logPath, archiveDir)
	if err != nil {
		t.Fatal(err)
	}

	res, err := Session(archPath, "deadbeef")
	if err != nil {
		t.Fatalf("Session on archive: %v", err)
	}
	if len(res.History) != 1 || res.History[0].Blocks[0].Text != "archived away" {
		t.Errorf("history = %+v", res.History)
	}

	meta, err := ReadHeader(archPath)
	if err != nil {
		t.Fatal(err)
	}
	if meta == nil || meta.SessionID != testSessionID {
		t.Errorf("header from archive = %+v", meta)
	}
}

func TestReadHeaderNonSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.jsonl")
	if err := os.WriteFile(path, []byte("not a log\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	meta, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if meta != nil {
		t.Errorf("meta = %+v, want nil", meta)
	}
}
