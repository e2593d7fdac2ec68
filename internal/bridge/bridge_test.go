package bridge

import (
	"context"
	"testing"

	"github.com/johns/chatlog/internal/envelope"
	"github.com/johns/chatlog/internal/replay"
	"github.com/johns/chatlog/internal/writer"
)

const testSessionID = "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"

// fakeStore is a minimal in-process history store.
type fakeStore struct {
	handlers    Handlers
	subscribed  int
	unsubscribe int
}

func (s *fakeStore) Subscribe(h Handlers) func() {
	s.handlers = h
	s.subscribed++
	return func() { s.unsubscribe++ }
}

func (s *fakeStore) addContent(speaker, text string) {
	s.handlers.ContentAdded(envelope.TextItem(speaker, text))
}

func newRecordingBridge(t *testing.T) (*Bridge, *writer.Writer, *fakeStore) {
	t.Helper()
	w := writer.New(t.TempDir(), testSessionID, nil)
	w.Enqueue(&envelope.SessionStart{
		SessionID:   testSessionID,
		ProjectHash: "deadbeef",
		Provider:    "anthropic",
		Model:       "m1",
		StartTime:   "2026-08-23T10:00:00Z",
	})
	b := New(w, nil)
	store := &fakeStore{}
	b.SubscribeToHistory(store)
	return b, w, store
}

func TestCompactionWindowSuppression(t *testing.T) {
	b, w, store := newRecordingBridge(t)
	ctx := context.Background()

	store.addContent("user", "one")
	store.addContent("assistant", "two")

	store.handlers.CompactionStarted()
	// Re-insertions during the compaction window must not be recorded.
	store.addContent("user", "replayed one")
	store.addContent("assistant", "replayed two")
	store.handlers.CompactionEnded(envelope.TextItem("assistant", "the summary"), 2)

	store.addContent("user", "three")

	if err := b.FlushAtTurnBoundary(ctx); err != nil {
		t.Fatal(err)
	}
	if err := w.Dispose(ctx); err != nil {
		t.Fatal(err)
	}

	res, err := replay.Session(w.FilePath(), "")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	// summary + one post-compaction turn
	if len(res.History) != 2 {
		t.Fatalf("history length = %d, want 2 (%+v)", len(res.History), res.History)
	}
	if res.History[0].Blocks[0].Text != "the summary" {
		t.Errorf("first item = %+v", res.History[0])
	}
	if res.History[1].Blocks[0].Text != "three" {
		t.Errorf("second item = %+v", res.History[1])
	}
	// start + 2 content + compressed + 1 content = 5 records
	if res.EventCount != 5 {
		t.Errorf("EventCount = %d, want 5", res.EventCount)
	}
}

func TestResubscribeOnStoreReplacement(t *testing.T) {
	b, w, store := newRecordingBridge(t)
	ctx := context.Background()

	store.addContent("user", "before swap")

	replacement := &fakeStore{}
	b.OnHistoryServiceReplaced(replacement)

	if store.unsubscribe != 1 {
		t.Errorf("old store unsubscribe count = %d, want 1", store.unsubscribe)
	}
	if replacement.subscribed != 1 {
		t.Errorf("new store subscribe count = %d, want 1", replacement.subscribed)
	}

	b.RecordProviderSwitch("openai", "gpt-5")
	replacement.addContent("user", "after swap")

	if err := w.Dispose(ctx); err != nil {
		t.Fatal(err)
	}

	res, err := replay.Session(w.FilePath(), "")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(res.History) != 2 {
		t.Errorf("history length = %d, want 2", len(res.History))
	}
	if res.Metadata.Provider != "openai" || res.Metadata.Model != "gpt-5" {
		t.Errorf("metadata = %+v", res.Metadata)
	}
}

func TestDelegateRecords(t *testing.T) {
	b, w, _ := newRecordingBridge(t)
	ctx := context.Background()

	// A content record first so the session materializes.
	b.w.Enqueue(&envelope.Content{Item: itemPtr(envelope.TextItem("user", "hi"))})
	b.RecordDirectoriesChanged([]string{"/new/dir"})
	b.RecordSessionEvent(envelope.SeverityWarning, "disk space low")

	if err := w.Dispose(ctx); err != nil {
		t.Fatal(err)
	}

	res, err := replay.Session(w.FilePath(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Metadata.WorkspaceDirs) != 1 || res.Metadata.WorkspaceDirs[0] != "/new/dir" {
		t.Errorf("workspaceDirs = %v", res.Metadata.WorkspaceDirs)
	}
	if len(res.SessionEvents) != 1 || res.SessionEvents[0].Severity != envelope.SeverityWarning {
		t.Errorf("sessionEvents = %+v", res.SessionEvents)
	}
	if len(res.History) != 1 {
		t.Errorf("session events must stay out of history, length = %d", len(res.History))
	}
}

func TestDisposeUnsubscribes(t *testing.T) {
	b, _, store := newRecordingBridge(t)

	b.Dispose()
	if store.unsubscribe != 1 {
		t.Errorf("unsubscribe count = %d, want 1", store.unsubscribe)
	}

	// Idempotent.
	b.Dispose()
	if store.unsubscribe != 1 {
		t.Errorf("unsubscribe count after second Dispose = %d, want 1", store.unsubscribe)
	}
}

func itemPtr(item envelope.ContentItem) *envelope.ContentItem { return &item }
