// Package bridge adapts conversation-history mutations into session log
// records. It subscribes to a history store's signals and forwards them to
// the session writer, suppressing the re-insertion storm that happens while
// a compaction is in progress.
package bridge

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/johns/chatlog/internal/envelope"
	"github.com/johns/chatlog/internal/writer"
)

// Handlers receives the three signals a history store emits.
type Handlers struct {
	ContentAdded      func(item envelope.ContentItem)
	CompactionStarted func()
	CompactionEnded   func(summary envelope.ContentItem, compactedCount int)
}

// HistoryStore is the conversation-history collaborator. Subscribe registers
// the handlers and returns an unsubscribe function; ownership of that
// cleanup handle belongs to the subscriber.
type HistoryStore interface {
	Subscribe(Handlers) (unsubscribe func())
}

// Bridge forwards history mutations to a session writer.
type Bridge struct {
	w   *writer.Writer
	log *logrus.Logger

	mu          sync.Mutex
	unsubscribe func()
	compacting  bool
}

// New returns a bridge that records through w.
func New(w *writer.Writer, log *logrus.Logger) *Bridge {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Bridge{w: w, log: log}
}

// SubscribeToHistory drops any previous subscription and registers this
// bridge's handlers on the store.
func (b *Bridge) SubscribeToHistory(store HistoryStore) {
	b.mu.Lock()
	prev := b.unsubscribe
	b.unsubscribe = nil
	b.mu.Unlock()
	if prev != nil {
		prev()
	}

	unsub := store.Subscribe(Handlers{
		ContentAdded:      b.onContentAdded,
		CompactionStarted: b.onCompactionStarted,
		CompactionEnded:   b.onCompactionEnded,
	})

	b.mu.Lock()
	b.unsubscribe = unsub
	b.mu.Unlock()
}

// UnsubscribeFromHistory detaches the bridge from the current store.
func (b *Bridge) UnsubscribeFromHistory() {
	b.mu.Lock()
	unsub := b.unsubscribe
	b.unsubscribe = nil
	b.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// OnHistoryServiceReplaced re-subscribes when the observed store instance is
// swapped, e.g. on a provider change.
func (b *Bridge) OnHistoryServiceReplaced(newStore HistoryStore) {
	b.SubscribeToHistory(newStore)
}

func (b *Bridge) onContentAdded(item envelope.ContentItem) {
	b.mu.Lock()
	suppressed := b.compacting
	b.mu.Unlock()
	if suppressed {
		// Re-insertion of already-summarized items; the compressed
		// record on compaction end covers them.
		return
	}
	b.w.Enqueue(&envelope.Content{Item: &item})
}

func (b *Bridge) onCompactionStarted() {
	b.mu.Lock()
	b.compacting = true
	b.mu.Unlock()
}

func (b *Bridge) onCompactionEnded(summary envelope.ContentItem, compactedCount int) {
	b.mu.Lock()
	b.compacting = false
	b.mu.Unlock()
	b.w.Enqueue(&envelope.Compressed{Summary: &summary, CompressedCount: &compactedCount})
}

// RecordProviderSwitch forwards a provider change to the writer.
func (b *Bridge) RecordProviderSwitch(provider, model string) {
	b.w.Enqueue(&envelope.ProviderSwitch{Provider: provider, Model: model})
}

// RecordDirectoriesChanged forwards a workspace directory change.
func (b *Bridge) RecordDirectoriesChanged(dirs []string) {
	b.w.Enqueue(&envelope.DirectoriesChanged{WorkspaceDirs: dirs})
}

// RecordSessionEvent forwards an operational notice.
func (b *Bridge) RecordSessionEvent(severity envelope.Severity, message string) {
	b.w.Enqueue(&envelope.SessionEvent{Severity: severity, Message: message})
}

// FlushAtTurnBoundary waits for everything recorded so far to reach disk.
func (b *Bridge) FlushAtTurnBoundary(ctx context.Context) error {
	return b.w.Flush(ctx)
}

// Dispose unsubscribes from the history store. The writer's lifecycle is
// owned by the caller, not the bridge.
func (b *Bridge) Dispose() {
	b.UnsubscribeFromHistory()
}
