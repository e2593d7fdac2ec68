package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/johns/chatlog/internal/writer"
)

// ChangeOp classifies a watched session-directory event.
type ChangeOp int

const (
	Created ChangeOp = iota
	Updated
	Removed
)

func (op ChangeOp) String() string {
	switch op {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Change is one observed mutation of a session log.
type Change struct {
	Op        ChangeOp
	SessionID string
	Path      string
}

// Watch emits a Change for every session log created, appended to, or
// removed under dir until ctx is cancelled. The channel closes when the
// watcher shuts down.
func Watch(ctx context.Context, dir string, log *logrus.Logger) (<-chan Change, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	ch := make(chan Change, 16)
	go func() {
		defer close(ch)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(ev.Name, writer.FileSuffix) {
					continue
				}
				var op ChangeOp
				switch {
				case ev.Op.Has(fsnotify.Create):
					op = Created
				case ev.Op.Has(fsnotify.Write):
					op = Updated
				case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
					op = Removed
				default:
					continue
				}
				change := Change{
					Op:        op,
					SessionID: strings.TrimSuffix(filepath.Base(ev.Name), writer.FileSuffix),
					Path:      ev.Name,
				}
				select {
				case ch <- change:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("session directory watcher error")
			}
		}
	}()
	return ch, nil
}
