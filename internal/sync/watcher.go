package sync

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/rjeczalik/notify"
)

const eventBufferSize = 64

// EventKind classifies a raw filesystem notification.
type EventKind int

const (
	KindCreated EventKind = iota
	KindModified
	KindDeleted
)

func (k EventKind) String() string {
	switch k {
	case KindCreated:
		return "created"
	case KindModified:
		return "modified"
	case KindDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Event is a normalized filesystem notification.
type Event struct {
	Path  string
	IsDir bool
	Kind  EventKind
}

// Watcher consumes the OS notification stream for a directory tree and
// normalizes it into Events. It is a thin shim over rjeczalik/notify,
// not a watcher implementation of its own.
type Watcher struct {
	watchDir  string
	rawEvents chan notify.EventInfo
	events    chan Event
	done      chan struct{}
	wg        sync.WaitGroup
}

func NewWatcher(watchDir string) *Watcher {
	return &Watcher{
		watchDir: watchDir,
		done:     make(chan struct{}),
	}
}

func (w *Watcher) Start(ctx context.Context) error {
	slog.Info("file watcher start", "dir", w.watchDir)

	w.rawEvents = make(chan notify.EventInfo, eventBufferSize)
	w.events = make(chan Event, eventBufferSize)

	recursivePath := w.watchDir + "/..."
	if err := notify.Watch(recursivePath, w.rawEvents, notify.Create, notify.Write, notify.Remove, notify.Rename); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.forwardEvents(ctx)

	return nil
}

func (w *Watcher) Stop() {
	slog.Info("file watcher stopping")

	close(w.done)

	// Stop notify watching (this closes the channel automatically)
	if w.rawEvents != nil {
		notify.Stop(w.rawEvents)
	}

	w.wg.Wait()

	slog.Info("file watcher stopped")
}

func (w *Watcher) Events() <-chan Event {
	return w.events
}

func (w *Watcher) forwardEvents(ctx context.Context) {
	defer func() {
		w.wg.Done()
		close(w.events)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case raw, ok := <-w.rawEvents:
			if !ok {
				return
			}

			event := normalizeEvent(raw)

			select {
			case w.events <- event:
				slog.Debug("file watcher", "event", event.Kind, "path", event.Path)
			default:
				slog.Warn("file watcher dropped", "reason", "channel full", "path", event.Path)
			}
		}
	}
}

// normalizeEvent maps a notify event onto the watcher contract
// {path, isDir, kind}. A rename is a deletion of the old path; the new
// path arrives as a separate create. Removed paths cannot be stat'ed,
// so IsDir is only meaningful for create/write events.
func normalizeEvent(raw notify.EventInfo) Event {
	event := Event{Path: raw.Path()}

	switch raw.Event() {
	case notify.Create:
		event.Kind = KindCreated
	case notify.Write:
		event.Kind = KindModified
	case notify.Remove, notify.Rename:
		event.Kind = KindDeleted
	default:
		event.Kind = KindModified
	}

	if event.Kind != KindDeleted {
		if info, err := os.Stat(raw.Path()); err == nil {
			event.IsDir = info.IsDir()
		}
	}

	return event
}
