package sync

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DispatchFunc runs an action whose debounce window has elapsed.
type DispatchFunc func(path string, kind ActionKind)

// pendingAction is the one live debounce entry for a path. A new event
// for the same path cancels and replaces it: last kind wins.
type pendingAction struct {
	kind  ActionKind
	timer clockwork.Timer
}

// DebounceScheduler coalesces bursts of events on the same path into a
// single action fired after a quiet period. Timers fire concurrently
// with new Schedule calls; the pending table is guarded by a mutex.
type DebounceScheduler struct {
	delay    time.Duration
	clock    clockwork.Clock
	dispatch DispatchFunc

	mu      sync.Mutex
	pending map[string]*pendingAction
	stopped bool
}

func NewDebounceScheduler(delay time.Duration, clock clockwork.Clock, dispatch DispatchFunc) *DebounceScheduler {
	return &DebounceScheduler{
		delay:    delay,
		clock:    clock,
		dispatch: dispatch,
		pending:  make(map[string]*pendingAction),
	}
}

// Schedule arms (or re-arms) the debounce window for a path. A prior
// pending action for the same path is discarded, not executed.
func (s *DebounceScheduler) Schedule(path string, kind ActionKind) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	if prev, ok := s.pending[path]; ok {
		prev.timer.Stop()
		slog.Debug("debounce canceled", "path", path, "old", prev.kind, "new", kind)
	}

	action := &pendingAction{kind: kind}
	action.timer = s.clock.AfterFunc(s.delay, func() {
		s.fire(path, action)
	})
	s.pending[path] = action

	slog.Debug("debounce scheduled", "path", path, "kind", kind, "delay", s.delay)
}

// fire runs when a timer expires. The action pointer check covers the
// race where Schedule replaced the entry after the timer already
// started firing but before Stop took effect.
func (s *DebounceScheduler) fire(path string, action *pendingAction) {
	s.mu.Lock()
	current, ok := s.pending[path]
	if !ok || current != action || s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.pending, path)
	s.mu.Unlock()

	s.dispatch(path, action.kind)
}

// PendingCount reports the number of armed debounce windows.
func (s *DebounceScheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels every pending timer without firing it. Further
// Schedule calls are no-ops.
func (s *DebounceScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for path, action := range s.pending {
		action.timer.Stop()
		slog.Debug("debounce dropped on stop", "path", path, "kind", action.kind)
	}
	s.pending = make(map[string]*pendingAction)
}
