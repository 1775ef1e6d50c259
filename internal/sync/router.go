package sync

import (
	"log/slog"
	"path/filepath"

	mapset "github.com/deckarep/golang-set/v2"
)

// ActionKind is what a filesystem event asks the engine to do.
type ActionKind int

const (
	ActionSync ActionKind = iota
	ActionDelete
)

func (k ActionKind) String() string {
	switch k {
	case ActionSync:
		return "sync"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ScheduleFunc receives accepted events for debouncing.
type ScheduleFunc func(path string, kind ActionKind)

// Router classifies normalized watcher events and forwards the
// relevant ones to the scheduler. Directory events, ignored paths and
// unmonitored extensions are dropped. It holds no state of its own.
type Router struct {
	exts     mapset.Set[string]
	ignore   *IgnoreList
	schedule ScheduleFunc
}

func NewRouter(extensions []string, ignore *IgnoreList, schedule ScheduleFunc) *Router {
	return &Router{
		exts:     mapset.NewSet(extensions...),
		ignore:   ignore,
		schedule: schedule,
	}
}

// Accepts reports whether a path passes the ignore list and the
// monitored-extension set. Suffix match is exact and case-sensitive.
func (r *Router) Accepts(path string) bool {
	if r.ignore != nil && r.ignore.ShouldIgnore(path) {
		return false
	}
	return r.exts.Contains(filepath.Ext(path))
}

func (r *Router) Route(event Event) {
	if event.IsDir {
		return
	}

	if !r.Accepts(event.Path) {
		slog.Debug("event filtered", "path", event.Path, "kind", event.Kind)
		return
	}

	switch event.Kind {
	case KindCreated, KindModified:
		r.schedule(event.Path, ActionSync)
	case KindDeleted:
		r.schedule(event.Path, ActionDelete)
	}
}
