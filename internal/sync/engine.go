package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rrdtools/rrdsync/internal/transfer"
	"github.com/rrdtools/rrdsync/internal/workspace"
)

// Trigger names what caused a sync decision, for logging.
type Trigger string

const (
	TriggerEvent     Trigger = "event"
	TriggerReconcile Trigger = "reconcile"
)

// ErrOutsideRoot flags a watched path that does not descend from the
// source root. Should not occur; the affected action is aborted, the
// daemon keeps running.
var ErrOutsideRoot = errors.New("path outside source root")

// Transferer is the engine's view of the external copy primitive.
// *transfer.Executor satisfies it.
type Transferer interface {
	SyncFile(ctx context.Context, relPath string) (*transfer.Result, error)
	MirrorTree(ctx context.Context) (*transfer.Result, error)
	EnsureRemoteDir(ctx context.Context, relDir string) error
}

// Engine holds the sync decision logic: compare a file's mtime against
// the state store, issue the external transfer when stale, and update
// state only on confirmed success. Failures are logged and naturally
// retried by the next event or sweep; there is no retry loop here.
type Engine struct {
	ws       *workspace.Workspace
	state    *StateStore
	transfer Transferer
	dryRun   bool

	sem   chan struct{}
	wg    sync.WaitGroup
	locks *pathLocks
}

func NewEngine(ws *workspace.Workspace, state *StateStore, t Transferer, maxTransfers int, dryRun bool) *Engine {
	if maxTransfers < 1 {
		maxTransfers = 1
	}
	return &Engine{
		ws:       ws,
		state:    state,
		transfer: t,
		dryRun:   dryRun,
		sem:      make(chan struct{}, maxTransfers),
		locks:    newPathLocks(),
	}
}

// Dispatch runs an action on its own worker so blocking transfers
// never stall event delivery. Concurrency is bounded by the transfer
// semaphore; a single action's failure never escapes its goroutine.
func (e *Engine) Dispatch(ctx context.Context, absPath string, kind ActionKind, trigger Trigger) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		select {
		case e.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-e.sem }()

		var err error
		switch kind {
		case ActionSync:
			err = e.TrySync(ctx, absPath, trigger)
		case ActionDelete:
			err = e.TryDelete(ctx, absPath)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("action failed", "kind", kind, "path", absPath, "error", err)
		}
	}()
}

// Wait blocks until all in-flight actions finish.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// TrySync decides whether a single file needs a transfer and performs
// it. State is only mutated after the transfer reports success.
func (e *Engine) TrySync(ctx context.Context, absPath string, trigger Trigger) error {
	relPath, err := e.relPath(absPath)
	if err != nil {
		return err
	}

	release := e.locks.lock(relPath)
	defer release()

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			// deleted between event and debounce firing; benign
			slog.Info("sync skipped, file vanished", "path", relPath, "trigger", trigger)
			return nil
		}
		return fmt.Errorf("stat %s: %w", absPath, err)
	}
	if info.IsDir() {
		return nil
	}

	mtime := UnixMtime(info.ModTime())
	if last, ok := e.state.Get(relPath); ok && last >= mtime {
		slog.Debug("sync skipped, up to date", "path", relPath, "trigger", trigger)
		return nil
	}

	if dir := path.Dir(relPath); dir != "." {
		if err := e.transfer.EnsureRemoteDir(ctx, dir); err != nil {
			return err
		}
	}

	start := time.Now()
	res, err := e.transfer.SyncFile(ctx, relPath)
	if err != nil {
		return err
	}

	if out := strings.TrimSpace(res.Stdout); out != "" {
		slog.Debug("transfer output", "path", relPath, "stdout", out)
	}

	if e.dryRun {
		slog.Info("dry run, would sync",
			"path", relPath,
			"size", humanize.Bytes(uint64(info.Size())),
			"trigger", trigger,
		)
		return nil
	}

	slog.Info("synced",
		"path", relPath,
		"size", humanize.Bytes(uint64(info.Size())),
		"trigger", trigger,
		"took", time.Since(start).Round(time.Millisecond),
	)
	return e.state.Set(relPath, mtime)
}

// TryDelete propagates a local deletion by mirroring the whole tree
// with deletion enabled, so the remote converges to the local state.
func (e *Engine) TryDelete(ctx context.Context, absPath string) error {
	relPath, err := e.relPath(absPath)
	if err != nil {
		return err
	}

	release := e.locks.lock(relPath)
	defer release()

	start := time.Now()
	res, err := e.transfer.MirrorTree(ctx)
	if err != nil {
		return err
	}

	if out := strings.TrimSpace(res.Stdout); out != "" {
		slog.Debug("transfer output", "path", relPath, "stdout", out)
	}

	if e.dryRun {
		slog.Info("dry run, would propagate deletion", "path", relPath)
		return nil
	}

	slog.Info("deletion propagated",
		"path", relPath,
		"took", time.Since(start).Round(time.Millisecond),
	)
	return e.state.Delete(relPath)
}

func (e *Engine) relPath(absPath string) (string, error) {
	relPath, err := e.ws.SourceRelPath(absPath)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, absPath)
	}
	if relPath == ".." || strings.HasPrefix(relPath, "../") {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, absPath)
	}
	return relPath, nil
}
