package sync

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/rrdtools/rrdsync/internal/workspace"
)

// ReconcileSweep walks the source tree once and feeds every matching
// file through the same sync decision as a live event. Run at startup
// (and optionally on an interval) it guarantees convergence after
// downtime; files already reflected in state are skipped by the
// engine's mtime comparison.
type ReconcileSweep struct {
	ws     *workspace.Workspace
	router *Router
	engine *Engine
}

func NewReconcileSweep(ws *workspace.Workspace, router *Router, engine *Engine) *ReconcileSweep {
	return &ReconcileSweep{
		ws:     ws,
		router: router,
		engine: engine,
	}
}

// Run enumerates the tree sequentially, bypassing the scheduler. Per-
// file failures are logged and do not halt the sweep.
func (r *ReconcileSweep) Run(ctx context.Context) error {
	slog.Info("reconcile sweep start", "dir", r.ws.SourceDir)
	start := time.Now()

	var scanned, failed int
	err := filepath.WalkDir(r.ws.SourceDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			slog.Warn("reconcile walk error", "path", path, "error", walkErr)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if d.IsDir() {
			if r.router.ignore != nil && path != r.ws.SourceDir && r.router.ignore.ShouldIgnore(path) {
				return fs.SkipDir
			}
			return nil
		}

		if !r.router.Accepts(path) {
			return nil
		}

		scanned++
		if err := r.engine.TrySync(ctx, path, TriggerReconcile); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			failed++
			slog.Error("reconcile sync failed", "path", path, "error", err)
		}
		return nil
	})

	slog.Info("reconcile sweep done",
		"scanned", scanned,
		"failed", failed,
		"took", time.Since(start).Round(time.Millisecond),
	)
	return err
}
