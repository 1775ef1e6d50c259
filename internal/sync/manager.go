// Package sync implements the event-to-synchronization pipeline:
// watcher → router → debounce scheduler → sync decision → transfer,
// with a write-through state store and a startup reconcile sweep.
package sync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rrdtools/rrdsync/internal/config"
	"github.com/rrdtools/rrdsync/internal/transfer"
	"github.com/rrdtools/rrdsync/internal/workspace"
)

// Manager owns the pipeline components and their lifecycle.
type Manager struct {
	cfg       *config.Config
	ws        *workspace.Workspace
	state     *StateStore
	engine    *Engine
	scheduler *DebounceScheduler
	router    *Router
	watcher   *Watcher
	sweep     *ReconcileSweep

	ctx context.Context
	wg  sync.WaitGroup
}

func NewManager(cfg *config.Config, ws *workspace.Workspace) *Manager {
	state := NewStateStore(ws.StatePath)
	executor := transfer.NewExecutor(cfg)
	engine := NewEngine(ws, state, executor, cfg.MaxTransfers, cfg.DryRun)

	ignore := NewIgnoreList(ws.SourceDir)
	ignore.Load()

	m := &Manager{
		cfg:    cfg,
		ws:     ws,
		state:  state,
		engine: engine,
	}

	m.scheduler = NewDebounceScheduler(cfg.Debounce(), clockwork.NewRealClock(), m.dispatch)
	m.router = NewRouter(cfg.Extensions, ignore, m.scheduler.Schedule)
	m.watcher = NewWatcher(ws.SourceDir)
	m.sweep = NewReconcileSweep(ws, m.router, engine)

	return m
}

func (m *Manager) dispatch(path string, kind ActionKind) {
	m.engine.Dispatch(m.ctx, path, kind, TriggerEvent)
}

// Start loads state, converges via the reconcile sweep, then begins
// routing live events. It blocks until ctx is canceled.
func (m *Manager) Start(ctx context.Context) error {
	slog.Info("sync manager start")
	m.ctx = ctx

	if err := m.state.Load(); err != nil {
		return err
	}

	// converge before live events start flowing
	if err := m.sweep.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("initial reconcile sweep failed", "error", err)
	}

	if err := m.watcher.Start(ctx); err != nil {
		return err
	}

	m.wg.Add(1)
	go m.routeEvents(ctx)

	if interval := m.cfg.ResweepInterval(); interval > 0 {
		m.wg.Add(1)
		go m.resweepLoop(ctx)
	}

	<-ctx.Done()
	return nil
}

func (m *Manager) routeEvents(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-m.watcher.Events():
			if !ok {
				return
			}
			m.router.Route(event)
		}
	}
}

// resweepLoop re-runs the reconcile sweep on an interval, catching
// events the OS watcher dropped. Uses a timer and not a ticker to
// avoid queued ticks when a sweep takes longer than the interval.
func (m *Manager) resweepLoop(ctx context.Context) {
	defer m.wg.Done()

	interval := m.cfg.ResweepInterval()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if err := m.sweep.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("reconcile sweep failed", "error", err)
			}
			timer.Reset(interval)
		}
	}
}

// Stop shuts the pipeline down: no new events, pending debounce
// windows dropped, in-flight transfers allowed to finish.
func (m *Manager) Stop() {
	slog.Info("sync manager stop")

	m.watcher.Stop()
	m.scheduler.Stop()
	m.engine.Wait()
	m.wg.Wait()

	slog.Info("sync manager stopped")
}
