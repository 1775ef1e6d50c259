// Package daemon ties the sync pipeline to the process lifecycle:
// start everything under an errgroup, stop cleanly on interrupt.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rrdtools/rrdsync/internal/config"
	"github.com/rrdtools/rrdsync/internal/sync"
	"github.com/rrdtools/rrdsync/internal/workspace"
	"golang.org/x/sync/errgroup"
)

// shutdownGrace bounds how long in-flight transfers may run after an
// interrupt before they are abandoned. State is only updated on
// confirmed success, so abandoning is safe.
const shutdownGrace = 10 * time.Second

type Daemon struct {
	cfg *config.Config
	ws  *workspace.Workspace
	mgr *sync.Manager
}

func New(cfg *config.Config) (*Daemon, error) {
	ws, err := workspace.NewWorkspace(cfg.SourceDir, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	return &Daemon{
		cfg: cfg,
		ws:  ws,
		mgr: sync.NewManager(cfg, ws),
	}, nil
}

// Start runs the daemon until ctx is canceled, then performs a bounded
// graceful stop.
func (d *Daemon) Start(ctx context.Context) error {
	slog.Info("daemon start", "source", d.cfg.SourceDir, "remote", d.cfg.Remote.Addr()+":"+d.cfg.Remote.Path)

	if err := d.ws.Setup(); err != nil {
		return err
	}
	defer func() {
		if err := d.ws.Unlock(); err != nil {
			slog.Warn("failed to unlock workspace", "error", err)
		}
	}()

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := d.mgr.Start(egCtx); err != nil {
			return fmt.Errorf("failed to start sync manager: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		slog.Info("received interrupt signal, stopping daemon")

		done := make(chan struct{})
		go func() {
			d.mgr.Stop()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(shutdownGrace):
			slog.Warn("shutdown grace elapsed, abandoning in-flight actions")
		}
		return nil
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("daemon failure", "error", err)
		return err
	}

	slog.Info("daemon stopped")
	return nil
}
