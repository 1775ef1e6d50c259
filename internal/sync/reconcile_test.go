package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSweepFixture(t *testing.T) (*engineFixture, *ReconcileSweep) {
	t.Helper()
	fx := newEngineFixture(t)
	router := NewRouter([]string{".rrd"}, nil, func(string, ActionKind) {})
	sweep := NewReconcileSweep(fx.ws, router, fx.eng)
	return fx, sweep
}

func TestReconcileSweep_SyncsUnknownFiles(t *testing.T) {
	fx, sweep := newSweepFixture(t)
	fx.writeFile(t, "a/b.rrd", time.Unix(1000, 0))
	fx.writeFile(t, "c.rrd", time.Unix(1000, 0))

	require.NoError(t, sweep.Run(context.Background()))
	assert.ElementsMatch(t, []string{"a/b.rrd", "c.rrd"}, fx.ft.syncCalls)
	assert.Equal(t, 2, fx.state.Len())
}

func TestReconcileSweep_SkipsFilesAlreadyInState(t *testing.T) {
	fx, sweep := newSweepFixture(t)
	fx.writeFile(t, "a/b.rrd", time.Unix(1000, 0))
	require.NoError(t, fx.state.Set("a/b.rrd", 1000.0))

	require.NoError(t, sweep.Run(context.Background()))
	assert.Empty(t, fx.ft.syncCalls, "file at recorded mtime must not be re-transferred")
}

func TestReconcileSweep_TransfersModifiedFiles(t *testing.T) {
	fx, sweep := newSweepFixture(t)
	fx.writeFile(t, "a/b.rrd", time.Unix(2000, 0))
	require.NoError(t, fx.state.Set("a/b.rrd", 1000.0))

	require.NoError(t, sweep.Run(context.Background()))
	assert.Equal(t, []string{"a/b.rrd"}, fx.ft.syncCalls)

	stored, _ := fx.state.Get("a/b.rrd")
	assert.InDelta(t, 2000.0, stored, 1e-9)
}

func TestReconcileSweep_RespectsExtensionFilter(t *testing.T) {
	fx, sweep := newSweepFixture(t)
	fx.writeFile(t, "notes.txt", time.Unix(1000, 0))
	fx.writeFile(t, "x.rrd", time.Unix(1000, 0))

	require.NoError(t, sweep.Run(context.Background()))
	assert.Equal(t, []string{"x.rrd"}, fx.ft.syncCalls)
}

func TestReconcileSweep_IsIdempotent(t *testing.T) {
	fx, sweep := newSweepFixture(t)
	fx.writeFile(t, "x.rrd", time.Unix(1000, 0))

	require.NoError(t, sweep.Run(context.Background()))
	require.NoError(t, sweep.Run(context.Background()))
	assert.Equal(t, 1, fx.ft.syncCount(), "second sweep must be a no-op")
}

func TestReconcileSweep_ContinuesPastFailures(t *testing.T) {
	fx, sweep := newSweepFixture(t)
	fx.ft.syncErr = os.ErrPermission
	fx.writeFile(t, "a.rrd", time.Unix(1000, 0))
	fx.writeFile(t, "b.rrd", time.Unix(1000, 0))

	require.NoError(t, sweep.Run(context.Background()), "per-file failures must not halt the sweep")
	assert.Equal(t, 2, fx.ft.syncCount())
	assert.Equal(t, 0, fx.state.Len())
}

func TestReconcileSweep_SkipsIgnoredDirs(t *testing.T) {
	fx := newEngineFixture(t)
	ignore := NewIgnoreList(fx.ws.SourceDir)
	require.NoError(t, os.WriteFile(filepath.Join(fx.ws.SourceDir, ".rrdsyncignore"), []byte("archive/\n"), 0o644))
	ignore.Load()

	router := NewRouter([]string{".rrd"}, ignore, func(string, ActionKind) {})
	sweep := NewReconcileSweep(fx.ws, router, fx.eng)

	fx.writeFile(t, "archive/old.rrd", time.Unix(1000, 0))
	fx.writeFile(t, "live.rrd", time.Unix(1000, 0))

	require.NoError(t, sweep.Run(context.Background()))
	assert.Equal(t, []string{"live.rrd"}, fx.ft.syncCalls)
}
