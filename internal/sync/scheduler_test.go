package sync

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatched struct {
	path string
	kind ActionKind
}

func newTestScheduler(t *testing.T, delay time.Duration) (*DebounceScheduler, *clockwork.FakeClock, chan dispatched) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	fired := make(chan dispatched, 16)
	s := NewDebounceScheduler(delay, clock, func(path string, kind ActionKind) {
		fired <- dispatched{path: path, kind: kind}
	})
	return s, clock, fired
}

func waitDispatch(t *testing.T, fired chan dispatched) dispatched {
	t.Helper()
	select {
	case d := <-fired:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for dispatch")
		return dispatched{}
	}
}

func assertNoDispatch(t *testing.T, fired chan dispatched) {
	t.Helper()
	select {
	case d := <-fired:
		t.Fatalf("unexpected dispatch for %s (%s)", d.path, d.kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScheduler_FiresAfterQuietPeriod(t *testing.T) {
	s, clock, fired := newTestScheduler(t, time.Second)
	defer s.Stop()

	s.Schedule("/data/a.rrd", ActionSync)
	assert.Equal(t, 1, s.PendingCount())

	// nothing fires inside the window
	clock.Advance(999 * time.Millisecond)
	assertNoDispatch(t, fired)

	clock.Advance(time.Millisecond)
	d := waitDispatch(t, fired)
	assert.Equal(t, "/data/a.rrd", d.path)
	assert.Equal(t, ActionSync, d.kind)
	assert.Equal(t, 0, s.PendingCount())
}

func TestScheduler_CoalescesBursts(t *testing.T) {
	s, clock, fired := newTestScheduler(t, time.Second)
	defer s.Stop()

	// create + modify + modify inside the window
	s.Schedule("/data/a.rrd", ActionSync)
	clock.Advance(300 * time.Millisecond)
	s.Schedule("/data/a.rrd", ActionSync)
	clock.Advance(300 * time.Millisecond)
	s.Schedule("/data/a.rrd", ActionSync)

	assert.Equal(t, 1, s.PendingCount())

	clock.Advance(time.Second)
	d := waitDispatch(t, fired)
	assert.Equal(t, ActionSync, d.kind)
	assertNoDispatch(t, fired)
}

func TestScheduler_LastKindWins(t *testing.T) {
	s, clock, fired := newTestScheduler(t, time.Second)
	defer s.Stop()

	// modify immediately followed by delete collapses to one delete
	s.Schedule("/data/a.rrd", ActionSync)
	s.Schedule("/data/a.rrd", ActionDelete)

	clock.Advance(time.Second)
	d := waitDispatch(t, fired)
	assert.Equal(t, ActionDelete, d.kind)
	assertNoDispatch(t, fired)
}

func TestScheduler_PathsAreIndependent(t *testing.T) {
	s, clock, fired := newTestScheduler(t, time.Second)
	defer s.Stop()

	s.Schedule("/data/a.rrd", ActionSync)
	s.Schedule("/data/b.rrd", ActionDelete)
	assert.Equal(t, 2, s.PendingCount())

	clock.Advance(time.Second)

	got := map[string]ActionKind{}
	for i := 0; i < 2; i++ {
		d := waitDispatch(t, fired)
		got[d.path] = d.kind
	}
	assert.Equal(t, map[string]ActionKind{
		"/data/a.rrd": ActionSync,
		"/data/b.rrd": ActionDelete,
	}, got)
}

func TestScheduler_ReschedulesAfterFire(t *testing.T) {
	s, clock, fired := newTestScheduler(t, time.Second)
	defer s.Stop()

	s.Schedule("/data/a.rrd", ActionSync)
	clock.Advance(time.Second)
	waitDispatch(t, fired)

	// a fresh event after the window fired schedules a new action
	s.Schedule("/data/a.rrd", ActionSync)
	require.Equal(t, 1, s.PendingCount())
	clock.Advance(time.Second)
	d := waitDispatch(t, fired)
	assert.Equal(t, ActionSync, d.kind)
}

func TestScheduler_StopCancelsPending(t *testing.T) {
	s, clock, fired := newTestScheduler(t, time.Second)

	s.Schedule("/data/a.rrd", ActionSync)
	s.Schedule("/data/b.rrd", ActionSync)
	s.Stop()

	assert.Equal(t, 0, s.PendingCount())
	clock.Advance(5 * time.Second)
	assertNoDispatch(t, fired)

	// schedule after stop is a no-op
	s.Schedule("/data/c.rrd", ActionSync)
	assert.Equal(t, 0, s.PendingCount())
}
