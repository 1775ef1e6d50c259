package transfer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rrdtools/rrdsync/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCall struct {
	name string
	args []string
}

type fakeRunner struct {
	calls  []fakeCall
	result *Result
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	f.calls = append(f.calls, fakeCall{name: name, args: args})
	if f.result == nil {
		return &Result{}, f.err
	}
	return f.result, f.err
}

type blockingRunner struct{}

func (blockingRunner) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	<-ctx.Done()
	return &Result{}, ctx.Err()
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.SourceDir = t.TempDir()
	cfg.Remote = config.Remote{
		User:   "rrdsync",
		Host:   "standby01",
		Path:   "/var/lib/rrd",
		SSHKey: "/home/rrdsync/.ssh/id_rrdsync",
		Port:   config.DefaultSSHPort,
	}
	return cfg
}

func TestExecutor_SyncFileArgs(t *testing.T) {
	cfg := testConfig(t)
	cfg.Transfer.BWLimitKBps = 500
	cfg.Transfer.Checksum = true

	runner := &fakeRunner{}
	ex := NewExecutor(cfg)
	ex.runner = runner

	_, err := ex.SyncFile(context.Background(), "ganglia/cpu.rrd")
	require.NoError(t, err)
	require.Len(t, runner.calls, 1)

	call := runner.calls[0]
	assert.Equal(t, "rsync", call.name)
	assert.Contains(t, call.args, "--archive")
	assert.Contains(t, call.args, "--compress")
	assert.Contains(t, call.args, "--update")
	assert.Contains(t, call.args, "--partial")
	assert.Contains(t, call.args, "--checksum")
	assert.Contains(t, call.args, "--bwlimit=500")
	assert.NotContains(t, call.args, "--dry-run")

	// transport flag carries the key
	assert.Contains(t, call.args, "-e")
	assert.Contains(t, call.args, "ssh -o BatchMode=yes -i /home/rrdsync/.ssh/id_rrdsync")

	// last two args: local path, remote destination
	local := call.args[len(call.args)-2]
	dest := call.args[len(call.args)-1]
	assert.Equal(t, filepath.Join(cfg.SourceDir, "ganglia", "cpu.rrd"), local)
	assert.Equal(t, "rrdsync@standby01:/var/lib/rrd/ganglia/cpu.rrd", dest)
}

func TestExecutor_SyncFileNonDefaultPort(t *testing.T) {
	cfg := testConfig(t)
	cfg.Remote.Port = 2222
	cfg.Remote.SSHKey = ""

	runner := &fakeRunner{}
	ex := NewExecutor(cfg)
	ex.runner = runner

	_, err := ex.SyncFile(context.Background(), "x.rrd")
	require.NoError(t, err)
	assert.Contains(t, runner.calls[0].args, "ssh -o BatchMode=yes -p 2222")
}

func TestExecutor_MirrorTreeArgs(t *testing.T) {
	cfg := testConfig(t)

	runner := &fakeRunner{}
	ex := NewExecutor(cfg)
	ex.runner = runner

	_, err := ex.MirrorTree(context.Background())
	require.NoError(t, err)
	require.Len(t, runner.calls, 1)

	call := runner.calls[0]
	assert.Equal(t, "rsync", call.name)
	assert.Contains(t, call.args, "--delete")
	assert.Equal(t, cfg.SourceDir+string(filepath.Separator), call.args[len(call.args)-2])
	assert.Equal(t, "rrdsync@standby01:/var/lib/rrd/", call.args[len(call.args)-1])
}

func TestExecutor_EnsureRemoteDir(t *testing.T) {
	cfg := testConfig(t)

	runner := &fakeRunner{}
	ex := NewExecutor(cfg)
	ex.runner = runner

	require.NoError(t, ex.EnsureRemoteDir(context.Background(), "ganglia/host01"))
	require.Len(t, runner.calls, 1)

	call := runner.calls[0]
	assert.Equal(t, "ssh", call.name)
	assert.Equal(t, []string{
		"-o", "BatchMode=yes",
		"-i", "/home/rrdsync/.ssh/id_rrdsync",
		"rrdsync@standby01",
		"mkdir", "-p", "--", "/var/lib/rrd/ganglia/host01",
	}, call.args)
}

func TestExecutor_EnsureRemoteDirSkippedOnDryRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.DryRun = true

	runner := &fakeRunner{}
	ex := NewExecutor(cfg)
	ex.runner = runner

	require.NoError(t, ex.EnsureRemoteDir(context.Background(), "a"))
	assert.Empty(t, runner.calls)
}

func TestExecutor_DryRunFlag(t *testing.T) {
	cfg := testConfig(t)
	cfg.DryRun = true

	runner := &fakeRunner{}
	ex := NewExecutor(cfg)
	ex.runner = runner

	_, err := ex.SyncFile(context.Background(), "x.rrd")
	require.NoError(t, err)
	assert.Contains(t, runner.calls[0].args, "--dry-run")
}

func TestExecutor_NonZeroExit(t *testing.T) {
	cfg := testConfig(t)

	runner := &fakeRunner{result: &Result{ExitCode: 23, Stderr: "rsync: some files could not be transferred"}}
	ex := NewExecutor(cfg)
	ex.runner = runner

	_, err := ex.SyncFile(context.Background(), "x.rrd")
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 23, exitErr.Result.ExitCode)
	assert.Contains(t, exitErr.Error(), "status 23")
	assert.Contains(t, exitErr.Error(), "could not be transferred")
}

func TestExecutor_Timeout(t *testing.T) {
	cfg := testConfig(t)
	cfg.TransferTimeoutSeconds = 0.01

	ex := NewExecutor(cfg)
	ex.runner = blockingRunner{}

	_, err := ex.SyncFile(context.Background(), "x.rrd")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
