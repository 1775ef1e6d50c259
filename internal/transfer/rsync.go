// Package transfer drives the external copy primitive. It builds and
// runs rsync-over-ssh commands; it never reimplements what rsync
// already does (retries, compression, checksums are pass-through
// flags).
package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rrdtools/rrdsync/internal/config"
)

const (
	rsyncBin = "rsync"
	sshBin   = "ssh"
)

// Executor issues one external command per call: a single-file rsync,
// a whole-tree mirror, or a remote mkdir. All calls are synchronous
// and bounded by the configured timeout.
type Executor struct {
	sourceDir string
	remote    config.Remote
	opts      config.TransferOptions
	timeout   time.Duration
	dryRun    bool
	runner    Runner
}

func NewExecutor(cfg *config.Config) *Executor {
	return &Executor{
		sourceDir: cfg.SourceDir,
		remote:    cfg.Remote,
		opts:      cfg.Transfer,
		timeout:   cfg.TransferTimeout(),
		dryRun:    cfg.DryRun,
		runner:    execRunner{},
	}
}

// sshCommand builds the transport argument for rsync's -e flag and the
// argv prefix for direct ssh invocations.
func (e *Executor) sshCommand() []string {
	args := []string{sshBin, "-o", "BatchMode=yes"}
	if e.remote.Port != 0 && e.remote.Port != config.DefaultSSHPort {
		args = append(args, "-p", fmt.Sprintf("%d", e.remote.Port))
	}
	if e.remote.SSHKey != "" {
		args = append(args, "-i", e.remote.SSHKey)
	}
	return args
}

// rsyncArgs maps the configured option set onto rsync flags. Options
// are opaque pass-through; the engine attaches no semantics to them.
func (e *Executor) rsyncArgs() []string {
	args := []string{"-e", strings.Join(e.sshCommand(), " ")}
	if e.opts.Archive {
		args = append(args, "--archive")
	}
	if e.opts.Compress {
		args = append(args, "--compress")
	}
	if e.opts.Verbose {
		args = append(args, "--verbose")
	}
	if e.opts.UpdateOnly {
		args = append(args, "--update")
	}
	if e.opts.Checksum {
		args = append(args, "--checksum")
	}
	if e.opts.Partial {
		args = append(args, "--partial")
	}
	if e.opts.Itemize {
		args = append(args, "--itemize-changes")
	}
	if e.opts.Stats {
		args = append(args, "--stats")
	}
	if e.opts.BWLimitKBps > 0 {
		args = append(args, fmt.Sprintf("--bwlimit=%d", e.opts.BWLimitKBps))
	}
	if e.dryRun {
		args = append(args, "--dry-run")
	}
	return args
}

// remoteDest builds the scp-style destination for a source-relative path.
func (e *Executor) remoteDest(relPath string) string {
	return e.remote.Addr() + ":" + path.Join(e.remote.Path, filepath.ToSlash(relPath))
}

func (e *Executor) run(ctx context.Context, name string, args ...string) (*Result, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	res, err := e.runner.Run(ctx, name, args...)
	if err != nil {
		return res, fmt.Errorf("%s: %w", name, err)
	}
	if res.ExitCode != 0 {
		return res, &ExitError{Cmd: name, Result: res}
	}
	return res, nil
}

// SyncFile copies exactly one source-relative file to its destination
// path on the remote.
func (e *Executor) SyncFile(ctx context.Context, relPath string) (*Result, error) {
	localPath := filepath.Join(e.sourceDir, filepath.FromSlash(relPath))
	args := append(e.rsyncArgs(), localPath, e.remoteDest(relPath))

	slog.Debug("transfer file", "path", relPath)
	return e.run(ctx, rsyncBin, args...)
}

// MirrorTree mirrors the whole source root onto the remote root,
// removing remote files that no longer exist locally. Deletion
// propagation is deliberately tree-wide, not path-scoped.
func (e *Executor) MirrorTree(ctx context.Context) (*Result, error) {
	args := append(e.rsyncArgs(), "--delete",
		e.sourceDir+string(filepath.Separator),
		e.remote.Addr()+":"+e.remote.Path+"/")

	slog.Debug("transfer mirror", "source", e.sourceDir, "dest", e.remote.Path)
	return e.run(ctx, rsyncBin, args...)
}

// EnsureRemoteDir idempotently creates the destination directory for a
// source-relative directory path.
func (e *Executor) EnsureRemoteDir(ctx context.Context, relDir string) error {
	if e.dryRun {
		return nil
	}

	remotePath := path.Join(e.remote.Path, filepath.ToSlash(relDir))
	args := append(e.sshCommand()[1:], e.remote.Addr(), "mkdir", "-p", "--", remotePath)

	_, err := e.run(ctx, sshBin, args...)
	if err != nil {
		return fmt.Errorf("ensure remote dir %s: %w", remotePath, err)
	}
	return nil
}
