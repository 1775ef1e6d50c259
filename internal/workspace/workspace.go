package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/rrdtools/rrdsync/internal/utils"
)

const (
	logsDir   = "logs"
	stateFile = "state.json"
	lockFile  = "rrdsync.lock"
)

var (
	ErrWorkspaceLocked = errors.New("workspace locked by another rrdsync instance")
)

// Workspace resolves the directories the daemon works against: the
// watched source root and the data dir holding state, logs and the
// instance lock. The lock guards the single-writer invariant on the
// state file.
type Workspace struct {
	SourceDir string
	DataDir   string
	LogsDir   string
	StatePath string

	flock *flock.Flock
}

func NewWorkspace(sourceDir, dataDir string) (*Workspace, error) {
	source, err := utils.ResolvePath(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source dir %s: %w", sourceDir, err)
	}
	data, err := utils.ResolvePath(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data dir %s: %w", dataDir, err)
	}

	return &Workspace{
		SourceDir: source,
		DataDir:   data,
		LogsDir:   filepath.Join(data, logsDir),
		StatePath: filepath.Join(data, stateFile),
		flock:     flock.New(filepath.Join(data, lockFile)),
	}, nil
}

// Setup creates the data directories and takes the instance lock.
func (w *Workspace) Setup() error {
	for _, dir := range []string{w.DataDir, w.LogsDir} {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return w.Lock()
}

func (w *Workspace) Lock() error {
	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock workspace: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}
	return nil
}

func (w *Workspace) Unlock() error {
	// if this process hasn't locked the workspace, then don't delete the lock file
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock workspace: %w", err)
	}

	return os.Remove(w.flock.Path())
}

// SourceAbsPath returns the absolute path of a source-relative path.
func (w *Workspace) SourceAbsPath(relPath string) string {
	return filepath.Join(w.SourceDir, relPath)
}

// SourceRelPath returns the source-relative form of an absolute path,
// normalized to forward slashes.
func (w *Workspace) SourceRelPath(absPath string) (string, error) {
	relPath, err := filepath.Rel(w.SourceDir, absPath)
	if err != nil {
		return "", err
	}
	return utils.NormPath(relPath), nil
}
