package sync

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/rrdtools/rrdsync/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

const ignoreFileName = ".rrdsyncignore"

var defaultIgnoreLines = []string{
	ignoreFileName,
	// editor droppings
	"*.tmp",
	"*.swp",
	"*~",
	".vscode",
	".idea",
	// general excludes
	".git",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
}

// IgnoreList excludes paths from syncing via gitignore-style rules:
// built-in defaults plus an optional .rrdsyncignore at the source root.
type IgnoreList struct {
	baseDir string
	ignore  *gitignore.GitIgnore
}

func NewIgnoreList(baseDir string) *IgnoreList {
	return &IgnoreList{baseDir: baseDir}
}

func (s *IgnoreList) Load() {
	ignorePath := filepath.Join(s.baseDir, ignoreFileName)
	ignoreLines := defaultIgnoreLines

	if utils.FileExists(ignorePath) {
		rules := 0
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("failed to open ignore file", "path", ignorePath, "error", err)
		} else {
			defer file.Close()

			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				line := scanner.Text()
				if line != "" {
					ignoreLines = append(ignoreLines, line)
					rules++
				}
			}

			if err := scanner.Err(); err != nil {
				slog.Warn("error reading ignore file", "path", ignorePath, "error", err)
			} else {
				slog.Info("loaded ignore file", "path", ignorePath, "rules", rules)
			}
		}
	}

	s.ignore = gitignore.CompileIgnoreLines(ignoreLines...)
}

// ShouldIgnore matches a path (absolute or source-relative) against
// the compiled rules.
func (s *IgnoreList) ShouldIgnore(path string) bool {
	if s.ignore == nil {
		return false
	}
	if filepath.IsAbs(path) {
		if rel, err := filepath.Rel(s.baseDir, path); err == nil && !strings.HasPrefix(rel, "..") {
			path = rel
		}
	}
	return s.ignore.MatchesPath(path)
}
