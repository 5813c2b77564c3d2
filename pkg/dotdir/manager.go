// Package dotdir resolves the .cohort/ directory holding config.toml and the
// local SQLite databases.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const dirName = ".cohort"

// Manager locates the .cohort directory.
type Manager struct{}

// NewManager returns a Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Target returns the absolute path to a .cohort/ directory, creating it
// when missing. Precedence:
//  1. overrideDir
//  2. ./.cohort/ when it exists
//  3. ~/.cohort/
func (m *Manager) Target(overrideDir string) (string, error) {
	var dir string

	switch {
	case overrideDir != "":
		dir = overrideDir

	case m.localDirExists():
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = filepath.Join(cwd, dirName)

	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, dirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating cohort directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// Path joins name onto the resolved target directory.
func (m *Manager) Path(overrideDir, name string) (string, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// DataPath places a bare file name such as "cohort.db" inside the target
// directory. Paths with a directory component and ":memory:" are returned
// unchanged.
func (m *Manager) DataPath(overrideDir, path string) (string, error) {
	if path == ":memory:" || path != filepath.Base(path) {
		return path, nil
	}
	return m.Path(overrideDir, path)
}

func (m *Manager) localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}

	info, err := os.Stat(filepath.Join(cwd, dirName))
	return err == nil && info.IsDir()
}
