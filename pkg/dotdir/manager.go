// Package dotdir resolves the .polar/ directory that holds config.toml and,
// for the sqlite storage driver, the default database files.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	dirName    = ".polar"
	sqliteFile = "polar.sqlite"
)

// Manager resolves the polar directory relative to a working directory and
// a home directory, which default to the process's own.
type Manager struct {
	workdir func() (string, error)
	home    func() (string, error)
}

// Option overrides where a Manager looks.
type Option func(*Manager)

// WithWorkdir pins the directory searched for a local .polar/.
func WithWorkdir(dir string) Option {
	return func(m *Manager) { m.workdir = func() (string, error) { return dir, nil } }
}

// WithHome pins the directory used for the ~/.polar fallback.
func WithHome(dir string) Option {
	return func(m *Manager) { m.home = func() (string, error) { return dir, nil } }
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{workdir: os.Getwd, home: os.UserHomeDir}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Target returns the absolute polar directory, creating it when missing.
// An override wins, then ./.polar/ if it already exists, then ~/.polar/.
func (m *Manager) Target(override string) (string, error) {
	dir := override
	if dir == "" {
		var err error
		if dir, err = m.discover(); err != nil {
			return "", err
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating polar directory %s: %w", dir, err)
	}
	return filepath.Abs(dir)
}

func (m *Manager) discover() (string, error) {
	if cwd, err := m.workdir(); err == nil {
		local := filepath.Join(cwd, dirName)
		if info, err := os.Stat(local); err == nil && info.IsDir() {
			return local, nil
		}
	}

	home, err := m.home()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, dirName), nil
}

// SQLitePath returns override when set, otherwise polar.sqlite in dir.
func SQLitePath(override, dir string) string {
	if override != "" {
		return override
	}
	return filepath.Join(dir, sqliteFile)
}
