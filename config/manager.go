package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// Manager loads and saves the settings file. Reads are cheap enough to do
// on demand; writes go through a temp file rename so a crash mid-save never
// leaves a truncated settings file behind.
type Manager struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

// NewManager creates a settings manager backed by the given filesystem.
func NewManager(fs afero.Fs, path string) *Manager {
	return &Manager{fs: fs, path: path}
}

// Load reads settings from disk, falling back to defaults when the file
// does not exist, then overlays environment variables.
func (m *Manager) Load() (*Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	settings := DefaultSettings()

	data, err := afero.ReadFile(m.fs, m.path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("parse settings %s: %w", m.path, err)
		}
	case os.IsNotExist(err):
		// First run: defaults plus environment.
	default:
		return nil, fmt.Errorf("read settings %s: %w", m.path, err)
	}

	settings.applyEnv()
	return settings, nil
}

// Save writes settings to disk atomically.
func (m *Manager) Save(settings *Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	dir := filepath.Dir(m.path)
	if err := m.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := afero.WriteFile(m.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := m.fs.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}
