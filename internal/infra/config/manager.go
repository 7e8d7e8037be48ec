package config

import (
	"os"
	"path/filepath"

	"github.com/runoshun/research-crew/internal/domain"
)

// Ensure Manager implements domain.ConfigManager.
var _ domain.ConfigManager = (*Manager)(nil)

// Manager manages configuration files.
type Manager struct {
	dataDir       string // Path to the .rcrew data directory
	globalConfDir string // Path to global config directory (e.g., ~/.config/rcrew)
}

// NewManager creates a new Manager.
func NewManager(dataDir string) *Manager {
	return &Manager{
		dataDir:       dataDir,
		globalConfDir: defaultGlobalConfigDir(),
	}
}

// NewManagerWithGlobalDir creates a new Manager with a custom global config directory.
// This is useful for testing.
func NewManagerWithGlobalDir(dataDir, globalConfDir string) *Manager {
	return &Manager{
		dataDir:       dataDir,
		globalConfDir: globalConfDir,
	}
}

// GetConfigInfo returns the paths and contents of the global and data dir config files.
func (m *Manager) GetConfigInfo() domain.ConfigInfo {
	info := domain.ConfigInfo{
		LocalPath: filepath.Join(m.dataDir, domain.ConfigFileName),
	}
	if content, err := os.ReadFile(info.LocalPath); err == nil {
		info.LocalContent = string(content)
		info.LocalExists = true
	}

	if m.globalConfDir != "" {
		info.GlobalPath = filepath.Join(m.globalConfDir, domain.ConfigFileName)
		if content, err := os.ReadFile(info.GlobalPath); err == nil {
			info.GlobalContent = string(content)
			info.GlobalExists = true
		}
	}
	return info
}

// InitConfig writes the default template to the data directory.
// It returns domain.ErrConfigExists if the file is already there.
func (m *Manager) InitConfig() error {
	path := filepath.Join(m.dataDir, domain.ConfigFileName)

	// Check if file already exists
	if _, err := os.Stat(path); err == nil {
		return domain.ErrConfigExists
	}

	if err := os.MkdirAll(m.dataDir, 0o750); err != nil {
		return err
	}

	content := domain.RenderConfigTemplate(nil)
	return os.WriteFile(path, []byte(content), 0o600)
}
