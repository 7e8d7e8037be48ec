package domain

import "path/filepath"

// ConfigFileName is the name of the configuration file.
const ConfigFileName = "config.toml"

// DataDirName is the directory holding rcrew data under the working directory.
const DataDirName = ".rcrew"

// DataDir returns the data directory under root.
func DataDir(root string) string {
	return filepath.Join(root, DataDirName)
}

// GlobalConfigDir returns the global config directory under the XDG config home.
func GlobalConfigDir(configHome string) string {
	return filepath.Join(configHome, "rcrew")
}

// TaskLogPath returns the path to the log file of one task.
func TaskLogPath(dataDir, taskID string) string {
	return filepath.Join(dataDir, "logs", "tasks", taskID+".log")
}

// GlobalLogPath returns the path to the global log file.
func GlobalLogPath(dataDir string) string {
	return filepath.Join(dataDir, "logs", "rcrew.log")
}

// DefaultStorePath returns the default store location of a backend.
// Postgres has no file location and returns an empty string.
func DefaultStorePath(dataDir, backend string) string {
	switch backend {
	case BackendJSON:
		return filepath.Join(dataDir, "tasks.json")
	case BackendGit:
		return filepath.Join(dataDir, "store.git")
	case BackendSQLite:
		return filepath.Join(dataDir, "rcrew.db")
	default:
		return ""
	}
}

// ShortID returns the first 8 characters of an id for display.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
