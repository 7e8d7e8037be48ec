package domain

import (
	"path/filepath"
	"testing"
)

func TestPathFunctions(t *testing.T) {
	dataDir := filepath.Join("/repo", DataDirName)

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"DataDir", DataDir("/repo"), "/repo/.rcrew"},
		{"GlobalConfigDir", GlobalConfigDir("/home/u/.config"), "/home/u/.config/rcrew"},
		{"TaskLogPath", TaskLogPath(dataDir, "abc"), "/repo/.rcrew/logs/tasks/abc.log"},
		{"GlobalLogPath", GlobalLogPath(dataDir), "/repo/.rcrew/logs/rcrew.log"},
		{"json store", DefaultStorePath(dataDir, BackendJSON), "/repo/.rcrew/tasks.json"},
		{"git store", DefaultStorePath(dataDir, BackendGit), "/repo/.rcrew/store.git"},
		{"sqlite store", DefaultStorePath(dataDir, BackendSQLite), "/repo/.rcrew/rcrew.db"},
		{"postgres store", DefaultStorePath(dataDir, BackendPostgres), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestShortID(t *testing.T) {
	if got := ShortID("3f2a9c1e-8b7d-4e2f-9a1b-0c3d5e7f9a2b"); got != "3f2a9c1e" {
		t.Errorf("ShortID() = %q", got)
	}
	if got := ShortID("t1"); got != "t1" {
		t.Errorf("ShortID() = %q", got)
	}
}
