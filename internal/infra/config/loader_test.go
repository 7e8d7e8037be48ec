package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, domain.ConfigFileName), []byte(content), 0o644))
}

func TestLoader_Load_LocalConfigOnly(t *testing.T) {
	dataDir := t.TempDir()
	globalDir := t.TempDir()

	writeConfig(t, dataDir, `
[store]
backend = "sqlite"
path = "research.db"
timeout = "2s"

[tasks]
max_retries = 5
stale_after = "6h"
transient_attempts = 1
reject_cycles = false

[log]
level = "debug"

[server]
addr = ":8080"

[dashboard]
refresh = "500ms"
`)

	loader := NewLoaderWithGlobalDir(dataDir, globalDir)
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, domain.BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "research.db", cfg.Store.Path)
	assert.Equal(t, 2*time.Second, cfg.Store.Timeout)
	assert.Equal(t, domain.DefaultNamespace, cfg.Store.Namespace)
	assert.Equal(t, 5, cfg.Tasks.MaxRetries)
	assert.Equal(t, 6*time.Hour, cfg.Tasks.StaleAfter)
	assert.Equal(t, 1, cfg.Tasks.TransientAttempts)
	assert.False(t, cfg.Tasks.RejectCycles)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 500*time.Millisecond, cfg.Dashboard.Refresh)
	assert.Empty(t, cfg.Warnings)
}

func TestLoader_Load_GlobalConfigOnly(t *testing.T) {
	dataDir := t.TempDir()
	globalDir := t.TempDir()

	writeConfig(t, globalDir, `
[store]
backend = "postgres"
dsn = "postgres://localhost/research"
`)

	cfg, err := NewLoaderWithGlobalDir(dataDir, globalDir).Load()
	require.NoError(t, err)

	assert.Equal(t, domain.BackendPostgres, cfg.Store.Backend)
	assert.Equal(t, "postgres://localhost/research", cfg.Store.DSN)
	assert.Equal(t, domain.DefaultMaxRetries, cfg.Tasks.MaxRetries)
}

func TestLoader_Load_LocalOverridesGlobal(t *testing.T) {
	dataDir := t.TempDir()
	globalDir := t.TempDir()

	writeConfig(t, globalDir, `
[tasks]
max_retries = 7
stale_after = "12h"

[log]
level = "warn"
`)
	writeConfig(t, dataDir, `
[tasks]
max_retries = 1
`)

	cfg, err := NewLoaderWithGlobalDir(dataDir, globalDir).Load()
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Tasks.MaxRetries, "local value wins")
	assert.Equal(t, 12*time.Hour, cfg.Tasks.StaleAfter, "global value survives when local is silent")
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_Load_NoConfigFiles(t *testing.T) {
	cfg, err := NewLoaderWithGlobalDir(t.TempDir(), t.TempDir()).Load()
	require.NoError(t, err)

	assert.Equal(t, domain.NewDefaultConfig(), cfg)
}

func TestLoader_Load_NoGlobalDir(t *testing.T) {
	cfg, err := NewLoaderWithGlobalDir(t.TempDir(), "").Load()
	require.NoError(t, err)

	assert.Equal(t, domain.DefaultBackend, cfg.Store.Backend)
}

func TestLoader_Load_UnknownKeys(t *testing.T) {
	dataDir := t.TempDir()
	writeConfig(t, dataDir, `
title = "top-level value"

[store]
backend = "json"
compression = true

[agents]
default = "claude"
`)

	cfg, err := NewLoaderWithGlobalDir(dataDir, "").Load()
	require.NoError(t, err)

	assert.Equal(t, []string{
		"unknown key in [store]: compression",
		"unknown section: agents",
		"unknown section: title",
	}, cfg.Warnings)
}

func TestLoader_Load_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"invalid TOML", "[store\nbackend = 1", "parse config"},
		{"bad duration", "[tasks]\nstale_after = \"soon\"", "[tasks] stale_after"},
		{"non-positive duration", "[store]\ntimeout = \"0s\"", "[store] timeout: must be positive"},
		{"wrong type", "[tasks]\nmax_retries = \"three\"", "[tasks] max_retries: expected integer"},
		{"negative integer", "[tasks]\nmax_retries = -1", "[tasks] max_retries: must not be negative"},
		{"wrong bool", "[tasks]\nreject_cycles = \"yes\"", "[tasks] reject_cycles: expected boolean"},
		{"wrong string", "[log]\nlevel = 3", "[log] level: expected string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dataDir := t.TempDir()
			writeConfig(t, dataDir, tt.content)

			_, err := NewLoaderWithGlobalDir(dataDir, "").Load()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoader_LoadGlobal(t *testing.T) {
	globalDir := t.TempDir()
	writeConfig(t, globalDir, "[log]\nlevel = \"error\"\n")

	cfg, err := NewLoaderWithGlobalDir(t.TempDir(), globalDir).LoadGlobal()
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, domain.DefaultBackend, cfg.Store.Backend)
}

func TestLoader_LoadGlobal_NotFound(t *testing.T) {
	_, err := NewLoaderWithGlobalDir(t.TempDir(), t.TempDir()).LoadGlobal()
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = NewLoaderWithGlobalDir(t.TempDir(), "").LoadGlobal()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoader_Load_RenderedTemplateRoundTrips(t *testing.T) {
	dataDir := t.TempDir()
	writeConfig(t, dataDir, domain.RenderConfigTemplate(nil))

	cfg, err := NewLoaderWithGlobalDir(dataDir, "").Load()
	require.NoError(t, err)

	assert.Equal(t, domain.NewDefaultConfig(), cfg)
}

func TestResolveDataDir(t *testing.T) {
	t.Run("flag wins", func(t *testing.T) {
		t.Setenv(DataDirEnv, "/from/env")
		dir, err := ResolveDataDir("/from/flag")
		require.NoError(t, err)
		assert.Equal(t, "/from/flag", dir)
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv(DataDirEnv, "/from/env")
		dir, err := ResolveDataDir("")
		require.NoError(t, err)
		assert.Equal(t, "/from/env", dir)
	})

	t.Run("working directory", func(t *testing.T) {
		t.Setenv(DataDirEnv, "")
		wd, err := os.Getwd()
		require.NoError(t, err)

		dir, err := ResolveDataDir("")
		require.NoError(t, err)
		assert.Equal(t, domain.DataDir(wd), dir)
	})
}
