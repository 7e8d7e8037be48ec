package domain

import (
	"bytes"
	_ "embed"
	"text/template"
	"time"
)

//go:embed config_template.toml
var configTemplateContent string

// Store backend names.
const (
	BackendJSON     = "json"
	BackendGit      = "git"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Configuration defaults.
const (
	DefaultBackend           = BackendJSON
	DefaultNamespace         = "rcrew"
	DefaultStoreTimeout      = 5 * time.Second
	DefaultTransientAttempts = 3
	DefaultLogLevel          = "info"
	DefaultServerAddr        = "127.0.0.1:5280"
	DefaultRefresh           = 2 * time.Second
)

// Config represents the application configuration.
// Fields are ordered to minimize memory padding.
type Config struct {
	Warnings  []string        `toml:"-"`
	Store     StoreConfig     `toml:"store"`
	Server    ServerConfig    `toml:"server"`
	Log       LogConfig       `toml:"log"`
	Tasks     TasksConfig     `toml:"tasks"`
	Dashboard DashboardConfig `toml:"dashboard"`
}

// StoreConfig holds persistence settings from the [store] section.
type StoreConfig struct {
	Backend   string        `toml:"backend"`   // json (default), git, sqlite, postgres
	Path      string        `toml:"path"`      // File or repository path (relative to data dir)
	DSN       string        `toml:"dsn"`       // Postgres connection string
	Namespace string        `toml:"namespace"` // Git refs namespace
	Timeout   time.Duration `toml:"timeout"`   // Per-call store timeout
}

// TasksConfig holds orchestration settings from the [tasks] section.
type TasksConfig struct {
	StaleAfter        time.Duration `toml:"stale_after"`
	MaxRetries        int           `toml:"max_retries"`
	TransientAttempts int           `toml:"transient_attempts"`
	RejectCycles      bool          `toml:"reject_cycles"`
}

// LogConfig holds logging settings from the [log] section.
type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
}

// ServerConfig holds HTTP settings from the [server] section.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// DashboardConfig holds TUI settings from the [dashboard] section.
type DashboardConfig struct {
	Refresh time.Duration `toml:"refresh"`
}

// NewDefaultConfig returns a Config populated with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:   DefaultBackend,
			Namespace: DefaultNamespace,
			Timeout:   DefaultStoreTimeout,
		},
		Tasks: TasksConfig{
			MaxRetries:        DefaultMaxRetries,
			StaleAfter:        DefaultStaleAfter,
			TransientAttempts: DefaultTransientAttempts,
			RejectCycles:      true,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
		Server: ServerConfig{
			Addr: DefaultServerAddr,
		},
		Dashboard: DashboardConfig{
			Refresh: DefaultRefresh,
		},
	}
}

// templateData holds the values rendered into the config template.
type templateData struct {
	Backend           string
	Namespace         string
	Timeout           string
	StaleAfter        string
	LogLevel          string
	ServerAddr        string
	Refresh           string
	MaxRetries        int
	TransientAttempts int
	RejectCycles      bool
}

// RenderConfigTemplate renders the default config file content.
func RenderConfigTemplate(cfg *Config) string {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	data := templateData{
		Backend:           cfg.Store.Backend,
		Namespace:         cfg.Store.Namespace,
		Timeout:           cfg.Store.Timeout.String(),
		StaleAfter:        cfg.Tasks.StaleAfter.String(),
		LogLevel:          cfg.Log.Level,
		ServerAddr:        cfg.Server.Addr,
		Refresh:           cfg.Dashboard.Refresh.String(),
		MaxRetries:        cfg.Tasks.MaxRetries,
		TransientAttempts: cfg.Tasks.TransientAttempts,
		RejectCycles:      cfg.Tasks.RejectCycles,
	}

	tmpl := template.Must(template.New("config").Parse(configTemplateContent))
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return configTemplateContent
	}
	return buf.String()
}
