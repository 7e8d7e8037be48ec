// Package config provides configuration loading functionality.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/runoshun/research-crew/internal/domain"
)

// DataDirEnv overrides the data directory when no flag is given.
const DataDirEnv = "RCREW_DATA_DIR"

// Ensure Loader implements domain.ConfigLoader.
var _ domain.ConfigLoader = (*Loader)(nil)

// Loader loads configuration from TOML files.
type Loader struct {
	dataDir       string // Path to the .rcrew data directory
	globalConfDir string // Path to global config directory (e.g., ~/.config/rcrew)
}

// NewLoader creates a new Loader.
func NewLoader(dataDir string) *Loader {
	return &Loader{
		dataDir:       dataDir,
		globalConfDir: defaultGlobalConfigDir(),
	}
}

// NewLoaderWithGlobalDir creates a new Loader with a custom global config directory.
// This is useful for testing.
func NewLoaderWithGlobalDir(dataDir, globalConfDir string) *Loader {
	return &Loader{
		dataDir:       dataDir,
		globalConfDir: globalConfDir,
	}
}

// ResolveDataDir picks the data directory: the flag value, then
// RCREW_DATA_DIR, then .rcrew under the working directory.
func ResolveDataDir(flag string) (string, error) {
	dir := flag
	if dir == "" {
		dir = os.Getenv(DataDirEnv)
	}
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get working directory: %w", err)
		}
		dir = domain.DataDir(wd)
	}
	return filepath.Abs(dir)
}

// defaultGlobalConfigDir returns the default global config directory.
func defaultGlobalConfigDir() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return domain.GlobalConfigDir(configHome)
}

// Load returns the merged configuration (defaults <- global <- data dir).
// Keys set in a later file take precedence; unset keys keep earlier values.
func (l *Loader) Load() (*domain.Config, error) {
	cfg := domain.NewDefaultConfig()

	if l.globalConfDir != "" {
		if err := applyFile(cfg, filepath.Join(l.globalConfDir, domain.ConfigFileName)); err != nil {
			return nil, err
		}
	}
	if err := applyFile(cfg, filepath.Join(l.dataDir, domain.ConfigFileName)); err != nil {
		return nil, err
	}

	sort.Strings(cfg.Warnings)
	return cfg, nil
}

// LoadGlobal returns only the global configuration over defaults.
// It returns os.ErrNotExist if there is no global config file.
func (l *Loader) LoadGlobal() (*domain.Config, error) {
	if l.globalConfDir == "" {
		return nil, os.ErrNotExist
	}
	path := filepath.Join(l.globalConfDir, domain.ConfigFileName)
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	cfg := domain.NewDefaultConfig()
	if err := applyFile(cfg, path); err != nil {
		return nil, err
	}
	sort.Strings(cfg.Warnings)
	return cfg, nil
}

// applyFile overlays the keys of the TOML file at path onto cfg.
// A missing file is not an error.
func applyFile(cfg *domain.Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := applyRaw(cfg, raw); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

// applyRaw copies known keys from raw into cfg and records unknown keys as warnings.
func applyRaw(cfg *domain.Config, raw map[string]any) error {
	for section, value := range raw {
		m, ok := value.(map[string]any)
		if !ok {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("unknown section: %s", section))
			continue
		}

		var err error
		switch section {
		case "store":
			err = applyStore(&cfg.Store, m, &cfg.Warnings)
		case "tasks":
			err = applyTasks(&cfg.Tasks, m, &cfg.Warnings)
		case "log":
			err = eachKey("log", m, &cfg.Warnings, map[string]func(any) error{
				"level": setString(&cfg.Log.Level),
			})
		case "server":
			err = eachKey("server", m, &cfg.Warnings, map[string]func(any) error{
				"addr": setString(&cfg.Server.Addr),
			})
		case "dashboard":
			err = eachKey("dashboard", m, &cfg.Warnings, map[string]func(any) error{
				"refresh": setDuration(&cfg.Dashboard.Refresh),
			})
		default:
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("unknown section: %s", section))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func applyStore(s *domain.StoreConfig, m map[string]any, warnings *[]string) error {
	return eachKey("store", m, warnings, map[string]func(any) error{
		"backend":   setString(&s.Backend),
		"path":      setString(&s.Path),
		"dsn":       setString(&s.DSN),
		"namespace": setString(&s.Namespace),
		"timeout":   setDuration(&s.Timeout),
	})
}

func applyTasks(t *domain.TasksConfig, m map[string]any, warnings *[]string) error {
	return eachKey("tasks", m, warnings, map[string]func(any) error{
		"max_retries":        setInt(&t.MaxRetries),
		"stale_after":        setDuration(&t.StaleAfter),
		"transient_attempts": setInt(&t.TransientAttempts),
		"reject_cycles":      setBool(&t.RejectCycles),
	})
}

// eachKey applies the setter registered for every key of a section.
func eachKey(section string, m map[string]any, warnings *[]string, setters map[string]func(any) error) error {
	for k, v := range m {
		set, ok := setters[k]
		if !ok {
			*warnings = append(*warnings, fmt.Sprintf("unknown key in [%s]: %s", section, k))
			continue
		}
		if err := set(v); err != nil {
			return fmt.Errorf("[%s] %s: %w", section, k, err)
		}
	}
	return nil
}

func setString(dst *string) func(any) error {
	return func(v any) error {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
		*dst = s
		return nil
	}
}

func setInt(dst *int) func(any) error {
	return func(v any) error {
		n, ok := v.(int64)
		if !ok {
			return fmt.Errorf("expected integer, got %T", v)
		}
		if n < 0 {
			return fmt.Errorf("must not be negative, got %d", n)
		}
		*dst = int(n)
		return nil
	}
}

func setBool(dst *bool) func(any) error {
	return func(v any) error {
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("expected boolean, got %T", v)
		}
		*dst = b
		return nil
	}
}

// setDuration accepts Go duration strings such as "90s" or "24h".
func setDuration(dst *time.Duration) func(any) error {
	return func(v any) error {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected duration string, got %T", v)
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		if d <= 0 {
			return fmt.Errorf("must be positive, got %s", s)
		}
		*dst = d
		return nil
	}
}
