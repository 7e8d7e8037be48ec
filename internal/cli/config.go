package cli

import (
	"fmt"
	"io"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/runoshun/research-crew/internal/app"
	"github.com/runoshun/research-crew/internal/domain"
)

// newConfigCommand creates the config command.
func newConfigCommand(c *app.Container) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  `Manage rcrew configuration files and settings.`,
		// No RunE: shows subcommand list when called without arguments
	}

	cmd.AddCommand(newConfigShowCommand(c))
	cmd.AddCommand(newConfigTemplateCommand())
	cmd.AddCommand(newConfigInitCommand(c))

	return cmd
}

// newConfigShowCommand creates the config show subcommand.
func newConfigShowCommand(c *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration",
		Long: `Display effective configuration after merging all sources.

Sources, later ones taking precedence:
  1. built-in defaults
  2. $XDG_CONFIG_HOME/rcrew/config.toml
  3. <data dir>/config.toml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := c.ShowConfigUseCase().Execute(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(w, "[Loaded from]")
			printConfigSource(w, out.Files.GlobalPath, out.Files.GlobalExists)
			printConfigSource(w, out.Files.LocalPath, out.Files.LocalExists)
			_, _ = fmt.Fprintln(w)

			_, _ = fmt.Fprintln(w, "[Effective Config]")
			return formatEffectiveConfig(w, out.Effective)
		},
	}
}

func printConfigSource(w io.Writer, path string, exists bool) {
	if path == "" {
		return
	}
	if exists {
		_, _ = fmt.Fprintf(w, "- %s\n", path)
	} else {
		_, _ = fmt.Fprintf(w, "- %s %s\n", path, dim("(not found)"))
	}
}

// formatEffectiveConfig writes cfg as TOML.
// Durations are written as Go duration strings, the form the loader reads.
func formatEffectiveConfig(w io.Writer, cfg *domain.Config) error {
	output := map[string]any{
		"store": map[string]any{
			"backend":   cfg.Store.Backend,
			"path":      cfg.Store.Path,
			"dsn":       redactDSN(cfg.Store.DSN),
			"namespace": cfg.Store.Namespace,
			"timeout":   cfg.Store.Timeout.String(),
		},
		"tasks": map[string]any{
			"max_retries":        cfg.Tasks.MaxRetries,
			"stale_after":        cfg.Tasks.StaleAfter.String(),
			"transient_attempts": cfg.Tasks.TransientAttempts,
			"reject_cycles":      cfg.Tasks.RejectCycles,
		},
		"log": map[string]any{
			"level": cfg.Log.Level,
		},
		"server": map[string]any{
			"addr": cfg.Server.Addr,
		},
		"dashboard": map[string]any{
			"refresh": cfg.Dashboard.Refresh.String(),
		},
	}

	if err := toml.NewEncoder(w).Encode(output); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// redactDSN hides a connection string, which usually carries a password.
func redactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	return "(set)"
}

// newConfigTemplateCommand creates the config template subcommand.
func newConfigTemplateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "template",
		Short: "Output configuration template",
		Long: `Output the default configuration file template to stdout.

It does not read existing configuration files and works even if they are broken.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, _ = fmt.Fprint(cmd.OutOrStdout(), domain.RenderConfigTemplate(nil))
			return nil
		},
	}
}

// newConfigInitCommand creates the config init subcommand.
func newConfigInitCommand(c *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Generate configuration file",
		Long: `Write the configuration template to <data dir>/config.toml.

Error conditions:
- Target file already exists: error`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := c.InitConfigUseCase().Execute(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created config file: %s\n", out.Path)
			return nil
		},
	}
}
