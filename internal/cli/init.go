package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/runoshun/research-crew/internal/app"
	"github.com/runoshun/research-crew/internal/usecase"
)

// newInitCommand creates the init command.
func newInitCommand(c *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the rcrew data directory and store",
		Long: `Initialize rcrew.

This command creates the data directory (.rcrew/ by default) with:
- config.toml: configuration template (kept if it already exists)
- logs/: directory for log files
and initializes the configured store backend
(tasks.json, a bare git repository, a SQLite database or Postgres tables).

Running init again is safe: existing data is left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			uc := c.InitStoreUseCase()
			out, err := uc.Execute(cmd.Context(), usecase.InitStoreInput{
				DataDir: c.Config.DataDir,
			})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "Initialized rcrew in %s (%s store)\n", out.DataDir, c.AppConfig.Store.Backend)
			if out.ConfigCreated {
				_, _ = fmt.Fprintln(w, "Created config.toml")
			}
			return nil
		},
	}
}
