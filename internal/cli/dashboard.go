package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/runoshun/research-crew/internal/app"
	"github.com/runoshun/research-crew/internal/tui"
	"github.com/runoshun/research-crew/internal/usecase"
)

// launchDashboardFunc runs the interactive dashboard. Replaced in tests.
var launchDashboardFunc = tui.Run

// newDashboardCommand creates the dashboard command.
func newDashboardCommand(c *app.Container) *cobra.Command {
	var refresh time.Duration

	cmd := &cobra.Command{
		Use:   "dashboard <session-id>",
		Short: "Open the live session dashboard",
		Long: `Open an interactive dashboard for a session that reloads periodically.

Keys:
  ↑/k ↓/j   move
  enter     task details
  s         start the selected task
  d         complete the selected task
  R         retry the selected task (asks for confirmation)
  x         cancel the selected task (asks for confirmation)
  r         refresh now
  ?         help
  q         quit

Use 'rcrew session dashboard <session-id>' for a one-shot text view.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Fail fast on an unknown session before taking over the terminal
			if _, err := c.SessionProgressUseCase().Execute(cmd.Context(), usecase.SessionProgressInput{SessionID: args[0]}); err != nil {
				return err
			}
			if !cmd.Flags().Changed("refresh") {
				refresh = c.AppConfig.Dashboard.Refresh
			}
			return launchDashboardFunc(c, args[0], refresh)
		},
	}

	cmd.Flags().DurationVar(&refresh, "refresh", 0, "Reload interval, 0 disables (default: [dashboard] refresh)")
	return cmd
}
