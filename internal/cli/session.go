package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/runoshun/research-crew/internal/app"
	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/usecase"
)

// newSessionCommand creates the session command group.
func newSessionCommand(c *app.Container) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "session",
		Aliases: []string{"sess"},
		Short:   "Manage research sessions",
		// No RunE: shows subcommand list when called without arguments
	}

	cmd.AddCommand(
		newSessionNewCommand(c),
		newSessionListCommand(c),
		newSessionRmCommand(c),
		newSessionProgressCommand(c),
		newSessionDashboardCommand(c),
	)
	return cmd
}

// newSessionNewCommand creates the session new subcommand.
func newSessionNewCommand(c *app.Container) *cobra.Command {
	var opts struct {
		ResearchType string
		Target       string
		Quiet        bool
	}

	cmd := &cobra.Command{
		Use:   "new <name>",
		Short: "Create a research session",
		Long: `Create a research session that groups related tasks.

Examples:
  rcrew session new "Acme Corp profile" --type company_profile --target acme.example

  # Print only the id, for scripting
  SID=$(rcrew session new "Market scan" -q)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := c.CreateSessionUseCase().Execute(cmd.Context(), usecase.CreateSessionInput{
				Name:         args[0],
				ResearchType: opts.ResearchType,
				Target:       opts.Target,
			})
			if err != nil {
				return err
			}

			if opts.Quiet {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), out.Session.ID)
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created session %s\n", bold(out.Session.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.ResearchType, "type", "", "Research type (e.g. company_profile)")
	cmd.Flags().StringVar(&opts.Target, "target", "", "Research subject")
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "Print only the session id")
	return cmd
}

// newSessionListCommand creates the session list subcommand.
func newSessionListCommand(c *app.Container) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List sessions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := c.ListSessionsUseCase().Execute(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), out.Sessions)
			}
			printSessionList(cmd.OutOrStdout(), out.Sessions)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

// newSessionRmCommand creates the session rm subcommand.
func newSessionRmCommand(c *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <session-id>",
		Short: "Delete a session and all of its tasks",
		Long: `Delete a session and all of its tasks.

The audit history of the deleted tasks is kept.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.DeleteSessionUseCase().Execute(cmd.Context(), usecase.DeleteSessionInput{SessionID: args[0]}); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", args[0])
			return nil
		},
	}
}

// newSessionProgressCommand creates the session progress subcommand.
func newSessionProgressCommand(c *app.Container) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "progress <session-id>",
		Short: "Show aggregated session progress",
		Long: `Show the completion percentage and overall status of a session.

The overall status is has_failures if any task failed, else waiting_user,
in_progress or pending if any task is in that state, else completed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := c.SessionProgressUseCase().Execute(cmd.Context(), usecase.SessionProgressInput{SessionID: args[0]})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), out.Progress)
			}
			printProgress(cmd.OutOrStdout(), out.Progress)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

// newSessionDashboardCommand creates the session dashboard subcommand.
func newSessionDashboardCommand(c *app.Container) *cobra.Command {
	var opts struct {
		StaleAfter time.Duration
		JSON       bool
	}

	cmd := &cobra.Command{
		Use:   "dashboard <session-id>",
		Short: "Print the session dashboard",
		Long: `Print progress, the task breakdown by bucket, stale tasks and
suggested next actions for a session.

Use 'rcrew dashboard <session-id>' for a live view.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := c.SessionDashboardUseCase().Execute(cmd.Context(), usecase.SessionDashboardInput{
				SessionID:  args[0],
				StaleAfter: opts.StaleAfter,
			})
			if err != nil {
				return err
			}
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), d)
			}
			printDashboard(cmd.OutOrStdout(), d)
			return nil
		},
	}

	cmd.Flags().DurationVar(&opts.StaleAfter, "stale-after", 0, "Inactivity threshold (default: [tasks] stale_after)")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Output in JSON format")
	return cmd
}

// printDashboard prints a dashboard as text.
func printDashboard(w io.Writer, d *domain.Dashboard) {
	_, _ = fmt.Fprintf(w, "%s %s\n", bold(d.SessionName), dim("("+d.SessionID+")"))
	if d.ResearchType != "" || d.Target != "" {
		_, _ = fmt.Fprintf(w, "Type: %s  Target: %s\n", orDash(d.ResearchType), orDash(d.Target))
	}
	_, _ = fmt.Fprintf(w, "Status: %s\n", colorSessionStatus(d.SessionStatus))
	printProgress(w, d.Progress)

	for _, bucket := range domain.BucketOrder {
		items := d.Breakdown[bucket]
		if len(items) == 0 {
			continue
		}
		_, _ = fmt.Fprintf(w, "\n%s (%d)\n", bold(bucket), len(items))
		for _, s := range items {
			line := fmt.Sprintf("  %s  %-3d%%  %s", domain.ShortID(s.TaskID), s.Progress, s.Title)
			if s.CurrentStep != "" {
				line += dim("  " + s.CurrentStep)
			}
			if s.Error != "" {
				line += "  " + red(s.Error)
			}
			_, _ = fmt.Fprintln(w, line)
		}
	}

	if len(d.StaleItems) > 0 {
		_, _ = fmt.Fprintf(w, "\n%s\n", yellow("Stale"))
		for _, s := range d.StaleItems {
			_, _ = fmt.Fprintf(w, "  %s  %dh  %s: %s\n", domain.ShortID(s.TaskID), s.HoursStale, s.Title, s.RecommendedAction)
		}
	}

	if len(d.NextActions) > 0 {
		_, _ = fmt.Fprintf(w, "\n%s\n", bold("Next actions"))
		for _, a := range d.NextActions {
			_, _ = fmt.Fprintf(w, "  - %s\n", a)
		}
	}
}

// newReadyCommand creates the ready command.
func newReadyCommand(c *app.Container) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ready <session-id>",
		Short: "List pending tasks whose dependencies are satisfied",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := c.ReadyTasksUseCase().Execute(cmd.Context(), usecase.ReadyTasksInput{SessionID: args[0]})
			if err != nil {
				return err
			}
			if out.Err != nil {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", yellow("Warning:"), out.Err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), out.Tasks)
			}
			if len(out.Tasks) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No ready tasks")
				return nil
			}
			printTaskList(cmd.OutOrStdout(), out.Tasks, c.Clock)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
