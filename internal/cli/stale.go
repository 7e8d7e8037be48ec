package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/runoshun/research-crew/internal/app"
	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/usecase"
)

// newStaleCommand creates the stale command.
func newStaleCommand(c *app.Container) *cobra.Command {
	var opts struct {
		Threshold time.Duration
		SessionID string
		Mark      bool
		JSON      bool
	}

	cmd := &cobra.Command{
		Use:   "stale",
		Short: "List tasks inactive for longer than a threshold",
		Long: `List pending and in_progress tasks whose last update
is older than the threshold (default: [tasks] stale_after).

With --mark, each of them is moved to 'stale' by the staleness sweep.

Examples:
  rcrew stale
  rcrew stale --threshold 2h --session $SID
  rcrew stale --mark`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()

			if opts.Mark {
				out, err := c.MarkStaleUseCase().Execute(cmd.Context(), usecase.MarkStaleInput{Threshold: opts.Threshold})
				if err != nil {
					return err
				}
				for _, t := range out.Marked {
					_, _ = fmt.Fprintf(w, "Marked %s stale: %s\n", domain.ShortID(t.ID), t.Title)
				}
				for _, id := range out.Skipped {
					_, _ = fmt.Fprintf(w, "Skipped %s (updated meanwhile)\n", domain.ShortID(id))
				}
				if len(out.Marked) == 0 && len(out.Skipped) == 0 {
					_, _ = fmt.Fprintln(w, "No stale tasks")
				}
				return out.Err
			}

			out, err := c.FindStaleUseCase().Execute(cmd.Context(), usecase.FindStaleInput{
				Threshold: opts.Threshold,
				SessionID: opts.SessionID,
			})
			if err != nil {
				return err
			}
			if opts.JSON {
				return writeJSON(w, out.Items)
			}
			if len(out.Items) == 0 {
				_, _ = fmt.Fprintln(w, "No stale tasks")
				return nil
			}

			tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tSTATUS\tHOURS\tTITLE\tACTION")
			for _, item := range out.Items {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
					domain.ShortID(item.TaskID),
					colorStatus(item.Status),
					item.HoursStale,
					item.Title,
					item.RecommendedAction,
				)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().DurationVar(&opts.Threshold, "threshold", 0, "Inactivity threshold (default: [tasks] stale_after)")
	cmd.Flags().StringVarP(&opts.SessionID, "session", "s", "", "Restrict to one session")
	cmd.Flags().BoolVar(&opts.Mark, "mark", false, "Move the listed tasks to stale")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Output in JSON format")
	cmd.MarkFlagsMutuallyExclusive("mark", "json")
	cmd.MarkFlagsMutuallyExclusive("mark", "session")
	return cmd
}

// newSweepCommand creates the sweep command.
func newSweepCommand(c *app.Container) *cobra.Command {
	var opts struct {
		Interval  time.Duration
		Threshold time.Duration
		Once      bool
	}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Periodically mark inactive tasks stale",
		Long: `Run the staleness sweep immediately and then on every interval
until interrupted (Ctrl+C).

Examples:
  rcrew sweep
  rcrew sweep --interval 5m --threshold 6h
  rcrew sweep --once`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Handle Ctrl+C gracefully
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out, err := c.SweepStaleUseCase(cmd.OutOrStdout()).Execute(ctx, usecase.SweepStaleInput{
				Interval:  opts.Interval,
				Threshold: opts.Threshold,
				Once:      opts.Once,
			})
			if out != nil {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%d sweep(s), %d task(s) marked stale\n", out.Sweeps, out.Marked)
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&opts.Interval, "interval", usecase.DefaultSweepInterval, "Pause between sweeps")
	cmd.Flags().DurationVar(&opts.Threshold, "threshold", 0, "Inactivity threshold (default: [tasks] stale_after)")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "Run a single sweep and exit")
	return cmd
}

// newRecentCommand creates the recent command.
func newRecentCommand(c *app.Container) *cobra.Command {
	var opts struct {
		Hours int
		JSON  bool
	}

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show status changes of the last hours",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Hours < 0 {
				return fmt.Errorf("--hours must not be negative: %w", domain.ErrValidation)
			}
			out, err := c.RecentChangesUseCase().Execute(cmd.Context(), usecase.RecentChangesInput{
				Window: time.Duration(opts.Hours) * time.Hour,
			})
			if err != nil {
				return err
			}
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), out.Entries)
			}
			if len(out.Entries) == 0 {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "No changes since %s\n", out.Since.Local().Format("2006-01-02 15:04"))
				return nil
			}
			printHistory(cmd.OutOrStdout(), out.Entries)
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.Hours, "hours", 24, "Look-back window in hours")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Output in JSON format")
	return cmd
}
