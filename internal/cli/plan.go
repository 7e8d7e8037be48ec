package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/runoshun/research-crew/internal/app"
	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/usecase"
)

// newPlanCommand creates the plan command group.
func newPlanCommand(c *app.Container) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Import task plans",
		// No RunE: shows subcommand list when called without arguments
	}
	cmd.AddCommand(newPlanApplyCommand(c))
	return cmd
}

// newPlanApplyCommand creates the plan apply subcommand.
func newPlanApplyCommand(c *app.Container) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "apply <file.yaml>",
		Short: "Create a session's tasks from a YAML plan",
		Long: `Create tasks from a YAML plan with symbolic dependencies.

The whole plan is validated first: keys must be unique, depends_on must
name other keys of the plan, and the dependencies must not form a cycle.
Nothing is written if validation fails.

File format:
  session:                 # or: session_id: <existing session>
    name: Acme Corp profile
    research_type: company_profile
    target: acme.example
  tasks:
    - key: scrape
      title: Scrape company website
      type: web_scrape
    - key: summarize
      title: Summarize findings
      type: analysis
      depends_on: [scrape]

Use - to read the plan from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readPlan(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			out, err := c.ApplyPlanUseCase().Execute(cmd.Context(), usecase.ApplyPlanInput{
				Content: content,
				DryRun:  dryRun,
			})
			if err != nil {
				return err
			}

			printPlanResult(cmd.OutOrStdout(), out, dryRun)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate the plan without creating anything")
	return cmd
}

func readPlan(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read plan from stdin: %w", err)
		}
		return b, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	return b, nil
}

func printPlanResult(w io.Writer, out *usecase.ApplyPlanOutput, dryRun bool) {
	if dryRun {
		_, _ = fmt.Fprintln(w, "Dry run - tasks that would be created:")
		for i, pt := range out.Tasks {
			_, _ = fmt.Fprintf(w, "  %d. %s\n", i+1, pt.Key)
		}
		return
	}

	if out.Session != nil {
		_, _ = fmt.Fprintf(w, "Session %s (%s)\n", bold(out.Session.ID), out.Session.Name)
	}
	for _, pt := range out.Tasks {
		deps := "-"
		if len(pt.Task.DependsOn) > 0 {
			short := make([]string, len(pt.Task.DependsOn))
			for i, id := range pt.Task.DependsOn {
				short[i] = domain.ShortID(id)
			}
			deps = strings.Join(short, ",")
		}
		_, _ = fmt.Fprintf(w, "  %-12s %s  depends on: %s\n", pt.Key, domain.ShortID(pt.Task.ID), deps)
	}
	_, _ = fmt.Fprintf(w, "\nCreated %d task(s)\n", len(out.Tasks))
}
