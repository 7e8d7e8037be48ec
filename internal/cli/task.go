package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/runoshun/research-crew/internal/app"
	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/usecase"
)

// newTaskCommand creates the task command group.
func newTaskCommand(c *app.Container) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage research tasks",
		Long: `Manage research tasks.

Status lifecycle:
  pending -> in_progress -> completed
                         -> waiting_user -> in_progress
                         -> failed -> pending (retry)
  pending, in_progress, waiting_user -> cancelled
  pending, in_progress -> stale (sweep) -> pending, in_progress`,
		// No RunE: shows subcommand list when called without arguments
	}

	cmd.AddCommand(
		newTaskNewCommand(c),
		newTaskListCommand(c),
		newTaskShowCommand(c),
		newTaskUpdateCommand(c),
		newTaskProgressCommand(c),
		newTaskCompleteCommand(c),
		newTaskFailCommand(c),
		newTaskRetryCommand(c),
		newTaskCancelCommand(c),
		newTaskDependCommand(c),
		newTaskHistoryCommand(c),
		newTaskRmCommand(c),
	)
	return cmd
}

// newTaskNewCommand creates the task new subcommand.
func newTaskNewCommand(c *app.Container) *cobra.Command {
	var opts struct {
		SessionID   string
		Title       string
		TaskType    string
		Description string
		DependsOn   []string
		MaxRetries  int
		Quiet       bool
	}

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a task",
		Long: `Create a task in a session. The task starts as 'pending'.

Dependencies must be tasks of the same session. A task whose dependencies
are not all completed cannot start.

Examples:
  rcrew task new --session $SID --title "Scrape homepage" --type web_scrape
  rcrew task new --session $SID --title "Summarize" --depends-on $SCRAPE --max-retries 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			input := usecase.CreateTaskInput{
				SessionID:   opts.SessionID,
				Title:       opts.Title,
				TaskType:    opts.TaskType,
				Description: opts.Description,
				DependsOn:   opts.DependsOn,
				Actor:       domain.ActorUser,
			}
			// Set max_retries only if flag was explicitly provided
			if cmd.Flags().Changed("max-retries") {
				input.MaxRetries = &opts.MaxRetries
			}

			out, err := c.CreateTaskUseCase().Execute(cmd.Context(), input)
			if err != nil {
				return err
			}

			if opts.Quiet {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), out.Task.ID)
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created task %s\n", bold(out.Task.ID))
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.SessionID, "session", "s", "", "Owning session id")
	cmd.Flags().StringVar(&opts.Title, "title", "", "Task title")
	cmd.Flags().StringVar(&opts.TaskType, "type", "", "Task type (default \"general\")")
	cmd.Flags().StringVar(&opts.Description, "body", "", "Task description")
	cmd.Flags().StringArrayVar(&opts.DependsOn, "depends-on", nil, "Predecessor task id (can specify multiple)")
	cmd.Flags().IntVar(&opts.MaxRetries, "max-retries", domain.DefaultMaxRetries, "Retry budget (default: [tasks] max_retries)")
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "Print only the task id")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

// newTaskListCommand creates the task list subcommand.
func newTaskListCommand(c *app.Container) *cobra.Command {
	var opts struct {
		Statuses []string
		JSON     bool
	}

	cmd := &cobra.Command{
		Use:     "list <session-id>",
		Aliases: []string{"ls"},
		Short:   "List the tasks of a session",
		Long: `List the tasks of a session in creation order.

Examples:
  rcrew task list $SID
  rcrew task list $SID --status failed --status stale`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(opts.Statuses)
			if err != nil {
				return err
			}

			out, err := c.ListSessionTasksUseCase().Execute(cmd.Context(), usecase.ListSessionTasksInput{
				SessionID: args[0],
				Statuses:  statuses,
			})
			if err != nil {
				return err
			}
			if opts.JSON {
				return writeJSON(cmd.OutOrStdout(), out.Tasks)
			}
			printTaskList(cmd.OutOrStdout(), out.Tasks, c.Clock)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&opts.Statuses, "status", nil, "Filter by status (can specify multiple)")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Output in JSON format")
	return cmd
}

// newTaskShowCommand creates the task show subcommand.
func newTaskShowCommand(c *app.Container) *cobra.Command {
	var opts struct {
		ResultPath string
		JSON       bool
	}

	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Display task details and history",
		Long: `Display a task with its status history.

--result-path queries the result payload with a GJSON path and prints
only the matched value.

Examples:
  rcrew task show $TID
  rcrew task show $TID --json
  rcrew task show $TID --result-path "sources.#.url"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := c.ShowTaskUseCase().Execute(cmd.Context(), usecase.ShowTaskInput{TaskID: args[0]})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if opts.ResultPath != "" {
				return printResultPath(w, out.Task, opts.ResultPath)
			}
			if opts.JSON {
				return writeJSON(w, struct {
					Task              *domain.Task        `json:"task"`
					History           []domain.AuditEntry `json:"history"`
					UnmetDependencies []string            `json:"unmet_dependencies,omitempty"`
				}{out.Task, out.History, out.UnmetDependencies})
			}
			printTaskDetails(w, out)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.ResultPath, "result-path", "", "Print the result payload value at this GJSON path")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Output in JSON format")
	return cmd
}

// printResultPath prints the value of the task's result payload at path.
func printResultPath(w io.Writer, task *domain.Task, path string) error {
	if len(task.ResultData) == 0 {
		return fmt.Errorf("task %s has no result data", task.ID)
	}
	res := gjson.GetBytes(task.ResultData, path)
	if !res.Exists() {
		return fmt.Errorf("result path %q not found in task %s", path, task.ID)
	}
	if res.IsObject() || res.IsArray() {
		_, _ = fmt.Fprintln(w, res.Raw)
		return nil
	}
	_, _ = fmt.Fprintln(w, res.String())
	return nil
}

// printTaskDetails prints a task in a readable layout.
func printTaskDetails(w io.Writer, out *usecase.ShowTaskOutput) {
	t := out.Task
	_, _ = fmt.Fprintf(w, "%s %s\n", bold(t.Title), dim("("+t.ID+")"))
	if t.Description != "" {
		_, _ = fmt.Fprintf(w, "\n%s\n\n", t.Description)
	}
	_, _ = fmt.Fprintf(w, "Session:    %s\n", t.SessionID)
	_, _ = fmt.Fprintf(w, "Type:       %s\n", t.TaskType)
	_, _ = fmt.Fprintf(w, "Status:     %s\n", colorStatus(t.Status))
	_, _ = fmt.Fprintf(w, "Progress:   %d%%\n", t.Progress)
	if t.CurrentStep != "" {
		_, _ = fmt.Fprintf(w, "Step:       %s\n", t.CurrentStep)
	}
	if t.ErrorMessage != "" {
		_, _ = fmt.Fprintf(w, "Error:      %s\n", red(t.ErrorMessage))
	}
	_, _ = fmt.Fprintf(w, "Retries:    %d/%d\n", t.RetryCount, t.MaxRetries)
	if len(t.DependsOn) > 0 {
		_, _ = fmt.Fprintf(w, "Depends on: %s\n", strings.Join(t.DependsOn, ", "))
	}
	if len(out.UnmetDependencies) > 0 {
		_, _ = fmt.Fprintf(w, "Waiting on: %s\n", yellow(strings.Join(out.UnmetDependencies, ", ")))
	}
	_, _ = fmt.Fprintf(w, "Created:    %s\n", t.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	_, _ = fmt.Fprintf(w, "Updated:    %s\n", t.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	if t.StartedAt != nil {
		_, _ = fmt.Fprintf(w, "Started:    %s\n", t.StartedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if t.CompletedAt != nil {
		_, _ = fmt.Fprintf(w, "Completed:  %s\n", t.CompletedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if len(t.ResultData) > 0 {
		_, _ = fmt.Fprintf(w, "Result:     %s\n", string(t.ResultData))
	}

	if len(out.History) > 0 {
		_, _ = fmt.Fprintf(w, "\n%s\n", bold("History"))
		printHistory(w, out.History)
	}
}

// newTaskUpdateCommand creates the task update subcommand.
func newTaskUpdateCommand(c *app.Container) *cobra.Command {
	var opts struct {
		Status   string
		Step     string
		Error    string
		Reason   string
		Actor    string
		Progress int
	}

	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Change the status of a task",
		Long: `Change the status of a task.

The change is validated against the status lifecycle. Starting a task
(pending or stale to in_progress) requires every dependency to be completed.
Moving to failed requires --error.

Examples:
  rcrew task update $TID --status in_progress --step "Fetching pages"
  rcrew task update $TID --status waiting_user --reason "Need API key"
  rcrew task update $TID --status failed --error "timeout after 3 attempts"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := domain.ParseStatus(opts.Status)
			if err != nil {
				return err
			}

			input := usecase.TransitionTaskInput{
				TaskID: args[0],
				Status: status,
				Actor:  opts.Actor,
				Reason: opts.Reason,
			}
			if cmd.Flags().Changed("progress") {
				input.Progress = &opts.Progress
			}
			if cmd.Flags().Changed("step") {
				input.CurrentStep = &opts.Step
			}
			if cmd.Flags().Changed("error") {
				input.ErrorMessage = &opts.Error
			}

			out, err := c.TransitionTaskUseCase().Execute(cmd.Context(), input)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "Task %s is now %s\n", domain.ShortID(out.Task.ID), colorStatus(out.Task.Status))
			printReady(w, out.Ready, out.ResolveErr)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "Target status")
	cmd.Flags().IntVar(&opts.Progress, "progress", 0, "Progress percentage (0-100)")
	cmd.Flags().StringVar(&opts.Step, "step", "", "Current step description")
	cmd.Flags().StringVar(&opts.Error, "error", "", "Error message (required for failed)")
	cmd.Flags().StringVar(&opts.Reason, "reason", "", "Reason recorded in the history")
	cmd.Flags().StringVar(&opts.Actor, "actor", domain.ActorUser, "Actor recorded in the history")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

// newTaskProgressCommand creates the task progress subcommand.
func newTaskProgressCommand(c *app.Container) *cobra.Command {
	var step string

	cmd := &cobra.Command{
		Use:   "progress <task-id> <percent>",
		Short: "Report progress without changing status",
		Long: `Report progress of an in_progress or waiting_user task.

This is not a status change and writes no history entry, but it resets
the task's inactivity clock.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pct int
			if _, err := fmt.Sscanf(args[1], "%d", &pct); err != nil {
				return fmt.Errorf("invalid progress %q: %w", args[1], domain.ErrValidation)
			}

			input := usecase.UpdateProgressInput{TaskID: args[0], Progress: pct}
			if cmd.Flags().Changed("step") {
				input.CurrentStep = &step
			}

			out, err := c.UpdateProgressUseCase().Execute(cmd.Context(), input)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Task %s at %d%%\n", domain.ShortID(out.Task.ID), out.Task.Progress)
			return nil
		},
	}

	cmd.Flags().StringVar(&step, "step", "", "Current step description")
	return cmd
}

// newTaskCompleteCommand creates the task complete subcommand.
func newTaskCompleteCommand(c *app.Container) *cobra.Command {
	var opts struct {
		Result     string
		ResultFile string
		Reason     string
		Actor      string
	}

	cmd := &cobra.Command{
		Use:   "complete <task-id>",
		Short: "Complete a task with an optional result payload",
		Long: `Move an in_progress task to completed, attaching a JSON result.

Prints the tasks that became ready because of this completion.

Examples:
  rcrew task complete $TID --result '{"pages": 12}'
  rcrew task complete $TID --result-file result.json
  cat result.json | rcrew task complete $TID --result-file -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readResult(cmd.InOrStdin(), opts.Result, opts.ResultFile)
			if err != nil {
				return err
			}

			out, err := c.CompleteTaskUseCase().Execute(cmd.Context(), usecase.CompleteTaskInput{
				TaskID:     args[0],
				ResultData: payload,
				Actor:      opts.Actor,
				Reason:     opts.Reason,
			})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "Task %s %s\n", domain.ShortID(out.Task.ID), colorStatus(out.Task.Status))
			printReady(w, out.Ready, out.ResolveErr)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Result, "result", "", "Result payload as inline JSON")
	cmd.Flags().StringVar(&opts.ResultFile, "result-file", "", "Read the result payload from a file (- for stdin)")
	cmd.Flags().StringVar(&opts.Reason, "reason", "", "Reason recorded in the history")
	cmd.Flags().StringVar(&opts.Actor, "actor", domain.ActorUser, "Actor recorded in the history")
	cmd.MarkFlagsMutuallyExclusive("result", "result-file")
	return cmd
}

// readResult returns the result payload from the inline flag or a file.
func readResult(stdin io.Reader, inline, file string) (json.RawMessage, error) {
	var data []byte
	switch {
	case inline != "":
		data = []byte(inline)
	case file == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read result from stdin: %w", err)
		}
		data = b
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read result file: %w", err)
		}
		data = b
	default:
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("result payload is not valid JSON: %w", domain.ErrValidation)
	}
	return json.RawMessage(data), nil
}

// printReady reports successors released by a completion.
func printReady(w io.Writer, ready []*domain.Task, resolveErr error) {
	for _, t := range ready {
		_, _ = fmt.Fprintf(w, "  ready: %s %s\n", domain.ShortID(t.ID), t.Title)
	}
	if resolveErr != nil {
		_, _ = fmt.Fprintf(w, "  %s %v\n", yellow("some successors could not be checked:"), resolveErr)
	}
}

// newTaskFailCommand creates the task fail subcommand.
func newTaskFailCommand(c *app.Container) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "fail <task-id> <error-message>",
		Short: "Mark a running task as failed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := c.FailTaskUseCase().Execute(cmd.Context(), usecase.FailTaskInput{
				TaskID:       args[0],
				ErrorMessage: args[1],
				Actor:        actor,
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Task %s %s (%d retries left)\n",
				domain.ShortID(out.Task.ID), colorStatus(out.Task.Status), out.RetriesLeft)
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", domain.ActorUser, "Actor recorded in the history")
	return cmd
}

// newTaskRetryCommand creates the task retry subcommand.
func newTaskRetryCommand(c *app.Container) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "retry <task-id>",
		Short: "Re-queue a failed task",
		Long: `Re-queue a failed task as pending.

Progress, step and error are reset. Fails once the retry budget is used up.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := c.RetryTaskUseCase().Execute(cmd.Context(), usecase.RetryTaskInput{
				TaskID: args[0],
				Actor:  actor,
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Task %s re-queued (retry %d of %d)\n",
				domain.ShortID(out.Task.ID), out.Task.RetryCount, out.Task.MaxRetries)
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", domain.ActorUser, "Actor recorded in the history")
	return cmd
}

// newTaskCancelCommand creates the task cancel subcommand.
func newTaskCancelCommand(c *app.Container) *cobra.Command {
	var opts struct {
		Reason string
		Actor  string
	}

	cmd := &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a pending or in_progress task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := c.CancelTaskUseCase().Execute(cmd.Context(), usecase.CancelTaskInput{
				TaskID: args[0],
				Actor:  opts.Actor,
				Reason: opts.Reason,
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Task %s %s\n", domain.ShortID(out.Task.ID), colorStatus(out.Task.Status))
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Reason, "reason", "", "Reason recorded in the history")
	cmd.Flags().StringVar(&opts.Actor, "actor", domain.ActorUser, "Actor recorded in the history")
	return cmd
}

// newTaskDependCommand creates the task depend subcommand.
func newTaskDependCommand(c *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "depend <task-id> <predecessor-id>",
		Short: "Make a pending task wait for another task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := c.AddDependencyUseCase().Execute(cmd.Context(), usecase.AddDependencyInput{
				TaskID:    args[0],
				DependsOn: args[1],
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Task %s now depends on %s\n",
				domain.ShortID(out.Task.ID), domain.ShortID(args[1]))
			return nil
		},
	}
}

// newTaskHistoryCommand creates the task history subcommand.
func newTaskHistoryCommand(c *app.Container) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history <task-id>",
		Short: "Show the status history of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := c.ShowTaskUseCase().Execute(cmd.Context(), usecase.ShowTaskInput{TaskID: args[0]})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), out.History)
			}
			printHistory(cmd.OutOrStdout(), out.History)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

// newTaskRmCommand creates the task rm subcommand.
func newTaskRmCommand(c *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <task-id>",
		Short: "Delete a task",
		Long: `Delete a task. Its status history is kept.

Tasks that depend on it keep the id and can no longer start.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.DeleteTaskUseCase().Execute(cmd.Context(), usecase.DeleteTaskInput{TaskID: args[0]}); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %s\n", args[0])
			return nil
		},
	}
}

// parseStatuses converts status flag values.
func parseStatuses(values []string) ([]domain.Status, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]domain.Status, 0, len(values))
	var errs []error
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			s, err := domain.ParseStatus(strings.TrimSpace(part))
			if err != nil {
				errs = append(errs, err)
				continue
			}
			out = append(out, s)
		}
	}
	return out, errors.Join(errs...)
}
