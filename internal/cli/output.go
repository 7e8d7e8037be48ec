package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/runoshun/research-crew/internal/domain"
)

// Sprint color functions for styled output.
// fatih/color disables itself when stdout is not a terminal or NO_COLOR is set.
var (
	bold   = color.New(color.Bold).SprintFunc()
	dim    = color.New(color.Faint).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	blue   = color.New(color.FgBlue).SprintFunc()
)

// colorStatus returns the status name colored by lifecycle state.
func colorStatus(s domain.Status) string {
	switch s {
	case domain.StatusCompleted:
		return green(string(s))
	case domain.StatusFailed:
		return red(string(s))
	case domain.StatusInProgress:
		return cyan(string(s))
	case domain.StatusWaitingUser:
		return yellow(string(s))
	case domain.StatusStale:
		return yellow(string(s))
	case domain.StatusCancelled:
		return dim(string(s))
	default:
		return string(s)
	}
}

// colorSessionStatus returns the session status name colored by state.
func colorSessionStatus(s domain.SessionStatus) string {
	switch s {
	case domain.SessionCompleted:
		return green(string(s))
	case domain.SessionInProgress:
		return cyan(string(s))
	default:
		return string(s)
	}
}

// printTaskList prints tasks as an aligned table.
func printTaskList(w io.Writer, tasks []*domain.Task, clock domain.Clock) {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	defer func() { _ = tw.Flush() }()

	// Header
	_, _ = fmt.Fprintln(tw, "ID\tSTATUS\tPROGRESS\tTYPE\tDEPENDS\tTITLE")

	// Rows
	for _, task := range tasks {
		statusStr := colorStatus(task.Status)
		if task.Status == domain.StatusInProgress && task.StartedAt != nil {
			elapsed := clock.Now().Sub(*task.StartedAt)
			statusStr = fmt.Sprintf("%s (%s)", statusStr, formatDuration(elapsed))
		}

		depsStr := "-"
		if len(task.DependsOn) > 0 {
			short := make([]string, len(task.DependsOn))
			for i, id := range task.DependsOn {
				short[i] = domain.ShortID(id)
			}
			depsStr = strings.Join(short, ",")
		}

		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d%%\t%s\t%s\t%s\n",
			domain.ShortID(task.ID),
			statusStr,
			task.Progress,
			task.TaskType,
			depsStr,
			task.Title,
		)
	}
}

// printSessionList prints sessions as an aligned table.
func printSessionList(w io.Writer, sessions []*domain.Session) {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	defer func() { _ = tw.Flush() }()

	_, _ = fmt.Fprintln(tw, "ID\tSTATUS\tPROGRESS\tTASKS\tTYPE\tNAME")
	for _, s := range sessions {
		typeStr := s.ResearchType
		if typeStr == "" {
			typeStr = "-"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d%%\t%d\t%s\t%s\n",
			domain.ShortID(s.ID),
			colorSessionStatus(s.Status),
			s.Progress,
			len(s.TaskIDs),
			typeStr,
			s.Name,
		)
	}
}

// printHistory prints audit entries oldest first.
func printHistory(w io.Writer, entries []domain.AuditEntry) {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	defer func() { _ = tw.Flush() }()

	_, _ = fmt.Fprintln(tw, "TIME\tTASK\tCHANGE\tBY\tREASON")
	for _, e := range entries {
		from := string(e.OldStatus)
		if e.IsCreation() {
			from = "(new)"
		}
		reason := e.Reason
		if reason == "" {
			reason = "-"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s -> %s\t%s\t%s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			domain.ShortID(e.TaskID),
			from,
			colorStatus(e.NewStatus),
			e.ChangedBy,
			reason,
		)
	}
}

// printProgress prints a one-line progress summary with a bar.
func printProgress(w io.Writer, p domain.Progress) {
	_, _ = fmt.Fprintf(w, "%s %3d%%  %d/%d completed  (%s)\n",
		progressBar(p.Percentage, 20),
		p.Percentage,
		p.CompletedCount,
		p.TotalCount,
		p.Status,
	)
}

// progressBar renders pct as a fixed-width bar.
func progressBar(pct, width int) string {
	pct = min(max(pct, 0), 100)
	filled := pct * width / 100
	return "[" + green(strings.Repeat("#", filled)) + strings.Repeat(".", width-filled) + "]"
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
