// Package cli provides the command-line interface for rcrew.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/runoshun/research-crew/internal/app"
)

// Command group IDs.
const (
	groupSetup   = "setup"
	groupSession = "session"
	groupTask    = "task"
	groupMonitor = "monitor"
)

// DataDirFlag is the persistent flag selecting the data directory.
// cmd/rcrew reads it before the container is built.
const DataDirFlag = "data-dir"

// NewRootCommand creates the root command for rcrew.
// It receives the container for dependency injection and version for display.
func NewRootCommand(c *app.Container, version string) *cobra.Command {
	var dataDir string

	root := &cobra.Command{
		Use:   "rcrew",
		Short: "Research task orchestration",
		Long: `rcrew tracks the tasks of research sessions.

Each task moves through a guarded status lifecycle
(pending, in_progress, waiting_user, completed, failed, cancelled, stale),
may depend on other tasks of its session, can be retried a bounded number
of times, and leaves an append-only audit trail of every status change.

Tasks are stored in the backend configured in .rcrew/config.toml
(json, git, sqlite or postgres). Run 'rcrew init' first.`,
		Version: version,
		// SilenceUsage prevents usage from being printed on errors
		SilenceUsage: true,
		// SilenceErrors prevents Cobra from printing errors (we handle it in main)
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip if container is nil (e.g. in tests)
			if c == nil || c.AppConfig == nil {
				return nil
			}
			for _, w := range c.AppConfig.Warnings {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", yellow("Warning:"), w)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&dataDir, DataDirFlag, "", "Data directory (default: $RCREW_DATA_DIR or ./.rcrew)")

	// Define command groups
	root.AddGroup(
		&cobra.Group{ID: groupSetup, Title: "Setup Commands:"},
		&cobra.Group{ID: groupSession, Title: "Session Management:"},
		&cobra.Group{ID: groupTask, Title: "Task Management:"},
		&cobra.Group{ID: groupMonitor, Title: "Monitoring:"},
	)

	// Setup commands
	initCmd := newInitCommand(c)
	initCmd.GroupID = groupSetup

	configCmd := newConfigCommand(c)
	configCmd.GroupID = groupSetup

	planCmd := newPlanCommand(c)
	planCmd.GroupID = groupSetup

	serveCmd := newServeCommand(c)
	serveCmd.GroupID = groupSetup

	// Session management commands
	sessionCmd := newSessionCommand(c)
	sessionCmd.GroupID = groupSession

	readyCmd := newReadyCommand(c)
	readyCmd.GroupID = groupSession

	// Task management commands
	taskCmd := newTaskCommand(c)
	taskCmd.GroupID = groupTask

	// Monitoring commands
	staleCmd := newStaleCommand(c)
	staleCmd.GroupID = groupMonitor

	sweepCmd := newSweepCommand(c)
	sweepCmd.GroupID = groupMonitor

	recentCmd := newRecentCommand(c)
	recentCmd.GroupID = groupMonitor

	dashboardCmd := newDashboardCommand(c)
	dashboardCmd.GroupID = groupMonitor

	// Add subcommands
	root.AddCommand(
		initCmd,
		configCmd,
		planCmd,
		serveCmd,
		sessionCmd,
		readyCmd,
		taskCmd,
		staleCmd,
		sweepCmd,
		recentCmd,
		dashboardCmd,
	)

	return root
}
