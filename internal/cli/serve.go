package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/runoshun/research-crew/internal/app"
	"github.com/runoshun/research-crew/internal/httpapi"
)

// serveFunc runs the HTTP API. Replaced in tests.
var serveFunc = httpapi.Serve

// newServeCommand creates the serve command.
func newServeCommand(c *app.Container) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the task API over HTTP",
		Long: `Serve the task API over HTTP until interrupted (Ctrl+C).

Routes:
  GET    /api/tasks/dashboard[?session_id=]
  GET    /api/tasks/stale[?hours=]
  GET    /api/tasks/<task-id>
  GET    /api/tasks/<session-id>/status
  PUT    /api/tasks/<task-id>/update
  PUT    /api/tasks/<task-id>/progress
  POST   /api/tasks/<task-id>/{complete,retry,cancel,fail}
  GET    /api/tasks/<task-id>/{history,result}
  POST   /api/sessions
  GET    /api/sessions
  DELETE /api/sessions/<session-id>
  GET    /api/sessions/<session-id>/{progress,ready}
  POST   /api/sessions/<session-id>/tasks
  GET    /api/changes[?hours=]`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = c.AppConfig.Server.Addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Listening on http://%s\n", addr)
			return serveFunc(ctx, c, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: [server] addr)")
	return cmd
}
