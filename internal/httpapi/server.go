// Package httpapi exposes the task orchestration operations over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/runoshun/research-crew/internal/app"
)

const shutdownTimeout = 5 * time.Second

// Handler serves the API routes from a container.
type Handler struct {
	c   *app.Container
	log *slog.Logger
}

// NewRouter builds the gin engine with all API routes registered.
func NewRouter(c *app.Container) *gin.Engine {
	h := &Handler{c: c, log: c.Diag}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.log))

	r.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	tasks := api.Group("/tasks")
	tasks.GET("/dashboard", h.dashboard)
	tasks.GET("/stale", h.staleTasks)
	tasks.GET("/:id", h.getTask)
	tasks.GET("/:id/status", h.sessionStatus)
	tasks.GET("/:id/history", h.taskHistory)
	tasks.GET("/:id/result", h.taskResult)
	tasks.PUT("/:id/update", h.updateTask)
	tasks.PUT("/:id/progress", h.updateProgress)
	tasks.POST("/:id/complete", h.completeTask)
	tasks.POST("/:id/retry", h.retryTask)
	tasks.POST("/:id/cancel", h.cancelTask)
	tasks.POST("/:id/fail", h.failTask)

	sessions := api.Group("/sessions")
	sessions.POST("", h.createSession)
	sessions.GET("", h.listSessions)
	sessions.DELETE("/:id", h.deleteSession)
	sessions.GET("/:id/progress", h.sessionProgress)
	sessions.GET("/:id/ready", h.readyTasks)
	sessions.POST("/:id/tasks", h.createTask)

	api.GET("/changes", h.recentChanges)

	return r
}

// Serve runs the API on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, c *app.Container, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(c),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		c.Diag.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	c.Diag.Info("http server stopped")
	return nil
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		log.Info("request",
			"method", ctx.Request.Method,
			"path", ctx.Request.URL.Path,
			"status", ctx.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
