package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/runoshun/research-crew/internal/domain"
	"github.com/runoshun/research-crew/internal/usecase"
)

type updateTaskRequest struct {
	Progress     *int    `json:"progress"`
	CurrentStep  *string `json:"current_step"`
	ErrorMessage *string `json:"error_message"`
	Status       string  `json:"status" binding:"required"`
	Reason       string  `json:"reason"`
	Actor        string  `json:"actor"`
}

type progressRequest struct {
	Progress    *int    `json:"progress" binding:"required"`
	CurrentStep *string `json:"current_step"`
}

type completeRequest struct {
	ResultData json.RawMessage `json:"result_data"`
	Reason     string          `json:"reason"`
	Actor      string          `json:"actor"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

type failRequest struct {
	ErrorMessage string `json:"error_message" binding:"required"`
	Actor        string `json:"actor"`
}

func actorOr(actor string) string {
	if actor == "" {
		return domain.ActorUser
	}
	return actor
}

// bindOptionalJSON binds a request body that may be empty.
func bindOptionalJSON(ctx *gin.Context, v any) bool {
	if ctx.Request.ContentLength == 0 {
		return true
	}
	if err := ctx.ShouldBindJSON(v); err != nil {
		badRequest(ctx, err.Error())
		return false
	}
	return true
}

func (h *Handler) getTask(ctx *gin.Context) {
	out, err := h.c.ShowTaskUseCase().Execute(ctx.Request.Context(), usecase.ShowTaskInput{TaskID: ctx.Param("id")})
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"task":               out.Task,
		"history":            out.History,
		"unmet_dependencies": out.UnmetDependencies,
	})
}

func (h *Handler) taskHistory(ctx *gin.Context) {
	out, err := h.c.ShowTaskUseCase().Execute(ctx.Request.Context(), usecase.ShowTaskInput{TaskID: ctx.Param("id")})
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"task_id": out.Task.ID, "history": out.History})
}

// taskResult returns the result payload, or the part selected by ?path=.
func (h *Handler) taskResult(ctx *gin.Context) {
	out, err := h.c.ShowTaskUseCase().Execute(ctx.Request.Context(), usecase.ShowTaskInput{TaskID: ctx.Param("id")})
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	if len(out.Task.ResultData) == 0 {
		ctx.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "task has no result data"})
		return
	}

	path := ctx.Query("path")
	if path == "" {
		ctx.Data(http.StatusOK, "application/json", out.Task.ResultData)
		return
	}
	res := gjson.GetBytes(out.Task.ResultData, path)
	if !res.Exists() {
		ctx.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("path %q not found in result data", path)})
		return
	}
	ctx.Data(http.StatusOK, "application/json", []byte(res.Raw))
}

// sessionStatus returns the status breakdown of the session named by :id.
func (h *Handler) sessionStatus(ctx *gin.Context) {
	sessionID := ctx.Param("id")
	out, err := h.c.ListSessionTasksUseCase().Execute(ctx.Request.Context(), usecase.ListSessionTasksInput{SessionID: sessionID})
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}

	breakdown := make(map[domain.Status]int)
	completed := 0
	for _, t := range out.Tasks {
		breakdown[t.Status]++
		if t.Status == domain.StatusCompleted {
			completed++
		}
	}
	ctx.JSON(http.StatusOK, gin.H{
		"session_id":      sessionID,
		"task_breakdown":  breakdown,
		"total_tasks":     len(out.Tasks),
		"completed_tasks": completed,
	})
}

func (h *Handler) updateTask(ctx *gin.Context) {
	var req updateTaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err.Error())
		return
	}
	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		badRequest(ctx, err.Error())
		return
	}

	out, err := h.c.TransitionTaskUseCase().Execute(ctx.Request.Context(), usecase.TransitionTaskInput{
		TaskID:       ctx.Param("id"),
		Status:       status,
		Progress:     req.Progress,
		CurrentStep:  req.CurrentStep,
		ErrorMessage: req.ErrorMessage,
		Actor:        actorOr(req.Actor),
		Reason:       req.Reason,
	})
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	body := gin.H{
		"message": "Task updated",
		"task":    out.Task,
		"ready":   out.Ready,
	}
	if out.ResolveErr != nil {
		body["warning"] = out.ResolveErr.Error()
	}
	ctx.JSON(http.StatusOK, body)
}

func (h *Handler) updateProgress(ctx *gin.Context) {
	var req progressRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err.Error())
		return
	}
	out, err := h.c.UpdateProgressUseCase().Execute(ctx.Request.Context(), usecase.UpdateProgressInput{
		TaskID:      ctx.Param("id"),
		Progress:    *req.Progress,
		CurrentStep: req.CurrentStep,
	})
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Progress updated", "task": out.Task})
}

func (h *Handler) completeTask(ctx *gin.Context) {
	var req completeRequest
	if !bindOptionalJSON(ctx, &req) {
		return
	}
	out, err := h.c.CompleteTaskUseCase().Execute(ctx.Request.Context(), usecase.CompleteTaskInput{
		TaskID:     ctx.Param("id"),
		ResultData: req.ResultData,
		Actor:      actorOr(req.Actor),
		Reason:     req.Reason,
	})
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	body := gin.H{
		"message": "Task completed",
		"task":    out.Task,
		"ready":   out.Ready,
	}
	if out.ResolveErr != nil {
		body["warning"] = out.ResolveErr.Error()
	}
	ctx.JSON(http.StatusOK, body)
}

func (h *Handler) retryTask(ctx *gin.Context) {
	out, err := h.c.RetryTaskUseCase().Execute(ctx.Request.Context(), usecase.RetryTaskInput{
		TaskID: ctx.Param("id"),
		Actor:  domain.ActorUser,
	})
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Task queued for retry (attempt %d of %d)", out.Task.RetryCount, out.Task.MaxRetries),
		"task":    out.Task,
	})
}

func (h *Handler) cancelTask(ctx *gin.Context) {
	var req cancelRequest
	if !bindOptionalJSON(ctx, &req) {
		return
	}
	out, err := h.c.CancelTaskUseCase().Execute(ctx.Request.Context(), usecase.CancelTaskInput{
		TaskID: ctx.Param("id"),
		Actor:  actorOr(req.Actor),
		Reason: req.Reason,
	})
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Task cancelled", "task": out.Task})
}

func (h *Handler) failTask(ctx *gin.Context) {
	var req failRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "error_message is required")
		return
	}
	out, err := h.c.FailTaskUseCase().Execute(ctx.Request.Context(), usecase.FailTaskInput{
		TaskID:       ctx.Param("id"),
		ErrorMessage: req.ErrorMessage,
		Actor:        actorOr(req.Actor),
	})
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"message":      "Task marked as failed",
		"task":         out.Task,
		"retries_left": out.RetriesLeft,
	})
}

// staleTasks lists inactive tasks; ?hours= overrides the configured threshold.
func (h *Handler) staleTasks(ctx *gin.Context) {
	in := usecase.FindStaleInput{SessionID: ctx.Query("session_id")}
	if raw := ctx.Query("hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours <= 0 {
			badRequest(ctx, "hours must be a positive integer")
			return
		}
		in.Threshold = time.Duration(hours) * time.Hour
	}

	out, err := h.c.FindStaleUseCase().Execute(ctx.Request.Context(), in)
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	threshold := in.Threshold
	if threshold == 0 {
		threshold = h.c.AppConfig.Tasks.StaleAfter
	}
	ctx.JSON(http.StatusOK, gin.H{
		"stale_tasks":     out.Items,
		"count":           len(out.Items),
		"threshold_hours": threshold.Hours(),
	})
}

// dashboard returns one session's dashboard with ?session_id=,
// or an overview of every session without it.
func (h *Handler) dashboard(ctx *gin.Context) {
	if sessionID := ctx.Query("session_id"); sessionID != "" {
		d, err := h.c.SessionDashboardUseCase().Execute(ctx.Request.Context(), usecase.SessionDashboardInput{SessionID: sessionID})
		if err != nil {
			h.abortWithError(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, d)
		return
	}

	out, err := h.c.ListSessionsUseCase().Execute(ctx.Request.Context())
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	boards := make([]*domain.Dashboard, 0, len(out.Sessions))
	active := 0
	for _, s := range out.Sessions {
		if s.Status == domain.SessionInProgress {
			active++
		}
		d, err := h.c.SessionDashboardUseCase().Execute(ctx.Request.Context(), usecase.SessionDashboardInput{SessionID: s.ID})
		if err != nil {
			h.abortWithError(ctx, err)
			return
		}
		boards = append(boards, d)
	}
	ctx.JSON(http.StatusOK, gin.H{
		"sessions":        boards,
		"total_sessions":  len(out.Sessions),
		"active_sessions": active,
	})
}
