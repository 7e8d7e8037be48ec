package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/runoshun/research-crew/internal/usecase"
)

type createSessionRequest struct {
	Name         string `json:"name" binding:"required"`
	ResearchType string `json:"research_type"`
	Target       string `json:"target"`
}

type createTaskRequest struct {
	MaxRetries  *int     `json:"max_retries"`
	Title       string   `json:"title" binding:"required"`
	TaskType    string   `json:"task_type"`
	Description string   `json:"description"`
	Actor       string   `json:"actor"`
	DependsOn   []string `json:"depends_on"`
}

func (h *Handler) createSession(ctx *gin.Context) {
	var req createSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err.Error())
		return
	}
	out, err := h.c.CreateSessionUseCase().Execute(ctx.Request.Context(), usecase.CreateSessionInput{
		Name:         req.Name,
		ResearchType: req.ResearchType,
		Target:       req.Target,
	})
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, out.Session)
}

func (h *Handler) listSessions(ctx *gin.Context) {
	out, err := h.c.ListSessionsUseCase().Execute(ctx.Request.Context())
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"sessions": out.Sessions, "count": len(out.Sessions)})
}

func (h *Handler) deleteSession(ctx *gin.Context) {
	if err := h.c.DeleteSessionUseCase().Execute(ctx.Request.Context(), usecase.DeleteSessionInput{SessionID: ctx.Param("id")}); err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (h *Handler) sessionProgress(ctx *gin.Context) {
	out, err := h.c.SessionProgressUseCase().Execute(ctx.Request.Context(), usecase.SessionProgressInput{SessionID: ctx.Param("id")})
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"session_id": out.SessionID, "progress": out.Progress})
}

func (h *Handler) readyTasks(ctx *gin.Context) {
	out, err := h.c.ReadyTasksUseCase().Execute(ctx.Request.Context(), usecase.ReadyTasksInput{SessionID: ctx.Param("id")})
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	body := gin.H{"tasks": out.Tasks, "count": len(out.Tasks)}
	if out.Err != nil {
		body["warning"] = out.Err.Error()
	}
	ctx.JSON(http.StatusOK, body)
}

func (h *Handler) createTask(ctx *gin.Context) {
	var req createTaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err.Error())
		return
	}
	out, err := h.c.CreateTaskUseCase().Execute(ctx.Request.Context(), usecase.CreateTaskInput{
		SessionID:   ctx.Param("id"),
		Title:       req.Title,
		TaskType:    req.TaskType,
		Description: req.Description,
		DependsOn:   req.DependsOn,
		MaxRetries:  req.MaxRetries,
		Actor:       actorOr(req.Actor),
	})
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, out.Task)
}

// recentChanges returns audit entries of the last ?hours= hours (default 24).
func (h *Handler) recentChanges(ctx *gin.Context) {
	in := usecase.RecentChangesInput{}
	if raw := ctx.Query("hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours <= 0 {
			badRequest(ctx, "hours must be a positive integer")
			return
		}
		in.Window = time.Duration(hours) * time.Hour
	}
	out, err := h.c.RecentChangesUseCase().Execute(ctx.Request.Context(), in)
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"since": out.Since, "changes": out.Entries, "count": len(out.Entries)})
}
