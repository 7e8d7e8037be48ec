package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/runoshun/research-crew/internal/domain"
)

// statusFor maps a domain error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrTaskNotFound), errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrRetryLimitExceeded),
		errors.Is(err, domain.ErrConcurrentModification),
		errors.Is(err, domain.ErrDependencyCycle):
		return http.StatusConflict
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidStatus):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrStorage), errors.Is(err, domain.ErrNotInitialized):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes the error body and stops the handler chain.
// The rule of a TaskError is returned separately so clients can display it.
func (h *Handler) abortWithError(ctx *gin.Context, err error) {
	code := statusFor(err)
	body := gin.H{"error": err.Error()}
	var te *domain.TaskError
	if errors.As(err, &te) && te.Rule != "" {
		body["rule"] = te.Rule
	}
	if code >= http.StatusInternalServerError {
		h.log.Error("request failed", "path", ctx.Request.URL.Path, "error", err)
	}
	ctx.AbortWithStatusJSON(code, body)
}

func badRequest(ctx *gin.Context, msg string) {
	ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}
