package httpapi

import (
	"errors"
	"net/http"

	"github.com/Freeeeeet/telehealth_scheduler/internal/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor maps domain error kinds to HTTP codes. Anything unknown is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrConflict), errors.Is(err, model.ErrStateTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError отправляет ошибку клиенту; внутренние детали только в лог
func (h *Handler) writeError(c *gin.Context, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(code, gin.H{"error": model.Message(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}
