package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/vhvplatform/go-notification-orchestrator/internal/shared/errors"
	"github.com/vhvplatform/go-notification-orchestrator/internal/shared/logger"
)

// respondError renders err as an AppError with the matching status code.
// Errors that are not AppErrors are reported as internal with msg.
func respondError(c *gin.Context, log *logger.Logger, msg string, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.NewInternalError(msg, err)
	}

	status := http.StatusInternalServerError
	switch appErr.Code {
	case apperrors.CodeValidation:
		status = http.StatusBadRequest
	case apperrors.CodeNotFound:
		status = http.StatusNotFound
	case apperrors.CodeUnauthorized:
		status = http.StatusUnauthorized
	case apperrors.CodeConflict:
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		log.Error(msg, "error", err, "path", c.FullPath())
	}
	c.JSON(status, appErr)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, apperrors.NewValidationError("Invalid request", err))
}
