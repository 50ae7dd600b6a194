package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/vhvplatform/go-notification-orchestrator/internal/shared/errors"
	"github.com/vhvplatform/go-notification-orchestrator/internal/shared/logger"
)

// RealtimeServer upgrades a request to a realtime connection for a user
type RealtimeServer interface {
	Serve(w http.ResponseWriter, r *http.Request, userID string) error
}

// RealtimeHandler serves the websocket endpoint
type RealtimeHandler struct {
	hub RealtimeServer
	log *logger.Logger
}

// NewRealtimeHandler creates a new realtime handler
func NewRealtimeHandler(hub RealtimeServer, log *logger.Logger) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, log: log}
}

// Connect upgrades GET /ws?user_id= and blocks until the client goes away
func (h *RealtimeHandler) Connect(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, apperrors.NewValidationError("user_id is required", nil))
		return
	}

	// the upgrader writes its own error response
	if err := h.hub.Serve(c.Writer, c.Request, userID); err != nil {
		h.log.Debug("Realtime upgrade failed", "user_id", userID, "error", err)
	}
}
