package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vhvplatform/go-notification-orchestrator/internal/domain"
	apperrors "github.com/vhvplatform/go-notification-orchestrator/internal/shared/errors"
	"github.com/vhvplatform/go-notification-orchestrator/internal/shared/logger"
)

// NotificationManager is the notification surface served over HTTP
type NotificationManager interface {
	CreateNotification(ctx context.Context, req domain.CreateNotificationRequest) (*domain.Notification, error)
	CreateBulkNotifications(ctx context.Context, userIDs []string, req domain.CreateNotificationRequest) ([]*domain.Notification, error)
	BroadcastAsync(req domain.CreateNotificationRequest, excludeUserIDs []string)
	GetNotifications(ctx context.Context, filter domain.NotificationFilter) (*domain.NotificationPage, error)
	GetNotification(ctx context.Context, userID, notificationID string) (*domain.Notification, error)
	MarkAsRead(ctx context.Context, userID string, notificationIDs []string) (int64, error)
	MarkAllAsRead(ctx context.Context, userID string) (int64, error)
	Archive(ctx context.Context, userID, notificationID string) error
	Delete(ctx context.Context, userID, notificationID string) error
	DeleteMany(ctx context.Context, userID string, notificationIDs []string) (int64, error)
	GetSummary(ctx context.Context, userID string) (*domain.NotificationSummary, error)
}

type idsRequest struct {
	NotificationIDs []string `json:"notificationIds" binding:"required,min=1"`
}

// NotificationHandler handles HTTP requests for notifications
type NotificationHandler struct {
	service NotificationManager
	log     *logger.Logger
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(service NotificationManager, log *logger.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		log:     log,
	}
}

// Register mounts the notification routes on rg
func (h *NotificationHandler) Register(rg *gin.RouterGroup) {
	notifications := rg.Group("/notifications")
	{
		notifications.POST("", h.Create)
		notifications.POST("/bulk", h.CreateBulk)
		notifications.POST("/broadcast", h.Broadcast)
	}

	inbox := rg.Group("/users/:user_id/notifications")
	{
		inbox.GET("", h.List)
		inbox.GET("/summary", h.Summary)
		inbox.GET("/:id", h.Get)
		inbox.POST("/read", h.MarkRead)
		inbox.POST("/read-all", h.MarkAllRead)
		inbox.POST("/:id/read", h.MarkOneRead)
		inbox.POST("/:id/archive", h.Archive)
		inbox.DELETE("/:id", h.Delete)
		inbox.DELETE("", h.DeleteMany)
	}
}

// Create godoc
// @Summary Create a notification
// @Description Evaluates the user's preferences and delivers the notification over the allowed channels
// @Tags notifications
// @Accept json
// @Produce json
// @Param notification body domain.CreateNotificationRequest true "Notification"
// @Success 201 {object} domain.Notification "Created and delivered"
// @Success 200 {object} map[string]interface{} "Suppressed by preferences"
// @Failure 400 {object} map[string]interface{} "Invalid request"
// @Router /api/v1/notifications [post]
func (h *NotificationHandler) Create(c *gin.Context) {
	var req domain.CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	n, err := h.service.CreateNotification(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, "Failed to create notification", err)
		return
	}
	if n == nil {
		c.JSON(http.StatusOK, gin.H{"created": false})
		return
	}
	c.JSON(http.StatusCreated, n)
}

// CreateBulk creates one notification per listed user
func (h *NotificationHandler) CreateBulk(c *gin.Context) {
	var req domain.BulkNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	created, err := h.service.CreateBulkNotifications(c.Request.Context(), req.UserIDs, req.Notification)
	if err != nil {
		respondError(c, h.log, "Failed to create notifications", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"requested": len(req.UserIDs),
		"created":   len(created),
		"data":      created,
	})
}

// Broadcast notifies every enabled user in the background
func (h *NotificationHandler) Broadcast(c *gin.Context) {
	var req domain.BroadcastNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if !req.Notification.Type.Valid() {
		c.JSON(http.StatusBadRequest, apperrors.NewValidationError("unknown notification type: "+string(req.Notification.Type), nil))
		return
	}

	h.service.BroadcastAsync(req.Notification, req.ExcludeUserIDs)
	c.JSON(http.StatusAccepted, gin.H{"message": "Broadcast accepted"})
}

// List returns a page of the user's notifications
func (h *NotificationHandler) List(c *gin.Context) {
	var filter domain.NotificationFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, err)
		return
	}
	filter.UserID = c.Param("user_id")

	page, err := h.service.GetNotifications(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.log, "Failed to get notifications", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Get returns one notification
func (h *NotificationHandler) Get(c *gin.Context) {
	n, err := h.service.GetNotification(c.Request.Context(), c.Param("user_id"), c.Param("id"))
	if err != nil {
		respondError(c, h.log, "Failed to get notification", err)
		return
	}
	c.JSON(http.StatusOK, n)
}

// Summary returns the user's notification counts
func (h *NotificationHandler) Summary(c *gin.Context) {
	summary, err := h.service.GetSummary(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		respondError(c, h.log, "Failed to get summary", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// MarkRead marks the listed notifications read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.markRead(c, req.NotificationIDs)
}

// MarkOneRead marks the notification in the path read
func (h *NotificationHandler) MarkOneRead(c *gin.Context) {
	h.markRead(c, []string{c.Param("id")})
}

func (h *NotificationHandler) markRead(c *gin.Context, ids []string) {
	updated, err := h.service.MarkAsRead(c.Request.Context(), c.Param("user_id"), ids)
	if err != nil {
		respondError(c, h.log, "Failed to mark notifications read", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// MarkAllRead marks every notification of the user read
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	updated, err := h.service.MarkAllAsRead(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		respondError(c, h.log, "Failed to mark notifications read", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// Archive archives one notification
func (h *NotificationHandler) Archive(c *gin.Context) {
	if err := h.service.Archive(c.Request.Context(), c.Param("user_id"), c.Param("id")); err != nil {
		respondError(c, h.log, "Failed to archive notification", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Delete deletes one notification
func (h *NotificationHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("user_id"), c.Param("id")); err != nil {
		respondError(c, h.log, "Failed to delete notification", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteMany deletes the listed notifications
func (h *NotificationHandler) DeleteMany(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	deleted, err := h.service.DeleteMany(c.Request.Context(), c.Param("user_id"), req.NotificationIDs)
	if err != nil {
		respondError(c, h.log, "Failed to delete notifications", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
