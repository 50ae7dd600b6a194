package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vhvplatform/go-notification-orchestrator/internal/domain"
	"github.com/vhvplatform/go-notification-orchestrator/internal/shared/logger"
)

// PreferenceManager is the preference surface served over HTTP
type PreferenceManager interface {
	GetOrCreate(ctx context.Context, userID string) (*domain.NotificationPreferences, error)
	Update(ctx context.Context, userID string, update domain.PreferencesUpdate) (*domain.NotificationPreferences, error)
	UpdateCategoryPreferences(ctx context.Context, userID string, category domain.Category, update domain.CategoryPreferenceUpdate) (*domain.NotificationPreferences, error)
	SetEventOverride(ctx context.Context, userID string, override domain.EventOverride) (*domain.NotificationPreferences, error)
	RemoveEventOverride(ctx context.Context, userID string, t domain.NotificationType) (*domain.NotificationPreferences, error)
	UpdateEmailDigest(ctx context.Context, userID string, update domain.EmailDigestUpdate) (*domain.NotificationPreferences, error)
	UpdateQuietHours(ctx context.Context, userID string, update domain.QuietHoursUpdate) (*domain.NotificationPreferences, error)
	Reset(ctx context.Context, userID string) (*domain.NotificationPreferences, error)
	Evaluate(ctx context.Context, userID string, t domain.NotificationType, priority domain.Priority, at time.Time) (*domain.PreferenceEvaluationResult, error)
}

// PreferencesHandler handles notification preferences requests
type PreferencesHandler struct {
	prefs PreferenceManager
	log   *logger.Logger
}

// NewPreferencesHandler creates a new preferences handler
func NewPreferencesHandler(prefs PreferenceManager, log *logger.Logger) *PreferencesHandler {
	return &PreferencesHandler{
		prefs: prefs,
		log:   log,
	}
}

// Register mounts the preference routes on rg
func (h *PreferencesHandler) Register(rg *gin.RouterGroup) {
	prefs := rg.Group("/preferences/:user_id")
	{
		prefs.GET("", h.GetPreferences)
		prefs.PUT("", h.UpdatePreferences)
		prefs.PUT("/categories/:category", h.UpdateCategory)
		prefs.PUT("/overrides/:type", h.SetOverride)
		prefs.DELETE("/overrides/:type", h.RemoveOverride)
		prefs.PUT("/digest", h.UpdateDigest)
		prefs.PUT("/quiet-hours", h.UpdateQuietHours)
		prefs.POST("/reset", h.Reset)
		prefs.POST("/evaluate", h.Evaluate)
	}
}

// GetPreferences retrieves user notification preferences, creating defaults on first access
func (h *PreferencesHandler) GetPreferences(c *gin.Context) {
	prefs, err := h.prefs.GetOrCreate(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		respondError(c, h.log, "Failed to get preferences", err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

// UpdatePreferences applies a partial update
func (h *PreferencesHandler) UpdatePreferences(c *gin.Context) {
	var update domain.PreferencesUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		badRequest(c, err)
		return
	}

	prefs, err := h.prefs.Update(c.Request.Context(), c.Param("user_id"), update)
	if err != nil {
		respondError(c, h.log, "Failed to update preferences", err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

// UpdateCategory updates one category rule
func (h *PreferencesHandler) UpdateCategory(c *gin.Context) {
	var update domain.CategoryPreferenceUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		badRequest(c, err)
		return
	}

	prefs, err := h.prefs.UpdateCategoryPreferences(c.Request.Context(), c.Param("user_id"), domain.Category(c.Param("category")), update)
	if err != nil {
		respondError(c, h.log, "Failed to update category preferences", err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

// SetOverride installs an event override for the type in the path
func (h *PreferencesHandler) SetOverride(c *gin.Context) {
	var override domain.EventOverride
	if err := c.ShouldBindJSON(&override); err != nil {
		badRequest(c, err)
		return
	}
	override.Type = domain.NotificationType(c.Param("type"))

	prefs, err := h.prefs.SetEventOverride(c.Request.Context(), c.Param("user_id"), override)
	if err != nil {
		respondError(c, h.log, "Failed to set event override", err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

// RemoveOverride removes the event override for the type in the path
func (h *PreferencesHandler) RemoveOverride(c *gin.Context) {
	prefs, err := h.prefs.RemoveEventOverride(c.Request.Context(), c.Param("user_id"), domain.NotificationType(c.Param("type")))
	if err != nil {
		respondError(c, h.log, "Failed to remove event override", err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

// UpdateDigest updates the email digest configuration
func (h *PreferencesHandler) UpdateDigest(c *gin.Context) {
	var update domain.EmailDigestUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		badRequest(c, err)
		return
	}

	prefs, err := h.prefs.UpdateEmailDigest(c.Request.Context(), c.Param("user_id"), update)
	if err != nil {
		respondError(c, h.log, "Failed to update digest", err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

// UpdateQuietHours updates the quiet hours configuration
func (h *PreferencesHandler) UpdateQuietHours(c *gin.Context) {
	var update domain.QuietHoursUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		badRequest(c, err)
		return
	}

	prefs, err := h.prefs.UpdateQuietHours(c.Request.Context(), c.Param("user_id"), update)
	if err != nil {
		respondError(c, h.log, "Failed to update quiet hours", err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

// Reset restores the default preferences
func (h *PreferencesHandler) Reset(c *gin.Context) {
	prefs, err := h.prefs.Reset(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		respondError(c, h.log, "Failed to reset preferences", err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

// Evaluate reports whether and where an event would be delivered, without creating anything
func (h *PreferencesHandler) Evaluate(c *gin.Context) {
	var req domain.EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	at := time.Now()
	if req.OccurredAt != nil {
		at = *req.OccurredAt
	}

	res, err := h.prefs.Evaluate(c.Request.Context(), c.Param("user_id"), req.Type, req.Priority, at)
	if err != nil {
		respondError(c, h.log, "Failed to evaluate preferences", err)
		return
	}
	c.JSON(http.StatusOK, res)
}
