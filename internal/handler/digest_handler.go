package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vhvplatform/go-notification-orchestrator/internal/domain"
	apperrors "github.com/vhvplatform/go-notification-orchestrator/internal/shared/errors"
	"github.com/vhvplatform/go-notification-orchestrator/internal/shared/logger"
)

// DigestTrigger runs a digest outside its schedule
type DigestTrigger interface {
	RunNow(ctx context.Context, freq domain.DigestFrequency) (*domain.DigestRunResult, error)
}

// JobLookup returns the retained status of an email job
type JobLookup interface {
	JobStatus(ctx context.Context, jobID string) (*domain.EmailJobRecord, error)
}

// OperationsHandler serves manual digest runs and email job lookups
type OperationsHandler struct {
	digests DigestTrigger
	jobs    JobLookup
	log     *logger.Logger
}

// NewOperationsHandler creates a new operations handler
func NewOperationsHandler(digests DigestTrigger, jobs JobLookup, log *logger.Logger) *OperationsHandler {
	return &OperationsHandler{digests: digests, jobs: jobs, log: log}
}

// Register mounts the operational routes on rg
func (h *OperationsHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/digests/:frequency/run", h.RunDigest)
	rg.GET("/email-jobs/:id", h.GetEmailJob)
}

// RunDigest triggers the digest for the frequency in the path and waits for it
func (h *OperationsHandler) RunDigest(c *gin.Context) {
	freq := domain.DigestFrequency(strings.ToUpper(c.Param("frequency")))
	if freq.LookbackHours() == 0 {
		c.JSON(http.StatusBadRequest, apperrors.NewValidationError("frequency must be hourly, daily or weekly", nil))
		return
	}

	res, err := h.digests.RunNow(c.Request.Context(), freq)
	if err != nil {
		respondError(c, h.log, "Digest run failed", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetEmailJob returns the status of a queued email
func (h *OperationsHandler) GetEmailJob(c *gin.Context) {
	rec, err := h.jobs.JobStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, "Failed to get email job", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}
