package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ErlanBelekov/agent-job-sync/internal/domain"
	"github.com/ErlanBelekov/agent-job-sync/internal/usecase"
	"github.com/gin-gonic/gin"
)

// jobUsecaser is the subset of the job and refund usecases the handler needs.
// Defined here (point of use) so tests can inject a fake.
type jobUsecaser interface {
	GetStatus(ctx context.Context, jobID, userID string) (*usecase.JobStatusView, error)
}

type refundUsecaser interface {
	RequestRefund(ctx context.Context, jobID, userID string) (domain.Status, error)
}

type JobHandler struct {
	jobs    jobUsecaser
	refunds refundUsecaser
	logger  *slog.Logger
}

func NewJobHandler(jobs jobUsecaser, refunds refundUsecaser, logger *slog.Logger) *JobHandler {
	return &JobHandler{
		jobs:    jobs,
		refunds: refunds,
		logger:  logger.With("component", "job_handler"),
	}
}

type agentEventResponse struct {
	Status    domain.AgentStatus `json:"status"`
	Result    *string            `json:"result,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

type jobStatusResponse struct {
	ID           string              `json:"id"`
	Type         domain.JobType      `json:"type"`
	Status       domain.Status       `json:"status"`
	CreatedAt    time.Time           `json:"created_at"`
	LastSyncedAt *time.Time          `json:"last_synced_at,omitempty"`
	Latest       *agentEventResponse `json:"latest_event,omitempty"`
}

type statusResponse struct {
	ID     string        `json:"id"`
	Status domain.Status `json:"status"`
}

// GET /jobs/:id/status
func (h *JobHandler) GetStatus(c *gin.Context) {
	jobID := c.Param("id")

	view, err := h.jobs.GetStatus(c.Request.Context(), jobID, c.GetString("userID"))
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errJobNotFound})
			return
		}
		h.logger.ErrorContext(c.Request.Context(), "get job status", "job_id", jobID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	resp := jobStatusResponse{
		ID:           view.Job.ID,
		Type:         view.Job.Type,
		Status:       view.Status,
		CreatedAt:    view.Job.CreatedAt,
		LastSyncedAt: view.Job.LastSyncedAt,
	}
	if ev := view.Latest; ev != nil {
		resp.Latest = &agentEventResponse{Status: ev.Status, Result: ev.Result, CreatedAt: ev.CreatedAt}
	}
	c.JSON(http.StatusOK, resp)
}

// POST /jobs/:id/refund
func (h *JobHandler) RequestRefund(c *gin.Context) {
	jobID := c.Param("id")

	status, err := h.refunds.RequestRefund(c.Request.Context(), jobID, c.GetString("userID"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": errJobNotFound})
		case errors.Is(err, domain.ErrJobNotRefundable):
			c.JSON(http.StatusConflict, gin.H{"error": errJobNotRefundable})
		case errors.Is(err, domain.ErrRefundRequestFailed):
			h.logger.WarnContext(c.Request.Context(), "refund request", "job_id", jobID, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": errRefundFailed})
		default:
			h.logger.ErrorContext(c.Request.Context(), "refund request", "job_id", jobID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	c.JSON(http.StatusAccepted, statusResponse{ID: jobID, Status: status})
}
