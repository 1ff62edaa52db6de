package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ErlanBelekov/agent-job-sync/internal/domain"
	"github.com/gin-gonic/gin"
)

type syncUsecaser interface {
	Sync(ctx context.Context, jobID string) (domain.Status, error)
}

// SyncHandler lets agents and the escrow service nudge a job after they
// changed something, instead of waiting for the poller.
type SyncHandler struct {
	sync   syncUsecaser
	logger *slog.Logger
}

func NewSyncHandler(sync syncUsecaser, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{sync: sync, logger: logger.With("component", "sync_handler")}
}

// POST /internal/jobs/:id/sync
func (h *SyncHandler) Sync(c *gin.Context) {
	jobID := c.Param("id")

	status, err := h.sync.Sync(c.Request.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": errJobNotFound})
		case errors.Is(err, domain.ErrSyncInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": errSyncInProgress})
		default:
			h.logger.ErrorContext(c.Request.Context(), "sync job", "job_id", jobID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	c.JSON(http.StatusOK, statusResponse{ID: jobID, Status: status})
}
