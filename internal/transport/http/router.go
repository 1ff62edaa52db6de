package httptransport

import (
	"log/slog"

	"github.com/ErlanBelekov/agent-job-sync/internal/transport/http/handler"
	"github.com/ErlanBelekov/agent-job-sync/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"

	sloggin "github.com/samber/slog-gin"
)

// SyncScope must be present in the token of callers allowed to trigger syncs.
const SyncScope = "sync"

func NewRouter(logger *slog.Logger, jobHandler *handler.JobHandler, syncHandler *handler.SyncHandler, hmacKey []byte) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	authMW := middleware.Auth(hmacKey)

	jobs := r.Group("/jobs", authMW)
	jobs.GET("/:id/status", jobHandler.GetStatus)
	jobs.POST("/:id/refund", jobHandler.RequestRefund)

	// Webhook triggers from agents and the escrow service.
	internal := r.Group("/internal", authMW, middleware.RequireScope(SyncScope))
	internal.POST("/jobs/:id/sync", syncHandler.Sync)

	return r
}
