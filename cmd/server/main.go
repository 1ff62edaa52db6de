package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ErlanBelekov/agent-job-sync/config"
	"github.com/ErlanBelekov/agent-job-sync/internal/app"
	ctxlog "github.com/ErlanBelekov/agent-job-sync/internal/log"
	"github.com/ErlanBelekov/agent-job-sync/internal/metrics"
	httptransport "github.com/ErlanBelekov/agent-job-sync/internal/transport/http"
	"github.com/ErlanBelekov/agent-job-sync/internal/transport/http/handler"
	"github.com/ErlanBelekov/agent-job-sync/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	deps, err := app.Build(ctx, cfg, logger)
	if err != nil {
		stop()
		log.Fatalf("init: %v", err)
	}
	defer deps.Close()

	jobHandler := handler.NewJobHandler(
		usecase.NewJobUsecase(deps.Jobs),
		usecase.NewRefundUsecase(deps.Jobs, deps.Escrow, logger),
		logger,
	)
	syncHandler := handler.NewSyncHandler(deps.Sync, logger)

	srv := http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httptransport.NewRouter(logger, jobHandler, syncHandler, []byte(cfg.JWTSecret)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, deps.Health.Handlers())

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
