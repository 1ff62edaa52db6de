package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ErlanBelekov/agent-job-sync/config"
	"github.com/ErlanBelekov/agent-job-sync/internal/app"
	ctxlog "github.com/ErlanBelekov/agent-job-sync/internal/log"
	"github.com/ErlanBelekov/agent-job-sync/internal/metrics"
	"github.com/ErlanBelekov/agent-job-sync/internal/scheduler"
	"github.com/lmittmann/tint"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	deps, err := app.Build(ctx, cfg, logger)
	if err != nil {
		stop()
		log.Fatalf("init: %v", err)
	}
	defer deps.Close()

	poller := scheduler.NewPoller(deps.Jobs, deps.Sync, logger, cfg.PollInterval(), cfg.WorkerCount)

	sweeper, err := scheduler.NewSweeper(deps.Jobs, deps.Sync, logger, cfg.SweepCron, cfg.SweepBatch)
	if err != nil {
		stop()
		deps.Close()
		log.Fatalf("sweeper: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		poller.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		sweeper.Start(ctx)
	}()

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, deps.Health.Handlers())
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	// in-flight syncs finish before the pool closes
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("syncer shut down")
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
