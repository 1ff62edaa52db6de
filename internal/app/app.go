// Package app builds the dependency graph shared by the server and syncer binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ErlanBelekov/agent-job-sync/config"
	"github.com/ErlanBelekov/agent-job-sync/internal/agent"
	"github.com/ErlanBelekov/agent-job-sync/internal/email"
	"github.com/ErlanBelekov/agent-job-sync/internal/escrow"
	"github.com/ErlanBelekov/agent-job-sync/internal/health"
	"github.com/ErlanBelekov/agent-job-sync/internal/infrastructure/postgres"
	redislock "github.com/ErlanBelekov/agent-job-sync/internal/infrastructure/redis"
	"github.com/ErlanBelekov/agent-job-sync/internal/metrics"
	"github.com/ErlanBelekov/agent-job-sync/internal/notify"
	"github.com/ErlanBelekov/agent-job-sync/internal/usecase"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

type Deps struct {
	Pool     *pgxpool.Pool
	Jobs     *postgres.JobRepository
	Escrow   *escrow.Client
	Notifier *notify.Dispatcher
	Sync     *usecase.SyncUsecase
	Health   *health.Checker

	redis *redis.Client
}

// Build connects to Postgres (and Redis when configured), registers metrics
// and wires the sync use case. Callers must Close the result.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Deps, error) {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxConns: int32(max(cfg.WorkerCount*2, 10)),
	})
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	logger.Info("db connected")

	d := &Deps{Pool: pool}

	probes := map[string]health.Pinger{"postgres": pool}

	var locker usecase.Locker = redislock.NoopLocker{}
	if cfg.RedisURL != "" {
		cli, err := redislock.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		d.redis = cli
		l := redislock.NewLocker(cli)
		locker = l
		probes["redis"] = l
		logger.Info("redis connected")
	} else {
		logger.Warn("REDIS_URL not set, concurrent syncs of one job are not excluded")
	}

	metrics.Register()
	d.Health = health.NewChecker(probes, logger, prometheus.DefaultRegisterer)

	d.Jobs = postgres.NewJobRepository(pool, postgres.TxConfig{
		AcquireTimeout: cfg.TxAcquireTimeout,
		LockTimeout:    cfg.TxLockTimeout,
		Timeout:        cfg.TxTimeout,
	})
	d.Escrow = escrow.NewClient(cfg.EscrowBaseURL, cfg.EscrowAPIKey, cfg.CollaboratorTimeout)
	agentClient := agent.NewClient(cfg.AgentAPIKey, cfg.CollaboratorTimeout, logger)

	d.Notifier = notify.NewDispatcher(notifyOptions(cfg, logger))

	d.Sync = usecase.NewSyncUsecase(
		d.Jobs,
		agentClient,
		d.Escrow,
		d.Notifier,
		locker,
		logger,
		usecase.SyncConfig{LockTTL: cfg.SyncLockTTL},
	)

	return d, nil
}

func notifyOptions(cfg *config.Config, logger *slog.Logger) notify.Options {
	sender := email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger)
	webhookClient := &http.Client{}

	opts := notify.Options{
		Logger:  logger,
		Timeout: cfg.NotifyTimeout,
		FinalStatus: []notify.SinkRegistration{
			{Name: "owner_email", Sink: &notify.EmailSink{Sender: sender, BaseURL: cfg.AppBaseURL}},
			{Name: "owner_webhook", Sink: &notify.WebhookSink{Client: webhookClient}},
		},
	}
	if cfg.OpsEmail != "" {
		opts.Failure = append(opts.Failure, notify.SinkRegistration{
			Name: "ops_email",
			Sink: &notify.EmailSink{Sender: sender, To: cfg.OpsEmail, BaseURL: cfg.AppBaseURL},
		})
	}
	if cfg.FailureWebhookURL != "" {
		opts.Failure = append(opts.Failure, notify.SinkRegistration{
			Name: "ops_webhook",
			Sink: &notify.WebhookSink{Client: webhookClient, URL: cfg.FailureWebhookURL},
		})
	}
	return opts
}

// Close waits for pending notifications, then releases connections.
func (d *Deps) Close() {
	d.Notifier.Wait()
	if d.redis != nil {
		_ = d.redis.Close()
	}
	d.Pool.Close()
}
