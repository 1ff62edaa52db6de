package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Env      string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	Port     string `env:"PORT" envDefault:"8080" validate:"required"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`
	RedisURL    string `env:"REDIS_URL" validate:"omitempty,url"`

	JWTSecret string `env:"JWT_SECRET,required" validate:"required,min=32"`

	AgentAPIKey         string        `env:"AGENT_API_KEY"`
	EscrowBaseURL       string        `env:"ESCROW_BASE_URL,required" validate:"required,url"`
	EscrowAPIKey        string        `env:"ESCROW_API_KEY" validate:"required_if=Env production,required_if=Env staging"`
	CollaboratorTimeout time.Duration `env:"COLLABORATOR_TIMEOUT" envDefault:"10s" validate:"min=100ms"`

	TxAcquireTimeout time.Duration `env:"TX_ACQUIRE_TIMEOUT" envDefault:"5s"`
	TxLockTimeout    time.Duration `env:"TX_LOCK_TIMEOUT" envDefault:"5s"`
	TxTimeout        time.Duration `env:"TX_TIMEOUT" envDefault:"30s"`
	SyncLockTTL      time.Duration `env:"SYNC_LOCK_TTL" envDefault:"2m"`

	WorkerCount     int    `env:"WORKER_COUNT" envDefault:"5" validate:"min=1,max=100"`
	PollIntervalSec int    `env:"POLL_INTERVAL_SEC" envDefault:"30" validate:"min=1,max=3600"`
	SweepCron       string `env:"SWEEP_CRON" envDefault:"*/15 * * * *" validate:"required"`
	SweepBatch      int    `env:"SWEEP_BATCH" envDefault:"100" validate:"min=1,max=1000"`

	NotifyTimeout     time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"10s"`
	ResendAPIKey      string        `env:"RESEND_API_KEY" validate:"required_if=Env production,required_if=Env staging"`
	ResendFrom        string        `env:"RESEND_FROM"    validate:"required_if=Env production,required_if=Env staging"`
	OpsEmail          string        `env:"OPS_EMAIL" validate:"omitempty,email"`
	FailureWebhookURL string        `env:"FAILURE_WEBHOOK_URL" validate:"omitempty,url"`
	AppBaseURL        string        `env:"APP_BASE_URL" envDefault:"http://localhost:3000"`
}

// Load reads a .env file when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("load .env file: %w", err)
		}
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}
