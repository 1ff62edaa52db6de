package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/ErlanBelekov/agent-job-sync/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// NewClient parses a redis:// URL and verifies the server is reachable.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return c, nil
}

// Locker is a per-key mutex held in Redis. A lock expires after its TTL so a
// crashed holder cannot wedge a job forever.
type Locker struct {
	cli    *redis.Client
	prefix string
}

func NewLocker(cli *redis.Client) *Locker {
	return &Locker{cli: cli, prefix: "sync:job:"}
}

// TryLock acquires the lock for key without waiting. It returns
// domain.ErrSyncInProgress when another holder owns it.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := l.cli.SetNX(ctx, l.prefix+key, token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return "", domain.ErrSyncInProgress
	}
	return token, nil
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

// Unlock releases the lock only if token still owns it.
func (l *Locker) Unlock(ctx context.Context, key, token string) error {
	if err := luaUnlock.Run(ctx, l.cli, []string{l.prefix + key}, token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}

func (l *Locker) Ping(ctx context.Context) error {
	return l.cli.Ping(ctx).Err()
}

// NoopLocker always grants the lock. Used when REDIS_URL is unset.
type NoopLocker struct{}

func (NoopLocker) TryLock(context.Context, string, time.Duration) (string, error) { return "", nil }

func (NoopLocker) Unlock(context.Context, string, string) error { return nil }
