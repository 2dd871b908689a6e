package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLockTimeout is returned when the lock could not be acquired within the wait budget.
var ErrLockTimeout = errors.New("lock wait timeout")

// Удаляем ключ только если он всё ещё принадлежит нам
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisConfig holds the timings of the distributed lock.
type RedisConfig struct {
	// TTL bounds how long a crashed holder can block the teacher.
	TTL time.Duration
	// Wait is the maximum time Lock keeps retrying.
	Wait time.Duration
	// RetryInterval is the pause between SET NX attempts.
	RetryInterval time.Duration
}

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		TTL:           10 * time.Second,
		Wait:          5 * time.Second,
		RetryInterval: 50 * time.Millisecond,
	}
}

// Redis is a token lock shared by every scheduler instance using the same Redis.
type Redis struct {
	client redis.Cmdable
	cfg    RedisConfig
	logger *zap.Logger
}

func NewRedis(client redis.Cmdable, cfg RedisConfig, logger *zap.Logger) *Redis {
	def := DefaultRedisConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.Wait <= 0 {
		cfg.Wait = def.Wait
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = def.RetryInterval
	}
	return &Redis{client: client, cfg: cfg, logger: logger}
}

// Lock retries SET NX PX until it wins, ctx is done, or the wait budget runs out.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(r.cfg.Wait)

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.cfg.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("redis set nx: %w", err)
		}
		if ok {
			return r.unlockFunc(key, token), nil
		}

		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}

		timer := time.NewTimer(r.cfg.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *Redis) unlockFunc(key, token string) func() {
	return func() {
		// Контекст запроса мог быть уже отменён, снимаем блокировку отдельно
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
			r.logger.Warn("Failed to release lock",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
}
