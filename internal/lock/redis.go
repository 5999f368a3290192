package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// KeyPrefix namespaces account locks in redis: blackjack:lock:account:{account_id}
const KeyPrefix = "blackjack:lock:account:"

// Only delete the key when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// RedisConfig tunes a Redis lock.
type RedisConfig struct {
	// TTL bounds how long a crashed holder can block the account.
	TTL time.Duration
	// Retry is the polling interval while the key is held elsewhere.
	Retry time.Duration
	// Wait caps the total wait when the caller's context has no deadline.
	Wait  time.Duration
	Clock quartz.Clock
}

// Redis is a SETNX based lock with compare-and-delete release.
type Redis struct {
	client *redis.Client
	cfg    RedisConfig
	logger zerolog.Logger
}

// NewRedis creates a redis-backed account lock.
func NewRedis(client *redis.Client, logger zerolog.Logger, cfg RedisConfig) *Redis {
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Second
	}
	if cfg.Retry <= 0 {
		cfg.Retry = 25 * time.Millisecond
	}
	if cfg.Wait <= 0 {
		cfg.Wait = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	return &Redis{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "redis_lock").Logger(),
	}
}

// Lock acquires the account lock for key, polling until it is free.
func (l *Redis) Lock(ctx context.Context, key string) (func(), error) {
	k := KeyPrefix + key
	token := uuid.NewString()

	if _, has := ctx.Deadline(); !has {
		c, cancel := context.WithTimeout(ctx, l.cfg.Wait)
		defer cancel()
		ctx = c
	}

	for {
		ok, err := l.client.SetNX(ctx, k, token, l.cfg.TTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s", ErrTimeout, k)
			}
			return nil, fmt.Errorf("acquire lock %s: %w", k, err)
		}
		if ok {
			break
		}

		t := l.cfg.Clock.NewTimer(l.cfg.Retry, "lock", "retry")
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("%w: %s", ErrTimeout, k)
		case <-t.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(k, token) })
	}, nil
}

func (l *Redis) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	n, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int64()
	if err != nil {
		l.logger.Error().Err(err).Str("key", key).Msg("release lock failed")
		return
	}
	if n == 0 {
		l.logger.Warn().Str("key", key).Msg("lock expired or taken over before release")
	}
}
