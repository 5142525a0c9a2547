package handoff

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/draftstudio-backend/internal/platform/logger"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// DialRedis opens a client and pings it once.
func DialRedis(ctx context.Context, cfg RedisConfig) (*goredis.Client, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// RedisChannels stores envelopes as plain strings with PX expiry. The
// Channel adds a grace period to the TTL so expiry is still observable by
// the reader.
type RedisChannels struct {
	log    *logger.Logger
	rdb    goredis.Cmdable
	prefix string
}

func NewRedisChannels(rdb goredis.Cmdable, prefix string, baseLog *logger.Logger) *RedisChannels {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "drafts"
	}
	return &RedisChannels{
		log:    baseLog.With("service", "RedisHandoffChannels"),
		rdb:    rdb,
		prefix: prefix,
	}
}

func (r *RedisChannels) key(k string) string { return r.prefix + ":" + k }

func (r *RedisChannels) Put(ctx context.Context, key, text string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Millisecond
	}
	if err := r.rdb.Set(ctx, r.key(key), text, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisChannels) Get(ctx context.Context, key string) (string, bool, error) {
	text, err := r.rdb.Get(ctx, r.key(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return text, true, nil
}

func (r *RedisChannels) Delete(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
