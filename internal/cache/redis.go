package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/opsgraph/opsgraph-backend/internal/domain"
	"github.com/opsgraph/opsgraph-backend/internal/platform/envutil"
	"github.com/opsgraph/opsgraph-backend/internal/platform/logger"
)

// Redis stores query results as JSON so independent instances can share a
// cache. Every failure degrades to a miss; the caller recomputes live.
type Redis struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

// NewRedisFromEnv builds a Redis cache from REDIS_* environment variables.
// An unset REDIS_ADDR returns (nil, nil) so callers can fall back to the
// in-process cache.
func NewRedisFromEnv(log *logger.Logger) (*Redis, error) {
	if log == nil {
		return nil, fmt.Errorf("redis cache: logger required")
	}

	addr := envutil.String("REDIS_ADDR", "")
	if addr == "" {
		return nil, nil
	}
	ttl := time.Duration(envutil.Int("REDIS_CACHE_TTL_SECONDS", 300)) * time.Second

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Redis{
		log: log.With("service", "RedisQueryCache"),
		rdb: rdb,
		ttl: ttl,
	}, nil
}

func (r *Redis) Get(ctx context.Context, key Key) (domain.Result, bool) {
	raw, err := r.rdb.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if err != goredis.Nil {
			r.log.Warn("cache get failed, treating as miss", "key", redisKey(key), "error", err)
		}
		return domain.Result{}, false
	}
	var res domain.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		r.log.Warn("cache entry undecodable, treating as miss", "key", redisKey(key), "error", err)
		return domain.Result{}, false
	}
	return res, true
}

func (r *Redis) Set(ctx context.Context, key Key, result domain.Result) {
	raw, err := json.Marshal(result)
	if err != nil {
		r.log.Warn("cache set skipped, result not encodable", "key", redisKey(key), "error", err)
		return
	}
	if err := r.rdb.Set(ctx, redisKey(key), raw, r.ttl).Err(); err != nil {
		r.log.Warn("cache set failed", "key", redisKey(key), "error", err)
	}
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}

func redisKey(key Key) string {
	return strings.Join([]string{
		"opsgraph", "query", key.Op, string(key.EntityType), key.EntityName, string(key.Filter),
	}, ":")
}
