// internal/store/redis.go
package store

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// redisClient is the subset of *redis.Client the store uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Redis keeps the environment in a Redis database, one string key per
// entry under a common prefix.
type Redis struct {
	db       redisClient
	prefix   string
	timeout  time.Duration
	defaults map[string]uint32
	log      logrus.FieldLogger
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr    string
	Prefix  string
	Timeout time.Duration
}

// NewRedis connects lazily; the first failing command is logged, not fatal.
func NewRedis(cfg RedisConfig, log logrus.FieldLogger) *Redis {
	db := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	return newRedis(db, cfg, log)
}

func newRedis(db redisClient, cfg RedisConfig, log logrus.FieldLogger) *Redis {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 500 * time.Millisecond
	}
	return &Redis{
		db:       db,
		prefix:   cfg.Prefix,
		timeout:  cfg.Timeout,
		defaults: Defaults(),
		log:      log,
	}
}

func (r *Redis) Get(key string) uint32 {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	s, err := r.db.Get(ctx, r.prefix+key).Result()
	if err == redis.Nil {
		return r.defaults[key]
	}
	if err != nil {
		r.log.WithError(err).WithField("key", key).Warn("redis get failed, using default")
		return r.defaults[key]
	}

	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		r.log.WithError(err).WithField("key", key).Warn("redis value malformed, using default")
		return r.defaults[key]
	}
	return uint32(v)
}

func (r *Redis) Set(key string, value uint32) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	return r.db.Set(ctx, r.prefix+key, strconv.FormatUint(uint64(value), 10), 0).Err()
}
