package repo

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// pingTimeout bounds the startup probe; a slow Redis must not delay boot.
const pingTimeout = 500 * time.Millisecond

// RedisClient is the shared connection behind every durable collection.
type RedisClient struct {
	*redis.Client
	log *zap.Logger
}

// Options returns the connection settings used by the server. Timeouts are
// short because callers treat a failed write as degraded, not fatal.
func Options(addr string, db int) *redis.Options {
	return &redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolSize:     8,
		MinIdleConns: 2,
		MaxRetries:   1,
	}
}

// NewRedisClient does not dial; call Ping to probe the server.
func NewRedisClient(log *zap.Logger, opts *redis.Options) *RedisClient {
	return &RedisClient{
		Client: redis.NewClient(opts),
		log:    log.Named("redis"),
	}
}

func (c *RedisClient) Close() error {
	return c.Client.Close()
}

// Ping probes the server and logs the round trip.
func (c *RedisClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	opts := c.Options()
	log := c.log.With(zap.String("addr", opts.Addr), zap.Int("db", opts.DB))

	start := time.Now()
	err := c.Client.Ping(ctx).Err()
	rtt := time.Since(start)
	if err != nil {
		log.Warn("redis ping failed", zap.Error(err), zap.Duration("rtt", rtt))
		return err
	}
	log.Info("redis reachable", zap.Duration("rtt", rtt))
	return nil
}
