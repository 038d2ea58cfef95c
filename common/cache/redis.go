// Package cache wraps Redis for the seen-deal read-through cache and the per-occurrence fire lock.
package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"github.com/forbiddencoding/deal-notifier/common/config"
	"github.com/forbiddencoding/deal-notifier/common/ledger"
	"github.com/redis/go-redis/v9"
	"log/slog"
	"time"
)

const (
	seenPrefix = "deals:seen:"
	lockPrefix = "deals:lock:"
)

type Redis struct {
	client  redis.UniversalClient
	logger  *slog.Logger
	seenTTL time.Duration
	lockTTL time.Duration
}

var _ ledger.Cache = (*Redis)(nil)

func New(ctx context.Context, conf *config.Redis, logger *slog.Logger) (*Redis, error) {
	opts := &redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	}
	if conf.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewWithClient(client, conf, logger), nil
}

func NewWithClient(client redis.UniversalClient, conf *config.Redis, logger *slog.Logger) *Redis {
	return &Redis{
		client:  client,
		logger:  logger.With("component", "redis"),
		seenTTL: conf.SeenTTL,
		lockTTL: conf.LockTTL,
	}
}

func (r *Redis) Seen(ctx context.Context, key ledger.Key) (bool, error) {
	n, err := r.client.Exists(ctx, seenPrefix+key.String()).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (r *Redis) Remember(ctx context.Context, keys []ledger.Key) error {
	if len(keys) == 0 {
		return nil
	}

	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range keys {
			pipe.Set(ctx, seenPrefix+k.String(), 1, r.seenTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis remember %d keys: %w", len(keys), err)
	}

	return nil
}

// AcquireLock takes name for the lock TTL. It returns false when another holder has it.
func (r *Redis) AcquireLock(ctx context.Context, name string) (bool, error) {
	ok, err := r.client.SetNX(ctx, lockPrefix+name, time.Now().UTC().Format(time.RFC3339), r.lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis lock %s: %w", name, err)
	}
	return ok, nil
}

func (r *Redis) ReleaseLock(ctx context.Context, name string) error {
	if err := r.client.Del(ctx, lockPrefix+name).Err(); err != nil {
		return fmt.Errorf("redis unlock %s: %w", name, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
