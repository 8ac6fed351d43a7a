package idempotency

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cleaner removes records that lost their expiry or outlive maxTTL, e.g. after a TTL change.
type Cleaner struct {
	client   *redis.Client
	log      *slog.Logger
	prefix   string
	interval time.Duration
	maxTTL   time.Duration
}

func NewCleaner(client *redis.Client, prefix string, interval, maxTTL time.Duration, log *slog.Logger) *Cleaner {
	if log == nil {
		log = slog.Default()
	}
	if prefix == "" {
		prefix = defaultPrefix
	}

	return &Cleaner{
		client:   client,
		log:      log,
		prefix:   prefix,
		interval: interval,
		maxTTL:   maxTTL,
	}
}

// Run sweeps every interval until ctx is done.
func (c *Cleaner) Run(ctx context.Context) {
	if c == nil || c.client == nil || c.interval <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}

// Sweep performs one pass and returns the number of deleted keys.
func (c *Cleaner) Sweep(ctx context.Context) int {
	var (
		cursor  uint64
		deleted int
	)

	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+":*", 100).Result()
		if err != nil {
			c.log.Error("idempotency cleaner scan failed", slog.Any("error", err))
			return deleted
		}

		for _, key := range keys {
			ttl, err := c.client.TTL(ctx, key).Result()
			if err != nil {
				c.log.Warn("failed to get key ttl", slog.String("key", key), slog.Any("error", err))
				continue
			}

			// -2 means the key vanished between SCAN and TTL.
			if ttl == -2 {
				continue
			}

			if ttl < 0 || ttl > c.maxTTL {
				if err := c.client.Del(ctx, key).Err(); err != nil {
					c.log.Warn("failed to delete stale idempotency key", slog.String("key", key), slog.Any("error", err))
					continue
				}
				deleted++
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	if deleted > 0 {
		c.log.Info("idempotency cleaner removed stale keys", slog.Int("count", deleted))
	}

	return deleted
}
