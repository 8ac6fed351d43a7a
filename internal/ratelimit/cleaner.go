package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cleaner periodically drops expired windows from Redis and the in-memory fallback.
type Cleaner struct {
	client   *redis.Client
	memory   *MemoryLimiter
	interval time.Duration
	window   time.Duration
	log      *slog.Logger
	now      func() time.Time
}

// NewCleaner constructs a Cleaner. Either client or memory may be nil.
func NewCleaner(client *redis.Client, memory *MemoryLimiter, interval, window time.Duration, log *slog.Logger) *Cleaner {
	if log == nil {
		log = slog.Default()
	}

	return &Cleaner{
		client:   client,
		memory:   memory,
		interval: interval,
		window:   window,
		log:      log,
		now:      time.Now,
	}
}

// Run sweeps every interval until the context is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	if c.interval <= 0 || c.window <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("rate limit cleaner stopped", slog.String("reason", ctx.Err().Error()))
			return
		case <-ticker.C:
			if removed := c.Sweep(ctx); removed > 0 {
				c.log.Info("rate limit windows cleaned", slog.Int("removed", removed))
			}
		}
	}
}

// Sweep removes windows with no request inside the last window and returns how many it removed.
func (c *Cleaner) Sweep(ctx context.Context) int {
	removed := 0
	if c.memory != nil {
		removed += c.memory.Cleanup(c.window)
	}
	if c.client != nil {
		removed += c.sweepRedis(ctx)
	}
	return removed
}

func (c *Cleaner) sweepRedis(ctx context.Context) int {
	const scanCount = 100

	cutoff := c.now().Add(-c.window).UnixMilli()
	var cursor uint64
	removed := 0

	for {
		keys, next, err := c.client.Scan(ctx, cursor, KeyPrefix+"*", scanCount).Result()
		if err != nil {
			c.log.Error("rate limit scan failed", slog.Any("error", err))
			return removed
		}

		for _, key := range keys {
			pipe := c.client.TxPipeline()
			pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%d", cutoff))
			card := pipe.ZCard(ctx, key)
			if _, err := pipe.Exec(ctx); err != nil {
				c.log.Warn("cleanup pipeline failed", slog.String("key", key), slog.Any("error", err))
				continue
			}

			if card.Val() > 0 {
				continue
			}

			if err := c.client.Del(ctx, key).Err(); err != nil {
				c.log.Warn("failed to delete empty rate limit key", slog.String("key", key), slog.Any("error", err))
				continue
			}
			removed++
		}

		if next == 0 {
			return removed
		}
		cursor = next
	}
}
