package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Backend labels reported to the check recorder.
const (
	BackendRedis    = "redis"
	BackendFallback = "fallback"
)

var checkRecorder = func(backend string, allowed bool) {}

// RegisterCheckRecorder allows external packages to observe limiter decisions.
func RegisterCheckRecorder(recorder func(backend string, allowed bool)) {
	if recorder == nil {
		checkRecorder = func(string, bool) {}
		return
	}

	checkRecorder = recorder
}

// AdaptiveLimiter delegates to a primary (Redis) limiter and falls back to
// a stricter in-memory limiter when the primary fails.
type AdaptiveLimiter struct {
	primary  Limiter
	fallback Limiter
	log      *slog.Logger
}

var _ Limiter = (*AdaptiveLimiter)(nil)

// NewAdaptiveLimiter creates a limiter that adapts between Redis and in-memory backends.
func NewAdaptiveLimiter(primary, fallback Limiter, log *slog.Logger) *AdaptiveLimiter {
	if log == nil {
		log = slog.Default()
	}

	return &AdaptiveLimiter{
		primary:  primary,
		fallback: fallback,
		log:      log,
	}
}

// Check evaluates the limit using the primary backend. While the primary errors, the fallback
// enforces half the limit.
func (a *AdaptiveLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	if a.primary != nil {
		result, err := a.primary.Check(ctx, key, limit, window)
		if err == nil {
			checkRecorder(BackendRedis, result.Allowed)
			return result, nil
		}

		a.log.Warn("redis limiter failed, falling back to in-memory", "key", key, "error", err)
	}

	fallbackLimit := limit / 2
	if fallbackLimit <= 0 {
		fallbackLimit = 1
	}

	result, err := a.fallback.Check(ctx, key, fallbackLimit, window)
	if err != nil {
		return nil, err
	}

	checkRecorder(BackendFallback, result.Allowed)
	return result, nil
}
