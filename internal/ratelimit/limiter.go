// Package ratelimit limits relay requests per client over a sliding window.
package ratelimit

import (
	"context"
	"math"
	"time"
)

// Result captures the outcome of a rate-limit evaluation.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns the whole seconds until a slot frees up, never less than one.
func (r *Result) RetryAfter(now time.Time) int {
	if r == nil {
		return 1
	}

	seconds := int(math.Ceil(r.ResetAt.Sub(now).Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}

// Limiter checks and records one request for key. A denied request is reported through
// Result.Allowed, errors mean the backend could not decide.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}
