package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MemoryLimiter keeps sliding windows in process. Only allowed requests occupy the window.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	log     *slog.Logger
	now     func() time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter returns an in-memory limiter implementation.
func NewMemoryLimiter(log *slog.Logger) *MemoryLimiter {
	if log == nil {
		log = slog.Default()
	}

	return &MemoryLimiter{
		windows: make(map[string][]time.Time),
		log:     log,
		now:     time.Now,
	}
}

// Check enforces a sliding-window limit for the provided key.
func (m *MemoryLimiter) Check(_ context.Context, key string, limit int, window time.Duration) (*Result, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	requests := keepRecent(m.windows[key], now.Add(-window))

	allowed := len(requests) < limit
	if allowed {
		requests = append(requests, now)
	}

	if len(requests) == 0 {
		delete(m.windows, key)
	} else {
		m.windows[key] = requests
	}

	resetAt := now.Add(window)
	if len(requests) > 0 {
		resetAt = requests[0].Add(window)
	}

	remaining := limit - len(requests)
	if remaining < 0 {
		remaining = 0
	}

	return &Result{
		Allowed:   allowed,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// Cleanup drops keys whose latest request is older than maxAge and returns how many it removed.
func (m *MemoryLimiter) Cleanup(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}

	cutoff := m.now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, requests := range m.windows {
		if len(requests) == 0 || requests[len(requests)-1].Before(cutoff) {
			delete(m.windows, key)
			removed++
		}
	}

	return removed
}

func keepRecent(requests []time.Time, windowStart time.Time) []time.Time {
	first := 0
	for first < len(requests) && !requests[first].After(windowStart) {
		first++
	}

	if first == 0 {
		return requests
	}

	kept := copy(requests, requests[first:])
	return requests[:kept]
}
