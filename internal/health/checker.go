// Package health reports whether the kiosk's dependencies are reachable.
package health

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultCheckTimeout = 3 * time.Second

// Checkable represents a component that can report its health status.
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

// CheckFunc adapts a function to Checkable.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) HealthCheck(ctx context.Context) error {
	return f(ctx)
}

// Report is the outcome of one Check run.
type Report struct {
	Healthy    bool              `json:"healthy"`
	Components map[string]string `json:"components"`
}

// Checker aggregates health checks for multiple components.
type Checker struct {
	log     *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	checks map[string]Checkable
}

// NewChecker instantiates a Checker with the provided logger.
func NewChecker(log *slog.Logger) *Checker {
	if log == nil {
		log = slog.Default()
	}

	return &Checker{
		log:     log,
		timeout: defaultCheckTimeout,
		checks:  make(map[string]Checkable),
	}
}

// AddCheck registers a checkable component by name.
func (c *Checker) AddCheck(name string, check Checkable) {
	if name == "" || check == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Names returns the registered component names in sorted order.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check runs all registered health checks concurrently, each bounded by the check timeout.
func (c *Checker) Check(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]Checkable, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	report := Report{Healthy: true, Components: make(map[string]string, len(checks))}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for name, check := range checks {
		wg.Add(1)
		go func(name string, check Checkable) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			err := check.HealthCheck(checkCtx)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				report.Healthy = false
				report.Components[name] = err.Error()
				c.log.Error("health check failed", slog.String("component", name), slog.Any("error", err))
				return
			}
			report.Components[name] = "OK"
		}(name, check)
	}

	wg.Wait()
	return report
}

// Pinger abstracts the subset of redis.Client used for health checks.
type Pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisChecker verifies connectivity to a Redis instance.
type RedisChecker struct {
	pinger Pinger
}

// NewRedisChecker constructs a RedisChecker.
func NewRedisChecker(pinger Pinger) *RedisChecker {
	return &RedisChecker{pinger: pinger}
}

// HealthCheck issues a PING command against Redis.
func (c *RedisChecker) HealthCheck(ctx context.Context) error {
	if c == nil || c.pinger == nil {
		return redis.ErrClosed
	}
	return c.pinger.Ping(ctx).Err()
}

// ChainChecker verifies that every configured RPC endpoint answers for its chain.
type ChainChecker struct {
	checker interface {
		Check(ctx context.Context) error
	}
}

// NewChainChecker wraps anything with a Check method, such as a chain registry.
func NewChainChecker(checker interface{ Check(ctx context.Context) error }) *ChainChecker {
	return &ChainChecker{checker: checker}
}

// HealthCheck calls the wrapped Check.
func (c *ChainChecker) HealthCheck(ctx context.Context) error {
	if c == nil || c.checker == nil {
		return errors.New("chain registry is not configured")
	}
	return c.checker.Check(ctx)
}
