// Package lifecycle coordinates probes and shutdown of the kiosk process.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const defaultHookTimeout = 5 * time.Second

// Shutdown runs hooks in reverse registration order, so components stop before the
// dependencies they were built on.
type Shutdown struct {
	mu          sync.Mutex
	hooks       []Hook
	hookTimeout time.Duration
	log         *slog.Logger
}

// NewShutdown constructs a new Shutdown coordinator.
func NewShutdown(log *slog.Logger) *Shutdown {
	if log == nil {
		log = slog.Default()
	}

	return &Shutdown{log: log, hookTimeout: defaultHookTimeout}
}

// Register adds a named shutdown hook with the default timeout.
func (s *Shutdown) Register(name string, fn func(context.Context) error) {
	s.RegisterHook(Hook{Name: name, Fn: fn})
}

// RegisterHook adds hook.
func (s *Shutdown) RegisterHook(hook Hook) {
	if hook.Fn == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.hooks = append(s.hooks, hook)
}

// Execute runs every hook once, last registered first. A failing or slow hook does not stop
// the rest. The returned error joins all hook failures.
func (s *Shutdown) Execute(ctx context.Context) error {
	s.mu.Lock()
	hooks := s.hooks
	s.hooks = nil
	s.mu.Unlock()

	start := time.Now()
	s.log.Info("shutdown sequence started", slog.Int("hook_count", len(hooks)))

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := s.run(ctx, hooks[i]); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", hooks[i].Name, err))
		}
	}

	s.log.Info("shutdown sequence finished", slog.Duration("elapsed", time.Since(start)))
	return errors.Join(errs...)
}

func (s *Shutdown) run(ctx context.Context, hook Hook) error {
	timeout := hook.Timeout
	if timeout <= 0 {
		timeout = s.hookTimeout
	}

	hookCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.log.Info("running shutdown hook", slog.String("hook", hook.Name))

	done := make(chan error, 1)
	go func() { done <- hook.Fn(hookCtx) }()

	var err error
	select {
	case err = <-done:
	case <-hookCtx.Done():
		err = hookCtx.Err()
	}

	if err != nil {
		s.log.Error("shutdown hook failed", slog.String("hook", hook.Name), slog.Any("error", err))
		return err
	}

	s.log.Info("shutdown hook completed", slog.String("hook", hook.Name))
	return nil
}
