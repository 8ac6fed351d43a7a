// Package idempotency runs an operation at most once per key while its record lives.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// ErrRequestInProgress indicates that another caller is running the operation for this key.
	ErrRequestInProgress = errors.New("operation with this key is already in progress")
	// ErrNilOperation indicates a missing operation.
	ErrNilOperation = errors.New("operation fn cannot be nil")
)

const (
	defaultLockTTL      = time.Minute
	defaultPollInterval = 100 * time.Millisecond
)

type Operation func(ctx context.Context) (any, error)

type Result struct {
	Response  json.RawMessage
	FromCache bool
}

// Manager coordinates operations through a Store.
type Manager struct {
	store        Store
	log          *slog.Logger
	lockTTL      time.Duration
	pollInterval time.Duration
}

func NewManager(store Store, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}

	return &Manager{
		store:        store,
		log:          log,
		lockTTL:      defaultLockTTL,
		pollInterval: defaultPollInterval,
	}
}

// Key builds a deterministic key from parts.
func Key(parts ...any) string {
	h := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(h, "%v:", part)
	}

	return hex.EncodeToString(h.Sum(nil))
}

// Execute runs fn unless a completed record exists for key, in which case the stored response is
// returned with FromCache set. A failed fn leaves no record, so the caller may retry.
func (m *Manager) Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	if fn == nil {
		return nil, ErrNilOperation
	}

	for {
		locked, err := m.store.Lock(ctx, key, m.lockTTL)
		if err != nil {
			return nil, err
		}

		if locked {
			return m.run(ctx, key, ttl, fn)
		}

		record, err := m.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}

		if record != nil {
			switch record.Status {
			case StatusCompleted:
				return &Result{Response: record.Response, FromCache: true}, nil
			case StatusProcessing:
				return nil, ErrRequestInProgress
			}
		}

		// The lock holder has not written its record yet.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.pollInterval):
		}
	}
}

func (m *Manager) run(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	cleanupCtx := context.WithoutCancel(ctx)
	defer func() {
		if err := m.store.ReleaseLock(cleanupCtx, key); err != nil {
			m.log.Warn("failed to release idempotency lock", slog.String("key", key), slog.Any("error", err))
		}
	}()

	if err := m.store.Set(ctx, key, &Record{Status: StatusProcessing}, m.lockTTL); err != nil {
		return nil, err
	}

	result, err := fn(ctx)
	if err != nil {
		if delErr := m.store.Delete(cleanupCtx, key); delErr != nil {
			m.log.Warn("failed to drop idempotency record", slog.String("key", key), slog.Any("error", delErr))
		}
		return nil, err
	}

	response, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}

	if err := m.store.Set(cleanupCtx, key, &Record{Status: StatusCompleted, Response: response}, ttl); err != nil {
		return nil, err
	}

	return &Result{Response: response}, nil
}
