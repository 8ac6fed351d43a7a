package idempotency

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
)

const defaultPrefix = "idempotency"

type Record struct {
	Status   string
	Response []byte
}

type Store interface {
	Lock(ctx context.Context, key string, lockTTL time.Duration) (bool, error)
	Get(ctx context.Context, key string) (*Record, error)
	Set(ctx context.Context, key string, record *Record, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	ReleaseLock(ctx context.Context, key string) error
}

// RedisStore keeps records as hashes under "<prefix>:<key>" and locks under "<prefix>:<key>:lock".
type RedisStore struct {
	client *redis.Client
	prefix string
	log    *slog.Logger
}

func NewRedisStore(client *redis.Client, prefix string, log *slog.Logger) *RedisStore {
	if log == nil {
		log = slog.Default()
	}
	if prefix == "" {
		prefix = defaultPrefix
	}

	return &RedisStore{
		client: client,
		prefix: prefix,
		log:    log,
	}
}

func (s *RedisStore) Lock(ctx context.Context, key string, lockTTL time.Duration) (bool, error) {
	acquired, err := s.client.SetNX(ctx, s.lockKey(key), 1, lockTTL).Result()
	if err != nil {
		s.log.Error("failed to acquire idempotency lock", slog.String("key", key), slog.Any("error", err))
		return false, err
	}

	return acquired, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	result, err := s.client.HGetAll(ctx, s.recordKey(key)).Result()
	if err != nil {
		s.log.Error("failed to fetch idempotency record", slog.String("key", key), slog.Any("error", err))
		return nil, err
	}

	if len(result) == 0 {
		return nil, nil
	}

	return &Record{
		Status:   result["status"],
		Response: []byte(result["response"]),
	}, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, record *Record, ttl time.Duration) error {
	if record == nil {
		return nil
	}

	recordKey := s.recordKey(key)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, recordKey, map[string]any{
			"status":   record.Status,
			"response": string(record.Response),
		})
		pipe.Expire(ctx, recordKey, ttl)
		return nil
	})
	if err != nil {
		s.log.Error("failed to store idempotency record", slog.String("key", key), slog.Any("error", err))
		return err
	}

	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.recordKey(key)).Err(); err != nil {
		s.log.Error("failed to delete idempotency record", slog.String("key", key), slog.Any("error", err))
		return err
	}

	return nil
}

func (s *RedisStore) ReleaseLock(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.lockKey(key)).Err(); err != nil {
		s.log.Error("failed to release idempotency lock", slog.String("key", key), slog.Any("error", err))
		return err
	}

	return nil
}

func (s *RedisStore) recordKey(key string) string {
	return s.prefix + ":" + key
}

func (s *RedisStore) lockKey(key string) string {
	return s.prefix + ":" + key + ":lock"
}
