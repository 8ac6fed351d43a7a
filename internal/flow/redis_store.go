package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	kioskStateKeyPattern  = "kiosk:state:%s"
	kioskStateScanPattern = "kiosk:state:*"
	defaultSnapshotTTL    = time.Hour
)

// RedisStore persists kiosk snapshots in Redis with a TTL.
type RedisStore struct {
	client *redis.Client
	log    *slog.Logger
	ttl    time.Duration
}

// NewRedisStore initializes a Redis-backed Store. A non-positive ttl falls back to one hour.
func NewRedisStore(client *redis.Client, ttl time.Duration, log *slog.Logger) *RedisStore {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}

	return &RedisStore{
		client: client,
		log:    log,
		ttl:    ttl,
	}
}

// Save stores the snapshot under the kiosk key.
func (s *RedisStore) Save(ctx context.Context, kioskID string, state *FlowState) error {
	data, err := json.Marshal(state)
	if err != nil {
		s.log.Error("failed to encode kiosk state", "kiosk_id", kioskID, "error", err)
		return err
	}

	if err := s.client.Set(ctx, redisKioskStateKey(kioskID), data, s.ttl).Err(); err != nil {
		s.log.Error("failed to save kiosk state in redis", "kiosk_id", kioskID, "error", err)
		return err
	}

	return nil
}

// Load returns the stored snapshot or ErrSnapshotNotFound when absent.
func (s *RedisStore) Load(ctx context.Context, kioskID string) (*FlowState, error) {
	data, err := s.client.Get(ctx, redisKioskStateKey(kioskID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSnapshotNotFound
		}

		s.log.Error("failed to get kiosk state from redis", "kiosk_id", kioskID, "error", err)
		return nil, err
	}

	var state FlowState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		s.log.Error("failed to decode kiosk state", "kiosk_id", kioskID, "error", err)
		return nil, err
	}

	return &state, nil
}

// Clear removes the stored snapshot for the kiosk.
func (s *RedisStore) Clear(ctx context.Context, kioskID string) error {
	if err := s.client.Del(ctx, redisKioskStateKey(kioskID)).Err(); err != nil {
		s.log.Error("failed to clear kiosk state", "kiosk_id", kioskID, "error", err)
		return err
	}

	return nil
}

// LoadAll retrieves every stored snapshot by scanning Redis keys.
func (s *RedisStore) LoadAll(ctx context.Context) ([]*FlowState, error) {
	var (
		cursor uint64
		result []*FlowState
	)

	for {
		keys, nextCursor, err := s.client.Scan(ctx, cursor, kioskStateScanPattern, 100).Result()
		if err != nil {
			s.log.Error("failed to scan kiosk states", "error", err)
			return nil, err
		}

		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}

				s.log.Error("failed to fetch kiosk state", "key", key, "error", err)
				return nil, err
			}

			var state FlowState
			if err := json.Unmarshal([]byte(data), &state); err != nil {
				s.log.Error("failed to decode kiosk state", "key", key, "error", err)
				continue
			}

			result = append(result, &state)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return result, nil
}

func redisKioskStateKey(kioskID string) string {
	return fmt.Sprintf(kioskStateKeyPattern, kioskID)
}
