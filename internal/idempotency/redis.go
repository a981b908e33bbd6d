package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key prefixes
const (
	recordKeyPrefix = "idempotency:payment:"
	lockKeyPrefix   = "lock:booking:"
)

// RedisStore keeps idempotency records in Redis with the dedupe window as
// TTL, so replay protection survives process restarts.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Begin(ctx context.Context, key, fingerprint string, ttl time.Duration) (*Record, bool, error) {
	rec := &Record{
		Key:                key,
		RequestFingerprint: fingerprint,
		Status:             StatusInFlight,
		CreatedAt:          time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, false, fmt.Errorf("marshal idempotency record: %w", err)
	}

	claimed, err := s.client.SetNX(ctx, recordKeyPrefix+key, data, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("claim idempotency key: %w", err)
	}
	if claimed {
		return rec, true, nil
	}

	existing, err := s.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		// the prior claim expired between SetNX and Get; claim again
		return s.Begin(ctx, key, fingerprint, ttl)
	}
	return existing, false, nil
}

func (s *RedisStore) Complete(ctx context.Context, key, transactionID string, status RecordStatus) error {
	existing, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("idempotency key %s expired before completion", key)
	}

	existing.TransactionID = transactionID
	existing.Status = status
	data, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("marshal idempotency record: %w", err)
	}

	// KeepTTL preserves the remainder of the dedupe window.
	if err := s.client.Set(ctx, recordKeyPrefix+key, data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("store idempotency outcome: %w", err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, recordKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	data, err := s.client.Get(ctx, recordKeyPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal idempotency record: %w", err)
	}
	return &rec, nil
}

// RedisLockStore implements booking submission locks with SetNX.
type RedisLockStore struct {
	client *redis.Client
}

func NewRedisLockStore(client *redis.Client) *RedisLockStore {
	return &RedisLockStore{client: client}
}

func (s *RedisLockStore) AcquireBookingLock(ctx context.Context, bookingID string, ttl time.Duration) (bool, error) {
	acquired, err := s.client.SetNX(ctx, lockKeyPrefix+bookingID, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire booking lock: %w", err)
	}
	return acquired, nil
}

func (s *RedisLockStore) ReleaseBookingLock(ctx context.Context, bookingID string) error {
	if err := s.client.Del(ctx, lockKeyPrefix+bookingID).Err(); err != nil {
		return fmt.Errorf("release booking lock: %w", err)
	}
	return nil
}

// Ensure concrete types implement interfaces.
var (
	_ Store     = (*RedisStore)(nil)
	_ LockStore = (*RedisLockStore)(nil)
)
