package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "marco/internal/domain/reminder"
	jsonx "marco/internal/shared/json"

	"github.com/redis/go-redis/v9"
)

const pendingKeyPrefix = "marco:pending:"

// RedisPendingStore keeps pending confirmations in Redis so they survive a
// restart. Expiry is delegated to the key TTL.
type RedisPendingStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPendingStore creates a store backed by a new client for addr.
func NewRedisPendingStore(addr, password string, db int, ttl time.Duration) *RedisPendingStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisPendingStore{client: client, ttl: ttl}
}

// Ping verifies the connection.
func (s *RedisPendingStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func pendingKey(userID int64) string {
	return fmt.Sprintf("%s%d", pendingKeyPrefix, userID)
}

func (s *RedisPendingStore) Get(ctx context.Context, userID int64) (domain.Pending, bool, error) {
	data, err := s.client.Get(ctx, pendingKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Pending{}, false, nil
	}
	if err != nil {
		return domain.Pending{}, false, fmt.Errorf("redis pending: get %d: %w", userID, err)
	}
	var pending domain.Pending
	if err := jsonx.Unmarshal(data, &pending); err != nil {
		return domain.Pending{}, false, fmt.Errorf("redis pending: decode %d: %w", userID, err)
	}
	return pending, true, nil
}

// Set stores pending with the remaining lifetime measured from its CreatedAt.
func (s *RedisPendingStore) Set(ctx context.Context, userID int64, pending domain.Pending) error {
	data, err := jsonx.Marshal(pending)
	if err != nil {
		return fmt.Errorf("redis pending: encode %d: %w", userID, err)
	}
	ttl := time.Duration(0)
	if s.ttl > 0 {
		ttl = s.ttl
		if !pending.CreatedAt.IsZero() {
			ttl = time.Until(pending.CreatedAt.Add(s.ttl))
		}
		if ttl <= 0 {
			return s.Delete(ctx, userID)
		}
	}
	if err := s.client.Set(ctx, pendingKey(userID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis pending: set %d: %w", userID, err)
	}
	return nil
}

func (s *RedisPendingStore) Delete(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, pendingKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis pending: delete %d: %w", userID, err)
	}
	return nil
}

// Close releases the client.
func (s *RedisPendingStore) Close() error {
	return s.client.Close()
}
