package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "cohort:tokens:"

// RedisStore keeps token bundles in Redis. Bundles are short-lived secrets,
// so a volatile store with TTL support is the natural home for them.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed token bundle store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Put stores the bundle under the key with the given TTL.
func (s *RedisStore) Put(ctx context.Context, key string, bundle *TokenBundle, ttl time.Duration) error {
	data, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("failed to marshal token bundle: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store token bundle: %w", err)
	}
	return nil
}

// Get retrieves the bundle for the key.
func (s *RedisStore) Get(ctx context.Context, key string) (*TokenBundle, error) {
	data, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token bundle: %w", err)
	}

	var bundle TokenBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token bundle: %w", err)
	}
	return &bundle, nil
}

// Delete removes the bundle for the key. Deleting a missing key is not an
// error; logout must be idempotent.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete token bundle: %w", err)
	}
	return nil
}
