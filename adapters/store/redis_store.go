package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/layer-3/walletauth/ports"
)

// DefaultRedisPrefix namespaces the keys written by RedisStore
const DefaultRedisPrefix = "walletauth:refresh:"

// RedisStore is a Redis implementation of ports.RefreshStore
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

var _ ports.RefreshStore = (*RedisStore)(nil)

// NewRedisStore creates a new Redis store
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: DefaultRedisPrefix,
	}
}

// Save stores session under key with the given ttl. A non-positive ttl keeps it until deleted.
func (s *RedisStore) Save(ctx context.Context, key string, session ports.StoredSession, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.prefix+key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

// Load returns the session stored under key
func (s *RedisStore) Load(ctx context.Context, key string) (ports.StoredSession, error) {
	payload, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ports.StoredSession{}, ports.ErrNotFound
	}
	if err != nil {
		return ports.StoredSession{}, fmt.Errorf("failed to load session: %w", err)
	}

	var session ports.StoredSession
	if err := json.Unmarshal(payload, &session); err != nil {
		return ports.StoredSession{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return session, nil
}

// Delete removes the session stored under key
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}
