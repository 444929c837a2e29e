package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/layer-3/walletauth/ports"
)

// DefaultRevocationPrefix namespaces the keys written by RedisRevocations
const DefaultRevocationPrefix = "walletauth:revoked:"

// MemoryRevocations is an in-memory implementation of ports.RevocationStore
type MemoryRevocations struct {
	revoked map[string]time.Time
	mu      sync.Mutex
	now     func() time.Time
}

var _ ports.RevocationStore = (*MemoryRevocations)(nil)

// NewMemoryRevocations creates a new in-memory revocation store
func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{
		revoked: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Revoke marks tokenID as spent
func (s *MemoryRevocations) Revoke(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)

	if _, exists := s.revoked[tokenID]; exists {
		return false, nil
	}
	s.revoked[tokenID] = now.Add(ttl)
	return true, nil
}

// IsRevoked checks if tokenID has been spent
func (s *MemoryRevocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt, exists := s.revoked[tokenID]
	if !exists {
		return false, nil
	}
	return s.now().Before(expiresAt), nil
}

// sweep drops entries whose token would have expired anyway
func (s *MemoryRevocations) sweep(now time.Time) {
	for id, expiresAt := range s.revoked {
		if !now.Before(expiresAt) {
			delete(s.revoked, id)
		}
	}
}

// RedisRevocations is a Redis implementation of ports.RevocationStore
type RedisRevocations struct {
	client redis.Cmdable
	prefix string
}

var _ ports.RevocationStore = (*RedisRevocations)(nil)

// NewRedisRevocations creates a new Redis revocation store
func NewRedisRevocations(client redis.Cmdable) *RedisRevocations {
	return &RedisRevocations{
		client: client,
		prefix: DefaultRevocationPrefix,
	}
}

// Revoke marks tokenID as spent in Redis
func (s *RedisRevocations) Revoke(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Second
	}
	set, err := s.client.SetNX(ctx, s.prefix+tokenID, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to revoke token: %w", err)
	}
	return set, nil
}

// IsRevoked checks if tokenID has been spent in Redis
func (s *RedisRevocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return n > 0, nil
}
