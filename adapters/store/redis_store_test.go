package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/walletauth/ports"
)

// Runs against a real server when WALLETAUTH_TEST_REDIS_URL is set
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("WALLETAUTH_TEST_REDIS_URL")
	if url == "" {
		t.Skip("WALLETAUTH_TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return client
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	client := newTestRedis(t)
	s := NewRedisStore(client)
	key := "test:" + uuid.NewString()

	_, err := s.Load(ctx, key)
	assert.ErrorIs(t, err, ports.ErrNotFound)

	session := ports.StoredSession{RefreshToken: "refresh-1", WalletPubKeyID: "wallet-1"}
	require.NoError(t, s.Save(ctx, key, session, time.Minute))

	got, err := s.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, session, got)

	ttl, err := client.TTL(ctx, DefaultRedisPrefix+key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Load(ctx, key)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}
