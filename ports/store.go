package ports

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by a RefreshStore that holds nothing under a key
var ErrNotFound = errors.New("refresh session not found")

// StoredSession is what a RefreshStore keeps between process restarts
type StoredSession struct {
	RefreshToken   string `json:"refresh_token"`
	WalletPubKeyID string `json:"wallet_pub_key_id"`
}

// RefreshStore persists refresh tokens so a new process can refresh instead of
// running the full challenge-response flow
type RefreshStore interface {
	Save(ctx context.Context, key string, session StoredSession, ttl time.Duration) error
	Load(ctx context.Context, key string) (StoredSession, error)
	Delete(ctx context.Context, key string) error
}

// RevocationStore remembers spent token ids until they would have expired anyway
type RevocationStore interface {
	// Revoke marks tokenID as spent for ttl. It reports false if the id was already spent.
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) (bool, error)
	// IsRevoked reports whether tokenID has been spent
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}
