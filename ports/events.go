package ports

import (
	"context"
	"time"
)

// SessionEventType names a session lifecycle transition
type SessionEventType string

const (
	// SessionStarted is emitted after the first full flow of a provider
	SessionStarted SessionEventType = "session.started"
	// SessionRefreshed is emitted after a successful refresh
	SessionRefreshed SessionEventType = "session.refreshed"
	// SessionReauthenticated is emitted when a full flow replaces an earlier session
	SessionReauthenticated SessionEventType = "session.reauthenticated"
)

// SessionEvent describes a session lifecycle transition
type SessionEvent struct {
	Type           SessionEventType `json:"type"`
	WalletPubKeyID string           `json:"wallet_pub_key_id"`
	AuthLevel      string           `json:"auth_level"`
	OccurredAt     time.Time        `json:"occurred_at"`
}

// EventPublisher publishes session events to other interested processes
type EventPublisher interface {
	PublishSessionEvent(ctx context.Context, event SessionEvent) error
}
