package service

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/layer-3/walletauth/metrics"
	"github.com/layer-3/walletauth/ports"
)

// Option configures a SessionProvider
type Option func(*SessionProvider)

// WithClock sets the time source used for access control expiry checks and events
func WithClock(clock ports.Clock) Option {
	return func(p *SessionProvider) {
		p.clock = clock
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(p *SessionProvider) {
		p.logger = logger
	}
}

// WithRefreshStore persists refresh tokens in store for ttl
func WithRefreshStore(store ports.RefreshStore, ttl time.Duration) Option {
	return func(p *SessionProvider) {
		p.store = store
		p.storeTTL = ttl
	}
}

// WithEventPublisher publishes session lifecycle events to publisher
func WithEventPublisher(publisher ports.EventPublisher) Option {
	return func(p *SessionProvider) {
		p.events = publisher
	}
}

// WithMetrics records auth flows in recorder
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(p *SessionProvider) {
		p.metrics = recorder
	}
}
