package walletauth

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/layer-3/walletauth/metrics"
	"github.com/layer-3/walletauth/ports"
)

type options struct {
	executor    ports.Executor
	httpClient  *http.Client
	httpTimeout time.Duration
	logger      zerolog.Logger
	clock       ports.Clock
	store       ports.RefreshStore
	storeTTL    time.Duration
	events      ports.EventPublisher
	metrics     *metrics.Recorder
}

// Option configures an Auth
type Option func(*options)

// WithExecutor replaces the GraphQL transport; the backend url is then unused
func WithExecutor(executor ports.Executor) Option {
	return func(o *options) {
		o.executor = executor
	}
}

// WithHTTPClient sends requests through client. Its own timeout applies.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithHTTPTimeout bounds every backend round trip, 20s by default
func WithHTTPTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.httpTimeout = timeout
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock sets the time source used for token validity
func WithClock(clock ports.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithRefreshStore persists refresh tokens across restarts
func WithRefreshStore(store ports.RefreshStore, ttl time.Duration) Option {
	return func(o *options) {
		o.store = store
		o.storeTTL = ttl
	}
}

// WithEventPublisher publishes session lifecycle events
func WithEventPublisher(publisher ports.EventPublisher) Option {
	return func(o *options) {
		o.events = publisher
	}
}

// WithMetrics records token requests, auth flows and errors
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(o *options) {
		o.metrics = recorder
	}
}
