// Package walletauth keeps a valid access token for a wallet backend.
//
// Tokens are acquired through a challenge-response flow signed with the
// wallet and auth key pairs, optionally escalated to an owner or employee
// session, and cached until shortly before they expire.
package walletauth

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/layer-3/walletauth/adapters/graphql"
	"github.com/layer-3/walletauth/adapters/tokenizer"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/metrics"
	"github.com/layer-3/walletauth/ports"
	"github.com/layer-3/walletauth/service"
)

// Auth caches an access token and renews it through the session provider.
// It is safe for concurrent use; concurrent callers facing an expired token
// share a single renewal.
type Auth struct {
	// providerMu is held for the whole network round trip
	providerMu sync.Mutex
	provider   sessionProvider

	// tokenMu is held only to read or replace token
	tokenMu sync.RWMutex
	token   core.AdjustedToken

	parser  *tokenizer.Parser
	clock   ports.Clock
	logger  zerolog.Logger
	metrics *metrics.Recorder
}

var _ Client = (*Auth)(nil)

// New creates an Auth for the backend at backendURL.
// walletKeyPair is the long term wallet identity, authKeyPair the key bound to it for sessions.
func New(backendURL string, level core.AuthLevel, walletKeyPair, authKeyPair core.KeyPair, opts ...Option) (*Auth, error) {
	o := options{
		httpTimeout: graphql.DefaultTimeout,
		logger:      zerolog.Nop(),
		clock:       ports.SystemClock{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	executor := o.executor
	if executor == nil {
		executorOpts := []graphql.Option{graphql.WithLogger(o.logger.With().Str("component", "graphql").Logger())}
		if o.httpClient != nil {
			executorOpts = append(executorOpts, graphql.WithHTTPClient(o.httpClient))
		} else {
			executorOpts = append(executorOpts, graphql.WithTimeout(o.httpTimeout))
		}
		var err error
		if executor, err = graphql.NewExecutor(backendURL, executorOpts...); err != nil {
			return nil, err
		}
	}

	providerOpts := []service.Option{
		service.WithClock(o.clock),
		service.WithLogger(o.logger.With().Str("component", "provider").Logger()),
		service.WithMetrics(o.metrics),
	}
	if o.store != nil {
		providerOpts = append(providerOpts, service.WithRefreshStore(o.store, o.storeTTL))
	}
	if o.events != nil {
		providerOpts = append(providerOpts, service.WithEventPublisher(o.events))
	}

	provider, err := service.NewSessionProvider(executor, service.Config{
		Level:         level,
		WalletKeyPair: walletKeyPair,
		AuthKeyPair:   authKeyPair,
	}, providerOpts...)
	if err != nil {
		return nil, err
	}

	return newAuth(provider, o), nil
}

func newAuth(provider sessionProvider, o options) *Auth {
	return &Auth{
		provider: provider,
		parser:   tokenizer.NewParser(o.clock),
		clock:    o.clock,
		logger:   o.logger,
		metrics:  o.metrics,
	}
}

// Token returns the cached access token while it is usable and otherwise acquires a new one
func (a *Auth) Token(ctx context.Context) (string, error) {
	token, err := a.validToken(ctx)
	if err != nil {
		return "", err
	}
	return token.Raw, nil
}

func (a *Auth) validToken(ctx context.Context) (core.AdjustedToken, error) {
	if token, ok := a.cached(); ok {
		a.metrics.TokenRequest(metrics.ResultCacheHit)
		return token, nil
	}

	a.providerMu.Lock()
	defer a.providerMu.Unlock()

	// Another caller may have renewed the token while this one waited
	if token, ok := a.cached(); ok {
		a.metrics.TokenRequest(metrics.ResultCacheHit)
		return token, nil
	}

	return a.acquireLocked(ctx)
}

// RefreshToken acquires a new access token even if the cached one is still usable
func (a *Auth) RefreshToken(ctx context.Context) (string, error) {
	a.providerMu.Lock()
	defer a.providerMu.Unlock()

	token, err := a.acquireLocked(ctx)
	if err != nil {
		return "", err
	}
	return token.Raw, nil
}

// acquireLocked must be called with providerMu held
func (a *Auth) acquireLocked(ctx context.Context) (core.AdjustedToken, error) {
	raw, err := a.provider.QueryToken(ctx)
	if err != nil {
		return core.AdjustedToken{}, a.fail(err)
	}

	parsed, err := a.parser.Parse(raw)
	if err != nil {
		return core.AdjustedToken{}, a.fail(err)
	}
	adjusted, err := adjustToken(parsed)
	if err != nil {
		return core.AdjustedToken{}, a.fail(err)
	}

	a.tokenMu.Lock()
	a.token = adjusted
	a.tokenMu.Unlock()

	token, ok := a.cached()
	if !ok {
		return core.AdjustedToken{}, a.fail(core.PermanentFailure("Newly acquired access token is not valid long enough"))
	}

	a.metrics.TokenRequest(metrics.ResultAcquired)
	a.logger.Debug().Time("usable_until", token.ExpiresAt).Msg("access token acquired")
	return token, nil
}

// cached returns the cached token if it is still usable
func (a *Auth) cached() (core.AdjustedToken, bool) {
	a.tokenMu.RLock()
	token := a.token
	a.tokenMu.RUnlock()

	if !token.ValidAt(a.clock.Now()) {
		return core.AdjustedToken{}, false
	}
	return token, true
}

func (a *Auth) fail(err error) error {
	a.metrics.TokenRequest(metrics.ResultError)
	a.metrics.Error(err)

	event := a.logger.Warn()
	if core.KindOf(err) == core.KindPermanentFailure {
		event = a.logger.Error()
	}
	event.Err(err).Msg("failed to acquire access token")
	return err
}

// WalletPubKeyID returns the backend id of the wallet public key, once a session has been opened
func (a *Auth) WalletPubKeyID() (string, bool) {
	return a.provider.WalletPubKeyID()
}

// AcceptTermsAndConditions accepts version of terms. Only pseudonymous sessions may do so.
func (a *Auth) AcceptTermsAndConditions(ctx context.Context, terms core.TermsAndConditions, version int64) error {
	token, err := a.Token(ctx)
	if err != nil {
		return err
	}
	if err := a.provider.AcceptTermsAndConditions(ctx, token, terms, version); err != nil {
		a.metrics.Error(err)
		return err
	}
	return nil
}

// TermsAndConditionsStatus reports whether terms were accepted. Only pseudonymous sessions may ask.
func (a *Auth) TermsAndConditionsStatus(ctx context.Context, terms core.TermsAndConditions) (core.TermsAndConditionsStatus, error) {
	token, err := a.Token(ctx)
	if err != nil {
		return core.TermsAndConditionsStatus{}, err
	}
	status, err := a.provider.TermsAndConditionsStatus(ctx, token, terms)
	if err != nil {
		a.metrics.Error(err)
		return core.TermsAndConditionsStatus{}, err
	}
	return status, nil
}
