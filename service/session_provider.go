package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/internal/eth"
	"github.com/layer-3/walletauth/metrics"
	"github.com/layer-3/walletauth/ports"
	"github.com/layer-3/walletauth/schema"
)

// Config identifies the wallet a SessionProvider authenticates
type Config struct {
	Level         core.AuthLevel
	WalletKeyPair core.KeyPair // Long term wallet identity
	AuthKeyPair   core.KeyPair // Key bound to the wallet for this session
}

// SessionProvider runs the challenge-response protocol against the backend
// and keeps the refresh token between calls.
//
// QueryToken must not be called concurrently; the credential cache in front
// of it serialises callers. WalletPubKeyID may be called at any time.
type SessionProvider struct {
	executor     ports.Executor
	level        core.AuthLevel
	walletKeys   core.KeyPair
	authKeys     core.KeyPair
	walletSigner *eth.Signer
	authSigner   *eth.Signer

	clock    ports.Clock
	logger   zerolog.Logger
	store    ports.RefreshStore
	storeTTL time.Duration
	storeKey string
	events   ports.EventPublisher
	metrics  *metrics.Recorder

	refreshToken string
	storeChecked bool
	started      bool

	idMu           sync.RWMutex
	walletPubKeyID string
}

// NewSessionProvider creates a provider executing operations through executor
func NewSessionProvider(executor ports.Executor, cfg Config, opts ...Option) (*SessionProvider, error) {
	if executor == nil {
		return nil, core.InvalidInput("executor is required")
	}
	if !cfg.Level.Valid() {
		return nil, core.InvalidInput(fmt.Sprintf("unknown auth level %s", cfg.Level))
	}

	walletSigner, err := newSigner("wallet", cfg.WalletKeyPair)
	if err != nil {
		return nil, err
	}
	authSigner, err := newSigner("auth", cfg.AuthKeyPair)
	if err != nil {
		return nil, err
	}

	p := &SessionProvider{
		executor:     executor,
		level:        cfg.Level,
		walletKeys:   cfg.WalletKeyPair,
		authKeys:     cfg.AuthKeyPair,
		walletSigner: walletSigner,
		authSigner:   authSigner,
		clock:        ports.SystemClock{},
		logger:       zerolog.Nop(),
		storeKey:     cfg.Level.String() + ":" + cfg.WalletKeyPair.PublicKey,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With().Str("auth_level", p.level.String()).Logger()

	return p, nil
}

func newSigner(name string, kp core.KeyPair) (*eth.Signer, error) {
	if err := eth.ValidateKeyPair(kp); err != nil {
		return nil, core.WrapInvalidInput(err, fmt.Sprintf("invalid %s key pair", name))
	}
	signer, err := eth.NewSigner(kp.SecretKey)
	if err != nil {
		return nil, core.WrapInvalidInput(err, fmt.Sprintf("invalid %s key pair", name))
	}
	return signer, nil
}

// Level returns the auth level sessions are opened at
func (p *SessionProvider) Level() core.AuthLevel {
	return p.level
}

// WalletPubKeyID returns the id the backend assigned to the wallet public key,
// once a full flow has succeeded or a stored session was restored
func (p *SessionProvider) WalletPubKeyID() (string, bool) {
	p.idMu.RLock()
	defer p.idMu.RUnlock()
	return p.walletPubKeyID, p.walletPubKeyID != ""
}

func (p *SessionProvider) setWalletPubKeyID(id string) {
	p.idMu.Lock()
	defer p.idMu.Unlock()
	p.walletPubKeyID = id
}

// QueryToken returns a fresh access token. A held refresh token is tried
// first; if the backend rejects it as an authentication error the full flow
// runs once in its place.
func (p *SessionProvider) QueryToken(ctx context.Context) (string, error) {
	p.restoreSession(ctx)

	var (
		pair core.TokenPair
		err  error
		flow string
	)
	if p.refreshToken != "" {
		flow = metrics.FlowRefresh
		pair, err = p.refreshSession(ctx, p.refreshToken)
		if errors.Is(err, core.ErrAuthService) {
			p.logger.Info().Err(err).Msg("refresh token rejected, running full auth flow")
			p.refreshToken = ""
			p.forgetSession(ctx)

			flow = metrics.FlowFallback
			pair, err = p.runAuthFlow(ctx)
		}
	} else {
		flow = metrics.FlowFull
		pair, err = p.runAuthFlow(ctx)
	}
	if err != nil {
		return "", err
	}

	p.refreshToken = pair.RefreshToken
	p.persistSession(ctx)
	p.metrics.AuthFlow(p.level, flow)
	p.publish(ctx, p.eventType(flow))

	return pair.AccessToken, nil
}

func (p *SessionProvider) eventType(flow string) ports.SessionEventType {
	if flow == metrics.FlowRefresh {
		return ports.SessionRefreshed
	}
	if p.started {
		return ports.SessionReauthenticated
	}
	p.started = true
	return ports.SessionStarted
}

func (p *SessionProvider) runAuthFlow(ctx context.Context) (core.TokenPair, error) {
	basic, walletPubKeyID, err := p.startBasicSession(ctx)
	if err != nil {
		return core.TokenPair{}, err
	}
	p.setWalletPubKeyID(walletPubKeyID)

	switch p.level {
	case core.AuthLevelPseudonymous:
		return basic, nil
	case core.AuthLevelOwner:
		return p.startPrivilegedSession(ctx, basic.AccessToken, walletPubKeyID)
	case core.AuthLevelEmployee:
		ownerID, err := p.getBusinessOwner(ctx, basic.AccessToken, walletPubKeyID)
		if err != nil {
			return core.TokenPair{}, err
		}
		return p.startPrivilegedSession(ctx, basic.AccessToken, ownerID)
	default:
		return core.TokenPair{}, core.InvalidInput(fmt.Sprintf("unknown auth level %s", p.level))
	}
}

func (p *SessionProvider) requestChallenge(ctx context.Context) (string, error) {
	p.logger.Info().Msg("requesting challenge")

	var data schema.RequestChallengeData
	if err := p.executor.Execute(ctx, schema.OpRequestChallenge, schema.RequestChallengeVariables{}, "", &data); err != nil {
		return "", err
	}
	if data.AuthChallenge == nil {
		return "", core.PermanentFailure("Response to request_challenge request doesn't have the expected structure: missing auth challenge")
	}
	return *data.AuthChallenge, nil
}

func (p *SessionProvider) startBasicSession(ctx context.Context) (core.TokenPair, string, error) {
	challenge, err := p.requestChallenge(ctx)
	if err != nil {
		return core.TokenPair{}, "", err
	}

	challengeSignature := p.authSigner.Sign([]byte(eth.AddBitcoinMessagePrefix(challenge)))
	signedAuthPubKey := p.walletSigner.Sign([]byte(eth.AddHexPrefix(p.authKeys.PublicKey)))

	p.logger.Info().Msg("starting session")
	variables := schema.StartSessionVariables{
		AuthPubKey:         eth.AddHexPrefix(p.authKeys.PublicKey),
		Challenge:          challenge,
		ChallengeSignature: eth.AddHexPrefix(challengeSignature),
		WalletPubKey:       eth.AddHexPrefix(p.walletKeys.PublicKey),
		SignedAuthPubKey:   eth.AddHexPrefix(signedAuthPubKey),
	}
	var data schema.StartSessionData
	if err := p.executor.Execute(ctx, schema.OpStartSession, variables, "", &data); err != nil {
		return core.TokenPair{}, "", err
	}

	permit := data.StartSessionV2
	if permit == nil {
		return core.TokenPair{}, "", core.PermanentFailure("Response to start_session request doesn't have the expected structure")
	}
	pair, err := tokenPair("start_session", permit)
	if err != nil {
		return core.TokenPair{}, "", err
	}
	if permit.WalletPubKeyID == nil {
		return core.TokenPair{}, "", core.PermanentFailure("Response to start_session request doesn't have the expected structure: missing wallet public key id")
	}

	p.logger.Info().Str("wallet_pub_key_id", *permit.WalletPubKeyID).Msg("session started")
	return pair, *permit.WalletPubKeyID, nil
}

// startPrivilegedSession escalates a basic session to act for walletPubKeyID
func (p *SessionProvider) startPrivilegedSession(ctx context.Context, accessToken, walletPubKeyID string) (core.TokenPair, error) {
	challenge, err := p.requestChallenge(ctx)
	if err != nil {
		return core.TokenPair{}, err
	}
	challengeSignature := eth.AddHexPrefix(p.walletSigner.Sign([]byte(eth.AddBitcoinMessagePrefix(challenge))))

	p.logger.Info().Str("wallet_pub_key_id", walletPubKeyID).Msg("preparing wallet session")
	var prepared schema.PrepareWalletSessionData
	if err := p.executor.Execute(ctx, schema.OpPrepareWalletSession, schema.PrepareWalletSessionVariables{
		WalletPubKeyID:  walletPubKeyID,
		Challenge:       challenge,
		SignedChallenge: challengeSignature,
	}, accessToken, &prepared); err != nil {
		return core.TokenPair{}, err
	}
	if prepared.PrepareWalletSession == nil {
		return core.TokenPair{}, core.PermanentFailure("Response to prepare_wallet_session request doesn't have the expected structure")
	}

	p.logger.Info().Msg("starting wallet session")
	var unlocked schema.UnlockWalletData
	if err := p.executor.Execute(ctx, schema.OpUnlockWallet, schema.UnlockWalletVariables{
		Challenge:               challenge,
		ChallengeSignature:      challengeSignature,
		PreparedPermissionToken: *prepared.PrepareWalletSession,
	}, accessToken, &unlocked); err != nil {
		return core.TokenPair{}, err
	}
	if unlocked.StartPreparedSession == nil {
		return core.TokenPair{}, core.PermanentFailure("Response to unlock_wallet request doesn't have the expected structure")
	}
	return tokenPair("unlock_wallet", unlocked.StartPreparedSession)
}

// getBusinessOwner resolves the owner wallet an employee wallet acts for
func (p *SessionProvider) getBusinessOwner(ctx context.Context, accessToken, walletPubKeyID string) (string, error) {
	p.logger.Info().Msg("getting business owner")

	var data schema.GetBusinessOwnerData
	if err := p.executor.Execute(ctx, schema.OpGetBusinessOwner, schema.GetBusinessOwnerVariables{
		OwnerWalletPubKeyID: walletPubKeyID,
	}, accessToken, &data); err != nil {
		return "", err
	}
	if len(data.WalletACL) == 0 {
		return "", core.InvalidInput("Employee does not belong to any owner")
	}

	entry := data.WalletACL[0]
	if entry.AccessExpiresAt != nil {
		expiresAt, err := schema.ParseRFC3339(*entry.AccessExpiresAt)
		if err != nil {
			return "", err
		}
		if p.clock.Now().After(expiresAt) {
			return "", core.RuntimeError(core.CodeAccessExpired, "Access expired")
		}
	}
	if entry.OwnerWalletPubKeyID == "" {
		return "", core.PermanentFailure("Response to get_business_owner request doesn't have the expected structure: missing owner wallet public key id")
	}

	p.logger.Info().Str("owner_wallet_pub_key_id", entry.OwnerWalletPubKeyID).Msg("owner resolved")
	return entry.OwnerWalletPubKeyID, nil
}

func (p *SessionProvider) refreshSession(ctx context.Context, refreshToken string) (core.TokenPair, error) {
	p.logger.Info().Msg("refreshing session")

	var data schema.RefreshSessionData
	if err := p.executor.Execute(ctx, schema.OpRefreshSession, schema.RefreshSessionVariables{
		RefreshToken: refreshToken,
	}, "", &data); err != nil {
		return core.TokenPair{}, err
	}
	if data.RefreshSession == nil {
		return core.TokenPair{}, core.PermanentFailure("Response to refresh_session request doesn't have the expected structure")
	}
	return tokenPair("refresh_session", data.RefreshSession)
}

func tokenPair(request string, permit *schema.SessionPermit) (core.TokenPair, error) {
	if permit.AccessToken == nil {
		return core.TokenPair{}, core.PermanentFailure(fmt.Sprintf("Response to %s request doesn't have the expected structure: missing access token", request))
	}
	if permit.RefreshToken == nil {
		return core.TokenPair{}, core.PermanentFailure(fmt.Sprintf("Response to %s request doesn't have the expected structure: missing refresh token", request))
	}
	return core.TokenPair{AccessToken: *permit.AccessToken, RefreshToken: *permit.RefreshToken}, nil
}

// restoreSession loads a persisted refresh token the first time a token is queried
func (p *SessionProvider) restoreSession(ctx context.Context) {
	if p.store == nil || p.storeChecked || p.refreshToken != "" {
		return
	}
	p.storeChecked = true

	stored, err := p.store.Load(ctx, p.storeKey)
	if errors.Is(err, ports.ErrNotFound) {
		return
	}
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to load stored session")
		return
	}

	p.refreshToken = stored.RefreshToken
	if stored.WalletPubKeyID != "" {
		p.setWalletPubKeyID(stored.WalletPubKeyID)
	}
	p.logger.Info().Msg("restored stored session")
}

func (p *SessionProvider) persistSession(ctx context.Context) {
	if p.store == nil {
		return
	}
	id, _ := p.WalletPubKeyID()
	if err := p.store.Save(ctx, p.storeKey, ports.StoredSession{
		RefreshToken:   p.refreshToken,
		WalletPubKeyID: id,
	}, p.storeTTL); err != nil {
		p.logger.Warn().Err(err).Msg("failed to store session")
	}
}

func (p *SessionProvider) forgetSession(ctx context.Context) {
	if p.store == nil {
		return
	}
	if err := p.store.Delete(ctx, p.storeKey); err != nil {
		p.logger.Warn().Err(err).Msg("failed to delete stored session")
	}
}

func (p *SessionProvider) publish(ctx context.Context, eventType ports.SessionEventType) {
	if p.events == nil {
		return
	}
	id, _ := p.WalletPubKeyID()
	event := ports.SessionEvent{
		Type:           eventType,
		WalletPubKeyID: id,
		AuthLevel:      p.level.String(),
		OccurredAt:     p.clock.Now().UTC(),
	}
	if err := p.events.PublishSessionEvent(ctx, event); err != nil {
		p.logger.Warn().Err(err).Str("event", string(eventType)).Msg("failed to publish session event")
	}
}
