// Package devbackend is an in-process implementation of the remote auth
// service. It speaks the same operations as the production backend and is
// used for integration tests and local development.
package devbackend

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/layer-3/walletauth/adapters/store"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/internal/eth"
	"github.com/layer-3/walletauth/ports"
	"github.com/layer-3/walletauth/schema"
)

// walletNamespace derives wallet pub key ids from public keys
var walletNamespace = uuid.MustParse("5b1f3c1e-7d3a-4b8e-9a51-2c4e8f0d6a17")

// Config holds token lifetimes
type Config struct {
	ChallengeTTL time.Duration
	PreparedTTL  time.Duration
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
}

// DefaultConfig returns the lifetimes used by the production backend
func DefaultConfig() Config {
	return Config{
		ChallengeTTL: 5 * time.Minute,
		PreparedTTL:  5 * time.Minute,
		AccessTTL:    5 * time.Minute,
		RefreshTTL:   120 * time.Hour,
	}
}

// Option configures a Backend
type Option func(*Backend)

// WithClock sets the time source used to mint and validate tokens
func WithClock(clock ports.Clock) Option {
	return func(b *Backend) {
		b.clock = clock
	}
}

// WithRevocations sets the store that tracks spent challenges and refresh tokens
func WithRevocations(revocations ports.RevocationStore) Option {
	return func(b *Backend) {
		b.revocations = revocations
	}
}

// WithSigningKey sets the ES256 key tokens are signed with
func WithSigningKey(key *ecdsa.PrivateKey) Option {
	return func(b *Backend) {
		b.signKey = key
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

type aclEntry struct {
	ownerID   string
	expiresAt *time.Time
}

type termsRecord struct {
	version    int64
	acceptedAt time.Time
}

// Backend issues and validates sessions
type Backend struct {
	cfg         Config
	clock       ports.Clock
	revocations ports.RevocationStore
	signKey     *ecdsa.PrivateKey
	logger      zerolog.Logger
	tokens      *tokenizer

	mu          sync.RWMutex
	wallets     map[string]string
	acl         map[string][]aclEntry
	terms       map[string]map[string]termsRecord
	generations map[string]int64
}

// New creates a backend with a fresh signing key unless one is given
func New(cfg Config, opts ...Option) (*Backend, error) {
	b := &Backend{
		cfg:         cfg,
		clock:       ports.SystemClock{},
		logger:      zerolog.Nop(),
		wallets:     make(map[string]string),
		acl:         make(map[string][]aclEntry),
		terms:       make(map[string]map[string]termsRecord),
		generations: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.signKey == nil {
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
		b.signKey = key
	}
	if b.revocations == nil {
		b.revocations = store.NewMemoryRevocations()
	}
	b.tokens = &tokenizer{signKey: b.signKey, now: b.clock.Now}
	return b, nil
}

// WalletID returns the wallet pub key id assigned to a public key
func WalletID(publicKey string) string {
	return uuid.NewSHA1(walletNamespace, []byte(normalizeKey(publicKey))).String()
}

func normalizeKey(publicKey string) string {
	k := strings.TrimPrefix(publicKey, eth.HexPrefix)
	k = strings.TrimPrefix(k, "0x")
	return strings.ToLower(k)
}

// Handle executes op with its JSON variables on behalf of the bearer of accessToken
func (b *Backend) Handle(ctx context.Context, op schema.Operation, variables json.RawMessage, accessToken string) (any, error) {
	switch op {
	case schema.OpRequestChallenge:
		return b.requestChallenge()
	case schema.OpStartSession:
		return handle(variables, func(v schema.StartSessionVariables) (any, error) {
			return b.startSession(ctx, v)
		})
	case schema.OpPrepareWalletSession:
		return handle(variables, func(v schema.PrepareWalletSessionVariables) (any, error) {
			return b.prepareWalletSession(ctx, accessToken, v)
		})
	case schema.OpUnlockWallet:
		return handle(variables, func(v schema.UnlockWalletVariables) (any, error) {
			return b.unlockWallet(ctx, accessToken, v)
		})
	case schema.OpRefreshSession:
		return handle(variables, func(v schema.RefreshSessionVariables) (any, error) {
			return b.refreshSession(ctx, v)
		})
	case schema.OpGetBusinessOwner:
		return handle(variables, func(v schema.GetBusinessOwnerVariables) (any, error) {
			return b.getBusinessOwner(accessToken, v)
		})
	case schema.OpAcceptTermsAndConditions:
		return handle(variables, func(v schema.AcceptTermsAndConditionsVariables) (any, error) {
			return b.acceptTermsAndConditions(accessToken, v)
		})
	case schema.OpGetTermsAndConditionsStatus:
		return handle(variables, func(v schema.GetTermsAndConditionsStatusVariables) (any, error) {
			return b.termsAndConditionsStatus(accessToken, v)
		})
	}
	return nil, validationError(fmt.Sprintf("unknown operation %q", op))
}

func handle[V any](raw json.RawMessage, fn func(V) (any, error)) (any, error) {
	var v V
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, validationError(fmt.Sprintf("invalid variables: %v", err))
		}
	}
	return fn(v)
}

// GrantAccess lets employeeID act for ownerID until expiresAt, or forever when nil
func (b *Backend) GrantAccess(employeeID, ownerID string, expiresAt *time.Time) error {
	if _, err := uuid.Parse(employeeID); err != nil {
		return validationError("employee wallet pub key id is not a uuid")
	}
	if _, err := uuid.Parse(ownerID); err != nil {
		return validationError("owner wallet pub key id is not a uuid")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.acl[employeeID]
	for i := range entries {
		if entries[i].ownerID == ownerID {
			entries[i].expiresAt = expiresAt
			b.logger.Info().Str("employee", employeeID).Str("owner", ownerID).Msg("access grant updated")
			return nil
		}
	}
	b.acl[employeeID] = append(entries, aclEntry{ownerID: ownerID, expiresAt: expiresAt})
	b.logger.Info().Str("employee", employeeID).Str("owner", ownerID).Msg("access granted")
	return nil
}

// InvalidateSessions rejects every refresh token issued so far to walletID
func (b *Backend) InvalidateSessions(walletID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.generations[walletID]++
	b.logger.Info().Str("wallet_pub_key_id", walletID).Msg("sessions invalidated")
}

func (b *Backend) requestChallenge() (any, error) {
	challenge, err := b.tokens.challenge(b.cfg.ChallengeTTL)
	if err != nil {
		return nil, err
	}
	return schema.RequestChallengeData{AuthChallenge: &challenge}, nil
}

func (b *Backend) startSession(ctx context.Context, v schema.StartSessionVariables) (any, error) {
	challenge, err := b.tokens.parseChallenge(v.Challenge)
	if err != nil {
		return nil, authError("invalid challenge")
	}
	if err := eth.Verify([]byte(eth.AddBitcoinMessagePrefix(v.Challenge)), v.ChallengeSignature, v.AuthPubKey); err != nil {
		return nil, authError("challenge signature does not match auth key")
	}
	if err := eth.Verify([]byte(v.AuthPubKey), v.SignedAuthPubKey, v.WalletPubKey); err != nil {
		return nil, authError("auth key is not signed by wallet key")
	}
	if err := b.spend(ctx, challenge.ID, challenge.ExpiresAt.Time); err != nil {
		return nil, err
	}

	walletID := WalletID(v.WalletPubKey)
	b.mu.Lock()
	b.wallets[walletID] = normalizeKey(v.WalletPubKey)
	generation := b.generations[walletID]
	b.mu.Unlock()

	access, refresh, err := b.tokens.sessionPair(sessionGrant{
		subject:    walletID,
		actor:      walletID,
		generation: generation,
	}, b.cfg.AccessTTL, b.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}

	b.logger.Info().Str("wallet_pub_key_id", walletID).Msg("session started")
	return schema.StartSessionData{StartSessionV2: &schema.SessionPermit{
		AccessToken:    &access,
		RefreshToken:   &refresh,
		WalletPubKeyID: &walletID,
	}}, nil
}

func (b *Backend) prepareWalletSession(ctx context.Context, accessToken string, v schema.PrepareWalletSessionVariables) (any, error) {
	caller, err := b.requireAccess(accessToken)
	if err != nil {
		return nil, err
	}
	if caller.Privileged {
		return nil, authError("session is already privileged")
	}
	challenge, err := b.tokens.parseChallenge(v.Challenge)
	if err != nil {
		return nil, authError("invalid challenge")
	}
	if revoked, err := b.revocations.IsRevoked(ctx, challenge.ID); err != nil {
		return nil, err
	} else if revoked {
		return nil, authError("challenge already used")
	}
	if err := b.verifyWalletSignature(caller.Subject, v.Challenge, v.SignedChallenge); err != nil {
		return nil, err
	}
	if v.WalletPubKeyID != caller.Subject {
		if err := b.checkAccess(caller.Subject, v.WalletPubKeyID); err != nil {
			return nil, err
		}
	}

	prepared, err := b.tokens.prepared(v.WalletPubKeyID, caller.Subject, challenge.ID, b.cfg.PreparedTTL)
	if err != nil {
		return nil, err
	}
	return schema.PrepareWalletSessionData{PrepareWalletSession: &prepared}, nil
}

func (b *Backend) unlockWallet(ctx context.Context, accessToken string, v schema.UnlockWalletVariables) (any, error) {
	caller, err := b.requireAccess(accessToken)
	if err != nil {
		return nil, err
	}
	prepared, err := b.tokens.parsePrepared(v.PreparedPermissionToken)
	if err != nil {
		return nil, authError("invalid prepared permission token")
	}
	if prepared.Actor != caller.Subject {
		return nil, authError("prepared permission token belongs to another wallet")
	}
	challenge, err := b.tokens.parseChallenge(v.Challenge)
	if err != nil {
		return nil, authError("invalid challenge")
	}
	if challenge.ID != prepared.ChallengeID {
		return nil, authError("challenge does not match prepared permission token")
	}
	if err := b.verifyWalletSignature(caller.Subject, v.Challenge, v.ChallengeSignature); err != nil {
		return nil, err
	}
	if err := b.spend(ctx, challenge.ID, challenge.ExpiresAt.Time); err != nil {
		return nil, err
	}
	if err := b.spend(ctx, prepared.ID, prepared.ExpiresAt.Time); err != nil {
		return nil, err
	}

	access, refresh, err := b.tokens.sessionPair(sessionGrant{
		subject:    prepared.Subject,
		actor:      caller.Subject,
		privileged: true,
		generation: b.generation(caller.Subject),
	}, b.cfg.AccessTTL, b.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}

	b.logger.Info().Str("wallet_pub_key_id", prepared.Subject).Str("actor", caller.Subject).Msg("wallet unlocked")
	return schema.UnlockWalletData{StartPreparedSession: &schema.SessionPermit{
		AccessToken:  &access,
		RefreshToken: &refresh,
	}}, nil
}

func (b *Backend) refreshSession(ctx context.Context, v schema.RefreshSessionVariables) (any, error) {
	claims, err := b.tokens.parseSession(v.RefreshToken, AudienceRefresh)
	if err != nil {
		return nil, authError("invalid refresh token")
	}
	if claims.Generation != b.generation(claims.Actor) {
		return nil, authError("session has been invalidated")
	}
	if claims.Privileged && claims.Subject != claims.Actor {
		if err := b.checkAccess(claims.Actor, claims.Subject); err != nil {
			return nil, err
		}
	}
	if err := b.spend(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return nil, err
	}

	access, refresh, err := b.tokens.sessionPair(claims.grant(), b.cfg.AccessTTL, b.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}
	b.logger.Debug().Str("wallet_pub_key_id", claims.Subject).Msg("session refreshed")
	return schema.RefreshSessionData{RefreshSession: &schema.SessionPermit{
		AccessToken:  &access,
		RefreshToken: &refresh,
	}}, nil
}

// getBusinessOwner lists the grants of the calling wallet only
func (b *Backend) getBusinessOwner(accessToken string, v schema.GetBusinessOwnerVariables) (any, error) {
	caller, err := b.requireAccess(accessToken)
	if err != nil {
		return nil, err
	}

	entries := []schema.WalletACLEntry{}
	if v.OwnerWalletPubKeyID != caller.Subject {
		return schema.GetBusinessOwnerData{WalletACL: entries}, nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, e := range b.acl[caller.Subject] {
		entry := schema.WalletACLEntry{OwnerWalletPubKeyID: e.ownerID}
		if e.expiresAt != nil {
			ts := schema.FormatRFC3339(*e.expiresAt)
			entry.AccessExpiresAt = &ts
		}
		entries = append(entries, entry)
	}
	return schema.GetBusinessOwnerData{WalletACL: entries}, nil
}

func (b *Backend) acceptTermsAndConditions(accessToken string, v schema.AcceptTermsAndConditionsVariables) (any, error) {
	caller, err := b.requireAccess(accessToken)
	if err != nil {
		return nil, err
	}
	if _, err := core.ParseServiceProvider(v.ServiceProvider); err != nil {
		return nil, validationError(fmt.Sprintf("unknown service provider %q", v.ServiceProvider))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	accepted, ok := b.terms[caller.Subject]
	if !ok {
		accepted = make(map[string]termsRecord)
		b.terms[caller.Subject] = accepted
	}
	accepted[v.ServiceProvider] = termsRecord{version: v.Version, acceptedAt: b.clock.Now()}

	return schema.AcceptTermsAndConditionsData{AcceptTermsConditions: &schema.AcceptedTerms{
		ServiceProvider: v.ServiceProvider,
	}}, nil
}

func (b *Backend) termsAndConditionsStatus(accessToken string, v schema.GetTermsAndConditionsStatusVariables) (any, error) {
	caller, err := b.requireAccess(accessToken)
	if err != nil {
		return nil, err
	}
	if _, err := core.ParseServiceProvider(v.ServiceProvider); err != nil {
		return nil, validationError(fmt.Sprintf("unknown service provider %q", v.ServiceProvider))
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	status := &schema.TermsConditionsStatus{ServiceProvider: v.ServiceProvider}
	if record, ok := b.terms[caller.Subject][v.ServiceProvider]; ok {
		date := schema.FormatRFC3339(record.acceptedAt)
		status.AcceptedTerms = true
		status.AcceptDate = &date
		status.Version = record.version
	}
	return schema.GetTermsAndConditionsStatusData{GetTermsConditionsStatus: status}, nil
}

func (b *Backend) requireAccess(accessToken string) (*SessionClaims, error) {
	if accessToken == "" {
		return nil, &Error{Code: CodeHeaderMissing, Message: "Missing Authorization header in JWT authentication mode"}
	}
	claims, err := b.tokens.parseSession(accessToken, AudienceAccess)
	if err != nil {
		return nil, invalidJWT(fmt.Sprintf("Could not verify JWT: %v", err))
	}
	return claims, nil
}

func (b *Backend) verifyWalletSignature(walletID, challenge, signature string) error {
	b.mu.RLock()
	publicKey, ok := b.wallets[walletID]
	b.mu.RUnlock()
	if !ok {
		return authError("unknown wallet")
	}
	if err := eth.Verify([]byte(eth.AddBitcoinMessagePrefix(challenge)), signature, publicKey); err != nil {
		return authError("challenge signature does not match wallet key")
	}
	return nil
}

// checkAccess requires a live grant from ownerID to employeeID
func (b *Backend) checkAccess(employeeID, ownerID string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, e := range b.acl[employeeID] {
		if e.ownerID != ownerID {
			continue
		}
		if e.expiresAt != nil && !b.clock.Now().Before(*e.expiresAt) {
			return authError("access expired")
		}
		return nil
	}
	return authError("wallet has no access to the requested wallet")
}

func (b *Backend) generation(walletID string) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.generations[walletID]
}

// spend marks a single use token id as used until it expires
func (b *Backend) spend(ctx context.Context, tokenID string, expiresAt time.Time) error {
	first, err := b.revocations.Revoke(ctx, tokenID, expiresAt.Sub(b.clock.Now()))
	if err != nil {
		return err
	}
	if !first {
		return authError("token already used")
	}
	return nil
}
