package devbackend

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	AudienceChallenge = "session:challenge"
	AudienceAccess    = "session:access"
	AudienceRefresh   = "session:refresh"
	AudiencePrepared  = "session:prepared"
)

// ChallengeClaims are carried by a challenge token
type ChallengeClaims struct {
	jwt.RegisteredClaims
	Nonce string `json:"nonce"`
}

// SessionClaims are carried by access and refresh tokens.
// The subject is the wallet the session acts for, Actor the wallet that authenticated.
type SessionClaims struct {
	jwt.RegisteredClaims
	Actor      string `json:"act"`
	Privileged bool   `json:"prv,omitempty"`
	Generation int64  `json:"gen"`
	RefreshID  string `json:"rid,omitempty"`
}

// PreparedClaims are carried by a prepared permission token
type PreparedClaims struct {
	jwt.RegisteredClaims
	Actor       string `json:"act"`
	ChallengeID string `json:"cid"`
}

// tokenizer signs and parses the backend's ES256 tokens
type tokenizer struct {
	signKey *ecdsa.PrivateKey
	now     func() time.Time
}

func (t *tokenizer) registered(subject, id, audience string, ttl time.Duration) jwt.RegisteredClaims {
	now := t.now()
	return jwt.RegisteredClaims{
		Subject:   subject,
		ID:        id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Audience:  jwt.ClaimStrings{audience},
	}
}

func (t *tokenizer) sign(claims jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(t.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (t *tokenizer) parse(raw, audience string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &t.signKey.PublicKey, nil
	}, jwt.WithAudience(audience), jwt.WithExpirationRequired(), jwt.WithTimeFunc(t.now))
	if err != nil {
		return fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("invalid token")
	}
	return nil
}

// challenge mints a new challenge token
func (t *tokenizer) challenge(ttl time.Duration) (string, error) {
	return t.sign(ChallengeClaims{
		RegisteredClaims: t.registered("", uuid.NewString(), AudienceChallenge, ttl),
		Nonce:            uuid.NewString(),
	})
}

func (t *tokenizer) parseChallenge(raw string) (*ChallengeClaims, error) {
	claims := &ChallengeClaims{}
	if err := t.parse(raw, AudienceChallenge, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// sessionGrant describes who a session acts for and how
type sessionGrant struct {
	subject    string
	actor      string
	privileged bool
	generation int64
}

// sessionPair mints an access and a refresh token for the same grant
func (t *tokenizer) sessionPair(g sessionGrant, accessTTL, refreshTTL time.Duration) (access, refresh string, err error) {
	refreshID := uuid.NewString()
	access, err = t.sign(SessionClaims{
		RegisteredClaims: t.registered(g.subject, uuid.NewString(), AudienceAccess, accessTTL),
		Actor:            g.actor,
		Privileged:       g.privileged,
		Generation:       g.generation,
		RefreshID:        refreshID,
	})
	if err != nil {
		return "", "", err
	}
	refresh, err = t.sign(SessionClaims{
		RegisteredClaims: t.registered(g.subject, refreshID, AudienceRefresh, refreshTTL),
		Actor:            g.actor,
		Privileged:       g.privileged,
		Generation:       g.generation,
	})
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (c *SessionClaims) grant() sessionGrant {
	return sessionGrant{subject: c.Subject, actor: c.Actor, privileged: c.Privileged, generation: c.Generation}
}

func (t *tokenizer) parseSession(raw, audience string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if err := t.parse(raw, audience, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// prepared mints a prepared permission token for actor to unlock subject
func (t *tokenizer) prepared(subject, actor, challengeID string, ttl time.Duration) (string, error) {
	return t.sign(PreparedClaims{
		RegisteredClaims: t.registered(subject, uuid.NewString(), AudiencePrepared, ttl),
		Actor:            actor,
		ChallengeID:      challengeID,
	})
}

func (t *tokenizer) parsePrepared(raw string) (*PreparedClaims, error) {
	claims := &PreparedClaims{}
	if err := t.parse(raw, AudiencePrepared, claims); err != nil {
		return nil, err
	}
	return claims, nil
}
