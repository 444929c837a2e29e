package walletauth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/metrics"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// steppingClock moves forward by step every time it is read
type steppingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

func mintJWT(t *testing.T, expiresAt time.Time, id int64) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": expiresAt.Unix(),
		"jti": fmt.Sprintf("token-%d", id),
	})
	raw, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}

// fakeProvider issues a distinct JWT per QueryToken call
type fakeProvider struct {
	t        *testing.T
	clock    *fakeClock
	lifetime time.Duration
	delay    time.Duration
	err      error
	raw      string // Returned verbatim when set

	calls atomic.Int64

	mu         sync.Mutex
	termsToken string
}

func (p *fakeProvider) QueryToken(ctx context.Context) (string, error) {
	n := p.calls.Add(1)
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.err != nil {
		return "", p.err
	}
	if p.raw != "" {
		return p.raw, nil
	}
	return mintJWT(p.t, p.clock.Now().Add(p.lifetime), n), nil
}

func (p *fakeProvider) WalletPubKeyID() (string, bool) {
	if p.calls.Load() == 0 {
		return "", false
	}
	return "wallet-id", true
}

func (p *fakeProvider) AcceptTermsAndConditions(ctx context.Context, accessToken string, terms core.TermsAndConditions, version int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.termsToken = accessToken
	return nil
}

func (p *fakeProvider) TermsAndConditionsStatus(ctx context.Context, accessToken string, terms core.TermsAndConditions) (core.TermsAndConditionsStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.termsToken = accessToken
	return core.TermsAndConditionsStatus{TermsAndConditions: terms, Version: 2}, nil
}

func newTestAuth(t *testing.T, lifetime time.Duration) (*Auth, *fakeProvider, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	provider := &fakeProvider{t: t, clock: clock, lifetime: lifetime}
	return newAuth(provider, options{logger: zerolog.Nop(), clock: clock}), provider, clock
}

func TestComputeLeeway(t *testing.T) {
	tests := []struct {
		period time.Duration
		want   time.Duration
	}{
		{10 * time.Second, 5 * time.Second},
		{20 * time.Second, 10 * time.Second},
		{30 * time.Second, 10 * time.Second},
		{60 * time.Second, 10 * time.Second},
		{120 * time.Second, 12 * time.Second},
		{180 * time.Second, 18 * time.Second},
		{240 * time.Second, 24 * time.Second},
		{300 * time.Second, 30 * time.Second},
		{360 * time.Second, 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ComputeLeeway(tt.period), "leeway(%s)", tt.period)
	}
}

func TestComputeLeewayBounds(t *testing.T) {
	for period := time.Second; period <= time.Hour; period += 7 * time.Second {
		leeway := ComputeLeeway(period)
		assert.LessOrEqual(t, leeway, MaxLeeway)
		assert.LessOrEqual(t, leeway, period/2)
		assert.GreaterOrEqual(t, leeway, min(MinLeeway, period/2))
	}
}

func TestAdjustToken(t *testing.T) {
	received := time.Unix(1_700_000_000, 0)

	adjusted, err := adjustToken(core.Token{Raw: "raw", ReceivedAt: received, ExpiresAt: received.Add(5 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, "raw", adjusted.Raw)
	assert.Equal(t, received.Add(5*time.Minute-30*time.Second), adjusted.ExpiresAt)

	_, err = adjustToken(core.Token{Raw: "raw", ReceivedAt: received, ExpiresAt: received.Add(-time.Second)})
	assert.ErrorIs(t, err, core.ErrAuthService)

	_, err = adjustToken(core.Token{Raw: "raw", ReceivedAt: received, ExpiresAt: received})
	assert.ErrorIs(t, err, core.ErrPermanentFailure)
}

func TestTokenIsCached(t *testing.T) {
	auth, provider, _ := newTestAuth(t, 5*time.Minute)
	ctx := context.Background()

	first, err := auth.Token(ctx)
	require.NoError(t, err)
	second, err := auth.Token(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), provider.calls.Load())
}

func TestTokenRenewedAfterAdjustedExpiry(t *testing.T) {
	auth, provider, clock := newTestAuth(t, 5*time.Minute)
	ctx := context.Background()

	first, err := auth.Token(ctx)
	require.NoError(t, err)

	// Still usable just before the leeway starts
	clock.Advance(5*time.Minute - 30*time.Second - time.Second)
	same, err := auth.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, same)
	assert.Equal(t, int64(1), provider.calls.Load())

	clock.Advance(time.Second)
	renewed, err := auth.Token(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first, renewed)
	assert.Equal(t, int64(2), provider.calls.Load())
}

func TestConcurrentCallersShareOneRenewal(t *testing.T) {
	auth, provider, clock := newTestAuth(t, 5*time.Minute)
	provider.delay = 20 * time.Millisecond
	ctx := context.Background()

	_, err := auth.Token(ctx)
	require.NoError(t, err)
	clock.Advance(10 * time.Minute)

	const callers = 32
	tokens := make([]string, callers)
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		i := i
		g.Go(func() error {
			token, err := auth.Token(ctx)
			tokens[i] = token
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(2), provider.calls.Load())
	for _, token := range tokens {
		assert.Equal(t, tokens[0], token)
	}
}

func TestRefreshTokenBypassesCache(t *testing.T) {
	auth, provider, _ := newTestAuth(t, 5*time.Minute)
	ctx := context.Background()

	first, err := auth.Token(ctx)
	require.NoError(t, err)

	forced, err := auth.RefreshToken(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first, forced)
	assert.Equal(t, int64(2), provider.calls.Load())

	cached, err := auth.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, forced, cached)
}

func TestTokenErrorsPropagate(t *testing.T) {
	clock := newFakeClock()
	provider := &fakeProvider{t: t, clock: clock, lifetime: 5 * time.Minute, err: core.RuntimeError(core.CodeNetworkError, "Failed to execute the query")}
	registry := prometheus.NewRegistry()
	auth := newAuth(provider, options{logger: zerolog.Nop(), clock: clock, metrics: metrics.NewRecorder(registry)})
	ctx := context.Background()

	_, err := auth.Token(ctx)
	assert.ErrorIs(t, err, ErrNetwork)

	// Nothing was cached, so the next call tries again
	provider.err = nil
	_, err = auth.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), provider.calls.Load())

	_, err = auth.Token(ctx)
	require.NoError(t, err)

	expected := `
# HELP walletauth_token_requests_total Total number of access token requests, by result.
# TYPE walletauth_token_requests_total counter
walletauth_token_requests_total{result="acquired"} 1
walletauth_token_requests_total{result="cache_hit"} 1
walletauth_token_requests_total{result="error"} 1
# HELP walletauth_errors_total Total number of errors returned to callers, by code.
# TYPE walletauth_errors_total counter
walletauth_errors_total{code="NetworkError"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected),
		"walletauth_token_requests_total", "walletauth_errors_total"))
}

func TestInvalidJWTFromProvider(t *testing.T) {
	clock := newFakeClock()
	provider := &fakeProvider{t: t, clock: clock, raw: "not-a-jwt"}
	auth := newAuth(provider, options{logger: zerolog.Nop(), clock: clock})

	_, err := auth.Token(context.Background())
	assert.ErrorIs(t, err, ErrAuthService)
}

func TestTokenExpiringImmediately(t *testing.T) {
	auth, _, _ := newTestAuth(t, 0)

	_, err := auth.Token(context.Background())
	assert.ErrorIs(t, err, ErrPermanentFailure)
}

func TestTokenNotValidLongEnough(t *testing.T) {
	clock := &steppingClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), step: 20 * time.Second}
	// Reads: cache check, re-check, parse at +40s, final check at +60s.
	// The token lives 25s from parse, leeway 10s, so it is stale by the final check.
	raw := mintJWT(t, clock.now.Add(65*time.Second), 1)
	provider := &fakeProvider{t: t, raw: raw}
	auth := newAuth(provider, options{logger: zerolog.Nop(), clock: clock})

	_, err := auth.Token(context.Background())
	assert.ErrorIs(t, err, ErrPermanentFailure)
	assert.ErrorContains(t, err, "not valid long enough")
}

func TestWalletPubKeyID(t *testing.T) {
	auth, _, _ := newTestAuth(t, 5*time.Minute)

	_, ok := auth.WalletPubKeyID()
	assert.False(t, ok)

	_, err := auth.Token(context.Background())
	require.NoError(t, err)

	id, ok := auth.WalletPubKeyID()
	assert.True(t, ok)
	assert.Equal(t, "wallet-id", id)
}

func TestTermsAndConditionsUseCurrentToken(t *testing.T) {
	auth, provider, _ := newTestAuth(t, 5*time.Minute)
	ctx := context.Background()

	require.NoError(t, auth.AcceptTermsAndConditions(ctx, core.TermsAndConditionsLipa, 2))
	token, err := auth.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, token, provider.termsToken)

	status, err := auth.TermsAndConditionsStatus(ctx, core.TermsAndConditionsPocket)
	require.NoError(t, err)
	assert.Equal(t, core.TermsAndConditionsPocket, status.TermsAndConditions)
	assert.Equal(t, int64(1), provider.calls.Load())
}

func TestTokenSource(t *testing.T) {
	auth, _, clock := newTestAuth(t, 5*time.Minute)

	token, err := auth.TokenSource(context.Background()).Token()
	require.NoError(t, err)

	cached, err := auth.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cached, token.AccessToken)
	assert.Equal(t, "Bearer", token.Type())
	assert.Equal(t, clock.Now().Add(5*time.Minute-30*time.Second).Unix(), token.Expiry.Unix())
}

func TestNewValidatesConfiguration(t *testing.T) {
	wallet := core.KeyPair{SecretKey: "zz", PublicKey: "zz"}

	_, err := New("not a url", core.AuthLevelOwner, wallet, wallet)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = New("https://api.example.com/v1/graphql", core.AuthLevelOwner, wallet, wallet)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
