package walletauth

import (
	"fmt"
	"time"

	"github.com/layer-3/walletauth/core"
)

const (
	// MinLeeway is the smallest margin taken off a token lifetime, unless the lifetime is shorter than twice this
	MinLeeway = 10 * time.Second

	// MaxLeeway is the largest margin taken off a token lifetime
	MaxLeeway = 30 * time.Second
)

// ComputeLeeway returns the margin subtracted from the expiry of a token valid for period.
// It is a tenth of the period, clamped to [MinLeeway, MaxLeeway], and never more than half the period.
func ComputeLeeway(period time.Duration) time.Duration {
	lower := max(MinLeeway, period/10)
	upper := min(MaxLeeway, period/2)
	return min(lower, upper)
}

// adjustToken pulls the expiry of token earlier by its leeway
func adjustToken(token core.Token) (core.AdjustedToken, error) {
	period := token.ExpiresAt.Sub(token.ReceivedAt)
	if period < 0 {
		return core.AdjustedToken{}, core.RuntimeError(core.CodeAuthServiceError, "Expiration date of JWT is in the past")
	}

	leeway := ComputeLeeway(period)
	expiresAt := token.ExpiresAt.Add(-leeway)
	if !expiresAt.After(token.ReceivedAt) {
		return core.AdjustedToken{}, core.PermanentFailure(fmt.Sprintf(
			"Failed to subtract leeway %s from JWT valid for %s", leeway, period))
	}

	return core.AdjustedToken{Raw: token.Raw, ExpiresAt: expiresAt}, nil
}
