package walletauth

import (
	"context"

	"github.com/layer-3/walletauth/core"
)

// Client is the public interface of the credential cache
type Client interface {
	// Token returns a valid access token, authenticating only when the cached one is about to expire
	Token(ctx context.Context) (string, error)

	// RefreshToken always acquires a new access token
	RefreshToken(ctx context.Context) (string, error)

	// WalletPubKeyID returns the backend id of the wallet, once known
	WalletPubKeyID() (string, bool)

	// AcceptTermsAndConditions accepts version of terms on behalf of the wallet
	AcceptTermsAndConditions(ctx context.Context, terms core.TermsAndConditions, version int64) error

	// TermsAndConditionsStatus reports whether the wallet accepted terms
	TermsAndConditionsStatus(ctx context.Context, terms core.TermsAndConditions) (core.TermsAndConditionsStatus, error)
}

// sessionProvider is the part of service.SessionProvider the cache depends on
type sessionProvider interface {
	QueryToken(ctx context.Context) (string, error)
	WalletPubKeyID() (string, bool)
	AcceptTermsAndConditions(ctx context.Context, accessToken string, terms core.TermsAndConditions, version int64) error
	TermsAndConditionsStatus(ctx context.Context, accessToken string, terms core.TermsAndConditions) (core.TermsAndConditionsStatus, error)
}
