package walletauth

import (
	"context"

	"golang.org/x/oauth2"
)

type tokenSource struct {
	ctx  context.Context
	auth *Auth
}

// TokenSource exposes a as an oauth2.TokenSource, so oauth2.NewClient can
// build an *http.Client that authorizes every request with the current token.
// ctx is used for any renewal the source triggers.
func (a *Auth) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, auth: a}
}

// Token implements oauth2.TokenSource
func (s *tokenSource) Token() (*oauth2.Token, error) {
	token, err := s.auth.validToken(s.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: token.Raw,
		TokenType:   "Bearer",
		Expiry:      token.ExpiresAt,
	}, nil
}
