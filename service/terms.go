package service

import (
	"context"
	"fmt"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/schema"
)

// AcceptTermsAndConditions accepts version of terms on behalf of the wallet.
// Only pseudonymous sessions may accept terms.
func (p *SessionProvider) AcceptTermsAndConditions(ctx context.Context, accessToken string, terms core.TermsAndConditions, version int64) error {
	p.logger.Info().Stringer("terms", terms).Int64("version", version).Msg("accepting terms and conditions")
	if p.level != core.AuthLevelPseudonymous {
		return core.InvalidInput("Accepting T&C not supported for auth levels other than Pseudonymous")
	}
	provider := terms.ServiceProvider()
	if provider == "" {
		return core.InvalidInput(fmt.Sprintf("unknown terms and conditions %s", terms))
	}

	var data schema.AcceptTermsAndConditionsData
	if err := p.executor.Execute(ctx, schema.OpAcceptTermsAndConditions, schema.AcceptTermsAndConditionsVariables{
		ServiceProvider: provider,
		Version:         version,
	}, accessToken, &data); err != nil {
		return err
	}
	if data.AcceptTermsConditions == nil {
		return core.PermanentFailure("Backend rejected accepting Terms and Conditions")
	}
	return nil
}

// TermsAndConditionsStatus reports whether the wallet accepted terms.
// Only pseudonymous sessions may query the status.
func (p *SessionProvider) TermsAndConditionsStatus(ctx context.Context, accessToken string, terms core.TermsAndConditions) (core.TermsAndConditionsStatus, error) {
	p.logger.Info().Stringer("terms", terms).Msg("requesting terms and conditions status")
	if p.level != core.AuthLevelPseudonymous {
		return core.TermsAndConditionsStatus{}, core.InvalidInput("Requesting T&C status not supported for auth levels other than Pseudonymous")
	}
	provider := terms.ServiceProvider()
	if provider == "" {
		return core.TermsAndConditionsStatus{}, core.InvalidInput(fmt.Sprintf("unknown terms and conditions %s", terms))
	}

	var data schema.GetTermsAndConditionsStatusData
	if err := p.executor.Execute(ctx, schema.OpGetTermsAndConditionsStatus, schema.GetTermsAndConditionsStatusVariables{
		ServiceProvider: provider,
	}, accessToken, &data); err != nil {
		return core.TermsAndConditionsStatus{}, err
	}

	status := data.GetTermsConditionsStatus
	if status == nil {
		return core.TermsAndConditionsStatus{}, core.RuntimeError(core.CodeRemoteServiceUnavailable, "Couldn't fetch T&C status.")
	}

	var acceptedAt *time.Time
	if status.AcceptedTerms && status.AcceptDate != nil {
		t, err := schema.ParseRFC3339(*status.AcceptDate)
		if err != nil {
			return core.TermsAndConditionsStatus{}, err
		}
		acceptedAt = &t
	}

	reported, err := core.ParseServiceProvider(status.ServiceProvider)
	if err != nil {
		return core.TermsAndConditionsStatus{}, err
	}

	return core.TermsAndConditionsStatus{
		AcceptedAt:         acceptedAt,
		TermsAndConditions: reported,
		Version:            status.Version,
	}, nil
}
