// Package schema describes the remote operations used by the session layer:
// their names, GraphQL documents, variables and the shape of their data.
//
// Response fields the protocol guarantees are still modelled as pointers so a
// missing field can be told apart from an empty one and reported as a
// contract violation.
package schema

import (
	"time"

	"github.com/layer-3/walletauth/core"
)

// Operation names a remote operation
type Operation string

const (
	OpRequestChallenge            Operation = "RequestChallenge"
	OpStartSession                Operation = "StartSession"
	OpPrepareWalletSession        Operation = "PrepareWalletSession"
	OpUnlockWallet                Operation = "UnlockWallet"
	OpRefreshSession              Operation = "RefreshSession"
	OpGetBusinessOwner            Operation = "GetBusinessOwner"
	OpAcceptTermsAndConditions    Operation = "AcceptTermsAndConditions"
	OpGetTermsAndConditionsStatus Operation = "GetTermsAndConditionsStatus"
)

var documents = map[Operation]string{
	OpRequestChallenge: `mutation RequestChallenge {
  auth_challenge
}`,
	OpStartSession: `mutation StartSession($authPubKey: String!, $challenge: String!, $challengeSignature: String!, $walletPubKey: String!, $signedAuthPubKey: String!) {
  start_session_v2(auth_pub_key: $authPubKey, challenge: $challenge, challenge_signature: $challengeSignature, wallet_pub_key: $walletPubKey, signed_auth_pub_key: $signedAuthPubKey) {
    access_token
    refresh_token
    wallet_pub_key_id
  }
}`,
	OpPrepareWalletSession: `mutation PrepareWalletSession($walletPubKeyId: String!, $challenge: String!, $signedChallenge: String!) {
  prepare_wallet_session(wallet_pub_key_id: $walletPubKeyId, challenge: $challenge, signed_challenge: $signedChallenge)
}`,
	OpUnlockWallet: `mutation UnlockWallet($challenge: String!, $challengeSignature: String!, $preparedPermissionToken: String!) {
  start_prepared_session(challenge: $challenge, challenge_signature: $challengeSignature, prepared_permission_token: $preparedPermissionToken) {
    access_token
    refresh_token
  }
}`,
	OpRefreshSession: `mutation RefreshSession($refreshToken: String!) {
  refresh_session(refresh_token: $refreshToken) {
    access_token
    refresh_token
  }
}`,
	OpGetBusinessOwner: `query GetBusinessOwner($ownerWalletPubKeyId: uuid!) {
  wallet_acl(where: {member_wallet_pub_key_id: {_eq: $ownerWalletPubKeyId}}) {
    owner_wallet_pub_key_id
    access_expires_at
  }
}`,
	OpAcceptTermsAndConditions: `mutation AcceptTermsAndConditions($serviceProvider: service_provider_enum!, $version: Int!) {
  accept_terms_conditions(service_provider: $serviceProvider, version: $version) {
    service_provider
  }
}`,
	OpGetTermsAndConditionsStatus: `query GetTermsAndConditionsStatus($serviceProvider: service_provider_enum!) {
  get_terms_conditions_status(service_provider: $serviceProvider) {
    accepted_terms
    accept_date
    service_provider
    version
  }
}`,
}

// Document returns the GraphQL document for op
func Document(op Operation) string {
	return documents[op]
}

// RequestChallengeVariables is empty, the operation takes no input
type RequestChallengeVariables struct{}

// RequestChallengeData is the response to RequestChallenge
type RequestChallengeData struct {
	AuthChallenge *string `json:"auth_challenge"`
}

// StartSessionVariables opens a basic session
type StartSessionVariables struct {
	AuthPubKey         string `json:"authPubKey"`
	Challenge          string `json:"challenge"`
	ChallengeSignature string `json:"challengeSignature"`
	WalletPubKey       string `json:"walletPubKey"`
	SignedAuthPubKey   string `json:"signedAuthPubKey"`
}

// SessionPermit is a token pair as returned by the session mutations
type SessionPermit struct {
	AccessToken    *string `json:"access_token"`
	RefreshToken   *string `json:"refresh_token"`
	WalletPubKeyID *string `json:"wallet_pub_key_id,omitempty"`
}

// StartSessionData is the response to StartSession
type StartSessionData struct {
	StartSessionV2 *SessionPermit `json:"start_session_v2"`
}

// PrepareWalletSessionVariables asks for a prepared permission token
type PrepareWalletSessionVariables struct {
	WalletPubKeyID  string `json:"walletPubKeyId"`
	Challenge       string `json:"challenge"`
	SignedChallenge string `json:"signedChallenge"`
}

// PrepareWalletSessionData is the response to PrepareWalletSession
type PrepareWalletSessionData struct {
	PrepareWalletSession *string `json:"prepare_wallet_session"`
}

// UnlockWalletVariables exchanges a prepared permission token for a privileged session
type UnlockWalletVariables struct {
	Challenge               string `json:"challenge"`
	ChallengeSignature      string `json:"challengeSignature"`
	PreparedPermissionToken string `json:"preparedPermissionToken"`
}

// UnlockWalletData is the response to UnlockWallet
type UnlockWalletData struct {
	StartPreparedSession *SessionPermit `json:"start_prepared_session"`
}

// RefreshSessionVariables rotates a refresh token
type RefreshSessionVariables struct {
	RefreshToken string `json:"refreshToken"`
}

// RefreshSessionData is the response to RefreshSession
type RefreshSessionData struct {
	RefreshSession *SessionPermit `json:"refresh_session"`
}

// GetBusinessOwnerVariables looks up the owners an employee wallet is delegated by.
// The variable name follows the backend schema even though it carries the employee id.
type GetBusinessOwnerVariables struct {
	OwnerWalletPubKeyID string `json:"ownerWalletPubKeyId"`
}

// WalletACLEntry is one delegation from an owner wallet
type WalletACLEntry struct {
	OwnerWalletPubKeyID string  `json:"owner_wallet_pub_key_id"`
	AccessExpiresAt     *string `json:"access_expires_at"`
}

// GetBusinessOwnerData is the response to GetBusinessOwner
type GetBusinessOwnerData struct {
	WalletACL []WalletACLEntry `json:"wallet_acl"`
}

// AcceptTermsAndConditionsVariables accepts a version of a set of terms
type AcceptTermsAndConditionsVariables struct {
	ServiceProvider string `json:"serviceProvider"`
	Version         int64  `json:"version"`
}

// AcceptedTerms is the payload of a successful acceptance
type AcceptedTerms struct {
	ServiceProvider string `json:"service_provider"`
}

// AcceptTermsAndConditionsData is the response to AcceptTermsAndConditions
type AcceptTermsAndConditionsData struct {
	AcceptTermsConditions *AcceptedTerms `json:"accept_terms_conditions"`
}

// GetTermsAndConditionsStatusVariables selects the terms to report on
type GetTermsAndConditionsStatusVariables struct {
	ServiceProvider string `json:"serviceProvider"`
}

// TermsConditionsStatus is the acceptance state reported by the backend
type TermsConditionsStatus struct {
	AcceptedTerms   bool    `json:"accepted_terms"`
	AcceptDate      *string `json:"accept_date"`
	ServiceProvider string  `json:"service_provider"`
	Version         int64   `json:"version"`
}

// GetTermsAndConditionsStatusData is the response to GetTermsAndConditionsStatus
type GetTermsAndConditionsStatusData struct {
	GetTermsConditionsStatus *TermsConditionsStatus `json:"get_terms_conditions_status"`
}

// ParseRFC3339 parses a backend timestamp
func ParseRFC3339(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, core.WrapRuntimeError(err, core.CodeCorruptData, "Failed to parse rfc3339 timestamp")
	}
	return t, nil
}

// FormatRFC3339 formats a timestamp the way the backend does
func FormatRFC3339(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
