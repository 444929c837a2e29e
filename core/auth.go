package core

import (
	"fmt"
	"strings"
	"time"
)

// AuthLevel is the trust tier a session is opened at
type AuthLevel int

const (
	// AuthLevelPseudonymous stops after the basic session
	AuthLevelPseudonymous AuthLevel = iota
	// AuthLevelOwner escalates to a privileged session for the own wallet
	AuthLevelOwner
	// AuthLevelEmployee escalates to a privileged session for the owner it is delegated by
	AuthLevelEmployee
)

// String returns the lowercase name of the level
func (l AuthLevel) String() string {
	switch l {
	case AuthLevelPseudonymous:
		return "pseudonymous"
	case AuthLevelOwner:
		return "owner"
	case AuthLevelEmployee:
		return "employee"
	default:
		return fmt.Sprintf("AuthLevel(%d)", int(l))
	}
}

// Valid reports whether l is one of the known levels
func (l AuthLevel) Valid() bool {
	return l >= AuthLevelPseudonymous && l <= AuthLevelEmployee
}

// ParseAuthLevel converts a level name into an AuthLevel
func ParseAuthLevel(s string) (AuthLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pseudonymous":
		return AuthLevelPseudonymous, nil
	case "owner":
		return AuthLevelOwner, nil
	case "employee":
		return AuthLevelEmployee, nil
	}
	return 0, InvalidInput(fmt.Sprintf("unknown auth level %q", s))
}

// KeyPair is a hex encoded secp256k1 key pair
type KeyPair struct {
	SecretKey string `json:"secret_key"`
	PublicKey string `json:"public_key"`
}

// Token is an access token as issued by the backend
type Token struct {
	Raw        string    // Bearer string
	ReceivedAt time.Time // When the token was parsed locally
	ExpiresAt  time.Time // Expiry asserted by the exp claim
}

// AdjustedToken is a Token whose expiry has been pulled earlier by a leeway
type AdjustedToken struct {
	Raw       string
	ExpiresAt time.Time
}

// ValidAt reports whether the token can still be used at now
func (t AdjustedToken) ValidAt(now time.Time) bool {
	return t.Raw != "" && now.Before(t.ExpiresAt)
}

// TokenPair is an access token together with the refresh token issued alongside it
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TermsAndConditions identifies a set of terms a wallet can accept
type TermsAndConditions int

const (
	TermsAndConditionsLipa TermsAndConditions = iota
	TermsAndConditionsPocket
)

// ServiceProvider returns the backend enum value for the terms
func (t TermsAndConditions) ServiceProvider() string {
	switch t {
	case TermsAndConditionsLipa:
		return "LIPA_WALLET"
	case TermsAndConditionsPocket:
		return "POCKET_EXCHANGE"
	default:
		return ""
	}
}

func (t TermsAndConditions) String() string {
	if p := t.ServiceProvider(); p != "" {
		return p
	}
	return fmt.Sprintf("TermsAndConditions(%d)", int(t))
}

// ParseServiceProvider maps a backend service provider enum value back to the terms
func ParseServiceProvider(s string) (TermsAndConditions, error) {
	switch s {
	case "LIPA_WALLET":
		return TermsAndConditionsLipa, nil
	case "POCKET_EXCHANGE":
		return TermsAndConditionsPocket, nil
	}
	return 0, PermanentFailure(fmt.Sprintf("unknown service provider: %q", s))
}

// TermsAndConditionsStatus is the acceptance state of a set of terms
type TermsAndConditionsStatus struct {
	AcceptedAt         *time.Time
	TermsAndConditions TermsAndConditions
	Version            int64
}
