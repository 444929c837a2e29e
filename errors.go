package walletauth

import "github.com/layer-3/walletauth/core"

// Error is the classified error returned by every Auth method
type Error = core.Error

var (
	// ErrAuthService matches errors raised by the remote auth service
	ErrAuthService = core.ErrAuthService

	// ErrAccessExpired matches an employee delegation whose access window has lapsed
	ErrAccessExpired = core.ErrAccessExpired

	// ErrNetwork matches transport failures
	ErrNetwork = core.ErrNetwork

	// ErrRemoteServiceUnavailable matches upstream outages
	ErrRemoteServiceUnavailable = core.ErrRemoteServiceUnavailable

	// ErrCorruptData matches backend values that could not be parsed
	ErrCorruptData = core.ErrCorruptData

	// ErrInvalidInput matches requests the caller has to change
	ErrInvalidInput = core.ErrInvalidInput

	// ErrPermanentFailure matches contract violations between client and backend
	ErrPermanentFailure = core.ErrPermanentFailure
)
