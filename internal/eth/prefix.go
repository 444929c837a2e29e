package eth

import "errors"

const (
	// HexPrefix marks a hex encoded byte string in backend variables
	HexPrefix = `\x`

	// BitcoinMessagePrefix is prepended to challenges before they are signed
	BitcoinMessagePrefix = `\x18Bitcoin Signed Message:`
)

var (
	// ErrInvalidSignature is returned when a signature does not match
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrKeyMismatch is returned when a public key does not belong to a secret key
	ErrKeyMismatch = errors.New("public key does not match secret key")
)

// AddHexPrefix returns s marked as a hex byte string
func AddHexPrefix(s string) string {
	return HexPrefix + s
}

// AddBitcoinMessagePrefix returns the challenge in its signable form
func AddBitcoinMessagePrefix(challenge string) string {
	return BitcoinMessagePrefix + challenge
}
