// Package eth holds the secp256k1 primitives used to prove key ownership:
// deterministic ECDSA signing (RFC 6979) over SHA-256, DER encoded, and the
// matching verification.
package eth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/layer-3/walletauth/core"
)

// Signer signs messages with a parsed secret key
type Signer struct {
	key *secp256k1.PrivateKey
}

// NewSigner parses a hex encoded secp256k1 secret key
func NewSigner(secretKeyHex string) (*Signer, error) {
	ecKey, err := crypto.HexToECDSA(trimHex(secretKeyHex))
	if err != nil {
		return nil, fmt.Errorf("invalid secret key: %w", err)
	}
	return &Signer{key: secp256k1.PrivKeyFromBytes(crypto.FromECDSA(ecKey))}, nil
}

// Sign hashes message with SHA-256 and returns the hex encoded DER signature.
// The nonce is derived from the key and hash, so equal inputs give equal output.
func (s *Signer) Sign(message []byte) string {
	hash := sha256.Sum256(message)
	return hex.EncodeToString(ecdsa.Sign(s.key, hash[:]).Serialize())
}

// PublicKey returns the hex encoded compressed public key
func (s *Signer) PublicKey() string {
	return hex.EncodeToString(s.key.PubKey().SerializeCompressed())
}

// Sign is a one-shot helper around NewSigner
func Sign(message []byte, secretKeyHex string) (string, error) {
	s, err := NewSigner(secretKeyHex)
	if err != nil {
		return "", err
	}
	return s.Sign(message), nil
}

// Verify checks a hex encoded DER signature over SHA-256(message).
// The public key may be compressed or uncompressed, with or without a 0x or \x prefix.
func Verify(message []byte, signatureHex, publicKeyHex string) error {
	sigBytes, err := hex.DecodeString(trimHex(signatureHex))
	if err != nil {
		return fmt.Errorf("failed to decode signature: %w", err)
	}
	sig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		return fmt.Errorf("failed to parse signature: %w", err)
	}

	pubBytes, err := hex.DecodeString(trimHex(publicKeyHex))
	if err != nil {
		return fmt.Errorf("failed to decode public key: %w", err)
	}
	pub, err := secp256k1.ParsePubKey(pubBytes)
	if err != nil {
		return fmt.Errorf("failed to parse public key: %w", err)
	}

	hash := sha256.Sum256(message)
	if !sig.Verify(hash[:], pub) {
		return ErrInvalidSignature
	}
	return nil
}

// GenerateKeyPair creates a fresh key pair, typically used as the session scoped auth key
func GenerateKeyPair() (core.KeyPair, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return core.KeyPair{}, fmt.Errorf("failed to generate key: %w", err)
	}
	return core.KeyPair{
		SecretKey: common.Bytes2Hex(crypto.FromECDSA(key)),
		PublicKey: common.Bytes2Hex(crypto.CompressPubkey(&key.PublicKey)),
	}, nil
}

// ValidateKeyPair checks that the public key belongs to the secret key
func ValidateKeyPair(kp core.KeyPair) error {
	s, err := NewSigner(kp.SecretKey)
	if err != nil {
		return err
	}
	pubBytes, err := hex.DecodeString(trimHex(kp.PublicKey))
	if err != nil {
		return fmt.Errorf("invalid public key: %w", err)
	}
	pub, err := secp256k1.ParsePubKey(pubBytes)
	if err != nil {
		return fmt.Errorf("invalid public key: %w", err)
	}
	if !pub.IsEqual(s.key.PubKey()) {
		return ErrKeyMismatch
	}
	return nil
}

func trimHex(s string) string {
	s = strings.TrimPrefix(s, HexPrefix)
	s = strings.TrimPrefix(s, "0x")
	return s
}
