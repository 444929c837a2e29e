package tokenizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

const invalidJWTMessage = "Auth service returned invalid JWT"

// Parser reads the claims of bearer JWTs without verifying their signature.
// The backend is trusted to hand out well formed tokens, only the expiry is needed here.
// The header is never looked at, so any signing algorithm is accepted.
type Parser struct {
	clock  ports.Clock
	parser *jwt.Parser
}

// NewParser creates a parser that stamps tokens with the time read from clock
func NewParser(clock ports.Clock) *Parser {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Parser{
		clock:  clock,
		parser: jwt.NewParser(),
	}
}

// Parse decodes raw and returns it together with its expiry
func (p *Parser) Parse(raw string) (core.Token, error) {
	claims, err := p.claims(raw)
	if err != nil {
		return core.Token{}, core.WrapRuntimeError(err, core.CodeAuthServiceError, invalidJWTMessage)
	}

	receivedAt := p.clock.Now()
	expiresAt, err := expiry(claims)
	if err != nil {
		return core.Token{}, core.WrapRuntimeError(err, core.CodeAuthServiceError, invalidJWTMessage)
	}

	return core.Token{
		Raw:        raw,
		ReceivedAt: receivedAt,
		ExpiresAt:  expiresAt,
	}, nil
}

// claims decodes the payload segment of raw, keeping numbers as json.Number
func (p *Parser) claims(raw string) (jwt.MapClaims, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("token contains %d segments, expected 3", len(parts))
	}
	payload, err := p.parser.DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("failed to decode claims segment: %w", err)
	}

	claims := jwt.MapClaims{}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}
	return claims, nil
}

// expiry reads exp as an unsigned integer number of seconds
func expiry(claims jwt.MapClaims) (time.Time, error) {
	v, ok := claims["exp"]
	if !ok {
		return time.Time{}, fmt.Errorf("JWT doesn't have an expiry field")
	}
	n, ok := v.(json.Number)
	if !ok {
		return time.Time{}, fmt.Errorf("JWT expiry is not a number")
	}
	secs, err := strconv.ParseUint(n.String(), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse JWT expiry %q into unsigned integer", n.String())
	}
	// time.Unix takes signed seconds, anything later is far enough out to clamp
	if secs > math.MaxInt64 {
		secs = math.MaxInt64
	}
	return time.Unix(int64(secs), 0), nil
}
