// Package auth issues and verifies the session tokens players use against the
// HTTP API. Tokens are handed out by the chat bots, which already know who the
// player is.
package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/hkdf"
)

const issuer = "tapcoin"

var ErrInvalidToken = errors.New("invalid session token")

type Claims struct {
	PlayerID string `json:"pid"`
	Name     string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

type Issuer struct {
	key   []byte
	ttl   time.Duration
	clock clockwork.Clock
}

// NewIssuer derives the signing key from appSecret so the raw secret is never
// used as an HMAC key directly.
func NewIssuer(appSecret string, ttl time.Duration, clock clockwork.Clock) (*Issuer, error) {
	if strings.TrimSpace(appSecret) == "" {
		return nil, fmt.Errorf("app secret is required")
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(appSecret), []byte(issuer), []byte("session-token-v1"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive token key: %w", err)
	}
	return &Issuer{key: key, ttl: ttl, clock: clock}, nil
}

func (i *Issuer) Issue(playerID, name string) (string, error) {
	if playerID == "" {
		return "", fmt.Errorf("player id is required")
	}
	now := i.clock.Now()
	claims := Claims{
		PlayerID: playerID,
		Name:     name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   playerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (i *Issuer) Verify(token string) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.PlayerID == "" || claims.PlayerID != claims.Subject {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
