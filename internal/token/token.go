// Package token issues and verifies the signed artifacts that let a client
// open a stream without a prior authenticated session: short-lived stream
// tokens and round-tripped conversation state. Both are HS256 JWTs over a
// process-wide secret; no server-side store is involved, so verification
// stays valid across horizontally scaled instances sharing the secret.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalid covers every verification failure: bad signature, wrong
// algorithm, exceeded expiry, malformed token. Callers get no finer detail.
var ErrInvalid = errors.New("token invalid")

// Authority signs and verifies stream tokens. The subject binds a token to
// one (query, context) fingerprint so it cannot be replayed against other
// content; the TTL only needs to cover page render plus stream open.
type Authority struct {
	secret []byte
	ttl    time.Duration
}

// NewAuthority builds an authority over the process secret. Rotating the
// secret invalidates all outstanding tokens, which is acceptable for
// tokens this short-lived.
func NewAuthority(secret []byte, ttl time.Duration) *Authority {
	return &Authority{secret: secret, ttl: ttl}
}

// Issue signs a token for the given subject expiring after the configured
// TTL.
func (a *Authority) Issue(subject string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(a.ttl).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign stream token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the bound subject. Any
// failure yields ErrInvalid.
func (a *Authority) Verify(token string) (string, error) {
	parsed, err := jwt.Parse(token,
		func(t *jwt.Token) (interface{}, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalid
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalid
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", ErrInvalid
	}
	return sub, nil
}
