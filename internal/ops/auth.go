// Package ops implements the operations surface: an
// unauthenticated /healthz liveness probe plus bearer-token-authenticated
// /admin/stats and /admin/stream endpoints for a single operator identity.
// There is no user-management system here, only one configured secret.
package ops

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned by Authenticator.Login on a bad secret.
	ErrInvalidCredentials = errors.New("ops: invalid operator credentials")
	// ErrInvalidToken is returned by Authenticator.Validate on a malformed
	// or expired bearer token.
	ErrInvalidToken = errors.New("ops: invalid or expired token")
)

// claims is the JWT payload issued to the operator. There is exactly one
// identity, so the subject is fixed rather than carrying a username.
type claims struct {
	jwt.RegisteredClaims
}

// Authenticator issues and validates the single operator's bearer token.
// SecretHash is a bcrypt hash of the configured operator secret, computed
// once at startup by HashSecret; it is never stored in cleartext.
type Authenticator struct {
	secretHash []byte
	jwtSecret  []byte
	ttl        time.Duration
}

// NewAuthenticator builds an Authenticator from a bcrypt hash and HMAC
// signing key, both taken from configuration.
func NewAuthenticator(secretHash, jwtSecret []byte, ttl time.Duration) *Authenticator {
	return &Authenticator{secretHash: secretHash, jwtSecret: jwtSecret, ttl: ttl}
}

// HashSecret bcrypt-hashes an operator secret for storage in configuration.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Login verifies secret against the configured hash and, on success,
// issues a signed bearer token valid for the authenticator's TTL.
func (a *Authenticator) Login(secret string) (string, error) {
	if err := bcrypt.CompareHashAndPassword(a.secretHash, []byte(secret)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	c := &claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(a.jwtSecret)
}

// Validate checks a bearer token's signature and expiry.
func (a *Authenticator) Validate(tokenString string) error {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
