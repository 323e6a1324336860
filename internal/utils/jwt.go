package utils // package utils provides the credential hasher and session token service

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fromscratch/identity/internal/apperr"
)

// DefaultSessionTTL is the lifetime of a session token when none is configured.
const DefaultSessionTTL = 15 * time.Minute

// resetTokenBytes is the entropy of a password reset token (64 hex chars).
const resetTokenBytes = 32

// ErrInvalidToken is returned for any session token that is malformed,
// carries a bad signature or has expired.
var ErrInvalidToken = apperr.New(apperr.Unauthorized, "invalid_token", "invalid or expired session token")

// ErrMissingSigningKey is returned by NewTokenService when no key is set.
var ErrMissingSigningKey = errors.New("session signing key is empty")

// SessionToken is a signed HS256 JWT together with its expiry.
type SessionToken struct {
	Token     string
	ExpiresAt time.Time
}

// TokenService signs and verifies bearer session tokens. The signing key is
// fixed at construction; there is no refresh path, callers re-authenticate
// once a token expires.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService builds a TokenService. An empty secret is an error so that
// misconfiguration surfaces at startup rather than on the first request.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, ErrMissingSigningKey
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL returns the configured session lifetime.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// SignSession issues a token whose subject is userID.
func (s *TokenService) SignSession(userID string) (SessionToken, error) {
	now := s.now().UTC()
	exp := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return SessionToken{}, fmt.Errorf("sign session: %w", err)
	}
	return SessionToken{Token: signed, ExpiresAt: exp}, nil
}

// VerifySession checks signature and expiry and returns the subject.
func (s *TokenService) VerifySession(raw string) (string, error) {
	if raw == "" {
		return "", ErrInvalidToken
	}
	var claims jwt.RegisteredClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !tok.Valid {
		return "", ErrInvalidToken.Wrap(err)
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// GenerateResetToken returns 32 random bytes hex-encoded. Uniqueness is
// enforced by the store.
func GenerateResetToken() (string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
