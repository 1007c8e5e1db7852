// Package token issues and verifies the signed session tokens carried in the
// auth cookie. A token is the whole session: there is no server-side session
// store and no revocation list.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nurksbr/siber-sub001/models"
)

const (
	// DefaultTTL is the lifetime of a login session
	DefaultTTL = 7 * 24 * time.Hour

	// CookieName is the one cookie that carries the session token
	CookieName = "auth-token"
)

var (
	// ErrInvalidToken is returned for every token that must not be trusted
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken is wrapped together with ErrInvalidToken for expired tokens
	ErrExpiredToken = errors.New("token expired")

	// ErrMissingSecret is returned when the codec has no signing secret
	ErrMissingSecret = errors.New("signing secret is required")
)

// Codec signs and verifies HS256 session tokens with a process-wide secret
type Codec struct {
	secret []byte
	now    func() time.Time
}

// Option configures a Codec
type Option func(*Codec)

// WithClock overrides the time source used for iat/exp
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec creates a codec for the given secret
func NewCodec(secret string, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	c := &Codec{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs a token for the identity that expires after ttl
func (c *Codec) Issue(identity models.Identity, ttl time.Duration) (string, error) {
	if c == nil || len(c.secret) == 0 {
		return "", ErrMissingSecret
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be > 0, got %s", ttl)
	}

	now := c.now()
	claims := &Claims{
		Subject:   identity.ID,
		Email:     identity.Email,
		Name:      identity.Name,
		Role:      identity.Role,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if err := claims.Validate(); err != nil {
		return "", err
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, schema and expiry. Every failure is reported as
// ErrInvalidToken; expiry additionally matches ErrExpiredToken.
func (c *Codec) Verify(tokenString string) (models.Identity, error) {
	if c == nil || len(c.secret) == 0 {
		return models.Identity{}, ErrInvalidToken
	}
	if tokenString == "" {
		return models.Identity{}, ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)

	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, ErrExpiredToken)
		}
		return models.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return models.Identity{}, ErrInvalidToken
	}

	return claims.Identity(), nil
}

// Peek decodes the payload without checking the signature. It exists for the
// client's cheap local expiry check and must never gate access.
func Peek(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if err := claims.Validate(); err != nil {
		return nil, err
	}
	return claims, nil
}
