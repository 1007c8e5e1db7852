package token

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/nurksbr/siber-sub001/models"
)

// Claims is the explicit payload schema of a session token. Decoding rejects
// claims outside this schema.
type Claims struct {
	Subject   string           `json:"sub"`
	Email     string           `json:"email"`
	Name      string           `json:"name,omitempty"`
	Role      models.UserRole  `json:"role"`
	IssuedAt  *jwt.NumericDate `json:"iat"`
	ExpiresAt *jwt.NumericDate `json:"exp"`
}

var _ jwt.Claims = (*Claims)(nil)

// UnmarshalJSON decodes the payload, failing on unknown claims
func (c *Claims) UnmarshalJSON(data []byte) error {
	type plain Claims

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var p plain
	if err := dec.Decode(&p); err != nil {
		return fmt.Errorf("decode claims: %w", err)
	}
	*c = Claims(p)
	return nil
}

// Validate enforces the required claims. The jwt parser calls it after the
// registered-claim checks.
func (c *Claims) Validate() error {
	switch {
	case c.Subject == "":
		return fmt.Errorf("%w: missing sub", ErrInvalidToken)
	case c.Email == "":
		return fmt.Errorf("%w: missing email", ErrInvalidToken)
	case !c.Role.Valid():
		return fmt.Errorf("%w: invalid role %q", ErrInvalidToken, c.Role)
	case c.IssuedAt == nil:
		return fmt.Errorf("%w: missing iat", ErrInvalidToken)
	case c.ExpiresAt == nil:
		return fmt.Errorf("%w: missing exp", ErrInvalidToken)
	}
	if _, err := uuid.Parse(c.Subject); err != nil {
		return fmt.Errorf("%w: invalid sub: %v", ErrInvalidToken, err)
	}
	return nil
}

// Identity returns the identity the claims describe
func (c *Claims) Identity() models.Identity {
	return models.Identity{
		ID:    c.Subject,
		Email: c.Email,
		Name:  c.Name,
		Role:  c.Role,
	}
}

// Expired reports whether the token is no longer valid at now
func (c *Claims) Expired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return true
	}
	return !now.Before(c.ExpiresAt.Time)
}

func (c *Claims) GetExpirationTime() (*jwt.NumericDate, error) { return c.ExpiresAt, nil }
func (c *Claims) GetIssuedAt() (*jwt.NumericDate, error)       { return c.IssuedAt, nil }
func (c *Claims) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (c *Claims) GetIssuer() (string, error)                   { return "", nil }
func (c *Claims) GetSubject() (string, error)                  { return c.Subject, nil }
func (c *Claims) GetAudience() (jwt.ClaimStrings, error)       { return nil, nil }
