package token

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/nurksbr/siber-sub001/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-at-least-32-bytes-long!!"

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestCodec(t *testing.T) (*Codec, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	codec, err := NewCodec(testSecret, WithClock(clock.Now))
	require.NoError(t, err)
	return codec, clock
}

func testIdentity() models.Identity {
	return models.Identity{
		ID:    uuid.NewString(),
		Email: "a@x.com",
		Name:  "Ayşe",
		Role:  models.RoleUser,
	}
}

func TestNewCodec(t *testing.T) {
	t.Run("empty secret is rejected", func(t *testing.T) {
		codec, err := NewCodec("")
		assert.Nil(t, codec)
		assert.ErrorIs(t, err, ErrMissingSecret)
	})

	t.Run("zero value codec cannot issue", func(t *testing.T) {
		var codec *Codec
		_, err := codec.Issue(testIdentity(), time.Hour)
		assert.ErrorIs(t, err, ErrMissingSecret)
	})
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	codec, clock := newTestCodec(t)

	roles := []models.UserRole{models.RoleUser, models.RoleEditor, models.RoleAdmin}
	ttls := []time.Duration{time.Minute, time.Hour, DefaultTTL}

	for _, role := range roles {
		for _, ttl := range ttls {
			identity := testIdentity()
			identity.Role = role

			tok, err := codec.Issue(identity, ttl)
			require.NoError(t, err)

			got, err := codec.Verify(tok)
			require.NoError(t, err, "role=%s ttl=%s", role, ttl)
			assert.Equal(t, identity, got)

			start := clock.now
			clock.Advance(ttl - time.Second)
			_, err = codec.Verify(tok)
			assert.NoError(t, err, "still valid one second before expiry")

			clock.Advance(time.Second)
			_, err = codec.Verify(tok)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.ErrorIs(t, err, ErrExpiredToken)

			clock.now = start
		}
	}
}

func TestIssueIsDeterministic(t *testing.T) {
	codec, _ := newTestCodec(t)
	identity := testIdentity()

	a, err := codec.Issue(identity, DefaultTTL)
	require.NoError(t, err)
	b, err := codec.Issue(identity, DefaultTTL)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestIssueRejectsBadInput(t *testing.T) {
	codec, _ := newTestCodec(t)

	_, err := codec.Issue(testIdentity(), 0)
	assert.Error(t, err)

	bad := testIdentity()
	bad.ID = "not-a-uuid"
	_, err = codec.Issue(bad, time.Hour)
	assert.ErrorIs(t, err, ErrInvalidToken)

	bad = testIdentity()
	bad.Role = "root"
	_, err = codec.Issue(bad, time.Hour)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsFlippedSignatureBytes(t *testing.T) {
	codec, _ := newTestCodec(t)

	tok, err := codec.Issue(testIdentity(), DefaultTTL)
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	require.NoError(t, err)

	for i := range sig {
		for _, mask := range []byte{0x01, 0x80, 0xff} {
			flipped := make([]byte, len(sig))
			copy(flipped, sig)
			flipped[i] ^= mask

			tampered := parts[0] + "." + parts[1] + "." + base64.RawURLEncoding.EncodeToString(flipped)
			_, err := codec.Verify(tampered)
			assert.ErrorIs(t, err, ErrInvalidToken, "byte %d mask %#x", i, mask)
		}
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	codec, _ := newTestCodec(t)

	tok, err := codec.Issue(testIdentity(), DefaultTTL)
	require.NoError(t, err)
	parts := strings.Split(tok, ".")

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	escalated := strings.Replace(string(payload), `"role":"user"`, `"role":"admin"`, 1)
	require.NotEqual(t, string(payload), escalated)

	tampered := parts[0] + "." + base64.RawURLEncoding.EncodeToString([]byte(escalated)) + "." + parts[2]
	_, err = codec.Verify(tampered)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	codec, _ := newTestCodec(t)
	other, err := NewCodec("another-secret-another-secret-1234")
	require.NoError(t, err)

	tok, err := other.Issue(testIdentity(), DefaultTTL)
	require.NoError(t, err)

	_, err = codec.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsMalformedInput(t *testing.T) {
	codec, _ := newTestCodec(t)

	for _, tok := range []string{"", "abc", "a.b.c", "....", "eyJhbGciOiJIUzI1NiJ9.e30."} {
		_, err := codec.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", tok)
	}
}

func TestVerifyRejectsSchemaViolations(t *testing.T) {
	codec, clock := newTestCodec(t)
	now := clock.now

	sign := func(claims jwt.MapClaims) string {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		return tok
	}
	valid := func() jwt.MapClaims {
		return jwt.MapClaims{
			"sub":   uuid.NewString(),
			"email": "a@x.com",
			"role":  "user",
			"iat":   now.Unix(),
			"exp":   now.Add(time.Hour).Unix(),
		}
	}

	_, err := codec.Verify(sign(valid()))
	require.NoError(t, err, "baseline must verify")

	cases := map[string]func(jwt.MapClaims){
		"unknown claim":    func(c jwt.MapClaims) { c["admin"] = true },
		"missing sub":      func(c jwt.MapClaims) { delete(c, "sub") },
		"missing email":    func(c jwt.MapClaims) { delete(c, "email") },
		"missing role":     func(c jwt.MapClaims) { delete(c, "role") },
		"unknown role":     func(c jwt.MapClaims) { c["role"] = "superuser" },
		"missing exp":      func(c jwt.MapClaims) { delete(c, "exp") },
		"missing iat":      func(c jwt.MapClaims) { delete(c, "iat") },
		"issued in future": func(c jwt.MapClaims) { c["iat"] = now.Add(time.Hour).Unix() },
		"non uuid sub":     func(c jwt.MapClaims) { c["sub"] = "42" },
		"wrong type":       func(c jwt.MapClaims) { c["email"] = 12 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			claims := valid()
			mutate(claims)
			_, err := codec.Verify(sign(claims))
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	codec, clock := newTestCodec(t)

	claims := jwt.MapClaims{
		"sub":   uuid.NewString(),
		"email": "a@x.com",
		"role":  "user",
		"iat":   clock.now.Unix(),
		"exp":   clock.now.Add(time.Hour).Unix(),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = codec.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPeek(t *testing.T) {
	codec, clock := newTestCodec(t)
	identity := testIdentity()

	tok, err := codec.Issue(identity, time.Hour)
	require.NoError(t, err)

	claims, err := Peek(tok)
	require.NoError(t, err)
	assert.Equal(t, identity, claims.Identity())
	assert.False(t, claims.Expired(clock.now))
	assert.True(t, claims.Expired(clock.now.Add(time.Hour)))

	_, err = Peek("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
