package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signTestToken(t *testing.T, secret string, expiresAt time.Time) string {
	t.Helper()
	claims := &TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "3f1c2a9e-7d4b-4e0a-9c51-0b8f6a2d1e77",
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(expiresAt.Add(-time.Hour)),
		},
		Email: "ada@example.com",
		Role:  "authenticated",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestTokenInspectorUnverified(t *testing.T) {
	inspector := NewTokenInspector("", 0)

	t.Run("live token passes", func(t *testing.T) {
		claims, err := inspector.Inspect(signTestToken(t, "whatever", time.Now().Add(time.Hour)))
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", claims.Email)
		assert.Equal(t, "authenticated", claims.Role)
	})

	t.Run("expired token is no session", func(t *testing.T) {
		_, err := inspector.Inspect(signTestToken(t, "whatever", time.Now().Add(-time.Minute)))
		assert.ErrorIs(t, err, ErrNoSession)
	})

	t.Run("leeway tolerates small skew", func(t *testing.T) {
		lenient := NewTokenInspector("", time.Minute)
		_, err := lenient.Inspect(signTestToken(t, "whatever", time.Now().Add(-10*time.Second)))
		assert.NoError(t, err)
	})

	t.Run("garbage is no session", func(t *testing.T) {
		_, err := inspector.Inspect("not-a-jwt")
		assert.ErrorIs(t, err, ErrNoSession)
	})

	t.Run("empty is no session", func(t *testing.T) {
		_, err := inspector.Inspect("")
		assert.ErrorIs(t, err, ErrNoSession)
	})
}

func TestTokenInspectorVerified(t *testing.T) {
	inspector := NewTokenInspector("s3cret", 0)

	t.Run("valid signature passes", func(t *testing.T) {
		_, err := inspector.Inspect(signTestToken(t, "s3cret", time.Now().Add(time.Hour)))
		assert.NoError(t, err)
	})

	t.Run("wrong secret is no session", func(t *testing.T) {
		_, err := inspector.Inspect(signTestToken(t, "other", time.Now().Add(time.Hour)))
		assert.ErrorIs(t, err, ErrNoSession)
	})

	t.Run("expired is no session", func(t *testing.T) {
		_, err := inspector.Inspect(signTestToken(t, "s3cret", time.Now().Add(-time.Hour)))
		assert.ErrorIs(t, err, ErrNoSession)
	})

	t.Run("clock is injectable", func(t *testing.T) {
		fixed := NewTokenInspector("s3cret", 0)
		fixed.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := fixed.Inspect(signTestToken(t, "s3cret", time.Now().Add(time.Hour)))
		assert.ErrorIs(t, err, ErrNoSession)
	})
}
