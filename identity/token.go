package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the claims the provider puts in its access tokens
type TokenClaims struct {
	jwt.RegisteredClaims
	Email       string         `json:"email"`
	Role        string         `json:"role"`
	SessionID   string         `json:"session_id"`
	AppMetadata map[string]any `json:"app_metadata"`
}

// TokenInspector screens access tokens before the provider is asked about them.
// Tokens that are not JWTs or that have expired are rejected locally. When a
// secret is configured the HS256 signature is verified too. The provider stays
// authoritative: a token that passes inspection is still resolved remotely.
type TokenInspector struct {
	secret []byte
	leeway time.Duration
	now    func() time.Time
}

// NewTokenInspector creates an inspector. An empty secret disables signature checks.
func NewTokenInspector(secret string, leeway time.Duration) *TokenInspector {
	var key []byte
	if secret != "" {
		key = []byte(secret)
	}
	return &TokenInspector{
		secret: key,
		leeway: leeway,
		now:    time.Now,
	}
}

// Inspect parses tokenString and returns its claims, or an error wrapping
// ErrNoSession when the token cannot belong to a live session.
func (i *TokenInspector) Inspect(tokenString string) (*TokenClaims, error) {
	if tokenString == "" {
		return nil, ErrNoSession
	}
	if i.secret != nil {
		return i.verify(tokenString)
	}

	claims := &TokenClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("%w: malformed token: %v", ErrNoSession, err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	if exp != nil && i.now().After(exp.Add(i.leeway)) {
		return nil, fmt.Errorf("%w: token expired", ErrNoSession)
	}
	return claims, nil
}

func (i *TokenInspector) verify(tokenString string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithLeeway(i.leeway),
		jwt.WithTimeFunc(i.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", ErrNoSession)
		}
		return nil, fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	return claims, nil
}
