package middleware

import (
	"context"

	"github.com/upb/portal/identity"
	"github.com/upb/portal/session"
)

// Context key type to avoid collisions
type contextKey string

const (
	// PrincipalKey is the context key for the resolved principal
	PrincipalKey contextKey = "principal"

	// SessionKey is the context key for the request's session input
	SessionKey contextKey = "session"
)

// GetPrincipalFromContext retrieves the principal placed by RequireUser
func GetPrincipalFromContext(ctx context.Context) *identity.Principal {
	if val := ctx.Value(PrincipalKey); val != nil {
		if p, ok := val.(*identity.Principal); ok {
			return p
		}
	}
	return nil
}

// WithPrincipal adds a principal to the context
func WithPrincipal(ctx context.Context, p *identity.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

// GetSessionFromContext retrieves the request context used to resolve the principal
func GetSessionFromContext(ctx context.Context) (session.RequestContext, bool) {
	rc, ok := ctx.Value(SessionKey).(session.RequestContext)
	return rc, ok
}

// WithSession adds the request's session input to the context
func WithSession(ctx context.Context, rc session.RequestContext) context.Context {
	return context.WithValue(ctx, SessionKey, rc)
}
