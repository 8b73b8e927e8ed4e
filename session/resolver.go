package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/upb/portal/identity"
	"go.uber.org/zap"
)

// UserFetcher asks the identity provider who owns an access token
type UserFetcher interface {
	GetUser(ctx context.Context, accessToken string) (*identity.Principal, error)
}

// TokenScreen rejects tokens that cannot belong to a live session without a network call
type TokenScreen interface {
	Inspect(token string) (*identity.TokenClaims, error)
}

// Resolver obtains the current principal for a request.
// It holds no per-request state and is safe for concurrent use.
type Resolver struct {
	fetcher UserFetcher
	screen  TokenScreen
	logger  *zap.Logger
}

// NewResolver creates a Resolver. screen may be nil.
func NewResolver(fetcher UserFetcher, screen TokenScreen, logger *zap.Logger) *Resolver {
	return &Resolver{
		fetcher: fetcher,
		screen:  screen,
		logger:  logger,
	}
}

// ResolveCurrentPrincipal returns the principal behind rc, or (nil, nil) when
// the request carries no valid session. A failing provider call is returned as
// an error (wrapping identity.ErrProviderUnavailable or the context error) and
// is never reported as "no session".
func (r *Resolver) ResolveCurrentPrincipal(ctx context.Context, rc RequestContext) (*identity.Principal, error) {
	if rc.AccessToken == "" {
		return nil, nil
	}

	if r.screen != nil {
		if _, err := r.screen.Inspect(rc.AccessToken); err != nil {
			r.logger.Debug("access token rejected before provider lookup",
				zap.String("request_id", rc.RequestID),
				zap.String("source", string(rc.Source)),
				zap.Error(err))
			return nil, nil
		}
	}

	principal, err := r.fetcher.GetUser(ctx, rc.AccessToken)
	if err != nil {
		if errors.Is(err, identity.ErrNoSession) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve principal: %w", err)
	}
	return principal, nil
}
