package access

import (
	"context"
	"errors"

	"github.com/upb/portal/identity"
	"github.com/upb/portal/session"
	"go.uber.org/zap"
)

// PrincipalResolver resolves the principal for an explicit request context
type PrincipalResolver interface {
	ResolveCurrentPrincipal(ctx context.Context, rc session.RequestContext) (*identity.Principal, error)
}

// Outcome tells the two guard results apart
type Outcome int

const (
	OutcomeAuthorized Outcome = iota + 1
	OutcomeRedirect
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAuthorized:
		return "authorized"
	case OutcomeRedirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decision is the result of the presence policy. Exactly one of Principal
// (OutcomeAuthorized) or Target (OutcomeRedirect) is meaningful.
type Decision struct {
	Outcome   Outcome
	Principal *identity.Principal
	Target    string
	// ProviderFailure is set when a provider error was folded into a redirect.
	ProviderFailure error
}

// Authorized builds the success variant
func Authorized(p *identity.Principal) Decision {
	return Decision{Outcome: OutcomeAuthorized, Principal: p}
}

// Redirect builds the sign-in variant
func Redirect(target string) Decision {
	return Decision{Outcome: OutcomeRedirect, Target: target}
}

// IsAuthorized reports whether the caller may proceed
func (d Decision) IsAuthorized() bool {
	return d.Outcome == OutcomeAuthorized
}

// GuardOptions configures a Guard
type GuardOptions struct {
	// SignInPath is where unauthenticated callers are sent (e.g. "/login").
	SignInPath string
	// FoldProviderFailure turns provider errors into redirects instead of errors.
	FoldProviderFailure bool
}

// Guard applies the presence policy on top of a PrincipalResolver
type Guard struct {
	resolver PrincipalResolver
	opts     GuardOptions
	logger   *zap.Logger
}

// NewGuard creates a Guard
func NewGuard(resolver PrincipalResolver, opts GuardOptions, logger *zap.Logger) *Guard {
	if opts.SignInPath == "" {
		opts.SignInPath = "/login"
	}
	return &Guard{
		resolver: resolver,
		opts:     opts,
		logger:   logger,
	}
}

// RequireAuthenticated resolves the principal for rc. When one exists the
// decision is Authorized with a non-nil principal; otherwise it is Redirect to
// the sign-in path carrying intendedPath. Provider failures are returned as
// errors unless FoldProviderFailure is set. Cancellation is always returned.
func (g *Guard) RequireAuthenticated(ctx context.Context, rc session.RequestContext, intendedPath string) (Decision, error) {
	principal, err := g.resolver.ResolveCurrentPrincipal(ctx, rc)
	if err != nil {
		if !g.opts.FoldProviderFailure || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Decision{}, err
		}
		g.logger.Warn("identity provider failure treated as signed out",
			zap.String("request_id", rc.RequestID),
			zap.Error(err))
		d := Redirect(SignInTarget(g.opts.SignInPath, intendedPath))
		d.ProviderFailure = err
		return d, nil
	}

	if principal == nil {
		return Redirect(SignInTarget(g.opts.SignInPath, intendedPath)), nil
	}
	return Authorized(principal), nil
}

// SignInPath returns the configured sign-in path
func (g *Guard) SignInPath() string {
	return g.opts.SignInPath
}
