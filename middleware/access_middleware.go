package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/upb/portal/access"
	"github.com/upb/portal/models"
	"github.com/upb/portal/services"
	"github.com/upb/portal/session"
	"github.com/upb/portal/utils"
	"go.uber.org/zap"
)

// Guard decides whether a request may proceed
type Guard interface {
	RequireAuthenticated(ctx context.Context, rc session.RequestContext, intendedPath string) (access.Decision, error)
}

// DecisionMetrics receives guard and role outcomes
type DecisionMetrics interface {
	RecordGuardDecision(outcome string)
	RecordRoleCheck(granted bool)
}

// EventRecorder queues access events for persistence
type EventRecorder interface {
	Record(event *models.AccessEvent) error
}

// ErrorWriter renders a domain error as an HTTP response
type ErrorWriter func(w http.ResponseWriter, err error)

const outcomeProviderError = "provider_error"

// AccessMiddleware applies the access policies to protected routes
type AccessMiddleware struct {
	guard      Guard
	cookieName string
	metrics    DecisionMetrics
	events     EventRecorder
	writeError ErrorWriter
	logger     *zap.Logger
}

// NewAccessMiddleware creates a new AccessMiddleware. metrics and events may be nil.
func NewAccessMiddleware(guard Guard, cookieName string, metrics DecisionMetrics, events EventRecorder, logger *zap.Logger) *AccessMiddleware {
	return &AccessMiddleware{
		guard:      guard,
		cookieName: cookieName,
		metrics:    metrics,
		events:     events,
		writeError: writeAccessError,
		logger:     logger,
	}
}

// WithErrorWriter replaces the default writer for access errors
func (m *AccessMiddleware) WithErrorWriter(fn ErrorWriter) *AccessMiddleware {
	if fn != nil {
		m.writeError = fn
	}
	return m
}

// RequireUser lets authenticated callers through with their principal in the
// context and sends everyone else to sign-in with a 307 that remembers where
// they were going. Identity provider failures answer 502.
func (m *AccessMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		rc := session.FromRequest(r, m.cookieName)
		intended := r.URL.RequestURI()

		decision, err := m.guard.RequireAuthenticated(ctx, rc, intended)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				m.logger.Debug("request ended while resolving session",
					zap.String("request_id", rc.RequestID),
					zap.Error(err))
				return
			}
			m.logger.Error("identity provider failure",
				zap.String("request_id", rc.RequestID),
				zap.String("path", intended),
				zap.Error(err))
			m.recordDecision(outcomeProviderError)
			m.recordEvent(r, rc, models.NewAccessEvent(models.AccessDecisionProviderFailure, intended).WithReason(err.Error()))
			m.writeError(w, services.ErrProviderFailure.Wrap(err))
			return
		}

		if !decision.IsAuthorized() {
			event := models.NewAccessEvent(models.AccessDecisionRedirect, intended)
			if decision.ProviderFailure != nil {
				m.recordDecision(outcomeProviderError)
				event = models.NewAccessEvent(models.AccessDecisionProviderFailure, intended).
					WithReason(decision.ProviderFailure.Error())
			} else {
				m.recordDecision(decision.Outcome.String())
			}
			m.recordEvent(r, rc, event)

			m.logger.Debug("redirecting to sign-in",
				zap.String("request_id", rc.RequestID),
				zap.String("path", intended),
				zap.String("target", decision.Target))
			utils.WriteRedirect(w, r, decision.Target, http.StatusTemporaryRedirect)
			return
		}

		m.recordDecision(decision.Outcome.String())
		ctx = WithPrincipal(ctx, decision.Principal)
		ctx = WithSession(ctx, rc)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin answers 403 unless the principal holds the admin role.
// It must run after RequireUser.
func (m *AccessMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		rc, _ := GetSessionFromContext(ctx)

		principal := GetPrincipalFromContext(ctx)
		if principal == nil {
			m.logger.Error("principal not found in context",
				zap.String("request_id", rc.RequestID))
			m.writeError(w, services.ErrNoSession)
			return
		}

		granted := access.HasAdminRole(principal)
		if m.metrics != nil {
			m.metrics.RecordRoleCheck(granted)
		}
		if !granted {
			m.logger.Warn("admin role required",
				zap.String("request_id", rc.RequestID),
				zap.String("user_id", principal.ID.String()),
				zap.String("path", r.URL.Path))
			m.recordEvent(r, rc, models.NewAccessEvent(models.AccessDecisionAdminDenied, r.URL.RequestURI()).
				WithUser(principal.ID).
				WithReason("admin role required"))
			m.writeError(w, services.ErrInsufficientRole)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *AccessMiddleware) recordDecision(outcome string) {
	if m.metrics != nil {
		m.metrics.RecordGuardDecision(outcome)
	}
}

func (m *AccessMiddleware) recordEvent(r *http.Request, rc session.RequestContext, event *models.AccessEvent) {
	if m.events == nil {
		return
	}
	event.WithRequest(rc.RequestID, ClientIP(r), r.UserAgent())
	if err := m.events.Record(event); err != nil {
		m.logger.Debug("access event not recorded",
			zap.String("request_id", rc.RequestID),
			zap.Error(err))
	}
}

// writeAccessError renders access errors when no richer mapper is configured
func writeAccessError(w http.ResponseWriter, err error) {
	switch {
	case services.IsUnauthorizedError(err):
		_ = utils.WriteUnauthorized(w, "Authentication required")
	case services.IsForbiddenError(err):
		_ = utils.WriteForbidden(w, "Admin role required")
	default:
		_ = utils.WriteBadGateway(w, "Identity provider unavailable", nil)
	}
}

// ClientIP returns the remote address without its port. chi's RealIP
// middleware has already applied forwarding headers by the time this runs.
func ClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

var _ Guard = (*access.Guard)(nil)
