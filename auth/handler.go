package auth

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/upb/portal/access"
	"github.com/upb/portal/config"
	"github.com/upb/portal/handlers"
	"github.com/upb/portal/identity"
	"github.com/upb/portal/internal/observability"
	"github.com/upb/portal/middleware"
	"github.com/upb/portal/services"
	"github.com/upb/portal/services/ratelimit"
	"github.com/upb/portal/session"
	"github.com/upb/portal/utils"
	"go.uber.org/zap"
)

const maxBodyBytes = 16 << 10

// IdentityProvider runs the magic-link flow against the identity provider.
type IdentityProvider interface {
	SendMagicLink(ctx context.Context, email, redirectTo string) error
	VerifyMagicLink(ctx context.Context, tokenHash string, otpType identity.OTPType) (*identity.Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// PrincipalResolver resolves the caller's principal, if any.
type PrincipalResolver interface {
	ResolveCurrentPrincipal(ctx context.Context, rc session.RequestContext) (*identity.Principal, error)
}

// MagicLinkLimiter budgets sign-in link requests.
type MagicLinkLimiter interface {
	AllowMagicLink(ctx context.Context, email, ip string) (*ratelimit.Result, error)
	Reset(ctx context.Context, email string) error
}

// Metrics counts sign-in link outcomes.
type Metrics interface {
	RecordMagicLink(result string)
}

// Handler serves the login entry point and the magic-link sign-in flow.
type Handler struct {
	cfg      config.AuthConfig
	provider IdentityProvider
	resolver PrincipalResolver
	limiter  MagicLinkLimiter
	metrics  Metrics
	logger   *zap.Logger
}

// NewHandler creates a new auth handler. provider may be nil when no identity
// provider is configured; limiter and metrics may be nil.
func NewHandler(cfg config.AuthConfig, provider IdentityProvider, resolver PrincipalResolver, limiter MagicLinkLimiter, metrics Metrics, logger *zap.Logger) *Handler {
	return &Handler{
		cfg:      cfg,
		provider: provider,
		resolver: resolver,
		limiter:  limiter,
		metrics:  metrics,
		logger:   logger,
	}
}

// MagicLinkRequest is the body of POST /auth/sign-in
type MagicLinkRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Redirect string `json:"redirect,omitempty" validate:"max=2048"`
}

// SignInPage describes the sign-in page state
type SignInPage struct {
	Redirect  string `json:"redirect,omitempty"`
	LinkSent  bool   `json:"link_sent"`
	Available bool   `json:"available"`
}

// HandleLogin forwards GET /login to the sign-in page. The redirect value is
// copied exactly as received, still percent-encoded; an absent or empty value
// yields the bare sign-in path.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	target := h.cfg.SignInPath
	if raw, ok := access.RawQueryValue(r.URL.RawQuery, access.RedirectParam); ok && raw != "" {
		target += "?" + access.RedirectParam + "=" + raw
	}
	utils.WriteRedirect(w, r, target, http.StatusFound)
}

// HandleSignInPage handles GET /auth/sign-in. Callers who already have a
// session are sent on to where they were going.
func (h *Handler) HandleSignInPage(w http.ResponseWriter, r *http.Request) {
	redirect := access.SafeRedirectPath(r.URL.Query().Get(access.RedirectParam), "")

	if h.resolver != nil {
		rc := session.FromRequest(r, h.cfg.AccessCookieName)
		if rc.AccessToken != "" {
			principal, err := h.resolver.ResolveCurrentPrincipal(r.Context(), rc)
			switch {
			case err != nil:
				h.logger.Warn("could not resolve session on sign-in page",
					zap.String("request_id", rc.RequestID),
					zap.Error(err))
			case principal != nil:
				utils.WriteRedirect(w, r, h.destination(redirect), http.StatusFound)
				return
			}
		}
	}

	_ = utils.WriteOK(w, SignInPage{
		Redirect:  redirect,
		LinkSent:  r.URL.Query().Get("sent") == "1",
		Available: h.provider != nil,
	})
}

// HandleMagicLink handles POST /auth/sign-in
func (h *Handler) HandleMagicLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequestID(ctx, h.logger)

	if h.provider == nil {
		handlers.HandleServiceError(w, services.ErrFeatureDisabled, logger)
		return
	}

	var req MagicLinkRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	req.Email = utils.NormalizeEmail(req.Email)
	if err := utils.ValidateStruct(&req); err != nil {
		handlers.HandleValidationError(w, err, logger)
		return
	}

	res, err := h.allow(ctx, req.Email, middleware.ClientIP(r))
	switch {
	case err != nil:
		logger.Warn("magic link rate limiter unavailable, allowing request", zap.Error(err))
	case !res.Allowed:
		h.recordMagicLink(observability.MagicLinkLimited)
		seconds := int(math.Ceil(res.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		handlers.HandleServiceError(w, services.ErrMagicLinkLimited.
			WithDetail("retry_after_seconds", seconds).
			WithDetail("scope", string(res.Scope)), logger)
		return
	}

	if err := h.provider.SendMagicLink(ctx, req.Email, h.callbackURL(req.Redirect)); err != nil {
		h.recordMagicLink(observability.MagicLinkFailed)
		if errors.Is(err, identity.ErrProviderRateLimited) {
			handlers.HandleServiceError(w, services.ErrProviderRateLimited, logger)
			return
		}
		logger.Error("failed to send magic link", zap.Error(err))
		handlers.HandleServiceError(w, services.WrapExternal("could not send sign-in link", err), logger)
		return
	}

	h.recordMagicLink(observability.MagicLinkSent)
	logger.Info("magic link sent", zap.String("email_domain", emailDomain(req.Email)))
	_ = utils.WriteAccepted(w, "Check your email for a sign-in link")
}

// HandleCallback handles GET /auth/callback, the landing URL of an emailed link
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequestID(ctx, h.logger)
	query := r.URL.Query()

	if h.provider == nil {
		handlers.HandleServiceError(w, services.ErrFeatureDisabled, logger)
		return
	}

	tokenHash := query.Get("token_hash")
	otpType := identity.OTPType(query.Get("type"))
	if otpType == "" {
		otpType = identity.OTPTypeMagicLink
	}
	if tokenHash == "" || !otpType.Valid() {
		handlers.HandleServiceError(w, services.ErrInvalidSignInLink, logger)
		return
	}

	sess, err := h.provider.VerifyMagicLink(ctx, tokenHash, otpType)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidLink) {
			logger.Info("rejected sign-in link", zap.Error(err))
			handlers.HandleServiceError(w, services.ErrInvalidSignInLink, logger)
			return
		}
		logger.Error("failed to verify sign-in link", zap.Error(err))
		handlers.HandleServiceError(w, services.WrapExternal("could not verify sign-in link", err), logger)
		return
	}

	session.SetCookies(w, h.cookieOptions(), sess)

	if sess.User != nil {
		if h.limiter != nil {
			if err := h.limiter.Reset(ctx, utils.NormalizeEmail(sess.User.Email)); err != nil {
				logger.Warn("failed to reset magic link budget", zap.Error(err))
			}
		}
		logger.Info("user signed in", zap.String("user_id", sess.User.ID.String()))
	}

	utils.WriteRedirect(w, r, h.destination(query.Get(access.RedirectParam)), http.StatusFound)
}

// HandleSignOut handles POST /auth/sign-out. Provider revocation is best effort;
// cookies are always cleared.
func (h *Handler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	logger := observability.WithRequestID(r.Context(), h.logger)
	rc := session.FromRequest(r, h.cfg.AccessCookieName)

	if h.provider != nil && rc.AccessToken != "" {
		if err := h.provider.SignOut(r.Context(), rc.AccessToken); err != nil {
			logger.Warn("provider sign-out failed", zap.Error(err))
		}
	}

	session.ClearCookies(w, h.cookieOptions())
	utils.WriteRedirect(w, r, h.cfg.LoginPath, http.StatusSeeOther)
}

// callbackURL is the absolute URL the emailed link lands on, carrying the
// sanitized redirect path when there is one.
func (h *Handler) callbackURL(redirect string) string {
	u := strings.TrimRight(h.cfg.SiteURL, "/") + h.cfg.CallbackPath
	if p := access.SafeRedirectPath(redirect, ""); p != "" {
		u += "?" + access.RedirectParam + "=" + access.EncodeComponent(p)
	}
	return u
}

func (h *Handler) allow(ctx context.Context, email, ip string) (*ratelimit.Result, error) {
	if h.limiter == nil {
		return &ratelimit.Result{Allowed: true}, nil
	}
	return h.limiter.AllowMagicLink(ctx, email, ip)
}

func (h *Handler) destination(redirect string) string {
	return access.SafeRedirectPath(redirect, h.cfg.DefaultRedirect)
}

func (h *Handler) cookieOptions() session.CookieOptions {
	return session.CookieOptions{
		AccessName: h.cfg.AccessCookieName,
		Secure:     h.cfg.CookieSecure,
		MaxAge:     h.cfg.CookieMaxAge,
	}
}

func (h *Handler) recordMagicLink(result string) {
	if h.metrics != nil {
		h.metrics.RecordMagicLink(result)
	}
}

func emailDomain(email string) string {
	if i := strings.LastIndexByte(email, '@'); i >= 0 {
		return email[i+1:]
	}
	return ""
}
