package handlers

import (
	"net/http"
	"time"

	"github.com/upb/portal/access"
	"github.com/upb/portal/identity"
	"github.com/upb/portal/middleware"
	"github.com/upb/portal/services"
	"github.com/upb/portal/services/audit"
	"github.com/upb/portal/utils"
	"go.uber.org/zap"
)

// UserSummary is the dashboard view of the signed-in user
type UserSummary struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	IsAdmin      bool       `json:"is_admin"`
	LastSignInAt *time.Time `json:"last_sign_in_at,omitempty"`
}

// CurrentUserResponse is the response body for GET /api/v1/me
type CurrentUserResponse struct {
	*identity.Principal
	IsAdmin bool `json:"is_admin"`
}

// AdminOverview is the response body for GET /admin
type AdminOverview struct {
	User     UserSummary  `json:"user"`
	Recorder *audit.Stats `json:"recorder,omitempty"`
}

// RecorderStats reports access event recorder state
type RecorderStats interface {
	GetStats() audit.Stats
}

func summarize(p *identity.Principal) UserSummary {
	return UserSummary{
		ID:           p.ID.String(),
		Email:        p.Email,
		IsAdmin:      access.HasAdminRole(p),
		LastSignInAt: p.LastSignInAt,
	}
}

// DashboardHandler serves GET /dashboard behind the presence policy
func DashboardHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := middleware.GetPrincipalFromContext(r.Context())
		if principal == nil {
			HandleServiceError(w, services.ErrNoSession, logger)
			return
		}
		if err := utils.WriteOK(w, summarize(principal)); err != nil {
			logger.Error("failed to write dashboard response", zap.Error(err))
		}
	}
}

// MeHandler serves GET /api/v1/me
func MeHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := middleware.GetPrincipalFromContext(r.Context())
		if principal == nil {
			HandleServiceError(w, services.ErrNoSession, logger)
			return
		}
		if err := utils.WriteOK(w, CurrentUserResponse{
			Principal: principal,
			IsAdmin:   access.HasAdminRole(principal),
		}); err != nil {
			logger.Error("failed to write current user response", zap.Error(err))
		}
	}
}

// AdminHandler serves GET /admin behind the presence and role policies.
// stats may be nil when access events are not recorded.
func AdminHandler(stats RecorderStats, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := middleware.GetPrincipalFromContext(r.Context())
		if principal == nil {
			HandleServiceError(w, services.ErrNoSession, logger)
			return
		}

		overview := AdminOverview{User: summarize(principal)}
		if stats != nil {
			s := stats.GetStats()
			overview.Recorder = &s
		}
		if err := utils.WriteOK(w, overview); err != nil {
			logger.Error("failed to write admin response", zap.Error(err))
		}
	}
}
