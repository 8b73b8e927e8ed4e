package handlers

import (
	"net/http"
	"strconv"

	"github.com/upb/portal/models"
	"github.com/upb/portal/repositories"
	"github.com/upb/portal/services"
	"github.com/upb/portal/utils"
	"go.uber.org/zap"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// AccessEventsResponse is the response body for GET /api/v1/admin/access-events
type AccessEventsResponse struct {
	Events []*models.AccessEvent `json:"events"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

// ListAccessEventsHandler lists recent access events, newest first.
// Query parameters: decision, limit, offset.
func ListAccessEventsHandler(repo repositories.AccessEventRepository, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			HandleServiceError(w, services.ErrFeatureDisabled.WithDetail("feature", "access_events"), logger)
			return
		}

		filter, err := parseAccessEventFilter(r)
		if err != nil {
			HandleServiceError(w, err, logger)
			return
		}

		events, err := repo.ListRecent(r.Context(), filter)
		if err != nil {
			HandleServiceError(w, services.WrapInternal("failed to list access events", err), logger)
			return
		}
		if events == nil {
			events = []*models.AccessEvent{}
		}

		if err := utils.WriteOK(w, AccessEventsResponse{
			Events: events,
			Limit:  filter.Limit,
			Offset: filter.Offset,
		}); err != nil {
			logger.Error("failed to write access events response", zap.Error(err))
		}
	}
}

func parseAccessEventFilter(r *http.Request) (repositories.AccessEventFilter, error) {
	q := r.URL.Query()
	filter := repositories.AccessEventFilter{
		Decision: models.AccessDecision(q.Get("decision")),
		Limit:    defaultEventLimit,
	}

	if filter.Decision != "" && !filter.Decision.Valid() {
		return filter, services.ErrInvalidInput.WithDetail("decision", "unknown decision")
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return filter, services.ErrInvalidInput.WithDetail("limit", "must be a positive integer")
		}
		filter.Limit = min(n, maxEventLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, services.ErrInvalidInput.WithDetail("offset", "must be a non-negative integer")
		}
		filter.Offset = n
	}
	return filter, nil
}
