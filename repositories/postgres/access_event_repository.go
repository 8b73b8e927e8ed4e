package postgres

import (
	"context"
	"fmt"

	"github.com/upb/portal/models"
	"github.com/upb/portal/repositories"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// AccessEventRepository implements the repositories.AccessEventRepository interface
type AccessEventRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAccessEventRepository creates a new access event repository
func NewAccessEventRepository(db *DB, logger *zap.Logger) repositories.AccessEventRepository {
	return &AccessEventRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new access event
func (r *AccessEventRepository) Insert(ctx context.Context, event *models.AccessEvent) error {
	query := `
		INSERT INTO access_events (
			id, occurred_at, request_id, user_id, path, decision, reason, ip_address, user_agent
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.OccurredAt,
		event.RequestID,
		event.UserID,
		event.Path,
		event.Decision,
		event.Reason,
		event.IPAddress,
		event.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("failed to insert access event: %w", err)
	}

	r.logger.Debug("access event inserted",
		zap.String("id", event.ID.String()),
		zap.String("decision", string(event.Decision)))
	return nil
}

// ListRecent retrieves access events newest first with pagination
func (r *AccessEventRepository) ListRecent(ctx context.Context, filter repositories.AccessEventFilter) ([]*models.AccessEvent, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, occurred_at, request_id, user_id, path, decision, reason, ip_address, user_agent
		FROM access_events
		WHERE ($1 = '' OR decision = $1)
		ORDER BY occurred_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, string(filter.Decision), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query access events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.AccessEvent, 0)
	for rows.Next() {
		event := &models.AccessEvent{}
		if err := rows.Scan(
			&event.ID,
			&event.OccurredAt,
			&event.RequestID,
			&event.UserID,
			&event.Path,
			&event.Decision,
			&event.Reason,
			&event.IPAddress,
			&event.UserAgent,
		); err != nil {
			return nil, fmt.Errorf("failed to scan access event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating access events: %w", err)
	}

	return events, nil
}
