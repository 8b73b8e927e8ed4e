package repositories

import (
	"context"

	"github.com/upb/portal/models"
)

// AccessEventFilter narrows ListRecent results
type AccessEventFilter struct {
	// Decision restricts results to one decision; empty means all.
	Decision models.AccessDecision
	Limit    int
	Offset   int
}

// AccessEventRepository handles access event data operations
type AccessEventRepository interface {
	// Insert stores a new access event
	Insert(ctx context.Context, event *models.AccessEvent) error

	// ListRecent retrieves events newest first
	ListRecent(ctx context.Context, filter AccessEventFilter) ([]*models.AccessEvent, error)
}
