package models

import (
	"time"

	"github.com/google/uuid"
)

// AccessDecision represents why a request was turned away
type AccessDecision string

const (
	AccessDecisionRedirect        AccessDecision = "redirect"
	AccessDecisionProviderFailure AccessDecision = "provider_failure"
	AccessDecisionAdminDenied     AccessDecision = "admin_denied"
)

// Valid reports whether d is one of the known decisions
func (d AccessDecision) Valid() bool {
	switch d {
	case AccessDecisionRedirect, AccessDecisionProviderFailure, AccessDecisionAdminDenied:
		return true
	}
	return false
}

// AccessEvent records a request the access guard did not let through
type AccessEvent struct {
	ID         uuid.UUID      `json:"id" db:"id"`
	OccurredAt time.Time      `json:"occurred_at" db:"occurred_at"`
	RequestID  string         `json:"request_id" db:"request_id"`
	UserID     *uuid.UUID     `json:"user_id,omitempty" db:"user_id"` // nil for signed-out callers
	Path       string         `json:"path" db:"path"`
	Decision   AccessDecision `json:"decision" db:"decision"`
	Reason     string         `json:"reason,omitempty" db:"reason"`
	IPAddress  string         `json:"ip_address" db:"ip_address"`
	UserAgent  string         `json:"user_agent" db:"user_agent"`
}

// TableName returns the table name for the AccessEvent model
func (AccessEvent) TableName() string {
	return "access_events"
}

// NewAccessEvent creates a new AccessEvent instance
func NewAccessEvent(decision AccessDecision, path string) *AccessEvent {
	return &AccessEvent{
		ID:         uuid.New(),
		OccurredAt: time.Now().UTC(),
		Path:       path,
		Decision:   decision,
	}
}

// WithUser sets the user ID
func (e *AccessEvent) WithUser(userID uuid.UUID) *AccessEvent {
	e.UserID = &userID
	return e
}

// WithRequest sets the request metadata
func (e *AccessEvent) WithRequest(requestID, ipAddress, userAgent string) *AccessEvent {
	e.RequestID = requestID
	e.IPAddress = ipAddress
	e.UserAgent = userAgent
	return e
}

// WithReason sets a free-form reason
func (e *AccessEvent) WithReason(reason string) *AccessEvent {
	e.Reason = reason
	return e
}
