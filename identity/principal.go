package identity

import (
	"time"

	"github.com/google/uuid"
)

// Principal is the authenticated identity record returned by the provider.
// AppMetadata is provider-controlled and not schema-enforced: values decode
// from JSON, so strings arrive as string and arrays as []any.
type Principal struct {
	ID           uuid.UUID      `json:"id"`
	Email        string         `json:"email"`
	Phone        string         `json:"phone,omitempty"`
	Role         string         `json:"role,omitempty"` // provider audience role, e.g. "authenticated"
	AppMetadata  map[string]any `json:"app_metadata"`
	UserMetadata map[string]any `json:"user_metadata"`
	CreatedAt    time.Time      `json:"created_at"`
	LastSignInAt *time.Time     `json:"last_sign_in_at,omitempty"`
}

// Metadata returns the application-metadata bag, or nil for a nil principal
func (p *Principal) Metadata() map[string]any {
	if p == nil {
		return nil
	}
	return p.AppMetadata
}

// Session is the token set issued by the provider after a magic link is verified
type Session struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	TokenType    string     `json:"token_type"`
	ExpiresIn    int        `json:"expires_in"`
	ExpiresAt    int64      `json:"expires_at"`
	User         *Principal `json:"user"`
}

// OTPType identifies the kind of one-time token carried by an emailed link
type OTPType string

const (
	OTPTypeMagicLink OTPType = "magiclink"
	OTPTypeEmail     OTPType = "email"
	OTPTypeSignup    OTPType = "signup"
	OTPTypeInvite    OTPType = "invite"
)

// Valid reports whether t is a link type the callback accepts
func (t OTPType) Valid() bool {
	switch t {
	case OTPTypeMagicLink, OTPTypeEmail, OTPTypeSignup, OTPTypeInvite:
		return true
	}
	return false
}
