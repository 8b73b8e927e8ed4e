package session

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// TokenSource records where an access token was found
type TokenSource string

const (
	SourceNone   TokenSource = ""
	SourceHeader TokenSource = "header"
	SourceCookie TokenSource = "cookie"
)

// RequestContext is the explicit per-request input of the Session Resolver.
// It is extracted once from the HTTP request and passed down by value.
type RequestContext struct {
	AccessToken string
	Source      TokenSource
	RequestID   string
}

// FromRequest extracts the access token from the Authorization header
// ("Bearer TOKEN") or, failing that, from the named cookie.
// The header takes precedence when both are present.
func FromRequest(r *http.Request, cookieName string) RequestContext {
	rc := RequestContext{RequestID: middleware.GetReqID(r.Context())}

	if token := extractBearerToken(r); token != "" {
		rc.AccessToken = token
		rc.Source = SourceHeader
		return rc
	}
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		rc.AccessToken = cookie.Value
		rc.Source = SourceCookie
	}
	return rc
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
