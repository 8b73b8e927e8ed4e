package session

import (
	"net/http"
	"time"

	"github.com/upb/portal/identity"
)

// CookieOptions controls how session cookies are written
type CookieOptions struct {
	AccessName string
	Secure     bool
	MaxAge     time.Duration
}

// SetCookies stores the provider-issued access token as an HttpOnly cookie.
// The cookie lives as long as the access token when the provider says so.
// Sessions are not refreshed: an expired token means signing in again.
func SetCookies(w http.ResponseWriter, opts CookieOptions, s *identity.Session) {
	maxAge := opts.MaxAge
	if s.ExpiresIn > 0 {
		maxAge = time.Duration(s.ExpiresIn) * time.Second
	}
	http.SetCookie(w, newCookie(opts.AccessName, s.AccessToken, maxAge, opts.Secure))
}

// ClearCookies expires the session cookie
func ClearCookies(w http.ResponseWriter, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     opts.AccessName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SameSite=Lax so the cookie survives the top-level navigation from the emailed link.
func newCookie(name, value string, maxAge time.Duration, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}
