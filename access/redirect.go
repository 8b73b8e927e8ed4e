package access

import (
	"net/url"
	"strings"
)

// RedirectParam is the query parameter that carries the intended path
const RedirectParam = "redirect"

// SignInTarget builds the sign-in URL for intendedPath. An empty intendedPath
// yields signInPath with no query string at all.
func SignInTarget(signInPath, intendedPath string) string {
	if intendedPath == "" {
		return signInPath
	}
	return signInPath + "?" + RedirectParam + "=" + EncodeComponent(intendedPath)
}

// EncodeComponent percent-encodes s for use as a single query value.
// Spaces become %20 so the value round-trips through any URL decoder.
func EncodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// RawQueryValue returns the still-encoded value of key in rawQuery, exactly as
// the client sent it. The second result is false when the key is absent.
func RawQueryValue(rawQuery, key string) (string, bool) {
	for rawQuery != "" {
		var pair string
		pair, rawQuery, _ = strings.Cut(rawQuery, "&")
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		if decoded, err := url.QueryUnescape(k); err == nil {
			k = decoded
		}
		if k == key {
			return v, true
		}
	}
	return "", false
}

// SafeRedirectPath returns p when it is a same-origin absolute path and
// fallback otherwise. Scheme-relative ("//host") and backslash tricks are rejected.
func SafeRedirectPath(p, fallback string) string {
	if p == "" || !strings.HasPrefix(p, "/") {
		return fallback
	}
	if strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") || strings.ContainsAny(p, "\r\n") {
		return fallback
	}
	u, err := url.Parse(p)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	return p
}
