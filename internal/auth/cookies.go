package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/rfpdesk/rfpdesk/internal/identity"
)

const (
	AccessCookieName  = "rfp-access-token"
	RefreshCookieName = "rfp-refresh-token"
)

// CookieOptions controls how session cookies are written.
type CookieOptions struct {
	Secure     bool
	RefreshTTL time.Duration
}

// SetSessionCookies stores both tokens of sess as HttpOnly cookies.
func SetSessionCookies(w http.ResponseWriter, sess identity.Session, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessCookieName,
		Value:    sess.AccessToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.Expiry(),
	})
	refreshTTL := opts.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    sess.RefreshToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(refreshTTL.Seconds()),
	})
}

// ClearSessionCookies expires both token cookies.
func ClearSessionCookies(w http.ResponseWriter, opts CookieOptions) {
	for _, name := range []string{AccessCookieName, RefreshCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			Secure:   opts.Secure,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   -1,
		})
	}
}

type accessTokenContextKey struct{}

// ContextWithAccessToken records a token issued while serving the request,
// so handlers see it instead of the stale cookie.
func ContextWithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenContextKey{}, token)
}

// TokensFromRequest reads the token cookies. Missing cookies yield "".
func TokensFromRequest(r *http.Request) (access, refresh string) {
	if token, ok := r.Context().Value(accessTokenContextKey{}).(string); ok {
		access = token
	} else if c, err := r.Cookie(AccessCookieName); err == nil {
		access = c.Value
	}
	if c, err := r.Cookie(RefreshCookieName); err == nil {
		refresh = c.Value
	}
	return access, refresh
}
