// Package edge runs before every page handler. It resolves the caller from
// the session cookies, refreshes tokens that are about to lapse and applies
// the route policy before any page renders.
package edge

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/rfpdesk/rfpdesk/internal/auth"
	"github.com/rfpdesk/rfpdesk/internal/authz"
	"github.com/rfpdesk/rfpdesk/internal/identity"
	"github.com/rfpdesk/rfpdesk/internal/users"
)

// Authenticator is the part of the identity provider the filter needs.
type Authenticator interface {
	GetUser(ctx context.Context, accessToken string) (auth.User, error)
	Identity(ctx context.Context, u auth.User) (identity.Identity, *users.Profile, error)
	AccessTokenExpiry(token string) (time.Time, error)
	RefreshSession(ctx context.Context, refreshToken string) (identity.Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// DecisionCounter records filter outcomes.
type DecisionCounter interface {
	ObserveEdgeDecision(decision string)
}

// Decision labels.
const (
	DecisionBypass    = "bypass"
	DecisionPass      = "pass"
	DecisionLogin     = "login"
	DecisionLanding   = "landing"
	DecisionForbidden = "forbidden"
	DecisionSignOut   = "sign_out"
)

// Filter is the edge request filter.
type Filter struct {
	auth      Authenticator
	policy    authz.RoutePolicy
	cookies   auth.CookieOptions
	threshold time.Duration
	counter   DecisionCounter
	logger    *slog.Logger
	now       func() time.Time
	timeout   time.Duration
}

// Option configures a Filter.
type Option func(*Filter)

// WithRefreshThreshold sets how close to expiry a token is refreshed.
func WithRefreshThreshold(d time.Duration) Option {
	return func(f *Filter) { f.threshold = d }
}

// WithCounter records every decision on c.
func WithCounter(c DecisionCounter) Option {
	return func(f *Filter) { f.counter = c }
}

// WithTimeout bounds the calls made to resolve one request.
func WithTimeout(d time.Duration) Option {
	return func(f *Filter) { f.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Filter) { f.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(f *Filter) { f.now = now }
}

// New builds a Filter over policy.
func New(a Authenticator, policy authz.RoutePolicy, cookies auth.CookieOptions, opts ...Option) *Filter {
	f := &Filter{
		auth:      a,
		policy:    policy,
		cookies:   cookies,
		threshold: 5 * time.Minute,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type resolution struct {
	identity identity.Identity
	token    string
	ok       bool
	// broken is set when the token is valid but the profile is missing,
	// inactive or could not be read.
	broken bool
}

// Middleware returns the chi-compatible middleware.
func (f *Filter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if f.policy.Bypassed(path) {
			f.observe(DecisionBypass)
			next.ServeHTTP(w, r)
			return
		}

		res := f.resolve(w, r)
		if res.token != "" {
			r = r.WithContext(auth.ContextWithAccessToken(r.Context(), res.token))
		}
		if res.ok {
			r = r.WithContext(identity.WithIdentity(r.Context(), res.identity))
		}

		if path == "/" {
			if res.ok {
				f.redirect(w, r, f.policy.LandingPath, DecisionLanding)
			} else {
				f.redirect(w, r, f.policy.LoginPath, DecisionLogin)
			}
			return
		}

		switch f.policy.Classify(path) {
		case authz.PathAuthOnly:
			if res.ok {
				f.redirect(w, r, f.policy.LandingPath, DecisionLanding)
				return
			}
		case authz.PathProtected:
			switch {
			case res.broken:
				f.forceSignOut(w, r, res.token)
				return
			case !res.ok:
				f.redirect(w, r, loginWithFrom(f.policy.LoginPath, path), DecisionLogin)
				return
			case !f.policy.RouteAllowed(path, res.identity.Role):
				f.logger.Info("edge denied route",
					slog.String("path", path),
					slog.String("role", string(res.identity.Role)))
				f.redirect(w, r, f.policy.ForbiddenPath, DecisionForbidden)
				return
			}
		}
		f.observe(DecisionPass)
		next.ServeHTTP(w, r)
	})
}

func (f *Filter) resolve(w http.ResponseWriter, r *http.Request) resolution {
	ctx := r.Context()
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	access, refresh := auth.TokensFromRequest(r)
	if access == "" && refresh == "" {
		return resolution{}
	}

	refreshed := false
	if access != "" {
		expiry, err := f.auth.AccessTokenExpiry(access)
		if err != nil {
			access = ""
		} else if remaining := expiry.Sub(f.now()); remaining <= f.threshold {
			if refresh != "" {
				refreshed = true
				if sess, ok := f.refresh(ctx, w, refresh, remaining > 0); ok {
					access = sess.AccessToken
				} else if remaining <= 0 {
					return resolution{}
				}
			} else if remaining <= 0 {
				access = ""
			}
		}
	}
	if access == "" && refresh != "" && !refreshed {
		sess, ok := f.refresh(ctx, w, refresh, false)
		if !ok {
			return resolution{}
		}
		access = sess.AccessToken
	}
	if access == "" {
		return resolution{}
	}

	user, err := f.auth.GetUser(ctx, access)
	if err != nil {
		if errors.Is(err, auth.ErrSessionExpired) {
			auth.ClearSessionCookies(w, f.cookies)
		}
		return resolution{}
	}
	id, profile, err := f.auth.Identity(ctx, user)
	if err != nil {
		f.logger.Error("edge profile lookup", slog.Any("error", err), slog.String("user_id", user.ID.String()))
		return resolution{token: access, broken: true}
	}
	if profile == nil || !profile.IsActive {
		return resolution{token: access, broken: true}
	}
	return resolution{identity: id, token: access, ok: true}
}

// refresh rotates the session cookies. When keepOnFailure is set the caller
// still holds a usable access token, so a failed refresh leaves the cookies
// alone; otherwise both are cleared.
func (f *Filter) refresh(ctx context.Context, w http.ResponseWriter, refreshToken string, keepOnFailure bool) (identity.Session, bool) {
	sess, err := f.auth.RefreshSession(ctx, refreshToken)
	if err != nil {
		f.logger.Info("edge token refresh failed", slog.Any("error", err))
		if !keepOnFailure {
			auth.ClearSessionCookies(w, f.cookies)
		}
		return identity.Session{}, false
	}
	auth.SetSessionCookies(w, sess, f.cookies)
	return sess, true
}

func (f *Filter) forceSignOut(w http.ResponseWriter, r *http.Request, token string) {
	if err := f.auth.SignOut(r.Context(), token); err != nil {
		f.logger.Warn("edge sign out", slog.Any("error", err))
	}
	auth.ClearSessionCookies(w, f.cookies)
	f.redirect(w, r, f.policy.LoginPath, DecisionSignOut)
}

func (f *Filter) redirect(w http.ResponseWriter, r *http.Request, location, decision string) {
	f.observe(decision)
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func (f *Filter) observe(decision string) {
	if f.counter != nil {
		f.counter.ObserveEdgeDecision(decision)
	}
}

func loginWithFrom(login, from string) string {
	return login + "?" + url.Values{"from": {from}}.Encode()
}
