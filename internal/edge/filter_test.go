package edge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rfpdesk/rfpdesk/internal/auth"
	"github.com/rfpdesk/rfpdesk/internal/authz"
	"github.com/rfpdesk/rfpdesk/internal/identity"
	"github.com/rfpdesk/rfpdesk/internal/users"
)

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type account struct {
	user    auth.User
	profile *users.Profile
	expiry  time.Time
}

type fakeAuth struct {
	mu         sync.Mutex
	accounts   map[string]account
	refreshes  map[string]string
	refreshed  int
	signedOut  []string
	profileErr error
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{accounts: map[string]account{}, refreshes: map[string]string{}}
}

func (f *fakeAuth) add(token string, role authz.Role, active bool, expiry time.Time) {
	id := uuid.New()
	f.accounts[token] = account{
		user:    auth.User{ID: id, Email: string(role) + "@example.com"},
		profile: &users.Profile{ID: id, Role: role, IsActive: active},
		expiry:  expiry,
	}
}

func (f *fakeAuth) GetUser(_ context.Context, token string) (auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[token]
	if !ok || !a.expiry.After(now) {
		return auth.User{}, auth.ErrSessionExpired
	}
	return a.user, nil
}

func (f *fakeAuth) Identity(_ context.Context, u auth.User) (identity.Identity, *users.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profileErr != nil {
		return identity.Identity{}, nil, f.profileErr
	}
	for _, a := range f.accounts {
		if a.user.ID == u.ID {
			return auth.NewIdentity(u, a.profile), a.profile, nil
		}
	}
	return auth.NewIdentity(u, nil), nil, nil
}

func (f *fakeAuth) AccessTokenExpiry(token string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[token]
	if !ok {
		return time.Time{}, auth.ErrSessionExpired
	}
	return a.expiry, nil
}

func (f *fakeAuth) RefreshSession(_ context.Context, refresh string) (identity.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	old, ok := f.refreshes[refresh]
	if !ok {
		return identity.Session{}, auth.ErrSessionExpired
	}
	delete(f.refreshes, refresh)
	f.refreshed++
	a := f.accounts[old]
	a.expiry = now.Add(time.Hour)
	f.accounts["fresh-"+old] = a
	return identity.Session{AccessToken: "fresh-" + old, RefreshToken: "r2-" + old, ExpiresAt: a.expiry.Unix()}, nil
}

func (f *fakeAuth) SignOut(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signedOut = append(f.signedOut, token)
	return nil
}

type countingDecisions map[string]int

func (c countingDecisions) ObserveEdgeDecision(d string) { c[d]++ }

type harness struct {
	auth    *fakeAuth
	counts  countingDecisions
	handler http.Handler
	seen    *identity.Identity
	token   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{auth: newFakeAuth(), counts: countingDecisions{}}
	filter := New(h.auth, authz.DefaultRoutePolicy(), auth.CookieOptions{},
		WithCounter(h.counts),
		WithClock(func() time.Time { return now }))
	h.handler = filter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := identity.FromContext(r.Context()); ok {
			h.seen = &id
		}
		h.token, _ = auth.TokensFromRequest(r)
		w.WriteHeader(http.StatusOK)
	}))
	return h
}

func (h *harness) get(path string, cookies map[string]string) *httptest.ResponseRecorder {
	h.seen = nil
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for name, value := range cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	return rr
}

func access(token string) map[string]string {
	return map[string]string{auth.AccessCookieName: token}
}

func cookieValue(rr *httptest.ResponseRecorder, name string) (string, bool) {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

func TestBypassSkipsResolution(t *testing.T) {
	h := newHarness(t)
	paths := []string{"/static/app.css", "/api/auth/token", "/favicon.ico", "/rfps/logo.png", "/settings/x.json"}
	for _, path := range paths {
		rr := h.get(path, nil)
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.Nil(t, h.seen, "no identity is resolved for %s", path)
	}
	assert.Equal(t, len(paths), h.counts[DecisionBypass])
	assert.Zero(t, h.counts[DecisionLogin])
}

func TestAnonymousProtectedRedirectsToLoginWithFrom(t *testing.T) {
	h := newHarness(t)
	rr := h.get("/rfps", nil)
	require.Equal(t, http.StatusSeeOther, rr.Code)

	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/login", loc.Path)
	assert.Equal(t, "/rfps", loc.Query().Get("from"))
	assert.Equal(t, 1, h.counts[DecisionLogin])
}

func TestRootRedirects(t *testing.T) {
	h := newHarness(t)
	h.auth.add("tok", authz.RoleWriter, true, now.Add(time.Hour))

	assert.Equal(t, "/login", h.get("/", nil).Header().Get("Location"))
	assert.Equal(t, "/rfps", h.get("/", access("tok")).Header().Get("Location"))
}

func TestAuthOnlyRedirectsSignedInUsers(t *testing.T) {
	h := newHarness(t)
	h.auth.add("tok", authz.RoleWriter, true, now.Add(time.Hour))

	assert.Equal(t, http.StatusOK, h.get("/login", nil).Code)
	rr := h.get("/signup", access("tok"))
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/rfps", rr.Header().Get("Location"))
}

func TestPublicPassesEitherWay(t *testing.T) {
	h := newHarness(t)
	h.auth.add("tok", authz.RoleReviewer, true, now.Add(time.Hour))

	assert.Equal(t, http.StatusOK, h.get("/auth/reset-password", nil).Code)
	assert.Equal(t, http.StatusOK, h.get("/auth/callback", access("tok")).Code)
	require.NotNil(t, h.seen)
	assert.Equal(t, authz.RoleReviewer, h.seen.Role)
}

func TestRoleAllowList(t *testing.T) {
	h := newHarness(t)
	h.auth.add("writer", authz.RoleWriter, true, now.Add(time.Hour))
	h.auth.add("manager", authz.RoleManager, true, now.Add(time.Hour))
	h.auth.add("admin", authz.RoleAdmin, true, now.Add(time.Hour))
	h.auth.add("reviewer", authz.RoleReviewer, true, now.Add(time.Hour))

	cases := []struct {
		token, path string
		status      int
		location    string
	}{
		{"writer", "/proposals/new", http.StatusOK, ""},
		{"writer", "/settings/users", http.StatusSeeOther, "/403"},
		{"writer", "/prototypes", http.StatusSeeOther, "/403"},
		{"reviewer", "/clients", http.StatusOK, ""},
		{"reviewer", "/settings", http.StatusSeeOther, "/403"},
		{"manager", "/settings/profile", http.StatusOK, ""},
		{"admin", "/settings/users", http.StatusOK, ""},
	}
	for _, tc := range cases {
		rr := h.get(tc.path, access(tc.token))
		assert.Equal(t, tc.status, rr.Code, "%s %s", tc.token, tc.path)
		assert.Equal(t, tc.location, rr.Header().Get("Location"), "%s %s", tc.token, tc.path)
	}
	assert.Equal(t, 3, h.counts[DecisionForbidden])
}

func TestInactiveProfileIsSignedOut(t *testing.T) {
	h := newHarness(t)
	h.auth.add("tok", authz.RoleManager, false, now.Add(time.Hour))

	rr := h.get("/rfps", access("tok"))
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))
	assert.Equal(t, []string{"tok"}, h.auth.signedOut)
	v, ok := cookieValue(rr, auth.AccessCookieName)
	assert.True(t, ok)
	assert.Empty(t, v)
	assert.Equal(t, 1, h.counts[DecisionSignOut])
}

func TestProfileLookupFailureIsSignedOut(t *testing.T) {
	h := newHarness(t)
	h.auth.add("tok", authz.RoleAdmin, true, now.Add(time.Hour))
	h.auth.profileErr = auth.ErrUnknown

	rr := h.get("/rfps", access("tok"))
	assert.Equal(t, "/login", rr.Header().Get("Location"))
	assert.Len(t, h.auth.signedOut, 1)
}

func TestNearExpiryTokenIsRefreshed(t *testing.T) {
	h := newHarness(t)
	h.auth.add("tok", authz.RoleWriter, true, now.Add(2*time.Minute))
	h.auth.refreshes["ref"] = "tok"

	rr := h.get("/rfps", map[string]string{auth.AccessCookieName: "tok", auth.RefreshCookieName: "ref"})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, h.auth.refreshed)

	v, ok := cookieValue(rr, auth.AccessCookieName)
	require.True(t, ok)
	assert.Equal(t, "fresh-tok", v)
	assert.Equal(t, "fresh-tok", h.token)
}

func TestExpiredTokenWithFailedRefreshClearsCookies(t *testing.T) {
	h := newHarness(t)
	h.auth.add("tok", authz.RoleWriter, true, now.Add(-time.Minute))

	rr := h.get("/rfps", map[string]string{auth.AccessCookieName: "tok", auth.RefreshCookieName: "stale"})
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Contains(t, rr.Header().Get("Location"), "/login")
	v, ok := cookieValue(rr, auth.RefreshCookieName)
	assert.True(t, ok)
	assert.Empty(t, v)
}

func TestFailedRefreshKeepsStillValidToken(t *testing.T) {
	h := newHarness(t)
	h.auth.add("tok", authz.RoleWriter, true, now.Add(time.Minute))

	rr := h.get("/rfps", map[string]string{auth.AccessCookieName: "tok", auth.RefreshCookieName: "stale"})
	assert.Equal(t, http.StatusOK, rr.Code)
	_, ok := cookieValue(rr, auth.AccessCookieName)
	assert.False(t, ok)
}

func TestRefreshCookieAloneRestoresSession(t *testing.T) {
	h := newHarness(t)
	h.auth.add("tok", authz.RoleWriter, true, now.Add(-time.Hour))
	h.auth.refreshes["ref"] = "tok"

	rr := h.get("/proposals", map[string]string{auth.RefreshCookieName: "ref"})
	assert.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, h.seen)
	assert.Equal(t, authz.RoleWriter, h.seen.Role)
}

func TestGarbageTokenIsAnonymous(t *testing.T) {
	h := newHarness(t)
	rr := h.get("/clients", access("garbage"))
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Contains(t, rr.Header().Get("Location"), "/login?from=")
}

type deadlineAuth struct {
	*fakeAuth
	deadline time.Time
	hasLimit bool
}

func (d *deadlineAuth) GetUser(ctx context.Context, token string) (auth.User, error) {
	d.deadline, d.hasLimit = ctx.Deadline()
	return d.fakeAuth.GetUser(ctx, token)
}

func TestTimeoutBoundsResolution(t *testing.T) {
	fa := &deadlineAuth{fakeAuth: newFakeAuth()}
	fa.add("tok", authz.RoleWriter, true, now.Add(time.Hour))
	filter := New(fa, authz.DefaultRoutePolicy(), auth.CookieOptions{},
		WithClock(func() time.Time { return now }),
		WithTimeout(2*time.Second))
	handler := filter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/rfps", nil)
	req.AddCookie(&http.Cookie{Name: auth.AccessCookieName, Value: "tok"})
	start := time.Now()
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	require.True(t, fa.hasLimit)
	assert.WithinDuration(t, start.Add(2*time.Second), fa.deadline, time.Second)
}
