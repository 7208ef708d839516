package authclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rfpdesk/rfpdesk/internal/auth"
	"github.com/rfpdesk/rfpdesk/internal/authz"
	"github.com/rfpdesk/rfpdesk/internal/identity"
	"github.com/rfpdesk/rfpdesk/internal/platform/httpx"
	"github.com/rfpdesk/rfpdesk/internal/session"
)

type fakeServer struct {
	id        identity.Identity
	issued    atomic.Int32
	loggedOut atomic.Int32

	mu      sync.Mutex
	refresh string
}

func (f *fakeServer) setRefresh(v string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh = v
}

func (f *fakeServer) validRefresh(v string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return v == f.refresh
}

func (f *fakeServer) session() identity.Session {
	n := f.issued.Add(1)
	refresh := "refresh-" + strconv.Itoa(int(n))
	f.setRefresh(refresh)
	return identity.Session{
		AccessToken:  "access-" + strconv.Itoa(int(n)),
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
		Identity:     f.id,
	}
}

func (f *fakeServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/api/auth/token", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch r.URL.Query().Get("grant_type") {
		case "password":
			if body["password"] != "Sup3r$ecret" {
				httpx.ProblemWithCode(w, http.StatusUnauthorized, "Unauthorized", "invalid email or password", string(auth.CodeInvalidCredentials), nil)
				return
			}
		case "refresh_token":
			if !f.validRefresh(body["refresh_token"]) {
				httpx.ProblemWithCode(w, http.StatusUnauthorized, "Unauthorized", "session has expired", string(auth.CodeSessionExpired), nil)
				return
			}
		}
		httpx.JSON(w, http.StatusOK, f.session())
	})
	r.Post("/api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		f.loggedOut.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/api/auth/signup", func(w http.ResponseWriter, r *http.Request) {
		httpx.ProblemWithCode(w, http.StatusBadRequest, "Validation Failed", "", "VALIDATION_ERROR", map[string]string{"email": "Enter a valid email address"})
	})
	r.Get("/api/auth/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			httpx.ProblemWithCode(w, http.StatusUnauthorized, "Unauthorized", "", string(auth.CodeSessionExpired), nil)
			return
		}
		httpx.JSON(w, http.StatusOK, f.id)
	})
	return r
}

func newTestClient(t *testing.T) (*Client, *fakeServer, TokenStore) {
	t.Helper()
	fs := &fakeServer{id: identity.Identity{ID: uuid.New(), Email: "rev@example.com", Name: "Reviewer", Role: authz.RoleReviewer}}
	srv := httptest.NewServer(fs.routes())
	t.Cleanup(srv.Close)
	store := NewFileStore(filepath.Join(t.TempDir(), "rfpctl", "session.json"))
	c, err := New(srv.URL, store)
	require.NoError(t, err)
	return c, fs, store
}

func TestSignInPersistsSession(t *testing.T) {
	c, _, store := newTestClient(t)
	var seen []identity.EventType
	c.OnAuthStateChange(func(ev identity.Event) { seen = append(seen, ev.Type) })

	sess, err := c.SignInWithPassword(context.Background(), "rev@example.com", "Sup3r$ecret")
	require.NoError(t, err)
	assert.Equal(t, authz.RoleReviewer, sess.Identity.Role)

	stored, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, sess.AccessToken, stored.AccessToken)
	assert.Equal(t, []identity.EventType{identity.EventSignedIn}, seen)

	id, err := c.GetUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rev@example.com", id.Email)
}

func TestProblemCodesBecomeTaxonomyErrors(t *testing.T) {
	c, _, _ := newTestClient(t)

	_, err := c.SignInWithPassword(context.Background(), "rev@example.com", "nope")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = c.SignUp(context.Background(), auth.SignUpRequest{Email: "x"})
	var verr *auth.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Enter a valid email address", verr.Fields["email"])

	_, err = c.RefreshSession(context.Background())
	assert.ErrorIs(t, err, auth.ErrSessionExpired)
}

func TestUnreachableServerIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()
	c, err := New(addr, nil)
	require.NoError(t, err)

	_, err = c.SignInWithPassword(context.Background(), "a@example.com", "Sup3r$ecret")
	assert.ErrorIs(t, err, auth.ErrNetwork)
}

func TestRefreshRotatesAndRejectedRefreshClears(t *testing.T) {
	c, fs, store := newTestClient(t)
	first, err := c.SignInWithPassword(context.Background(), "rev@example.com", "Sup3r$ecret")
	require.NoError(t, err)

	second, err := c.RefreshSession(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	fs.setRefresh("rotated-elsewhere")
	_, err = c.RefreshSession(context.Background())
	assert.ErrorIs(t, err, auth.ErrSessionExpired)
	stored, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestSignOutClearsEvenTwice(t *testing.T) {
	c, fs, store := newTestClient(t)
	_, err := c.SignInWithPassword(context.Background(), "rev@example.com", "Sup3r$ecret")
	require.NoError(t, err)

	require.NoError(t, c.SignOut(context.Background()))
	require.NoError(t, c.SignOut(context.Background()))
	assert.Equal(t, int32(1), fs.loggedOut.Load())
	stored, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestStoreOverClient(t *testing.T) {
	c, _, _ := newTestClient(t)
	s := session.NewStore(c)
	t.Cleanup(s.Close)
	require.NoError(t, s.Start(context.Background()))
	assert.False(t, s.Snapshot().IsAuthenticated())

	var events []identity.EventType
	s.Subscribe(func(ev session.Event) { events = append(events, ev.Type) })

	_, err := s.Login(context.Background(), "rev@example.com", "Sup3r$ecret")
	require.NoError(t, err)
	assert.True(t, s.HasRole(authz.RoleReviewer))
	assert.Equal(t, []identity.EventType{identity.EventSignedIn}, events)

	s2 := session.NewStore(c)
	t.Cleanup(s2.Close)
	require.NoError(t, s2.Start(context.Background()))
	assert.True(t, s2.Snapshot().IsAuthenticated())
}

func TestFileStorePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	store := NewFileStore(path)

	sess, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, sess)

	require.NoError(t, store.Save(identity.Session{AccessToken: "a", RefreshToken: "r"}))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New("ftp://example.com", nil)
	assert.Error(t, err)
}
