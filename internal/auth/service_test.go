package auth

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/rfpdesk/rfpdesk/internal/authz"
	"github.com/rfpdesk/rfpdesk/internal/identity"
	"github.com/rfpdesk/rfpdesk/internal/shared"
	"github.com/rfpdesk/rfpdesk/internal/users"
)

type memoryRepo struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]Account
	sessions map[string]memorySession
}

type memorySession struct {
	userID    uuid.UUID
	expiresAt time.Time
	revoked   bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{accounts: map[uuid.UUID]Account{}, sessions: map[string]memorySession{}}
}

func (m *memoryRepo) FindByEmail(_ context.Context, email string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Email == normalizeEmail(email) {
			return a, nil
		}
	}
	return Account{}, shared.ErrNotFound
}

func (m *memoryRepo) FindByID(_ context.Context, id uuid.UUID) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return Account{}, shared.ErrNotFound
	}
	return a, nil
}

func (m *memoryRepo) CreateAccount(_ context.Context, a Account) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.accounts {
		if existing.Email == a.Email {
			return Account{}, ErrEmailAlreadyExists
		}
	}
	a.CreatedAt = time.Now().UTC()
	m.accounts[a.ID] = a
	return a, nil
}

func (m *memoryRepo) DeleteAccount(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, id)
	return nil
}

func (m *memoryRepo) ConfirmEmail(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accounts[id]
	a.EmailConfirmedAt = &at
	m.accounts[id] = a
	return nil
}

func (m *memoryRepo) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return shared.ErrNotFound
	}
	a.PasswordHash = hash
	m.accounts[id] = a
	return nil
}

func (m *memoryRepo) TouchSignIn(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accounts[id]
	a.LastSignInAt = &at
	m.accounts[id] = a
	return nil
}

func (m *memoryRepo) CreateSession(_ context.Context, id string, userID uuid.UUID, expiresAt time.Time, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = memorySession{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *memoryRepo) ExtendSession(_ context.Context, id string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[id]
	s.expiresAt = expiresAt
	m.sessions[id] = s
	return nil
}

func (m *memoryRepo) RevokeSession(_ context.Context, id string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if ok {
		s.revoked = true
		m.sessions[id] = s
	}
	return nil
}

func (m *memoryRepo) ListLiveSessions(_ context.Context, userID uuid.UUID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, s := range m.sessions {
		if s.userID == userID && !s.revoked {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memoryRepo) PurgeExpiredSessions(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.expiresAt.Before(before) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

type memoryProfiles struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]users.Profile
}

func (m *memoryProfiles) GetProfile(_ context.Context, id uuid.UUID) (*users.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memoryProfiles) CreateProfile(_ context.Context, id uuid.UUID, email, name string, role authz.Role) (users.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := users.Profile{ID: id, Email: email, Name: name, Role: role, IsActive: true}
	m.profiles[id] = p
	return p, nil
}

func (m *memoryProfiles) DeleteProfile(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.profiles, id)
	return nil
}

func (m *memoryProfiles) UpdateProfile(_ context.Context, id uuid.UUID, upd users.ProfileUpdate) (users.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.profiles[id]
	p.Name = upd.Name
	p.Department = upd.Department
	p.Position = upd.Position
	p.Phone = upd.Phone
	m.profiles[id] = p
	return p, nil
}

func (m *memoryProfiles) set(p users.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = p
}

type sentMail struct {
	to, subject, text string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *recordingMailer) SendMail(_ context.Context, to, subject, text, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to: to, subject: subject, text: text})
	return nil
}

func (m *recordingMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	return m.sent[len(m.sent)-1]
}

type fixture struct {
	svc      *Service
	repo     *memoryRepo
	profiles *memoryProfiles
	mailer   *recordingMailer
	redis    *miniredis.Miniredis
	events   []identity.Event
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	f := &fixture{
		repo:     newMemoryRepo(),
		profiles: &memoryProfiles{profiles: map[uuid.UUID]users.Profile{}},
		mailer:   &recordingMailer{},
		redis:    mr,
		now:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.repo, f.profiles, NewRedisTokenStore(client), f.mailer, Config{
		JWTSecret:       []byte("test-secret"),
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
		SiteURL:         "https://rfp.example.com/",
		BcryptCost:      bcrypt.MinCost,
	}, nil)
	f.svc.now = func() time.Time { return f.now }
	f.svc.OnAuthStateChange(func(ev identity.Event) { f.events = append(f.events, ev) })
	return f
}

const strongPassword = "Sup3r$ecret"

func (f *fixture) seed(t *testing.T, email string, role authz.Role, confirmed bool) Account {
	t.Helper()
	hash, err := hashPassword(strongPassword, bcrypt.MinCost)
	require.NoError(t, err)
	a := Account{ID: uuid.New(), Email: email, PasswordHash: hash}
	if confirmed {
		at := f.now
		a.EmailConfirmedAt = &at
	}
	a, err = f.repo.CreateAccount(context.Background(), a)
	require.NoError(t, err)
	f.profiles.set(users.Profile{ID: a.ID, Email: email, Name: "Test User", Role: role, IsActive: true})
	return a
}

func (f *fixture) eventTypes() []identity.EventType {
	out := make([]identity.EventType, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.Type
	}
	return out
}

func tokenFromLink(t *testing.T, body string) string {
	t.Helper()
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "https://") {
			u, err := url.Parse(strings.TrimSpace(line))
			require.NoError(t, err)
			return u.Query().Get("token")
		}
	}
	t.Fatalf("no link in mail body: %q", body)
	return ""
}

func TestSignUpCreatesWriterProfileAndSendsConfirmation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.svc.SignUp(ctx, SignUpRequest{
		Email:           "  New.User@Example.com ",
		Password:        strongPassword,
		PasswordConfirm: strongPassword,
		Name:            "New User",
		TermsAccepted:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, "new.user@example.com", user.Email)
	assert.False(t, user.EmailConfirmed)

	profile, err := f.profiles.GetProfile(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, authz.RoleWriter, profile.Role)

	mail := f.mailer.last(t)
	assert.Equal(t, "new.user@example.com", mail.to)
	assert.Contains(t, mail.text, "https://rfp.example.com/auth/callback?")

	_, err = f.svc.SignInWithPassword(ctx, user.Email, strongPassword, ClientMeta{})
	assert.ErrorIs(t, err, ErrEmailNotVerified)

	confirmed, err := f.svc.ConfirmEmail(ctx, tokenFromLink(t, mail.text))
	require.NoError(t, err)
	assert.True(t, confirmed.EmailConfirmed)

	sess, err := f.svc.SignInWithPassword(ctx, user.Email, strongPassword, ClientMeta{})
	require.NoError(t, err)
	assert.Equal(t, "New User", sess.Identity.Name)
}

func TestSignUpRejectsInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "taken@example.com", authz.RoleWriter, true)

	_, err := f.svc.SignUp(ctx, SignUpRequest{Email: "bad", Password: "x", PasswordConfirm: "y", Name: "A"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "email")
	assert.Contains(t, verr.Fields, "password_confirm")
	assert.Contains(t, verr.Fields, "name")
	assert.Contains(t, verr.Fields, "terms_accepted")

	_, err = f.svc.SignUp(ctx, SignUpRequest{Email: "weak@example.com", Password: "password", PasswordConfirm: "password", Name: "Weak", TermsAccepted: true})
	assert.ErrorIs(t, err, ErrWeakPassword)

	_, err = f.svc.SignUp(ctx, SignUpRequest{Email: "TAKEN@example.com", Password: strongPassword, PasswordConfirm: strongPassword, Name: "Dup", TermsAccepted: true})
	assert.ErrorIs(t, err, ErrEmailAlreadyExists)
}

func TestSignInFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.seed(t, "user@example.com", authz.RoleReviewer, true)

	_, err := f.svc.SignInWithPassword(ctx, "nobody@example.com", strongPassword, ClientMeta{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.SignInWithPassword(ctx, "user@example.com", "wrong", ClientMeta{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	f.profiles.set(users.Profile{ID: acc.ID, Email: acc.Email, Role: authz.RoleReviewer, IsActive: false})
	_, err = f.svc.SignInWithPassword(ctx, "user@example.com", strongPassword, ClientMeta{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Empty(t, f.events)
}

func TestSignInIssuesVerifiableSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.seed(t, "mgr@example.com", authz.RoleManager, true)

	sess, err := f.svc.SignInWithPassword(ctx, "MGR@example.com", strongPassword, ClientMeta{IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, "bearer", sess.TokenType)
	assert.Equal(t, f.now.Add(time.Hour).Unix(), sess.ExpiresAt)
	assert.Equal(t, authz.RoleManager, sess.Identity.Role)
	assert.NotEmpty(t, sess.RefreshToken)

	user, err := f.svc.GetUser(ctx, sess.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, user.ID)
	assert.NotNil(t, user.LastSignInAt)

	assert.Equal(t, []identity.EventType{identity.EventSignedIn}, f.eventTypes())

	f.now = f.now.Add(2 * time.Hour)
	_, err = f.svc.GetUser(ctx, sess.AccessToken)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestRefreshRotatesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "w@example.com", authz.RoleWriter, true)

	first, err := f.svc.SignInWithPassword(ctx, "w@example.com", strongPassword, ClientMeta{})
	require.NoError(t, err)

	f.now = f.now.Add(56 * time.Minute)
	second, err := f.svc.RefreshSession(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Greater(t, second.ExpiresAt, first.ExpiresAt)

	f.redis.FastForward(11 * time.Second)
	_, err = f.svc.RefreshSession(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionExpired)

	_, err = f.svc.GetUser(ctx, second.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, []identity.EventType{identity.EventSignedIn, identity.EventTokenRefreshed}, f.eventTypes())
}

func TestRefreshFailsForDeactivatedProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.seed(t, "w@example.com", authz.RoleWriter, true)

	sess, err := f.svc.SignInWithPassword(ctx, "w@example.com", strongPassword, ClientMeta{})
	require.NoError(t, err)
	f.profiles.set(users.Profile{ID: acc.ID, Role: authz.RoleWriter, IsActive: false})

	_, err = f.svc.RefreshSession(ctx, sess.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionExpired)
	_, err = f.svc.GetUser(ctx, sess.AccessToken)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestSignOutIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "w@example.com", authz.RoleWriter, true)

	sess, err := f.svc.SignInWithPassword(ctx, "w@example.com", strongPassword, ClientMeta{})
	require.NoError(t, err)

	require.NoError(t, f.svc.SignOut(ctx, sess.AccessToken))
	require.NoError(t, f.svc.SignOut(ctx, sess.AccessToken))
	require.NoError(t, f.svc.SignOut(ctx, ""))
	require.NoError(t, f.svc.SignOut(ctx, "garbage"))

	_, err = f.svc.GetUser(ctx, sess.AccessToken)
	assert.ErrorIs(t, err, ErrSessionExpired)
	_, err = f.svc.RefreshSession(ctx, sess.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestPasswordRecoveryFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "w@example.com", authz.RoleWriter, true)
	old, err := f.svc.SignInWithPassword(ctx, "w@example.com", strongPassword, ClientMeta{})
	require.NoError(t, err)

	require.NoError(t, f.svc.ResetPasswordForEmail(ctx, "unknown@example.com", ""))
	assert.Empty(t, f.mailer.sent)

	require.NoError(t, f.svc.ResetPasswordForEmail(ctx, "w@example.com", "/auth/update-password"))
	mail := f.mailer.last(t)
	assert.Contains(t, mail.text, "https://rfp.example.com/auth/update-password?token=")
	token := tokenFromLink(t, mail.text)

	err = f.svc.UpdatePasswordWithRecovery(ctx, RecoveryPasswordRequest{Token: token, Password: "N3w$ecret", PasswordConfirm: "different"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	require.NoError(t, f.svc.UpdatePasswordWithRecovery(ctx, RecoveryPasswordRequest{Token: token, Password: "N3w$ecret", PasswordConfirm: "N3w$ecret"}))
	err = f.svc.UpdatePasswordWithRecovery(ctx, RecoveryPasswordRequest{Token: token, Password: "N3w$ecret", PasswordConfirm: "N3w$ecret"})
	assert.ErrorIs(t, err, ErrSessionExpired)

	_, err = f.svc.GetUser(ctx, old.AccessToken)
	assert.ErrorIs(t, err, ErrSessionExpired)
	_, err = f.svc.SignInWithPassword(ctx, "w@example.com", "N3w$ecret", ClientMeta{})
	require.NoError(t, err)
	assert.Contains(t, f.eventTypes(), identity.EventPasswordRecovery)
}

func TestRecoveryLinkIgnoresForeignRedirect(t *testing.T) {
	f := newFixture(t)
	link := f.svc.recoveryLink("https://evil.example.net/steal", "tok")
	assert.Equal(t, "https://rfp.example.com/auth/update-password?token=tok", link)
}

func TestChangePasswordKeepsCurrentSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "w@example.com", authz.RoleWriter, true)
	other, err := f.svc.SignInWithPassword(ctx, "w@example.com", strongPassword, ClientMeta{})
	require.NoError(t, err)
	current, err := f.svc.SignInWithPassword(ctx, "w@example.com", strongPassword, ClientMeta{})
	require.NoError(t, err)

	err = f.svc.ChangePassword(ctx, current.AccessToken, UpdatePasswordRequest{CurrentPassword: "wrong", NewPassword: "N3w$ecret", NewPasswordConfirm: "N3w$ecret"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	err = f.svc.ChangePassword(ctx, current.AccessToken, UpdatePasswordRequest{CurrentPassword: strongPassword, NewPassword: strongPassword, NewPasswordConfirm: strongPassword})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "new_password")

	require.NoError(t, f.svc.ChangePassword(ctx, current.AccessToken, UpdatePasswordRequest{CurrentPassword: strongPassword, NewPassword: "N3w$ecret", NewPasswordConfirm: "N3w$ecret"}))

	_, err = f.svc.GetUser(ctx, current.AccessToken)
	require.NoError(t, err)
	_, err = f.svc.GetUser(ctx, other.AccessToken)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestUpdateProfilePublishesUserUpdated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "w@example.com", authz.RoleWriter, true)
	sess, err := f.svc.SignInWithPassword(ctx, "w@example.com", strongPassword, ClientMeta{})
	require.NoError(t, err)

	id, err := f.svc.UpdateProfile(ctx, sess.AccessToken, users.ProfileUpdate{Name: "Renamed", Department: "Sales"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", id.Name)
	assert.Equal(t, "Sales", id.Department)
	assert.Equal(t, identity.EventUserUpdated, f.events[len(f.events)-1].Type)
}

func TestPurgeExpiredSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "w@example.com", authz.RoleWriter, true)
	_, err := f.svc.SignInWithPassword(ctx, "w@example.com", strongPassword, ClientMeta{})
	require.NoError(t, err)

	n, err := f.svc.PurgeExpiredSessions(ctx, f.now)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.svc.PurgeExpiredSessions(ctx, f.now.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMapError(t *testing.T) {
	assert.Nil(t, MapError(nil))
	assert.ErrorIs(t, MapError(context.DeadlineExceeded), ErrNetwork)
	assert.ErrorIs(t, MapError(assert.AnError), ErrUnknown)
	assert.ErrorIs(t, MapError(Wrap(ErrWeakPassword, assert.AnError)), ErrWeakPassword)
	assert.Equal(t, CodeSessionExpired, CodeOf(ErrSessionExpired))
	assert.Equal(t, CodeUnknownError, ErrorFromCode("NOPE", "").Code)
	assert.Equal(t, CodeEmailNotVerified, ErrorFromCode(CodeEmailNotVerified, "").Code)
}

func TestAccessTokensIssuedInTheSameSecondDiffer(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	now := time.Unix(1_800_000_000, 0)
	userID := uuid.New()
	a, expA, err := IssueAccessToken(secret, userID, "a@example.com", "sid", now, time.Hour)
	require.NoError(t, err)
	b, expB, err := IssueAccessToken(secret, userID, "a@example.com", "sid", now, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, expA, expB)
	assert.NotEqual(t, a, b)

	claims, err := ParseAccessToken(a, secret, now)
	require.NoError(t, err)
	assert.NotEmpty(t, claims.ID)
}

func TestConcurrentRefreshWithSameTokenGetsSamePair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "w@example.com", authz.RoleWriter, true)

	first, err := f.svc.SignInWithPassword(ctx, "w@example.com", strongPassword, ClientMeta{})
	require.NoError(t, err)

	f.now = f.now.Add(56 * time.Minute)
	second, err := f.svc.RefreshSession(ctx, first.RefreshToken)
	require.NoError(t, err)
	again, err := f.svc.RefreshSession(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, second.AccessToken, again.AccessToken)
	assert.Equal(t, second.RefreshToken, again.RefreshToken)

	third, err := f.svc.RefreshSession(ctx, second.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, second.RefreshToken, third.RefreshToken)
	assert.Equal(t, []identity.EventType{identity.EventSignedIn, identity.EventTokenRefreshed, identity.EventTokenRefreshed}, f.eventTypes())
}

func TestReplayedRefreshFailsAfterSignOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "w@example.com", authz.RoleWriter, true)

	first, err := f.svc.SignInWithPassword(ctx, "w@example.com", strongPassword, ClientMeta{})
	require.NoError(t, err)
	second, err := f.svc.RefreshSession(ctx, first.RefreshToken)
	require.NoError(t, err)
	require.NoError(t, f.svc.SignOut(ctx, second.AccessToken))

	_, err = f.svc.RefreshSession(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionExpired)
}
