// Package session owns the client side authentication snapshot: who is
// signed in, with which tokens, and when those tokens get refreshed.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/rfpdesk/rfpdesk/internal/auth"
	"github.com/rfpdesk/rfpdesk/internal/authz"
	"github.com/rfpdesk/rfpdesk/internal/guard"
	"github.com/rfpdesk/rfpdesk/internal/identity"
	"github.com/rfpdesk/rfpdesk/internal/platform/events"
	"github.com/rfpdesk/rfpdesk/internal/shared"
	"github.com/rfpdesk/rfpdesk/internal/users"
)

const (
	DefaultRefreshThreshold = 5 * time.Minute
	DefaultCallTimeout      = 10 * time.Second
)

// Provider is the identity provider as seen from a client.
type Provider interface {
	SignUp(ctx context.Context, req auth.SignUpRequest) (auth.User, error)
	SignInWithPassword(ctx context.Context, email, password string) (identity.Session, error)
	SignOut(ctx context.Context) error
	GetSession(ctx context.Context) (*identity.Session, error)
	RefreshSession(ctx context.Context) (*identity.Session, error)
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	UpdateUser(ctx context.Context, attrs auth.UserAttributes) error
	UpdateProfile(ctx context.Context, upd users.ProfileUpdate) (identity.Identity, error)
	OnAuthStateChange(fn func(identity.Event)) func()
}

// Status is the store's lifecycle state.
type Status int

const (
	StatusUninitialized Status = iota
	StatusLoading
	StatusAuthenticated
	StatusAnonymous
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusAuthenticated:
		return "authenticated"
	case StatusAnonymous:
		return "anonymous"
	default:
		return "uninitialized"
	}
}

// Snapshot is one consistent view of the authentication state.
type Snapshot struct {
	Status   Status
	Identity *identity.Identity
	Session  *identity.Session
}

// IsLoading reports whether hydration has not finished.
func (s Snapshot) IsLoading() bool {
	return s.Status == StatusUninitialized || s.Status == StatusLoading
}

// IsAuthenticated reports whether an identity is signed in.
func (s Snapshot) IsAuthenticated() bool {
	return s.Status == StatusAuthenticated && s.Identity != nil
}

// Principal returns the signed-in identity.
func (s Snapshot) Principal() (identity.Identity, bool) {
	if !s.IsAuthenticated() {
		return identity.Identity{}, false
	}
	return *s.Identity, true
}

var _ guard.Snapshot = Snapshot{}

// Event is delivered to subscribers after every transition.
type Event struct {
	Type     identity.EventType
	Snapshot Snapshot
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option { return func(s *Store) { s.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }

// WithCallTimeout bounds every provider call.
func WithCallTimeout(d time.Duration) Option { return func(s *Store) { s.timeout = d } }

// WithRefreshThreshold sets how long before expiry a session is refreshed.
func WithRefreshThreshold(d time.Duration) Option { return func(s *Store) { s.threshold = d } }

// WithRecoveryRedirect sets the path recovery links point to.
func WithRecoveryRedirect(path string) Option { return func(s *Store) { s.recoveryRedirect = path } }

// Store is the single writer of the authentication snapshot. Subscribers
// are notified synchronously and in order; they must not call mutating
// Store methods from inside the callback.
type Store struct {
	provider         Provider
	clock            Clock
	logger           *slog.Logger
	timeout          time.Duration
	threshold        time.Duration
	recoveryRedirect string
	validate         *validator.Validate
	broker           *events.Broker[Event]

	writeMu sync.Mutex

	mu          sync.RWMutex
	snap        Snapshot
	timer       Timer
	generation  uint64
	unsubscribe func()
}

// NewStore constructs a Store in the uninitialized state.
func NewStore(provider Provider, opts ...Option) *Store {
	s := &Store{
		provider:         provider,
		clock:            realClock{},
		logger:           slog.Default(),
		timeout:          DefaultCallTimeout,
		threshold:        DefaultRefreshThreshold,
		recoveryRedirect: "/auth/update-password",
		validate:         shared.NewValidator(),
		broker:           events.NewBroker[Event](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start hydrates the store from the provider's persisted session and begins
// following provider events. Calling Start again is a no-op.
func (s *Store) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.snap.Status != StatusUninitialized {
		s.mu.Unlock()
		return nil
	}
	s.snap = Snapshot{Status: StatusLoading}
	s.mu.Unlock()

	unsubscribe := s.provider.OnAuthStateChange(s.onProviderEvent)
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	callCtx, cancel := s.callContext(ctx)
	sess, err := s.provider.GetSession(callCtx)
	cancel()

	if err != nil {
		s.logger.Warn("hydrate session", slog.Any("error", err))
		sess = nil
	}
	if sess == nil {
		s.transition(identity.EventInitialSession, Snapshot{Status: StatusAnonymous}, false)
		return auth.MapError(err)
	}
	s.applySession(identity.EventInitialSession, *sess, false)
	return nil
}

// Close cancels the pending refresh and stops following provider events.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Subscribe registers fn for every transition.
func (s *Store) Subscribe(fn func(Event)) func() {
	return s.broker.Subscribe(fn)
}

// Signup registers an account. No session is established.
func (s *Store) Signup(ctx context.Context, req auth.SignUpRequest) (auth.User, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validate.Struct(req); err != nil {
		return auth.User{}, auth.NewValidationError(err)
	}
	if err := auth.CheckPasswordPolicy(req.Password); err != nil {
		return auth.User{}, err
	}
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	user, err := s.provider.SignUp(callCtx, req)
	if err != nil {
		return auth.User{}, auth.MapError(err)
	}
	return user, nil
}

// Login exchanges credentials for a session.
func (s *Store) Login(ctx context.Context, email, password string) (identity.Identity, error) {
	req := auth.LoginRequest{Email: strings.TrimSpace(email), Password: password}
	if err := s.validate.Struct(req); err != nil {
		return identity.Identity{}, auth.NewValidationError(err)
	}
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	sess, err := s.provider.SignInWithPassword(callCtx, req.Email, req.Password)
	if err != nil {
		return identity.Identity{}, auth.MapError(err)
	}
	s.applySession(identity.EventSignedIn, sess, false)
	return sess.Identity, nil
}

// Logout ends the session. Local state is cleared even when the provider
// cannot be reached, and calling it repeatedly is safe.
func (s *Store) Logout(ctx context.Context) error {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	if err := s.provider.SignOut(callCtx); err != nil {
		s.logger.Warn("remote sign out", slog.Any("error", auth.MapError(err)))
	}
	s.clear(identity.EventSignedOut)
	return nil
}

// RefreshSession exchanges the refresh token for a new session. Any failure
// signs the store out.
func (s *Store) RefreshSession(ctx context.Context) (identity.Session, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	sess, err := s.provider.RefreshSession(callCtx)
	if err == nil && sess == nil {
		err = auth.ErrSessionExpired
	}
	if err != nil {
		s.clear(identity.EventSignedOut)
		return identity.Session{}, auth.MapError(err)
	}
	s.applySession(identity.EventTokenRefreshed, *sess, true)
	return *sess, nil
}

// ResetPassword asks the provider to mail a recovery link.
func (s *Store) ResetPassword(ctx context.Context, email string) error {
	req := auth.ResetPasswordRequest{Email: strings.TrimSpace(email)}
	if err := s.validate.Struct(req); err != nil {
		return auth.NewValidationError(err)
	}
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	return auth.MapError(s.provider.ResetPasswordForEmail(callCtx, req.Email, s.recoveryRedirect))
}

// UpdatePassword re-authenticates with the current password and then sets
// the new one. Input is validated before any provider call.
func (s *Store) UpdatePassword(ctx context.Context, req auth.UpdatePasswordRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return auth.NewValidationError(err)
	}
	if err := auth.CheckPasswordPolicy(req.NewPassword); err != nil {
		return err
	}
	id, ok := s.Snapshot().Principal()
	if !ok {
		return auth.ErrSessionExpired
	}

	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	sess, err := s.provider.SignInWithPassword(callCtx, id.Email, req.CurrentPassword)
	if err != nil {
		if errors.Is(auth.MapError(err), auth.ErrInvalidCredentials) {
			return &auth.Error{Code: auth.CodeInvalidCredentials, Message: "current password is incorrect"}
		}
		return auth.MapError(err)
	}
	s.applySession(identity.EventTokenRefreshed, sess, false)

	if err := s.provider.UpdateUser(callCtx, auth.UserAttributes{Password: req.NewPassword}); err != nil {
		return auth.MapError(err)
	}
	s.transition(identity.EventUserUpdated, s.Snapshot(), false)
	return nil
}

// UpdateProfile edits the signed-in identity's profile.
func (s *Store) UpdateProfile(ctx context.Context, upd users.ProfileUpdate) (identity.Identity, error) {
	upd.Name = strings.TrimSpace(upd.Name)
	if err := s.validate.Struct(upd); err != nil {
		return identity.Identity{}, auth.NewValidationError(err)
	}
	if !s.Snapshot().IsAuthenticated() {
		return identity.Identity{}, auth.ErrSessionExpired
	}
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	id, err := s.provider.UpdateProfile(callCtx, upd)
	if err != nil {
		return identity.Identity{}, auth.MapError(err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	if s.snap.Status != StatusAuthenticated {
		s.mu.Unlock()
		return id, nil
	}
	next := s.snap
	next.Identity = &id
	if next.Session != nil {
		sess := *next.Session
		sess.Identity = id
		next.Session = &sess
	}
	s.snap = next
	s.mu.Unlock()
	s.broker.Publish(Event{Type: identity.EventUserUpdated, Snapshot: next})
	return id, nil
}

// HasRole reports whether the signed-in identity holds one of roles.
func (s *Store) HasRole(roles ...authz.Role) bool {
	return s.CheckAccess(roles, nil)
}

// HasPermission reports whether the signed-in identity holds perm.
func (s *Store) HasPermission(perm authz.Permission) bool {
	return s.CheckAccess(nil, []authz.Permission{perm})
}

// CheckAccess applies the guard rule to the current snapshot.
func (s *Store) CheckAccess(roles []authz.Role, perms []authz.Permission) bool {
	id, ok := s.Snapshot().Principal()
	if !ok {
		return false
	}
	return guard.Permits(id, guard.Requirement{AllowedRoles: roles, RequiredPermissions: perms})
}

func (s *Store) onProviderEvent(ev identity.Event) {
	switch ev.Type {
	case identity.EventSignedOut:
		s.clear(identity.EventSignedOut)
	case identity.EventSignedIn, identity.EventTokenRefreshed, identity.EventUserUpdated:
		if ev.Session == nil {
			return
		}
		if sameSession(s.Snapshot().Session, ev.Session) {
			return
		}
		s.applySession(ev.Type, *ev.Session, ev.Type == identity.EventTokenRefreshed)
	}
}

func (s *Store) applySession(t identity.EventType, sess identity.Session, viaRefresh bool) {
	id := sess.Identity
	s.transition(t, Snapshot{Status: StatusAuthenticated, Identity: &id, Session: &sess}, viaRefresh)
}

func (s *Store) clear(t identity.EventType) {
	s.transition(t, Snapshot{Status: StatusAnonymous}, false)
}

// transition replaces the snapshot, reschedules the refresh and notifies
// subscribers. Clearing an already anonymous store is not a transition.
func (s *Store) transition(t identity.EventType, next Snapshot, viaRefresh bool) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	prev := s.snap
	if prev.Status == StatusAnonymous && next.Status == StatusAnonymous {
		s.mu.Unlock()
		return
	}
	if sameSession(prev.Session, next.Session) && t != identity.EventUserUpdated {
		s.mu.Unlock()
		return
	}
	s.snap = next
	if !sameSession(prev.Session, next.Session) {
		s.scheduleLocked(next.Session, viaRefresh)
	}
	s.mu.Unlock()

	s.broker.Publish(Event{Type: t, Snapshot: next})
}

// sameSession compares the token pair and expiry; a refresh that returns the
// same access token with a rotated refresh token is still a new session.
func sameSession(a, b *identity.Session) bool {
	if a == nil || b == nil {
		return false
	}
	return a.AccessToken == b.AccessToken && a.RefreshToken == b.RefreshToken && a.ExpiresAt == b.ExpiresAt
}

// scheduleLocked cancels the pending refresh and plans the next one for
// sess. Each plan gets a generation; stale timers do nothing.
func (s *Store) scheduleLocked(sess *identity.Session, viaRefresh bool) {
	s.generation++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if sess == nil || sess.ExpiresAt == 0 {
		return
	}
	gen := s.generation
	until := sess.Expiry().Sub(s.clock.Now())
	if until > s.threshold {
		s.timer = s.clock.AfterFunc(until-s.threshold, func() { s.autoRefresh(gen) })
		return
	}
	if viaRefresh {
		// A fresh token that is already inside the threshold would refresh
		// in a loop; wait half its remaining life instead.
		delay := max(until/2, time.Second)
		s.logger.Warn("refreshed session expires within the refresh threshold", slog.Duration("remaining", until))
		s.timer = s.clock.AfterFunc(delay, func() { s.autoRefresh(gen) })
		return
	}
	go s.autoRefresh(gen)
}

func (s *Store) autoRefresh(gen uint64) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.generation++
	s.timer = nil
	s.mu.Unlock()

	if _, err := s.RefreshSession(context.Background()); err != nil {
		s.logger.Info("automatic session refresh failed", slog.Any("error", err))
	}
}

func (s *Store) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
