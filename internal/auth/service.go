package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/rfpdesk/rfpdesk/internal/authz"
	"github.com/rfpdesk/rfpdesk/internal/identity"
	"github.com/rfpdesk/rfpdesk/internal/platform/events"
	"github.com/rfpdesk/rfpdesk/internal/shared"
	"github.com/rfpdesk/rfpdesk/internal/users"
)

// Profiles is the subset of the profile store the provider relies on.
type Profiles interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*users.Profile, error)
	CreateProfile(ctx context.Context, id uuid.UUID, email, name string, role authz.Role) (users.Profile, error)
	DeleteProfile(ctx context.Context, id uuid.UUID) error
	UpdateProfile(ctx context.Context, id uuid.UUID, upd users.ProfileUpdate) (users.Profile, error)
}

// Mailer delivers transactional email.
type Mailer interface {
	SendMail(ctx context.Context, to, subject, text, html string) error
}

// Config tunes token lifetimes and links.
type Config struct {
	JWTSecret        []byte
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	// RefreshReuse is how long a rotated refresh token still resolves to
	// the session that replaced it.
	RefreshReuse     time.Duration
	ConfirmationTTL  time.Duration
	RecoveryTTL      time.Duration
	SiteURL          string
	AutoConfirmEmail bool
	BcryptCost       int
}

func (c Config) withDefaults() Config {
	if c.AccessTokenTTL <= 0 {
		c.AccessTokenTTL = time.Hour
	}
	if c.RefreshTokenTTL <= 0 {
		c.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.RefreshReuse <= 0 {
		c.RefreshReuse = 10 * time.Second
	}
	if c.ConfirmationTTL <= 0 {
		c.ConfirmationTTL = 24 * time.Hour
	}
	if c.RecoveryTTL <= 0 {
		c.RecoveryTTL = time.Hour
	}
	c.SiteURL = strings.TrimRight(c.SiteURL, "/")
	return c
}

// Service is the identity provider: credentials, tokens and auth events.
type Service struct {
	repo     Repository
	profiles Profiles
	tokens   TokenStore
	mailer   Mailer
	cfg      Config
	events   *events.Broker[identity.Event]
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a new Service. mailer may be nil.
func NewService(repo Repository, profiles Profiles, tokens TokenStore, mailer Mailer, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		profiles: profiles,
		tokens:   tokens,
		mailer:   mailer,
		cfg:      cfg.withDefaults(),
		events:   events.NewBroker[identity.Event](),
		validate: shared.NewValidator(),
		logger:   logger,
		now:      time.Now,
	}
}

// OnAuthStateChange subscribes fn to authentication events.
func (s *Service) OnAuthStateChange(fn func(identity.Event)) func() {
	return s.events.Subscribe(fn)
}

// SignUp registers an account with the default writer role. No session is
// issued; the account must confirm its email first unless auto-confirm is on.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (User, error) {
	req.Email = normalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validate.Struct(req); err != nil {
		return User{}, NewValidationError(err)
	}
	if err := CheckPasswordPolicy(req.Password); err != nil {
		return User{}, err
	}
	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return User{}, ErrEmailAlreadyExists
	} else if !errors.Is(err, shared.ErrNotFound) {
		return User{}, Wrap(ErrUnknown, err)
	}

	hash, err := hashPassword(req.Password, s.cfg.BcryptCost)
	if err != nil {
		return User{}, Wrap(ErrUnknown, err)
	}
	account := Account{ID: uuid.New(), Email: req.Email, PasswordHash: hash}
	if s.cfg.AutoConfirmEmail {
		now := s.now().UTC()
		account.EmailConfirmedAt = &now
	}
	account, err = s.repo.CreateAccount(ctx, account)
	if err != nil {
		return User{}, MapError(err)
	}
	if _, err := s.profiles.CreateProfile(ctx, account.ID, account.Email, req.Name, authz.RoleWriter); err != nil {
		if delErr := s.repo.DeleteAccount(ctx, account.ID); delErr != nil {
			s.logger.Error("roll back account after profile failure", slog.Any("error", delErr))
		}
		return User{}, Wrap(ErrUnknown, fmt.Errorf("create profile: %w", err))
	}

	if account.EmailConfirmedAt == nil {
		if err := s.sendConfirmation(ctx, account, req.Name); err != nil {
			s.logger.Warn("send confirmation email", slog.Any("error", err), slog.String("email", account.Email))
		}
	}
	return account.user(), nil
}

func (s *Service) sendConfirmation(ctx context.Context, account Account, name string) error {
	token, err := newOpaqueToken()
	if err != nil {
		return err
	}
	if err := s.tokens.SaveOneTime(ctx, OneTimeConfirm, token, account.ID, s.cfg.ConfirmationTTL); err != nil {
		return err
	}
	link := s.cfg.SiteURL + "/auth/callback?" + url.Values{"token": {token}, "type": {"signup"}}.Encode()
	return s.mail(ctx, account.Email, confirmationMail(name, link))
}

// ConfirmEmail consumes a confirmation token.
func (s *Service) ConfirmEmail(ctx context.Context, token string) (User, error) {
	userID, err := s.tokens.ConsumeOneTime(ctx, OneTimeConfirm, token)
	if err != nil {
		return User{}, MapError(err)
	}
	if err := s.repo.ConfirmEmail(ctx, userID, s.now()); err != nil {
		return User{}, Wrap(ErrUnknown, err)
	}
	account, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return User{}, Wrap(ErrUnknown, err)
	}
	return account.user(), nil
}

// SignInWithPassword verifies credentials and opens a session.
func (s *Service) SignInWithPassword(ctx context.Context, email, password string, meta ClientMeta) (identity.Session, error) {
	account, err := s.repo.FindByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, shared.ErrNotFound) {
		return identity.Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return identity.Session{}, Wrap(ErrUnknown, err)
	}
	if !checkPassword(account.PasswordHash, password) {
		return identity.Session{}, ErrInvalidCredentials
	}
	if account.EmailConfirmedAt == nil {
		return identity.Session{}, ErrEmailNotVerified
	}
	profile, err := s.profiles.GetProfile(ctx, account.ID)
	if err != nil {
		return identity.Session{}, Wrap(ErrUnknown, err)
	}
	if profile == nil || !profile.IsActive {
		return identity.Session{}, ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.repo.TouchSignIn(ctx, account.ID, now); err != nil {
		s.logger.Warn("touch sign in", slog.Any("error", err))
	} else {
		account.LastSignInAt = &now
	}
	sess, err := s.issueSession(ctx, account, profile, uuid.NewString(), true, meta)
	if err != nil {
		return identity.Session{}, err
	}
	s.publish(identity.EventSignedIn, account.ID, &sess)
	return sess, nil
}

func (s *Service) issueSession(ctx context.Context, account Account, profile *users.Profile, sid string, isNew bool, meta ClientMeta) (identity.Session, error) {
	now := s.now()
	access, expiresAt, err := IssueAccessToken(s.cfg.JWTSecret, account.ID, account.Email, sid, now, s.cfg.AccessTokenTTL)
	if err != nil {
		return identity.Session{}, Wrap(ErrUnknown, err)
	}
	refresh, err := newOpaqueToken()
	if err != nil {
		return identity.Session{}, Wrap(ErrUnknown, err)
	}
	if err := s.tokens.SaveSession(ctx, sid, account.ID, refresh, s.cfg.RefreshTokenTTL); err != nil {
		return identity.Session{}, MapError(err)
	}
	sessionEnd := now.Add(s.cfg.RefreshTokenTTL)
	if isNew {
		err = s.repo.CreateSession(ctx, sid, account.ID, sessionEnd, meta.IP, meta.UserAgent)
	} else {
		err = s.repo.ExtendSession(ctx, sid, sessionEnd)
	}
	if err != nil {
		s.logger.Warn("record session", slog.Any("error", err))
	}
	return identity.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresAt:    expiresAt.Unix(),
		Identity:     NewIdentity(account.user(), profile),
	}, nil
}

// GetUser resolves an access token to its account. Expired, revoked or
// malformed tokens yield ErrSessionExpired.
func (s *Service) GetUser(ctx context.Context, accessToken string) (User, error) {
	_, account, err := s.authenticate(ctx, accessToken)
	if err != nil {
		return User{}, err
	}
	return account.user(), nil
}

// AccessTokenExpiry checks the signature of token and returns its expiry,
// whether or not it has already passed.
func (s *Service) AccessTokenExpiry(token string) (time.Time, error) {
	claims, err := ParseAccessTokenIgnoringExpiry(token, s.cfg.JWTSecret)
	if err != nil {
		return time.Time{}, Wrap(ErrSessionExpired, err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrSessionExpired
	}
	return claims.ExpiresAt.Time, nil
}

// Identity merges u with its profile. The profile is nil when missing.
func (s *Service) Identity(ctx context.Context, u User) (identity.Identity, *users.Profile, error) {
	profile, err := s.profiles.GetProfile(ctx, u.ID)
	if err != nil {
		return identity.Identity{}, nil, Wrap(ErrUnknown, err)
	}
	return NewIdentity(u, profile), profile, nil
}

func (s *Service) authenticate(ctx context.Context, accessToken string) (*AccessClaims, Account, error) {
	if accessToken == "" {
		return nil, Account{}, ErrSessionExpired
	}
	claims, err := ParseAccessToken(accessToken, s.cfg.JWTSecret, s.now())
	if err != nil {
		return nil, Account{}, Wrap(ErrSessionExpired, err)
	}
	active, err := s.tokens.SessionActive(ctx, claims.SessionID)
	if err != nil {
		return nil, Account{}, MapError(err)
	}
	if !active {
		return nil, Account{}, ErrSessionExpired
	}
	account, err := s.repo.FindByID(ctx, claims.UserID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, Account{}, ErrSessionExpired
	}
	if err != nil {
		return nil, Account{}, Wrap(ErrUnknown, err)
	}
	return claims, account, nil
}

// RefreshSession exchanges a refresh token for a new session. The old
// refresh token stops working.
func (s *Service) RefreshSession(ctx context.Context, refreshToken string) (identity.Session, error) {
	if refreshToken == "" {
		return identity.Session{}, ErrSessionExpired
	}
	rec, err := s.tokens.RotateRefresh(ctx, refreshToken)
	if err != nil {
		return identity.Session{}, MapError(err)
	}
	active, err := s.tokens.SessionActive(ctx, rec.SessionID)
	if err != nil {
		return identity.Session{}, MapError(err)
	}
	if !active {
		return identity.Session{}, ErrSessionExpired
	}
	if rec.Replay != nil {
		return *rec.Replay, nil
	}
	account, err := s.repo.FindByID(ctx, rec.UserID)
	if err != nil {
		return identity.Session{}, ErrSessionExpired
	}
	profile, err := s.profiles.GetProfile(ctx, account.ID)
	if err != nil {
		return identity.Session{}, Wrap(ErrUnknown, err)
	}
	if profile == nil || !profile.IsActive {
		s.revoke(ctx, rec.SessionID)
		return identity.Session{}, ErrSessionExpired
	}
	sess, err := s.issueSession(ctx, account, profile, rec.SessionID, false, ClientMeta{})
	if err != nil {
		return identity.Session{}, err
	}
	if err := s.tokens.RememberRotation(ctx, refreshToken, rec.SessionID, sess, s.cfg.RefreshReuse); err != nil {
		s.logger.Warn("remember refresh rotation", slog.Any("error", err))
	}
	s.publish(identity.EventTokenRefreshed, account.ID, &sess)
	return sess, nil
}

// SignOut revokes the session behind accessToken. Unknown, expired or
// already revoked tokens are not an error.
func (s *Service) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}
	claims, err := ParseAccessTokenIgnoringExpiry(accessToken, s.cfg.JWTSecret)
	if err != nil {
		return nil
	}
	if err := s.tokens.DeleteSession(ctx, claims.SessionID); err != nil {
		return MapError(err)
	}
	if err := s.repo.RevokeSession(ctx, claims.SessionID, s.now()); err != nil {
		s.logger.Warn("revoke session record", slog.Any("error", err))
	}
	s.publish(identity.EventSignedOut, claims.UserID, nil)
	return nil
}

// ResetPasswordForEmail mails a recovery link. Unknown addresses succeed
// silently so the endpoint cannot be used to probe for accounts.
func (s *Service) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	req := ResetPasswordRequest{Email: normalizeEmail(email)}
	if err := s.validate.Struct(req); err != nil {
		return NewValidationError(err)
	}
	account, err := s.repo.FindByEmail(ctx, req.Email)
	if errors.Is(err, shared.ErrNotFound) {
		return nil
	}
	if err != nil {
		return Wrap(ErrUnknown, err)
	}
	token, err := newOpaqueToken()
	if err != nil {
		return Wrap(ErrUnknown, err)
	}
	if err := s.tokens.SaveOneTime(ctx, OneTimeRecovery, token, account.ID, s.cfg.RecoveryTTL); err != nil {
		return MapError(err)
	}
	link := s.recoveryLink(redirectTo, token)
	if err := s.mail(ctx, account.Email, recoveryMail(link)); err != nil {
		return MapError(err)
	}
	return nil
}

func (s *Service) recoveryLink(redirectTo, token string) string {
	base := s.cfg.SiteURL + "/auth/update-password"
	switch {
	case strings.HasPrefix(redirectTo, "/") && !strings.HasPrefix(redirectTo, "//"):
		base = s.cfg.SiteURL + redirectTo
	case redirectTo != "" && s.cfg.SiteURL != "" && strings.HasPrefix(redirectTo, s.cfg.SiteURL+"/"):
		base = redirectTo
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + url.Values{"token": {token}}.Encode()
}

// UpdatePasswordWithRecovery sets a new password from a recovery link and
// signs the account out everywhere.
func (s *Service) UpdatePasswordWithRecovery(ctx context.Context, req RecoveryPasswordRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return NewValidationError(err)
	}
	if err := CheckPasswordPolicy(req.Password); err != nil {
		return err
	}
	userID, err := s.tokens.ConsumeOneTime(ctx, OneTimeRecovery, req.Token)
	if err != nil {
		return MapError(err)
	}
	if err := s.setPassword(ctx, userID, req.Password, ""); err != nil {
		return err
	}
	s.publish(identity.EventPasswordRecovery, userID, nil)
	return nil
}

// UpdateUser changes account attributes of the token holder. A password
// change revokes every other session of the user.
func (s *Service) UpdateUser(ctx context.Context, accessToken string, attrs UserAttributes) (User, error) {
	claims, account, err := s.authenticate(ctx, accessToken)
	if err != nil {
		return User{}, err
	}
	if attrs.Password != "" {
		if err := CheckPasswordPolicy(attrs.Password); err != nil {
			return User{}, err
		}
		if err := s.setPassword(ctx, account.ID, attrs.Password, claims.SessionID); err != nil {
			return User{}, err
		}
	}
	s.publish(identity.EventUserUpdated, account.ID, nil)
	return account.user(), nil
}

// ChangePassword re-verifies the current password before updating it.
func (s *Service) ChangePassword(ctx context.Context, accessToken string, req UpdatePasswordRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return NewValidationError(err)
	}
	if err := CheckPasswordPolicy(req.NewPassword); err != nil {
		return err
	}
	_, account, err := s.authenticate(ctx, accessToken)
	if err != nil {
		return err
	}
	if !checkPassword(account.PasswordHash, req.CurrentPassword) {
		return &Error{Code: CodeInvalidCredentials, Message: "current password is incorrect"}
	}
	_, err = s.UpdateUser(ctx, accessToken, UserAttributes{Password: req.NewPassword})
	return err
}

// UpdateProfile edits the profile of the token holder.
func (s *Service) UpdateProfile(ctx context.Context, accessToken string, upd users.ProfileUpdate) (identity.Identity, error) {
	_, account, err := s.authenticate(ctx, accessToken)
	if err != nil {
		return identity.Identity{}, err
	}
	profile, err := s.profiles.UpdateProfile(ctx, account.ID, upd)
	if err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return identity.Identity{}, NewValidationError(err)
		}
		return identity.Identity{}, MapError(err)
	}
	s.publish(identity.EventUserUpdated, account.ID, nil)
	return NewIdentity(account.user(), &profile), nil
}

// PurgeExpiredSessions deletes session records older than the cutoff.
func (s *Service) PurgeExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	return s.repo.PurgeExpiredSessions(ctx, before)
}

func (s *Service) setPassword(ctx context.Context, userID uuid.UUID, password, keepSession string) error {
	hash, err := hashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return Wrap(ErrUnknown, err)
	}
	if err := s.repo.UpdatePassword(ctx, userID, hash); err != nil {
		return Wrap(ErrUnknown, err)
	}
	sids, err := s.repo.ListLiveSessions(ctx, userID)
	if err != nil {
		s.logger.Warn("list sessions for revocation", slog.Any("error", err))
		return nil
	}
	for _, sid := range sids {
		if sid != keepSession {
			s.revoke(ctx, sid)
		}
	}
	return nil
}

func (s *Service) revoke(ctx context.Context, sid string) {
	if err := s.tokens.DeleteSession(ctx, sid); err != nil {
		s.logger.Warn("revoke session token", slog.Any("error", err))
	}
	if err := s.repo.RevokeSession(ctx, sid, s.now()); err != nil {
		s.logger.Warn("revoke session record", slog.Any("error", err))
	}
}

func (s *Service) mail(ctx context.Context, to string, m mailContent) error {
	if s.mailer == nil {
		s.logger.Info("mailer disabled, dropping email", slog.String("to", to), slog.String("subject", m.subject))
		return nil
	}
	return s.mailer.SendMail(ctx, to, m.subject, m.text, m.html)
}

func (s *Service) publish(t identity.EventType, userID uuid.UUID, sess *identity.Session) {
	s.events.Publish(identity.Event{Type: t, UserID: userID, Session: sess, At: s.now()})
}
