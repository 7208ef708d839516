package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rfpdesk/rfpdesk/internal/authz"
	"github.com/rfpdesk/rfpdesk/internal/identity"
	"github.com/rfpdesk/rfpdesk/internal/users"
)

// Account is the credential record stored in auth_accounts.
type Account struct {
	ID               uuid.UUID
	Email            string
	PasswordHash     string
	EmailConfirmedAt *time.Time
	LastSignInAt     *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// User is the public view of an account.
type User struct {
	ID             uuid.UUID  `json:"id"`
	Email          string     `json:"email"`
	EmailConfirmed bool       `json:"email_confirmed"`
	CreatedAt      time.Time  `json:"created_at"`
	LastSignInAt   *time.Time `json:"last_sign_in_at,omitempty"`
}

func (a Account) user() User {
	return User{ID: a.ID, Email: a.Email, EmailConfirmed: a.EmailConfirmedAt != nil, CreatedAt: a.CreatedAt, LastSignInAt: a.LastSignInAt}
}

// SignUpRequest is the sign-up form.
type SignUpRequest struct {
	Email           string `json:"email" form:"email" validate:"required,email"`
	Password        string `json:"password" form:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" form:"password_confirm" validate:"required,eqfield=Password"`
	Name            string `json:"name" form:"name" validate:"required,min=2,max=50"`
	TermsAccepted   bool   `json:"terms_accepted" form:"terms_accepted" validate:"eq=true"`
}

// LoginRequest is the sign-in form.
type LoginRequest struct {
	Email    string `json:"email" form:"email" validate:"required,email"`
	Password string `json:"password" form:"password" validate:"required"`
}

// ResetPasswordRequest asks for a recovery email.
type ResetPasswordRequest struct {
	Email string `json:"email" form:"email" validate:"required,email"`
}

// UpdatePasswordRequest changes the password of a signed-in user.
type UpdatePasswordRequest struct {
	CurrentPassword    string `json:"current_password" form:"current_password" validate:"required"`
	NewPassword        string `json:"new_password" form:"new_password" validate:"required,nefield=CurrentPassword"`
	NewPasswordConfirm string `json:"new_password_confirm" form:"new_password_confirm" validate:"required,eqfield=NewPassword"`
}

// RecoveryPasswordRequest sets a new password from a recovery link.
type RecoveryPasswordRequest struct {
	Token           string `form:"token" validate:"required"`
	Password        string `form:"password" validate:"required"`
	PasswordConfirm string `form:"password_confirm" validate:"required,eqfield=Password"`
}

// UserAttributes are the account fields a signed-in user may change.
type UserAttributes struct {
	Password string `json:"password"`
}

// ClientMeta describes where a sign-in came from.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// NewIdentity merges an account with its profile. Without a profile the
// identity falls back to the writer role and the email as name.
func NewIdentity(u User, p *users.Profile) identity.Identity {
	id := identity.Identity{
		ID:            u.ID,
		Email:         u.Email,
		Name:          strings.SplitN(u.Email, "@", 2)[0],
		Role:          authz.RoleWriter,
		EmailVerified: u.EmailConfirmed,
		CreatedAt:     u.CreatedAt,
		LastSignInAt:  u.LastSignInAt,
	}
	if p == nil {
		return id
	}
	if p.Name != "" {
		id.Name = p.Name
	}
	if p.Role.Valid() {
		id.Role = p.Role
	}
	id.Department = p.Department
	id.Position = p.Position
	id.Phone = p.Phone
	id.Avatar = p.Avatar
	return id
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
