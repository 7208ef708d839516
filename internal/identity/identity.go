// Package identity defines the authenticated principal and session values
// passed between the auth provider, the edge filter, the guard and views.
package identity

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rfpdesk/rfpdesk/internal/authz"
)

// Identity is the authenticated user merged with their profile.
type Identity struct {
	ID            uuid.UUID  `json:"id"`
	Email         string     `json:"email"`
	Name          string     `json:"name"`
	Role          authz.Role `json:"role"`
	Department    string     `json:"department,omitempty"`
	Position      string     `json:"position,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	Avatar        string     `json:"avatar,omitempty"`
	EmailVerified bool       `json:"email_verified"`
	CreatedAt     time.Time  `json:"created_at"`
	LastSignInAt  *time.Time `json:"last_sign_in_at,omitempty"`
}

// Can reports whether the identity's role grants every permission listed.
func (i Identity) Can(perms ...authz.Permission) bool {
	return authz.HasAllPermissions(i.Role, perms...)
}

// Session pairs provider credentials with the identity they belong to.
type Session struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresAt    int64    `json:"expires_at"`
	Identity     Identity `json:"user"`
}

// Expiry returns ExpiresAt as a time.
func (s Session) Expiry() time.Time {
	return time.Unix(s.ExpiresAt, 0)
}

// EventType names an authentication state change.
type EventType string

const (
	EventInitialSession   EventType = "INITIAL_SESSION"
	EventSignedIn         EventType = "SIGNED_IN"
	EventSignedOut        EventType = "SIGNED_OUT"
	EventTokenRefreshed   EventType = "TOKEN_REFRESHED"
	EventUserUpdated      EventType = "USER_UPDATED"
	EventPasswordRecovery EventType = "PASSWORD_RECOVERY"
)

// Event is published on every authentication state change. Session is nil
// once signed out, and for server side changes that carry no credentials.
type Event struct {
	Type    EventType
	UserID  uuid.UUID
	Session *Session
	At      time.Time
}

type identityContextKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// FromContext returns the identity attached by the edge filter, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}
