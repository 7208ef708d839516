package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/rfpdesk/rfpdesk/internal/authz"
)

// Profile is the application-side record of a user: display fields, role
// and activation state. Its ID equals the auth account ID.
type Profile struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Role        authz.Role `json:"role"`
	Department  string     `json:"department,omitempty"`
	Position    string     `json:"position,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Avatar      string     `json:"avatar,omitempty"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ProfileUpdate carries the self-editable profile fields.
type ProfileUpdate struct {
	Name       string `json:"name" form:"name" validate:"required,min=2,max=50"`
	Department string `json:"department" form:"department" validate:"max=100"`
	Position   string `json:"position" form:"position" validate:"max=100"`
	Phone      string `json:"phone" form:"phone" validate:"max=20,phone"`
}

// ListFilter narrows the user listing.
type ListFilter struct {
	Role     authz.Role
	IsActive *bool
	Search   string
	Page     int
	Limit    int
}
