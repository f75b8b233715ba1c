package directory

import (
	"errors"
	"time"

	"eventguard.org/internal/roles"
)

// User is the durable record of a registered principal.
type User struct {
	ID               string     `json:"id"`
	Username         string     `json:"username"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"-"`
	Role             roles.Role `json:"role"`
	Approved         bool       `json:"isApproved"`
	AssignedLocation string     `json:"assignedLocation,omitempty"`

	// Password reset state; the raw token is never stored, only its hash.
	ResetTokenHash    string    `json:"-"`
	ResetTokenExpires time.Time `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

var (
	ErrNotFound           = errors.New("directory: user not found")
	ErrAlreadyExists      = errors.New("directory: username or email already taken")
	ErrInvalidCredentials = errors.New("directory: invalid credentials")
	ErrAwaitingApproval   = errors.New("directory: account awaiting head approval")
	ErrInvalidInput       = errors.New("directory: invalid input")
	ErrForbidden          = errors.New("directory: insufficient role")
	ErrResetTokenInvalid  = errors.New("directory: reset token is invalid or expired")
)
