package directory

import (
	"context"
	"time"

	"eventguard.org/internal/roles"
)

// Store describes persistence operations required by the directory.
// Implementations return ErrNotFound and ErrAlreadyExists as appropriate.
type Store interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	ListPending(ctx context.Context) ([]*User, error)

	// Approve flips the approval flag and optionally reassigns the role
	// in the same mutation. There is no de-approval path.
	Approve(ctx context.Context, id string, role roles.Role) (*User, error)

	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetResetToken(ctx context.Context, id, tokenHash string, expires time.Time) error
	FindByResetToken(ctx context.Context, tokenHash string) (*User, error)
	ClearResetToken(ctx context.Context, id string) error
}
