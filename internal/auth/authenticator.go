package auth

import (
	"context"

	"eventguard.org/internal/roles"
)

// Identity is the minimal authenticated identity derived from a valid
// session token, used by both REST calls and live connections.
type Identity struct {
	ID       string     `json:"id"`
	Username string     `json:"username"`
	Role     roles.Role `json:"role"`
}

// Principal is the directory view the authenticator needs to cross-check
// a token subject.
type Principal struct {
	ID       string
	Username string
	Role     roles.Role
	Approved bool
}

// PrincipalLookup resolves a principal id against the directory.
// Implementations return ErrPrincipalNotFound for unknown ids.
type PrincipalLookup interface {
	LookupPrincipal(ctx context.Context, id string) (Principal, error)
}

// Authenticator validates bearer tokens against the principal directory.
// Verification is pure apart from the single directory lookup.
type Authenticator struct {
	dir PrincipalLookup
}

// NewAuthenticator constructs an Authenticator over a directory.
func NewAuthenticator(dir PrincipalLookup) *Authenticator {
	return &Authenticator{dir: dir}
}

// Authenticate verifies the token and cross-checks the subject against the
// directory. The returned identity carries the directory's current role,
// so a role change applies the next time a connection authenticates.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (Identity, error) {
	claims, err := ParseAndValidate(token)
	if err != nil {
		return Identity{}, err
	}
	principal, err := a.dir.LookupPrincipal(ctx, claims.Subject)
	if err != nil {
		return Identity{}, err
	}
	if !principal.Approved {
		return Identity{}, ErrNotApproved
	}
	return Identity{
		ID:       principal.ID,
		Username: principal.Username,
		Role:     principal.Role,
	}, nil
}
