package live

import (
	"context"
	"sync"

	"eventguard.org/internal/auth"
	"eventguard.org/internal/obs"
	"eventguard.org/internal/roles"
)

// ConnID identifies one live transport connection.
type ConnID string

// TokenAuthenticator validates a bearer token into an identity.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Identity, error)
}

// Registry owns the live-connection state: one connection-id set per role
// plus a principal index. It is the only mutable shared state of the
// dispatch core; Authenticate and Deregister serialize on one mutex so a
// connection id is a member of exactly zero or one role set at any time.
type Registry struct {
	authn TokenAuthenticator

	mu          sync.Mutex
	byRole      map[roles.Role]map[ConnID]struct{}
	identities  map[ConnID]auth.Identity
	byPrincipal map[string]ConnID // last connection wins
}

// NewRegistry constructs an empty registry over a token authenticator.
func NewRegistry(authn TokenAuthenticator) *Registry {
	byRole := make(map[roles.Role]map[ConnID]struct{}, len(roles.All()))
	for _, r := range roles.All() {
		byRole[r] = make(map[ConnID]struct{})
	}
	return &Registry{
		authn:       authn,
		byRole:      byRole,
		identities:  make(map[ConnID]auth.Identity),
		byPrincipal: make(map[string]ConnID),
	}
}

// Authenticate validates the token and promotes the connection into the
// resolved role's set. On any failure the registry is left untouched: an
// unauthenticated connection is never a member of a role set, and the
// caller must terminate it.
func (r *Registry) Authenticate(ctx context.Context, id ConnID, token string) (auth.Identity, error) {
	identity, err := r.authn.Authenticate(ctx, token)
	if err != nil {
		return auth.Identity{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// A repeated authenticate on the same connection replaces its previous
	// membership so the one-role-set invariant holds.
	if prev, ok := r.identities[id]; ok {
		delete(r.byRole[prev.Role], id)
		obs.ConnectionClosed(prev.Role.String())
	}

	r.byRole[identity.Role][id] = struct{}{}
	r.identities[id] = identity
	r.byPrincipal[identity.ID] = id
	obs.ConnectionOpened(identity.Role.String())
	return identity, nil
}

// Deregister removes the connection from whichever role set contains it
// and clears the principal index entry if it still points here. Removing
// an unknown or already-removed id is a no-op.
func (r *Registry) Deregister(id ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.identities[id]
	if !ok {
		return
	}
	delete(r.byRole[identity.Role], id)
	delete(r.identities, id)
	if r.byPrincipal[identity.ID] == id {
		delete(r.byPrincipal, identity.ID)
	}
	obs.ConnectionClosed(identity.Role.String())
}

// Identity returns the authenticated identity bound to a connection.
func (r *Registry) Identity(id ConnID) (auth.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.identities[id]
	return identity, ok
}

// ConnectionForPrincipal returns the most recent authenticated connection
// of a user. Earlier connections of the same user stay registered; only
// the index entry moves.
func (r *Registry) ConnectionForPrincipal(userID string) (ConnID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byPrincipal[userID]
	return id, ok
}

// ConnectionsForRole returns a snapshot of the connection ids currently
// authenticated under the role. The caller may iterate the result freely
// while connections churn.
func (r *Registry) ConnectionsForRole(role roles.Role) []ConnID {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.byRole[role]
	out := make([]ConnID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// AllConnections returns a snapshot of every authenticated connection id
// across the three role sets.
func (r *Registry) AllConnections() []ConnID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ConnID, 0, len(r.identities))
	for _, set := range r.byRole {
		for id := range set {
			out = append(out, id)
		}
	}
	return out
}

// Counts reports the authenticated connection count per role.
func (r *Registry) Counts() map[roles.Role]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[roles.Role]int, len(r.byRole))
	for role, set := range r.byRole {
		out[role] = len(set)
	}
	return out
}
