package live

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventguard.org/internal/auth"
	"eventguard.org/internal/roles"
)

type fakeAuthn struct {
	identities map[string]auth.Identity
	errs       map[string]error
}

func (f *fakeAuthn) Authenticate(_ context.Context, token string) (auth.Identity, error) {
	if err, ok := f.errs[token]; ok {
		return auth.Identity{}, err
	}
	identity, ok := f.identities[token]
	if !ok {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	return identity, nil
}

func newTestRegistry() (*Registry, *fakeAuthn) {
	authn := &fakeAuthn{
		identities: map[string]auth.Identity{
			"head-token":   {ID: "u-head", Username: "chief", Role: roles.Head},
			"room-token":   {ID: "u-room", Username: "watcher", Role: roles.Room},
			"ground-token": {ID: "u-ground", Username: "runner", Role: roles.Ground},
		},
		errs: map[string]error{
			"pending-token": auth.ErrNotApproved,
		},
	}
	return NewRegistry(authn), authn
}

func TestRegistryAuthenticate(t *testing.T) {
	reg, _ := newTestRegistry()
	ctx := context.Background()

	identity, err := reg.Authenticate(ctx, "c1", "room-token")
	require.NoError(t, err)
	assert.Equal(t, "watcher", identity.Username)
	assert.Equal(t, roles.Room, identity.Role)

	assert.ElementsMatch(t, []ConnID{"c1"}, reg.ConnectionsForRole(roles.Room))
	assert.Empty(t, reg.ConnectionsForRole(roles.Head))
	assert.Empty(t, reg.ConnectionsForRole(roles.Ground))

	got, ok := reg.Identity("c1")
	require.True(t, ok)
	assert.Equal(t, identity, got)
}

func TestRegistryAuthenticateFailureLeavesNoState(t *testing.T) {
	reg, _ := newTestRegistry()
	ctx := context.Background()

	_, err := reg.Authenticate(ctx, "c1", "garbage")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = reg.Authenticate(ctx, "c2", "pending-token")
	assert.ErrorIs(t, err, auth.ErrNotApproved)

	assert.Empty(t, reg.AllConnections())
	_, ok := reg.Identity("c1")
	assert.False(t, ok)
}

func TestRegistryReauthenticateMovesRoleSet(t *testing.T) {
	reg, authn := newTestRegistry()
	ctx := context.Background()

	_, err := reg.Authenticate(ctx, "c1", "ground-token")
	require.NoError(t, err)

	// Same user re-authenticates on the same connection after a role
	// change in the directory.
	authn.identities["ground-token"] = auth.Identity{ID: "u-ground", Username: "runner", Role: roles.Room}
	_, err = reg.Authenticate(ctx, "c1", "ground-token")
	require.NoError(t, err)

	assert.Empty(t, reg.ConnectionsForRole(roles.Ground))
	assert.ElementsMatch(t, []ConnID{"c1"}, reg.ConnectionsForRole(roles.Room))
	assert.Len(t, reg.AllConnections(), 1)
}

func TestRegistryDeregisterIdempotent(t *testing.T) {
	reg, _ := newTestRegistry()
	ctx := context.Background()

	_, err := reg.Authenticate(ctx, "c1", "head-token")
	require.NoError(t, err)

	reg.Deregister("c1")
	assert.Empty(t, reg.ConnectionsForRole(roles.Head))
	_, ok := reg.Identity("c1")
	assert.False(t, ok)

	// Repeated and unknown deregistrations are no-ops.
	reg.Deregister("c1")
	reg.Deregister("never-seen")
	assert.Empty(t, reg.AllConnections())
}

func TestRegistryLastConnectionWins(t *testing.T) {
	reg, _ := newTestRegistry()
	ctx := context.Background()

	_, err := reg.Authenticate(ctx, "c1", "room-token")
	require.NoError(t, err)
	_, err = reg.Authenticate(ctx, "c2", "room-token")
	require.NoError(t, err)

	id, ok := reg.ConnectionForPrincipal("u-room")
	require.True(t, ok)
	assert.Equal(t, ConnID("c2"), id)

	// Both connections remain reachable for role fan-out.
	assert.ElementsMatch(t, []ConnID{"c1", "c2"}, reg.ConnectionsForRole(roles.Room))

	// Dropping the older connection does not disturb the index.
	reg.Deregister("c1")
	id, ok = reg.ConnectionForPrincipal("u-room")
	require.True(t, ok)
	assert.Equal(t, ConnID("c2"), id)

	reg.Deregister("c2")
	_, ok = reg.ConnectionForPrincipal("u-room")
	assert.False(t, ok)
}

func TestRegistryCounts(t *testing.T) {
	reg, _ := newTestRegistry()
	ctx := context.Background()

	_, _ = reg.Authenticate(ctx, "c1", "head-token")
	_, _ = reg.Authenticate(ctx, "c2", "ground-token")
	_, _ = reg.Authenticate(ctx, "c3", "ground-token")

	counts := reg.Counts()
	assert.Equal(t, 1, counts[roles.Head])
	assert.Equal(t, 0, counts[roles.Room])
	assert.Equal(t, 2, counts[roles.Ground])
}
