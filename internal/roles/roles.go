package roles

import (
	"errors"
	"fmt"
	"strings"
)

// Role is one of the three staff tiers. Head approves registrations and
// assigns roles; room and ground are operational tiers.
type Role string

const (
	Head   Role = "head"
	Room   Role = "room"
	Ground Role = "ground"
)

// ErrUnknownRole indicates a value outside the closed role set.
var ErrUnknownRole = errors.New("roles: unknown role")

// Parse normalizes and validates a role string.
func Parse(raw string) (Role, error) {
	switch Role(strings.TrimSpace(strings.ToLower(raw))) {
	case Head:
		return Head, nil
	case Room:
		return Room, nil
	case Ground:
		return Ground, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
}

// Valid reports whether r is a member of the closed set.
func (r Role) Valid() bool {
	return r == Head || r == Room || r == Ground
}

func (r Role) String() string { return string(r) }

// All returns the closed role set in a stable order.
func All() []Role {
	return []Role{Head, Room, Ground}
}

// Target selects which connected principals receive an alert: a single
// role, or every authenticated connection.
type Target string

// TargetAll is the explicit broadcast selector. An absent or unrecognized
// target role resolves to TargetAll, preserving the default-broadcast
// behavior of the wire protocol.
const TargetAll Target = "all"

// ParseTarget maps a client-supplied target role onto a Target. Unknown
// and empty values fall through to TargetAll.
func ParseTarget(raw string) Target {
	role, err := Parse(raw)
	if err != nil {
		return TargetAll
	}
	return Target(role)
}

// Role returns the concrete role a targeted selector names, and false for
// TargetAll.
func (t Target) Role() (Role, bool) {
	if t == TargetAll {
		return "", false
	}
	r := Role(t)
	return r, r.Valid()
}

func (t Target) String() string { return string(t) }
