// Package blueprint computes and validates physical placement plans: the
// mapping from live peer identity to role-per-shard-range that a reactor
// consumes to decide its own behavior.
package blueprint

import (
	"fmt"

	"tablectl/pkg/identity"
	"tablectl/pkg/shard"
)

type Role int

const (
	// RoleAbsent marks a peer that holds no data for a range but is still
	// required to acknowledge the plan.
	RoleAbsent Role = iota
	RolePrimary
	RoleSecondary
)

func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleSecondary:
		return "secondary"
	default:
		return "absent"
	}
}

// Blueprint assigns a role per shard range to every peer it registers.
// Before use a blueprint must satisfy: every registered peer covers every
// range, and each range has at most one primary.
type Blueprint struct {
	Peers map[identity.PeerID]map[shard.Range]Role
}

func New() Blueprint {
	return Blueprint{Peers: make(map[identity.PeerID]map[shard.Range]Role)}
}

func (b Blueprint) HasPeer(peer identity.PeerID) bool {
	_, ok := b.Peers[peer]
	return ok
}

// AddPeer registers a peer with no roles. Re-adding is a no-op.
func (b Blueprint) AddPeer(peer identity.PeerID) {
	if _, ok := b.Peers[peer]; !ok {
		b.Peers[peer] = make(map[shard.Range]Role)
	}
}

func (b Blueprint) AddRole(peer identity.PeerID, r shard.Range, role Role) {
	b.AddPeer(peer)
	b.Peers[peer][r] = role
}

// RoleOf returns the peer's role for a range, defaulting to RoleAbsent.
func (b Blueprint) RoleOf(peer identity.PeerID, r shard.Range) Role {
	return b.Peers[peer][r]
}

// RolesOf returns a copy of the peer's role map, nil for unknown peers.
func (b Blueprint) RolesOf(peer identity.PeerID) map[shard.Range]Role {
	roles, ok := b.Peers[peer]
	if !ok {
		return nil
	}
	out := make(map[shard.Range]Role, len(roles))
	for r, role := range roles {
		out[r] = role
	}
	return out
}

func (b Blueprint) Equal(o Blueprint) bool {
	if len(b.Peers) != len(o.Peers) {
		return false
	}
	for peer, roles := range b.Peers {
		otherRoles, ok := o.Peers[peer]
		if !ok || len(roles) != len(otherRoles) {
			return false
		}
		for r, role := range roles {
			otherRole, ok := otherRoles[r]
			if !ok || role != otherRole {
				return false
			}
		}
	}
	return true
}

// Validate checks the structural invariants against the scheme's ranges:
// full coverage for every registered peer and a single primary per range.
func (b Blueprint) Validate(ranges []shard.Range) error {
	for peer, roles := range b.Peers {
		if len(roles) != len(ranges) {
			return fmt.Errorf("peer %s covers %d of %d ranges", peer, len(roles), len(ranges))
		}
		for _, r := range ranges {
			if _, ok := roles[r]; !ok {
				return fmt.Errorf("peer %s has no role for range %s", peer, r)
			}
		}
	}
	for _, r := range ranges {
		var primary identity.PeerID
		for peer, roles := range b.Peers {
			if roles[r] != RolePrimary {
				continue
			}
			if primary != "" {
				return fmt.Errorf("range %s has two primaries: %s and %s", r, primary, peer)
			}
			primary = peer
		}
	}
	return nil
}
