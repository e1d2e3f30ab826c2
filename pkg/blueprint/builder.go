package blueprint

import (
	"errors"
	"fmt"

	"tablectl/pkg/catalog"
	"tablectl/pkg/identity"
	"tablectl/pkg/shard"
	"tablectl/pkg/topology"
)

// ErrConfigInconsistency marks a table whose configuration cannot be
// resolved against the topology right now (a server name collision). The
// caller keeps the table's last valid plan and retries on a later change.
var ErrConfigInconsistency = errors.New("tablectl: inconsistent table configuration")

// peerResolver maps server ids to peer ids for the duration of one Build
// call. Servers with no live peer get a synthesized unroutable peer so the
// plan still records the role as structurally present but unreachable. The
// synthesized mapping is not kept across calls: two builds for the same
// disconnected server may produce different placeholder peers.
type peerResolver struct {
	peers map[identity.ServerID]identity.PeerID
}

func newPeerResolver(snap *topology.Snapshot) *peerResolver {
	return &peerResolver{peers: snap.ConnectedServers()}
}

func (r *peerResolver) resolve(id identity.ServerID) identity.PeerID {
	peer, ok := r.peers[id]
	if !ok {
		peer = identity.NewPeerID()
		r.peers[id] = peer
	}
	return peer
}

// Build computes the placement plan for one table from its replication
// configuration and a topology snapshot. It returns ErrConfigInconsistency
// when the snapshot reports a server name collision. A violation of the
// blueprint invariants is a builder defect and panics.
func Build(cfg catalog.ReplicationConfig, scheme shard.Scheme, snap *topology.Snapshot) (Blueprint, error) {
	if err := snap.CheckNames(); err != nil {
		return Blueprint{}, fmt.Errorf("%w: %v", ErrConfigInconsistency, err)
	}
	if len(cfg.Shards) != scheme.NumShards() {
		panic(fmt.Sprintf("blueprint: %d shard entries for %d shards", len(cfg.Shards), scheme.NumShards()))
	}

	resolver := newPeerResolver(snap)
	bp := New()
	ranges := scheme.Ranges()

	// Directors first. A permanently removed director gets a fresh peer on
	// every build, never shared with anything else, so the table acts as
	// though the director is missing.
	directorPeers := make([]identity.PeerID, len(cfg.Shards))
	for i, sc := range cfg.Shards {
		var peer identity.PeerID
		if _, ok := snap.NameOf(sc.Director); !ok {
			peer = identity.NewPeerID()
		} else {
			peer = resolver.resolve(sc.Director)
		}
		directorPeers[i] = peer
		bp.AddRole(peer, ranges[i], RolePrimary)
	}

	// Secondaries. A permanently removed replica is treated as if it were
	// never configured.
	for i, sc := range cfg.Shards {
		for _, server := range sc.Replicas {
			if _, ok := snap.NameOf(server); !ok {
				continue
			}
			peer := resolver.resolve(server)
			bp.AddPeer(peer)
			if peer != directorPeers[i] {
				bp.AddRole(peer, ranges[i], RoleSecondary)
			}
		}
	}

	// Every connected member appears in the plan, even with no role, so the
	// reactor can require acknowledgment from every known participant.
	for server := range snap.ConnectedServers() {
		bp.AddPeer(resolver.resolve(server))
	}

	// Fill the remaining (peer, range) cells with absent to satisfy the
	// full-coverage invariant.
	for _, roles := range bp.Peers {
		for _, r := range ranges {
			if _, ok := roles[r]; !ok {
				roles[r] = RoleAbsent
			}
		}
	}

	if err := bp.Validate(ranges); err != nil {
		panic(fmt.Sprintf("blueprint: invariant violation: %v", err))
	}
	for server, peer := range snap.ConnectedServers() {
		if !bp.HasPeer(peer) {
			panic(fmt.Sprintf("blueprint: connected server %s (peer %s) missing from plan", server, peer))
		}
	}
	return bp, nil
}
