package blueprint

import (
	"errors"
	"testing"

	"tablectl/pkg/catalog"
	"tablectl/pkg/identity"
	"tablectl/pkg/shard"
	"tablectl/pkg/topology"
)

func oneShardScheme(t *testing.T) shard.Scheme {
	t.Helper()
	scheme, err := shard.NewScheme(nil)
	if err != nil {
		t.Fatalf("NewScheme failed: %v", err)
	}
	return scheme
}

func TestBuild_DirectorAndReplica(t *testing.T) {
	s1 := identity.NewServerID()
	s2 := identity.NewServerID()
	p1 := identity.NewPeerID()
	p2 := identity.NewPeerID()

	snap := topology.NewSnapshot(s1,
		map[identity.ServerID]string{s1: "one", s2: "two"},
		map[identity.ServerID]identity.PeerID{s1: p1, s2: p2},
	)
	scheme := oneShardScheme(t)
	cfg := catalog.ReplicationConfig{Shards: []catalog.ShardConfig{
		{Director: s1, Replicas: []identity.ServerID{s1, s2}},
	}}

	bp, err := Build(cfg, scheme, snap)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	r := scheme.RangeOf(0)
	if bp.RoleOf(p1, r) != RolePrimary {
		t.Fatalf("expected %s primary, got %s", p1, bp.RoleOf(p1, r))
	}
	if bp.RoleOf(p2, r) != RoleSecondary {
		t.Fatalf("expected %s secondary, got %s", p2, bp.RoleOf(p2, r))
	}
	if len(bp.Peers) != 2 {
		t.Fatalf("expected 2 peers, got %d", len(bp.Peers))
	}
}

func TestBuild_RemovedDirectorGetsUniquePlaceholder(t *testing.T) {
	removed := identity.NewServerID() // no name mapping: permanently removed
	s2 := identity.NewServerID()
	p2 := identity.NewPeerID()

	snap := topology.NewSnapshot(s2,
		map[identity.ServerID]string{s2: "two"},
		map[identity.ServerID]identity.PeerID{s2: p2},
	)
	scheme := oneShardScheme(t)
	cfg := catalog.ReplicationConfig{Shards: []catalog.ShardConfig{
		{Director: removed, Replicas: []identity.ServerID{removed, s2}},
	}}

	bp, err := Build(cfg, scheme, snap)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	r := scheme.RangeOf(0)
	if bp.RoleOf(p2, r) != RoleSecondary {
		t.Fatal("live replica must still be secondary")
	}

	var placeholder identity.PeerID
	for peer, roles := range bp.Peers {
		if roles[r] == RolePrimary {
			placeholder = peer
		}
	}
	if placeholder == "" {
		t.Fatal("removed director must still yield a primary placeholder")
	}
	if placeholder == p2 {
		t.Fatal("placeholder must not alias a live peer")
	}

	// Placeholders for removed directors are never reused across builds.
	bp2, err := Build(cfg, scheme, snap)
	if err != nil {
		t.Fatalf("second Build failed: %v", err)
	}
	if bp2.HasPeer(placeholder) {
		t.Fatal("removed-director placeholder leaked into a later build")
	}
}

func TestBuild_RemovedReplicaIsIgnored(t *testing.T) {
	s1 := identity.NewServerID()
	removed := identity.NewServerID()
	p1 := identity.NewPeerID()

	snap := topology.NewSnapshot(s1,
		map[identity.ServerID]string{s1: "one"},
		map[identity.ServerID]identity.PeerID{s1: p1},
	)
	scheme := oneShardScheme(t)
	cfg := catalog.ReplicationConfig{Shards: []catalog.ShardConfig{
		{Director: s1, Replicas: []identity.ServerID{s1, removed}},
	}}

	bp, err := Build(cfg, scheme, snap)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// Only the director's peer may appear: a removed replica acts as if it
	// were never configured.
	if len(bp.Peers) != 1 {
		t.Fatalf("expected 1 peer, got %d", len(bp.Peers))
	}
	if !bp.HasPeer(p1) {
		t.Fatal("director peer missing")
	}
}

func TestBuild_DisconnectedReplicaGetsPlaceholder(t *testing.T) {
	s1 := identity.NewServerID()
	s2 := identity.NewServerID() // known but disconnected
	p1 := identity.NewPeerID()

	snap := topology.NewSnapshot(s1,
		map[identity.ServerID]string{s1: "one", s2: "two"},
		map[identity.ServerID]identity.PeerID{s1: p1},
	)
	scheme := oneShardScheme(t)
	cfg := catalog.ReplicationConfig{Shards: []catalog.ShardConfig{
		{Director: s1, Replicas: []identity.ServerID{s1, s2}},
	}}

	bp, err := Build(cfg, scheme, snap)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	r := scheme.RangeOf(0)
	var placeholder identity.PeerID
	for peer, roles := range bp.Peers {
		if peer != p1 && roles[r] == RoleSecondary {
			placeholder = peer
		}
	}
	if placeholder == "" {
		t.Fatal("disconnected replica must get a placeholder secondary")
	}

	// The placeholder is synthesized per build: a re-run while the server is
	// still disconnected may (and here, will) produce a different peer id.
	bp2, err := Build(cfg, scheme, snap)
	if err != nil {
		t.Fatalf("second Build failed: %v", err)
	}
	if bp2.HasPeer(placeholder) {
		t.Fatal("placeholder peer ids are not stable across builds")
	}
}

func TestBuild_IdempotentForLivePeers(t *testing.T) {
	s1 := identity.NewServerID()
	s2 := identity.NewServerID()
	p1 := identity.NewPeerID()
	p2 := identity.NewPeerID()

	snap := topology.NewSnapshot(s1,
		map[identity.ServerID]string{s1: "one", s2: "two"},
		map[identity.ServerID]identity.PeerID{s1: p1, s2: p2},
	)
	scheme, err := shard.NewScheme([]string{"m"})
	if err != nil {
		t.Fatalf("NewScheme failed: %v", err)
	}
	cfg := catalog.ReplicationConfig{Shards: []catalog.ShardConfig{
		{Director: s1, Replicas: []identity.ServerID{s1, s2}},
		{Director: s2, Replicas: []identity.ServerID{s1, s2}},
	}}

	a, err := Build(cfg, scheme, snap)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	b, err := Build(cfg, scheme, snap)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// With a fully connected topology no placeholders exist, so the plans
	// must be identical.
	if !a.Equal(b) {
		t.Fatal("builds over unchanged live topology must be equal")
	}
}

func TestBuild_UnreferencedConnectedPeerIsAbsentEverywhere(t *testing.T) {
	s1 := identity.NewServerID()
	bystander := identity.NewServerID()
	p1 := identity.NewPeerID()
	pb := identity.NewPeerID()

	snap := topology.NewSnapshot(s1,
		map[identity.ServerID]string{s1: "one", bystander: "extra"},
		map[identity.ServerID]identity.PeerID{s1: p1, bystander: pb},
	)
	scheme := oneShardScheme(t)
	cfg := catalog.ReplicationConfig{Shards: []catalog.ShardConfig{
		{Director: s1, Replicas: []identity.ServerID{s1}},
	}}

	bp, err := Build(cfg, scheme, snap)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if !bp.HasPeer(pb) {
		t.Fatal("every connected peer must appear in the plan")
	}
	if bp.RoleOf(pb, scheme.RangeOf(0)) != RoleAbsent {
		t.Fatal("unreferenced peer must be absent for every range")
	}
}

func TestBuild_NameCollisionPropagates(t *testing.T) {
	s1 := identity.NewServerID()
	snap := topology.NewSnapshot(s1,
		map[identity.ServerID]string{
			s1:                     "dup",
			identity.NewServerID(): "dup",
		},
		nil,
	)
	scheme := oneShardScheme(t)
	cfg := catalog.ReplicationConfig{Shards: []catalog.ShardConfig{
		{Director: s1, Replicas: []identity.ServerID{s1}},
	}}

	if _, err := Build(cfg, scheme, snap); !errors.Is(err, ErrConfigInconsistency) {
		t.Fatalf("expected ErrConfigInconsistency, got %v", err)
	}
}

func TestBuild_PanicsOnShardCountMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on shard count mismatch")
		}
	}()

	s1 := identity.NewServerID()
	snap := topology.NewSnapshot(s1, map[identity.ServerID]string{s1: "one"}, nil)
	scheme, _ := shard.NewScheme([]string{"m"}) // two shards
	cfg := catalog.ReplicationConfig{Shards: []catalog.ShardConfig{
		{Director: s1},
	}}
	_, _ = Build(cfg, scheme, snap)
}
