// Package topology tracks the server identity <-> connectivity name <-> live
// peer identity mapping of the cluster and notifies consumers when it changes.
package topology

import (
	"errors"
	"fmt"
	"sync"

	"tablectl/pkg/identity"
)

var ErrNameCollision = errors.New("tablectl: server name collision")

// Source is the read side consumed by placement logic: a point-in-time
// snapshot plus change notifications.
type Source interface {
	Snapshot() *Snapshot
	Subscribe(fn func()) (cancel func())
}

// Snapshot is an immutable view of the topology at one instant.
//
// A server with no name mapping is permanently removed from the cluster.
// A server with a name but no peer mapping is known but currently
// disconnected.
type Snapshot struct {
	local      identity.ServerID
	localPeer  identity.PeerID
	names      map[identity.ServerID]string
	peers      map[identity.ServerID]identity.PeerID
	collisions []string
}

// NewSnapshot builds a snapshot for the given local server. names is the
// durable server registry, peers the currently connected members. Name
// collisions are detected here; consumers only propagate them.
func NewSnapshot(
	local identity.ServerID,
	names map[identity.ServerID]string,
	peers map[identity.ServerID]identity.PeerID,
) *Snapshot {
	s := &Snapshot{
		local: local,
		names: make(map[identity.ServerID]string, len(names)),
		peers: make(map[identity.ServerID]identity.PeerID, len(peers)),
	}
	byName := make(map[string]int, len(names))
	for id, name := range names {
		s.names[id] = name
		byName[name]++
	}
	for name, n := range byName {
		if n > 1 {
			s.collisions = append(s.collisions, name)
		}
	}
	for id, peer := range peers {
		s.peers[id] = peer
	}
	s.localPeer = s.peers[local]
	return s
}

// NameOf resolves a server id to its human-facing name. ok is false when the
// server was permanently removed.
func (s *Snapshot) NameOf(id identity.ServerID) (string, bool) {
	name, ok := s.names[id]
	return name, ok
}

// PeerOf resolves a server id to its live peer id. ok is false when the
// server is currently disconnected or unknown.
func (s *Snapshot) PeerOf(id identity.ServerID) (identity.PeerID, bool) {
	peer, ok := s.peers[id]
	return peer, ok
}

// ConnectedServers returns a copy of the server -> peer map for every
// currently connected member.
func (s *Snapshot) ConnectedServers() map[identity.ServerID]identity.PeerID {
	out := make(map[identity.ServerID]identity.PeerID, len(s.peers))
	for id, peer := range s.peers {
		out[id] = peer
	}
	return out
}

// LocalPeer is the local process's own peer id, or empty while the local
// peer mapping has not propagated yet.
func (s *Snapshot) LocalPeer() identity.PeerID {
	return s.localPeer
}

// LocalRemoved reports whether the local server was permanently removed
// from the cluster.
func (s *Snapshot) LocalRemoved() bool {
	_, ok := s.names[s.local]
	return !ok
}

// CheckNames returns ErrNameCollision when any server name resolves to more
// than one server id.
func (s *Snapshot) CheckNames() error {
	if len(s.collisions) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrNameCollision, s.collisions)
}

// Static is an in-process Source, used for single-node deployments and tests.
type Static struct {
	mu     sync.Mutex
	snap   *Snapshot
	subs   map[uint64]func()
	nextID uint64
}

func NewStatic(snap *Snapshot) *Static {
	return &Static{
		snap: snap,
		subs: make(map[uint64]func()),
	}
}

func (s *Static) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *Static) Subscribe(fn func()) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Update replaces the snapshot and notifies subscribers.
func (s *Static) Update(snap *Snapshot) {
	s.mu.Lock()
	s.snap = snap
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
