package identity

import "github.com/google/uuid"

// ServerID is the durable identity of a server. It survives reconnections
// and process restarts.
type ServerID string

// PeerID is the transient identity of a connected cluster member. It is only
// valid while that member is reachable; a disconnected server has no peer id.
type PeerID string

// NamespaceID identifies a table.
type NamespaceID string

func NewServerID() ServerID {
	return ServerID(uuid.NewString())
}

// NewPeerID returns a fresh globally-unique peer id. Besides identifying a
// live connection, fresh ids are used as unroutable placeholders for servers
// that have no live peer mapping.
func NewPeerID() PeerID {
	return PeerID(uuid.NewString())
}

func NewNamespaceID() NamespaceID {
	return NamespaceID(uuid.NewString())
}
