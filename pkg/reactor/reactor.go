// Package reactor defines the contract of the per-table replication state
// machine as the control plane sees it: something constructed against an
// observable placement plan that publishes a directory entry and can be
// shut down.
package reactor

import (
	"context"

	"tablectl/pkg/blueprint"
	"tablectl/pkg/directory"
	"tablectl/pkg/identity"
	"tablectl/pkg/storage"
	"tablectl/pkg/watch"
)

// Reactor is a running per-table state machine. It observes its plan cell
// directly; the control plane never calls into it besides Close.
type Reactor interface {
	// Directory is the reactor's own business card observable, republished
	// into the registry-wide directory by its handle.
	Directory() *watch.Variable[directory.Entry]

	// Close stops the reactor. It must not be called before construction
	// returned, and after it returns the reactor no longer touches its
	// storage resources.
	Close()
}

// Factory builds reactor instances. New may block; it only runs inside a
// handle's background initialization task.
type Factory interface {
	New(
		ctx context.Context,
		ns identity.NamespaceID,
		localPeer identity.PeerID,
		plan watch.Value[blueprint.Blueprint],
		res storage.Resources,
	) (Reactor, error)
}
