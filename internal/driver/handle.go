package driver

import (
	"context"
	"log/slog"

	"tablectl/pkg/blueprint"
	"tablectl/pkg/directory"
	"tablectl/pkg/identity"
	"tablectl/pkg/reactor"
	"tablectl/pkg/storage"
	"tablectl/pkg/watch"
)

// handle owns the lifetime of one hosted table: its placement plan cell,
// its storage resources, its reactor and the exporter that republishes the
// reactor's directory entry. Construction is synchronous and cheap; the
// expensive work (acquiring storage, building the reactor) happens on a
// background task so topology and catalog notifications never block.
type handle struct {
	ns        identity.NamespaceID
	localPeer identity.PeerID
	sink      directory.Sink

	// cell is the plan the reactor observes. Equal suppresses redundant
	// rebuild notifications.
	cell *watch.Variable[blueprint.Blueprint]

	// initDone closes when initialization finished, successfully or not.
	// Teardown waits on it so it never races construction.
	initDone chan struct{}

	res      storage.Resources
	rtor     reactor.Reactor
	exporter *directory.EntryCopier
}

func newHandle(
	ns identity.NamespaceID,
	localPeer identity.PeerID,
	sink directory.Sink,
	plan blueprint.Blueprint,
) *handle {
	return &handle{
		ns:        ns,
		localPeer: localPeer,
		sink:      sink,
		cell:      watch.NewVariable(plan, blueprint.Blueprint.Equal),
		initDone:  make(chan struct{}),
	}
}

// initialize acquires storage, starts the reactor against the plan cell and
// wires the exporter. On failure the handle stays inert; whatever was
// acquired is released later by teardown in the usual order.
func (h *handle) initialize(ctx context.Context, prov storage.Provisioner, factory reactor.Factory) {
	defer close(h.initDone)

	res, err := prov.Acquire(ctx, h.ns)
	if err != nil {
		slog.Warn("failed to acquire table storage", "namespace", h.ns, "error", err)
		return
	}
	h.res = res

	rtor, err := factory.New(ctx, h.ns, h.localPeer, h.cell, res)
	if err != nil {
		slog.Warn("failed to start reactor", "namespace", h.ns, "error", err)
		return
	}
	h.rtor = rtor
	h.exporter = directory.NewEntryCopier(h.sink, h.ns, rtor.Directory())
}

// teardown dismantles the handle. It waits for initialization first, then
// stops the exporter, stops the reactor, removes the directory key and
// finally releases the storage resources. The order matters: the directory
// key must outlive the reactor and disappear before its storage does.
func (h *handle) teardown() {
	<-h.initDone

	if h.exporter != nil {
		h.exporter.Close()
	}
	if h.rtor != nil {
		h.rtor.Close()
	}
	h.sink.Delete(h.ns)
	if h.res != nil {
		if err := h.res.Close(); err != nil {
			slog.Warn("failed to close table storage", "namespace", h.ns, "error", err)
		}
	}
}
