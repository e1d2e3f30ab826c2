// Package driver hosts the per-table reactors of one process. It watches
// the replicated catalog and the cluster topology, recomputes placement
// plans on every change and keeps a reactor handle alive for each table
// this peer participates in.
package driver

import (
	"context"
	"log/slog"
	"sync"

	"tablectl/pkg/blueprint"
	"tablectl/pkg/catalog"
	"tablectl/pkg/directory"
	"tablectl/pkg/identity"
	"tablectl/pkg/reactor"
	"tablectl/pkg/storage"
	"tablectl/pkg/topology"
)

// CatalogSource is the view of the table catalog the driver consumes.
// *catalog.Store satisfies it.
type CatalogSource interface {
	Snapshot() map[identity.NamespaceID]catalog.Table
	Subscribe(fn func()) (cancel func())
}

// Driver reconciles the catalog and topology into a set of live reactor
// handles. Reconciliation is synchronous and non-blocking; reactor
// construction and destruction run on detached background tasks that
// Close waits for.
type Driver struct {
	catalog CatalogSource
	topo    topology.Source
	prov    storage.Provisioner
	factory reactor.Factory
	sink    directory.Sink

	// ctx bounds background initializations; Close cancels it so a blocked
	// storage acquisition cannot stall shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	tasks *drainer

	mu      sync.Mutex
	closed  bool
	handles map[identity.NamespaceID]*handle

	cancelCatalog func()
	cancelTopo    func()
}

func New(
	cat CatalogSource,
	topo topology.Source,
	prov storage.Provisioner,
	factory reactor.Factory,
	sink directory.Sink,
) *Driver {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Driver{
		catalog: cat,
		topo:    topo,
		prov:    prov,
		factory: factory,
		sink:    sink,
		ctx:     ctx,
		cancel:  cancel,
		tasks:   newDrainer(),
		handles: make(map[identity.NamespaceID]*handle),
	}
	d.cancelCatalog = cat.Subscribe(d.onChange)
	d.cancelTopo = topo.Subscribe(d.onChange)
	d.onChange()
	return d
}

// onChange recomputes the desired handle set from the current catalog and
// topology snapshots. It runs on the notifying goroutine and must not
// block: handles are created inert and dismantled asynchronously.
func (d *Driver) onChange() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	snap := d.topo.Snapshot()
	tables := d.catalog.Snapshot()
	localRemoved := snap.LocalRemoved()
	localPeer := snap.LocalPeer()
	if localRemoved {
		slog.Warn("local server was permanently removed, dismantling all tables")
	}

	for ns, tbl := range tables {
		h, exists := d.handles[ns]

		if tbl.Deleted || localRemoved {
			if exists {
				delete(d.handles, ns)
				d.dismantle(h, true)
			}
			continue
		}

		plan, err := blueprint.Build(tbl.Config, tbl.Scheme, snap)
		if err != nil {
			// The configuration cannot be resolved right now. Keep the
			// handle running on its last valid plan and retry on the next
			// change.
			slog.Warn("cannot resolve table configuration, keeping last plan",
				"namespace", ns, "error", err)
			continue
		}

		if !plan.HasPeer(localPeer) {
			// Our own peer id has not propagated into the topology yet.
			// The gap is transient; skip until it closes.
			continue
		}

		if exists {
			h.cell.Set(plan)
			continue
		}

		h = newHandle(ns, localPeer, d.sink, plan)
		d.handles[ns] = h
		go h.initialize(d.ctx, d.prov, d.factory)
	}

	// The catalog keeps tombstones, so a vanished namespace only happens
	// when the catalog store itself was replaced. Treat it as a delete.
	for ns, h := range d.handles {
		if _, ok := tables[ns]; !ok {
			delete(d.handles, ns)
			d.dismantle(h, true)
		}
	}
}

// dismantle tears a detached handle down on a background task, destroying
// the table's on-disk data afterwards when destroy is set. Callers must
// hold d.mu or otherwise guarantee the drainer is still accepting tasks.
func (d *Driver) dismantle(h *handle, destroy bool) {
	d.tasks.spawn(func() {
		h.teardown()
		if !destroy {
			return
		}
		if err := d.prov.Destroy(h.ns); err != nil {
			slog.Error("failed to destroy table storage", "namespace", h.ns, "error", err)
		}
	})
}

// hostedTables returns the namespaces currently holding a live handle.
func (d *Driver) hostedTables() []identity.NamespaceID {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]identity.NamespaceID, 0, len(d.handles))
	for ns := range d.handles {
		out = append(out, ns)
	}
	return out
}

// Close detaches every handle and waits for all background teardowns to
// finish. Data on disk is kept; only a catalog delete destroys it.
func (d *Driver) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.cancelCatalog()
	d.cancelTopo()

	handles := d.handles
	d.handles = make(map[identity.NamespaceID]*handle)
	d.cancel()
	for _, h := range handles {
		d.dismantle(h, false)
	}
	d.mu.Unlock()

	d.tasks.drain()
}
