package reactor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"tablectl/pkg/blueprint"
	"tablectl/pkg/directory"
	"tablectl/pkg/identity"
	"tablectl/pkg/shard"
	"tablectl/pkg/storage"
	"tablectl/pkg/watch"
)

// LogFactory builds LogReactor instances.
type LogFactory struct{}

func (LogFactory) New(
	_ context.Context,
	ns identity.NamespaceID,
	localPeer identity.PeerID,
	plan watch.Value[blueprint.Blueprint],
	res storage.Resources,
) (Reactor, error) {
	return newLogReactor(ns, localPeer, plan, res), nil
}

// LogReactor is a minimal reactor: it follows its placement plan, journals
// every epoch of the local peer's roles and publishes them as its directory
// entry. Plan notifications are queued and applied on the reactor's own
// goroutine so the notifier never blocks on journal writes.
type LogReactor struct {
	ns    identity.NamespaceID
	peer  identity.PeerID
	res   storage.Resources
	entry *watch.Variable[directory.Entry]

	cancel func()

	mu    sync.Mutex
	queue []blueprint.Blueprint

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	epoch uint64
}

func newLogReactor(
	ns identity.NamespaceID,
	localPeer identity.PeerID,
	plan watch.Value[blueprint.Blueprint],
	res storage.Resources,
) *LogReactor {
	r := &LogReactor{
		ns:    ns,
		peer:  localPeer,
		res:   res,
		entry: watch.NewVariable(directory.Entry{Peer: localPeer}, directory.Entry.Equal),
		wake:  make(chan struct{}, 1),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}

	// Subscribe before reading the current plan so no update is lost. The
	// current plan seeds the queue only while it is still empty: an update
	// that already arrived is at least as new, and placing the seed in
	// front of it would replay plans out of application order. A duplicate
	// first plan is harmless.
	r.cancel = plan.Subscribe(r.enqueue)
	r.mu.Lock()
	if len(r.queue) == 0 {
		r.queue = append(r.queue, plan.Get())
	}
	r.mu.Unlock()

	go r.run()
	return r
}

func (r *LogReactor) Directory() *watch.Variable[directory.Entry] {
	return r.entry
}

// Close detaches from the plan cell and waits until every queued plan has
// been applied and journaled.
func (r *LogReactor) Close() {
	r.cancel()
	close(r.stop)
	<-r.done
}

func (r *LogReactor) enqueue(bp blueprint.Blueprint) {
	r.mu.Lock()
	r.queue = append(r.queue, bp)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *LogReactor) run() {
	defer close(r.done)

	for {
		r.mu.Lock()
		if len(r.queue) == 0 {
			r.mu.Unlock()
			select {
			case <-r.wake:
				continue
			case <-r.stop:
				return
			}
		}
		bp := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()

		r.apply(bp)
	}
}

type rangeRole struct {
	Range shard.Range    `json:"range"`
	Role  blueprint.Role `json:"role"`
}

type epochRecord struct {
	Epoch uint64      `json:"epoch"`
	Roles []rangeRole `json:"roles"`
}

func (r *LogReactor) apply(bp blueprint.Blueprint) {
	r.epoch++
	roles := bp.RolesOf(r.peer)

	rec := epochRecord{Epoch: r.epoch, Roles: make([]rangeRole, 0, len(roles))}
	for rng, role := range roles {
		rec.Roles = append(rec.Roles, rangeRole{Range: rng, Role: role})
	}
	sort.Slice(rec.Roles, func(i, j int) bool {
		return rec.Roles[i].Range.Begin < rec.Roles[j].Range.Begin
	})

	payload, err := json.Marshal(rec)
	if err != nil {
		slog.Error("failed to encode epoch record", "namespace", r.ns, "error", err)
		return
	}
	if err := r.res.Append(payload); err != nil {
		slog.Error("failed to journal epoch record", "namespace", r.ns, "epoch", r.epoch, "error", err)
	}

	slog.Debug("plan applied",
		"namespace", r.ns,
		"peer", r.peer,
		"epoch", r.epoch,
		"roles", fmt.Sprint(rec.Roles),
	)

	r.entry.Set(directory.Entry{Peer: r.peer, Roles: roles, Epoch: r.epoch})
}
