// Package directory holds the registry-wide directory of reactor business
// cards: what every live reactor publishes about its own per-range activity.
package directory

import (
	"github.com/zhangyunhao116/skipmap"

	"tablectl/pkg/blueprint"
	"tablectl/pkg/identity"
	"tablectl/pkg/shard"
)

// Entry is the card one reactor publishes for its table: the peer it runs
// as and the activity it currently reports per shard range.
type Entry struct {
	Peer  identity.PeerID
	Roles map[shard.Range]blueprint.Role
	Epoch uint64
}

func (e Entry) Equal(o Entry) bool {
	if e.Peer != o.Peer || e.Epoch != o.Epoch || len(e.Roles) != len(o.Roles) {
		return false
	}
	for r, role := range e.Roles {
		otherRole, ok := o.Roles[r]
		if !ok || role != otherRole {
			return false
		}
	}
	return true
}

// Sink is the write side of a directory: upsert-by-key and delete-by-key.
type Sink interface {
	Upsert(ns identity.NamespaceID, entry Entry)
	Delete(ns identity.NamespaceID)
}

// Directory is a concurrent namespace -> Entry map. Handles write their own
// table's entry; external consumers read any of them.
type Directory struct {
	entries *skipmap.FuncMap[string, Entry]
}

func New() *Directory {
	return &Directory{
		entries: skipmap.NewFunc[string, Entry](func(a, b string) bool {
			return a < b
		}),
	}
}

func (d *Directory) Upsert(ns identity.NamespaceID, entry Entry) {
	d.entries.Store(string(ns), entry)
}

func (d *Directory) Delete(ns identity.NamespaceID) {
	d.entries.Delete(string(ns))
}

func (d *Directory) Get(ns identity.NamespaceID) (Entry, bool) {
	return d.entries.Load(string(ns))
}

func (d *Directory) Snapshot() map[identity.NamespaceID]Entry {
	out := make(map[identity.NamespaceID]Entry)
	d.entries.Range(func(key string, value Entry) bool {
		out[identity.NamespaceID(key)] = value
		return true
	})
	return out
}
