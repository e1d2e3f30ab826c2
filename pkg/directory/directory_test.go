package directory

import (
	"testing"

	"tablectl/pkg/blueprint"
	"tablectl/pkg/identity"
	"tablectl/pkg/shard"
	"tablectl/pkg/watch"
)

func TestDirectory_UpsertGetDelete(t *testing.T) {
	dir := New()
	ns := identity.NewNamespaceID()
	entry := Entry{Peer: identity.NewPeerID(), Epoch: 1}

	dir.Upsert(ns, entry)

	got, ok := dir.Get(ns)
	if !ok {
		t.Fatal("expected entry")
	}
	if !got.Equal(entry) {
		t.Fatalf("got %+v, expected %+v", got, entry)
	}

	dir.Delete(ns)
	if _, ok := dir.Get(ns); ok {
		t.Fatal("entry should be gone after Delete")
	}
}

func TestDirectory_Snapshot(t *testing.T) {
	dir := New()
	ns1 := identity.NewNamespaceID()
	ns2 := identity.NewNamespaceID()

	dir.Upsert(ns1, Entry{Epoch: 1})
	dir.Upsert(ns2, Entry{Epoch: 2})

	snap := dir.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(snap))
	}
	if snap[ns1].Epoch != 1 || snap[ns2].Epoch != 2 {
		t.Fatalf("unexpected snapshot contents: %+v", snap)
	}
}

func TestEntryCopier_CopiesCurrentAndUpdates(t *testing.T) {
	dir := New()
	ns := identity.NewNamespaceID()
	peer := identity.NewPeerID()

	src := watch.NewVariable(Entry{Peer: peer, Epoch: 1}, Entry.Equal)
	copier := NewEntryCopier(dir, ns, src)

	got, ok := dir.Get(ns)
	if !ok || got.Epoch != 1 {
		t.Fatalf("initial value not copied: %+v, %v", got, ok)
	}

	src.Set(Entry{Peer: peer, Epoch: 2})
	got, _ = dir.Get(ns)
	if got.Epoch != 2 {
		t.Fatalf("update not copied: %+v", got)
	}

	// Close detaches but leaves the key in place; the owner removes it.
	copier.Close()
	src.Set(Entry{Peer: peer, Epoch: 3})
	got, ok = dir.Get(ns)
	if !ok {
		t.Fatal("Close must not delete the directory key")
	}
	if got.Epoch != 2 {
		t.Fatalf("copier kept copying after Close: %+v", got)
	}
}

func TestEntry_Equal(t *testing.T) {
	r := shard.Range{Begin: "", End: "m"}
	peer := identity.NewPeerID()

	a := Entry{Peer: peer, Roles: map[shard.Range]blueprint.Role{r: blueprint.RolePrimary}}
	b := Entry{Peer: peer, Roles: map[shard.Range]blueprint.Role{r: blueprint.RolePrimary}}
	if !a.Equal(b) {
		t.Fatal("identical entries should be equal")
	}

	b.Roles[r] = blueprint.RoleSecondary
	if a.Equal(b) {
		t.Fatal("differing roles should not be equal")
	}
}
