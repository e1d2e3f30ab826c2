package catalog

import (
	"errors"
	"fmt"
	"sync"

	"tablectl/pkg/identity"
	"tablectl/pkg/shard"
)

var (
	ErrInvalidTable     = errors.New("tablectl: invalid table configuration")
	ErrUnknownCommand   = errors.New("tablectl: unknown catalog command")
	ErrNamespaceDeleted = errors.New("tablectl: namespace was deleted and cannot be reused")
)

// ShardConfig names the servers replicating one shard. The director is the
// designated primary and is implicitly a replica.
type ShardConfig struct {
	Director identity.ServerID   `json:"director"`
	Replicas []identity.ServerID `json:"replicas"`
}

// ReplicationConfig is the logical replication configuration of a table,
// one entry per shard of the partitioning scheme.
type ReplicationConfig struct {
	Shards []ShardConfig `json:"shards"`
}

// Table is the catalog record for one table. Deleted records are kept as
// tombstones so that consumers can distinguish "deleted" from "never seen".
type Table struct {
	Config  ReplicationConfig `json:"config"`
	Scheme  shard.Scheme      `json:"scheme"`
	Deleted bool              `json:"deleted"`
}

func (t Table) Validate() error {
	if t.Deleted {
		return nil
	}
	if err := t.Scheme.Validate(); err != nil {
		return err
	}
	if len(t.Config.Shards) != t.Scheme.NumShards() {
		return fmt.Errorf("%w: %d shard entries for %d shards",
			ErrInvalidTable, len(t.Config.Shards), t.Scheme.NumShards())
	}
	for i, sc := range t.Config.Shards {
		if sc.Director == "" {
			return fmt.Errorf("%w: shard %d has no director", ErrInvalidTable, i)
		}
	}
	return nil
}

// Store holds the table catalog. It is mutated only through Apply, which is
// how the replicated command log feeds it; reads take a snapshot copy.
type Store struct {
	mu     sync.RWMutex
	tables map[identity.NamespaceID]Table

	subMu  sync.Mutex
	subs   map[uint64]func()
	nextID uint64
}

func NewStore() *Store {
	return &Store{
		tables: make(map[identity.NamespaceID]Table),
		subs:   make(map[uint64]func()),
	}
}

// Snapshot returns a copy of the catalog, tombstones included.
func (s *Store) Snapshot() map[identity.NamespaceID]Table {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[identity.NamespaceID]Table, len(s.tables))
	for ns, tbl := range s.tables {
		out[ns] = tbl
	}
	return out
}

// Subscribe registers fn to run after every applied command. The returned
// cancel never blocks on an in-flight notification.
func (s *Store) Subscribe(fn func()) (cancel func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Apply executes a replicated catalog command. Dropping a table leaves a
// tombstone; dropping an unknown table creates one, so the operation is
// idempotent across replays. A tombstoned namespace can never be put again:
// a background teardown for the old table may still be running, keyed by
// the same namespace, and would clobber a resurrected table's directory
// entry and storage.
func (s *Store) Apply(cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	switch cmd.Op {
	case OpPutTable:
		if cur, ok := s.tables[cmd.Namespace]; ok && cur.Deleted {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrNamespaceDeleted, cmd.Namespace)
		}
		s.tables[cmd.Namespace] = *cmd.Table
	case OpDropTable:
		s.tables[cmd.Namespace] = Table{Deleted: true}
	default:
		s.mu.Unlock()
		return fmt.Errorf("%w: op %d", ErrUnknownCommand, cmd.Op)
	}
	s.mu.Unlock()

	s.notify()
	return nil
}

func (s *Store) notify() {
	s.subMu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
