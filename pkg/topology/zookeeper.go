package topology

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"

	"tablectl/pkg/identity"
)

const (
	serversPath    = "/servers"
	peersPath      = "/peers"
	connectTimeout = 10 * time.Second
	retryDelay     = 2 * time.Second
)

// ZKMembership is a Source backed by ZooKeeper.
//
// Layout under rootPath:
//
//	<root>/servers/<serverID>  persistent, data = server name (durable registry;
//	                           deleting the znode permanently removes the server)
//	<root>/peers/<peerID>      ephemeral, data = serverID (live connectivity)
type ZKMembership struct {
	conn     *zk.Conn
	rootPath string

	localServer identity.ServerID
	localName   string
	localPeer   identity.PeerID

	mu     sync.Mutex
	snap   *Snapshot
	subs   map[uint64]func()
	nextID uint64
}

// servers: ["zk1:2181", "zk2:2181"]
func NewZKMembership(servers []string, rootPath string, localServer identity.ServerID, localName string) (*ZKMembership, error) {
	conn, _, err := zk.Connect(servers, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("zk connect: %w", err)
	}
	// The pre-rebuild snapshot carries the local server's own name entry:
	// before the first successful rebuild the topology is merely unloaded,
	// which must not read as the local server being permanently removed.
	return &ZKMembership{
		conn:        conn,
		rootPath:    rootPath,
		localServer: localServer,
		localName:   localName,
		localPeer:   identity.NewPeerID(),
		snap:        NewSnapshot(localServer, map[identity.ServerID]string{localServer: localName}, nil),
		subs:        make(map[uint64]func()),
	}, nil
}

func (m *ZKMembership) Close() error {
	m.conn.Close()
	return nil
}

// LocalPeer is the peer id this process registers itself under. It is fixed
// for the process lifetime.
func (m *ZKMembership) LocalPeer() identity.PeerID {
	return m.localPeer
}

func (m *ZKMembership) ensurePath(path string) error {
	parts := strings.Split(path, "/")
	cur := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		cur = cur + "/" + p
		exists, _, err := m.conn.Exists(cur)
		if err != nil {
			return err
		}
		if !exists {
			_, err = m.conn.Create(cur, nil, 0, zk.WorldACL(zk.PermAll))
			if err != nil && err != zk.ErrNodeExists {
				return err
			}
		}
	}
	return nil
}

// RegisterSelf publishes the durable server record and an ephemeral peer
// node for the current connection.
func (m *ZKMembership) RegisterSelf() error {
	if err := m.waitConnected(connectTimeout); err != nil {
		return err
	}

	if err := m.ensurePath(m.rootPath + serversPath); err != nil {
		return fmt.Errorf("ensure servers path: %w", err)
	}
	if err := m.ensurePath(m.rootPath + peersPath); err != nil {
		return fmt.Errorf("ensure peers path: %w", err)
	}

	serverPath := fmt.Sprintf("%s%s/%s", m.rootPath, serversPath, m.localServer)
	_, err := m.conn.Create(serverPath, []byte(m.localName), 0, zk.WorldACL(zk.PermAll))
	if err != nil && err != zk.ErrNodeExists {
		return fmt.Errorf("create server node: %w", err)
	}

	peerPath := fmt.Sprintf("%s%s/%s", m.rootPath, peersPath, m.localPeer)
	_, err = m.conn.Create(peerPath, []byte(m.localServer), zk.FlagEphemeral, zk.WorldACL(zk.PermAll))
	if err != nil && err != zk.ErrNodeExists {
		return fmt.Errorf("create ephemeral peer node: %w", err)
	}

	slog.Info("registered in zookeeper", "server", m.localServer, "peer", m.localPeer, "name", m.localName)
	return nil
}

func (m *ZKMembership) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

func (m *ZKMembership) Subscribe(fn func()) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Run watches the servers and peers subtrees and republishes a fresh
// snapshot on every membership or rename event. Blocks until ctx is done.
func (m *ZKMembership) Run(ctx context.Context) {
	for {
		watches, err := m.rebuild()
		if err != nil {
			slog.Warn("zk topology rebuild failed", "error", err)
			select {
			case <-time.After(retryDelay):
				continue
			case <-ctx.Done():
				return
			}
		}

		refresh := make(chan struct{}, 1)
		done := make(chan struct{})
		for _, ch := range watches {
			go func(ch <-chan zk.Event) {
				select {
				case <-ch:
					select {
					case refresh <- struct{}{}:
					default:
					}
				case <-done:
				}
			}(ch)
		}

		select {
		case <-refresh:
			close(done)
		case <-ctx.Done():
			close(done)
			slog.Info("zk topology watch stopped")
			return
		}
	}
}

// rebuild reads the full subtree, installs a new snapshot and returns the
// watch channels that invalidate it.
func (m *ZKMembership) rebuild() ([]<-chan zk.Event, error) {
	var watches []<-chan zk.Event

	serverIDs, _, serverWatch, err := m.conn.ChildrenW(m.rootPath + serversPath)
	if err != nil {
		return nil, fmt.Errorf("zk children %s: %w", serversPath, err)
	}
	watches = append(watches, serverWatch)

	names := make(map[identity.ServerID]string, len(serverIDs))
	for _, id := range serverIDs {
		data, _, nameWatch, err := m.conn.GetW(fmt.Sprintf("%s%s/%s", m.rootPath, serversPath, id))
		if err == zk.ErrNoNode {
			continue // removed between list and read
		}
		if err != nil {
			return nil, fmt.Errorf("zk get server %s: %w", id, err)
		}
		names[identity.ServerID(id)] = string(data)
		watches = append(watches, nameWatch)
	}

	peerIDs, _, peerWatch, err := m.conn.ChildrenW(m.rootPath + peersPath)
	if err != nil {
		return nil, fmt.Errorf("zk children %s: %w", peersPath, err)
	}
	watches = append(watches, peerWatch)

	peers := make(map[identity.ServerID]identity.PeerID, len(peerIDs))
	for _, id := range peerIDs {
		data, _, err := m.conn.Get(fmt.Sprintf("%s%s/%s", m.rootPath, peersPath, id))
		if err == zk.ErrNoNode {
			continue // session expired between list and read
		}
		if err != nil {
			return nil, fmt.Errorf("zk get peer %s: %w", id, err)
		}
		peers[identity.ServerID(data)] = identity.PeerID(id)
	}

	snap := NewSnapshot(m.localServer, names, peers)

	m.mu.Lock()
	m.snap = snap
	fns := make([]func(), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return watches, nil
}

func (m *ZKMembership) waitConnected(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		st := m.conn.State()
		if st == zk.StateConnected || st == zk.StateHasSession {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("zk: not connected after %s, state=%v", timeout, st)
		}
		time.Sleep(200 * time.Millisecond)
	}
}
