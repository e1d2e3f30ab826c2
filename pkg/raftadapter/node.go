// Package raftadapter replicates catalog commands across control-plane
// nodes with etcd raft. Every node applies the committed command log to its
// local catalog store, which then notifies its subscribers.
package raftadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/etcd/raft/v3"
	"go.etcd.io/etcd/raft/v3/raftpb"

	"tablectl/pkg/catalog"
)

type iCatalog interface {
	Apply(cmd catalog.Command) error
}

type iTransport interface {
	Send(msg raftpb.Message) error
	AddPeer(id uint64, addr string)
	RemovePeer(id uint64)
	UpdatePeer(id uint64, addr string)
}

type Node struct {
	ID           uint64
	Peers        map[uint64]string
	underlying   raft.Node
	target       iCatalog
	journal      *raft.MemoryStorage
	conf         *raftpb.ConfState
	tickInterval time.Duration
	transport    iTransport

	ctx  context.Context
	stop context.CancelFunc

	proposalsMu sync.RWMutex
	proposals   map[uuid.UUID]chan proposeResult
}

func NewNode(config Config, target iCatalog) (*Node, error) {
	cfg := toRaftConfig(config)
	storage := raft.NewMemoryStorage()
	cfg.Storage = storage

	var (
		confState raftpb.ConfState
		peers     = make(map[uint64]string, len(config.Peers))
		raftPeers = make([]raft.Peer, 0, len(config.Peers))
	)
	for _, p := range config.Peers {
		if _, ok := peers[p.ID]; ok {
			return nil, fmt.Errorf("duplicate raft peer ID %d", p.ID)
		}
		peers[p.ID] = p.Address
		confState.Voters = append(confState.Voters, p.ID)
		raftPeers = append(raftPeers, raft.Peer{
			ID:      p.ID,
			Context: []byte(p.Address),
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Node{
		ID:           config.ID,
		Peers:        peers,
		conf:         &confState,
		underlying:   raft.StartNode(cfg, raftPeers),
		target:       target,
		journal:      storage,
		tickInterval: 100 * time.Millisecond,
		transport:    NewTransport(peers),
		proposals:    make(map[uuid.UUID]chan proposeResult),
		ctx:          ctx,
		stop:         cancel,
	}, nil
}

func (n *Node) Run(ctx context.Context) error {
	ticker := time.NewTicker(n.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return n.ctx.Err()
		case <-ctx.Done():
			_ = n.Stop()
			return ctx.Err()
		case <-ticker.C:
			n.underlying.Tick()
		case rd := <-n.underlying.Ready():
			if err := n.handleReady(rd); err != nil {
				return err
			}
		}
	}
}

func (n *Node) handleReady(rd raft.Ready) error {
	if err := n.journal.Append(rd.Entries); err != nil {
		return fmt.Errorf("append entries: %w", err)
	}

	n.sendMessages(rd.Messages)

	for _, entry := range rd.CommittedEntries {
		if err := n.applyEntry(entry); err != nil {
			slog.Error("critical: failed to apply catalog entry", "error", err)
			return fmt.Errorf("apply entry: %w", err)
		}

		if entry.Type == raftpb.EntryConfChange {
			var cc raftpb.ConfChange
			if err := cc.Unmarshal(entry.Data); err != nil {
				return fmt.Errorf("unmarshal conf change: %w", err)
			}
			n.conf = n.underlying.ApplyConfChange(cc)
			n.updateTransport(cc)
		}
	}

	n.underlying.Advance()
	return nil
}

func (n *Node) updateTransport(cc raftpb.ConfChange) {
	switch cc.Type {
	case raftpb.ConfChangeAddNode:
		peerAddr := string(cc.Context)
		n.Peers[cc.NodeID] = peerAddr
		n.transport.AddPeer(cc.NodeID, peerAddr)
		slog.Info("added raft peer", "id", cc.NodeID, "addr", peerAddr)

	case raftpb.ConfChangeRemoveNode:
		delete(n.Peers, cc.NodeID)
		n.transport.RemovePeer(cc.NodeID)
		slog.Info("removed raft peer", "id", cc.NodeID)

	case raftpb.ConfChangeUpdateNode:
		peerAddr := string(cc.Context)
		n.Peers[cc.NodeID] = peerAddr
		n.transport.UpdatePeer(cc.NodeID, peerAddr)
		slog.Info("updated raft peer", "id", cc.NodeID, "addr", peerAddr)
	}
}

func (n *Node) sendMessages(msgs []raftpb.Message) {
	for _, msg := range msgs {
		if msg.To == n.ID {
			continue
		}

		go func(m raftpb.Message) {
			if err := n.transport.Send(m); err != nil {
				slog.Error("failed to send raft message",
					"from", m.From,
					"to", m.To,
					"type", m.Type,
					"error", err)
			}
		}(msg)
	}
}

func (n *Node) applyEntry(entry raftpb.Entry) error {
	if entry.Type != raftpb.EntryNormal || len(entry.Data) == 0 {
		return nil
	}

	var cmd catalog.Command
	if err := json.Unmarshal(entry.Data, &cmd); err != nil {
		return fmt.Errorf("unmarshal catalog command: %w", err)
	}

	err := n.target.Apply(cmd)
	return n.notifyProposalResult(cmd.ID, proposeResult{Err: err})
}

func (n *Node) IsLeader() bool {
	return n.underlying.Status().Lead == n.ID
}

func (n *Node) LeaderAddr() string {
	leaderID := n.underlying.Status().Lead
	return n.Peers[leaderID]
}

func (n *Node) LeaderID() uint64 {
	return n.underlying.Status().Lead
}

type proposeResult struct {
	Err error
}

func (n *Node) notifyProposalResult(cmdID uuid.UUID, result proposeResult) error {
	n.proposalsMu.RLock()
	resultChan, ok := n.proposals[cmdID]
	n.proposalsMu.RUnlock()

	if !ok {
		// Followers apply commands they never proposed, and a leader's
		// Execute may have timed out and removed its channel already.
		slog.Debug("proposal result channel not found (ignored)", "cmd_id", cmdID, "is_leader", n.IsLeader())
		return nil
	}

	select {
	case resultChan <- result:
	default:
		slog.Debug("proposal result channel is full (ignored)", "cmd_id", cmdID)
	}
	return nil
}

// Execute proposes a catalog command and waits for it to commit and apply
// on this node.
func (n *Node) Execute(ctx context.Context, cmd catalog.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal catalog command: %w", err)
	}

	resultChan := make(chan proposeResult, 1)

	n.proposalsMu.Lock()
	n.proposals[cmd.ID] = resultChan
	n.proposalsMu.Unlock()

	defer func() {
		n.proposalsMu.Lock()
		delete(n.proposals, cmd.ID)
		n.proposalsMu.Unlock()
	}()

	if err := n.underlying.Propose(ctx, data); err != nil {
		return fmt.Errorf("propose: %w", err)
	}

	select {
	case result := <-resultChan:
		return result.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle feeds an incoming raft message from another node into the state
// machine.
func (n *Node) Handle(ctx context.Context, msg raftpb.Message) error {
	return n.underlying.Step(ctx, msg)
}

func (n *Node) Stop() error {
	slog.Info("stopping raft node", "id", n.ID)

	n.underlying.Stop()
	n.stop()

	n.proposalsMu.Lock()
	for _, resultChan := range n.proposals {
		select {
		case resultChan <- proposeResult{Err: fmt.Errorf("node stopped")}:
		default:
		}
		close(resultChan)
	}
	n.proposalsMu.Unlock()

	slog.Info("raft node stopped", "id", n.ID)
	return nil
}
