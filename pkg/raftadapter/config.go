package raftadapter

import "go.etcd.io/etcd/raft/v3"

// Peer names one member of the control-plane raft group.
type Peer struct {
	ID      uint64 `yaml:"id" json:"id"`
	Address string `yaml:"address" json:"address"`
}

// Config describes the local raft node. A single-peer group is valid and
// elects itself, which is how single-node deployments run.
type Config struct {
	ID    uint64 `yaml:"id"`
	Peers []Peer `yaml:"peers"`

	ElectionTick  int  `yaml:"election_tick"`
	HeartbeatTick int  `yaml:"heartbeat_tick"`
	CheckQuorum   bool `yaml:"check_quorum"`
	PreVote       bool `yaml:"pre_vote"`
}

func DefaultConfig() Config {
	return Config{
		ID:            1,
		Peers:         []Peer{{ID: 1, Address: "http://localhost:8080"}},
		ElectionTick:  10,
		HeartbeatTick: 1,
		PreVote:       true,
	}
}

func toRaftConfig(c Config) *raft.Config {
	return &raft.Config{
		ID:              c.ID,
		ElectionTick:    c.ElectionTick,
		HeartbeatTick:   c.HeartbeatTick,
		MaxSizePerMsg:   1024 * 1024,
		MaxInflightMsgs: 256,
		CheckQuorum:     c.CheckQuorum,
		PreVote:         c.PreVote,
	}
}
