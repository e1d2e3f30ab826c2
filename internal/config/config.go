// Package config holds the node configuration, loaded from YAML with
// defaults suitable for a single-node development setup.
package config

import (
	"tablectl/pkg/raftadapter"
)

type Config struct {
	Logger    LoggerConfig       `yaml:"logger"`
	Server    ServerConfig       `yaml:"http-server"`
	Node      NodeConfig         `yaml:"node"`
	ZooKeeper ZooKeeperConfig    `yaml:"zookeeper"`
	Raft      raftadapter.Config `yaml:"raft"`
	Storage   StorageConfig      `yaml:"storage"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

// NodeConfig is the durable identity of this server. ServerID must stay
// stable across restarts; Name is the human-facing connectivity name.
type NodeConfig struct {
	ServerID string `yaml:"server_id"`
	Name     string `yaml:"name"`
}

// ZooKeeperConfig selects the cluster membership source. An empty server
// list runs the node standalone with an in-process topology.
type ZooKeeperConfig struct {
	Servers []string `yaml:"servers"`
	Root    string   `yaml:"root"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// Default returns a baseline development config: standalone single-node,
// local disk storage, text logging.
func Default() Config {
	return Config{
		Logger: LoggerConfig{
			Level: "DEBUG",
			JSON:  false,
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Node: NodeConfig{
			Name: "node-1",
		},
		ZooKeeper: ZooKeeperConfig{
			Root: "/tablectl",
		},
		Raft:    raftadapter.DefaultConfig(),
		Storage: StorageConfig{DataDir: "./data"},
	}
}
