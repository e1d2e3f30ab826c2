package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"tablectl/internal/driver"
	"tablectl/internal/http"
	"tablectl/pkg/catalog"
	"tablectl/pkg/directory"
	"tablectl/pkg/identity"
	"tablectl/pkg/raftadapter"
	"tablectl/pkg/reactor"
	"tablectl/pkg/storage"
	"tablectl/pkg/topology"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := initConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	initLogger(&cfg)

	serverID, err := loadServerID(cfg.Storage.DataDir, cfg.Node.ServerID)
	if err != nil {
		slog.Error("failed to resolve server identity", "error", err)
		os.Exit(1)
	}
	slog.Info("starting tablectl node", "server_id", serverID, "name", cfg.Node.Name)

	// --- cluster topology ---
	var topo topology.Source
	var membership *topology.ZKMembership
	if len(cfg.ZooKeeper.Servers) > 0 {
		membership, err = topology.NewZKMembership(cfg.ZooKeeper.Servers, cfg.ZooKeeper.Root, serverID, cfg.Node.Name)
		if err != nil {
			slog.Error("failed to connect to ZooKeeper", "error", err)
			os.Exit(1)
		}
		defer func() { _ = membership.Close() }()

		if err := membership.RegisterSelf(); err != nil {
			slog.Error("failed to register node in ZooKeeper", "error", err)
			os.Exit(1)
		}
		go membership.Run(ctx)
		topo = membership
	} else {
		// Standalone: the node is its own whole cluster.
		topo = topology.NewStatic(topology.NewSnapshot(serverID,
			map[identity.ServerID]string{serverID: cfg.Node.Name},
			map[identity.ServerID]identity.PeerID{serverID: identity.NewPeerID()}))
		slog.Info("no ZooKeeper servers configured, running standalone")
	}

	// --- replicated catalog ---
	store := catalog.NewStore()
	node, err := raftadapter.NewNode(cfg.Raft, store)
	if err != nil {
		slog.Error("failed to start raft node", "error", err)
		os.Exit(1)
	}

	// --- reactor lifecycle ---
	prov := storage.NewDiskProvisioner(filepath.Join(cfg.Storage.DataDir, "tables"))
	dir := directory.New()
	drv := driver.New(store, topo, prov, reactor.LogFactory{}, dir)

	// --- admin API ---
	server := http.NewServer(node, store, dir, strconv.Itoa(cfg.Server.Port))
	if err := server.Start(); err != nil {
		slog.Error("failed to start HTTP server", "error", err)
		os.Exit(1)
	}

	slog.Info("tablectl node is running", "addr", server.URL)
	<-ctx.Done()

	if err := server.Stop(); err != nil {
		slog.Error("error stopping server", "error", err)
	}
	drv.Close()
	slog.Info("tablectl node stopped")
}

// loadServerID resolves this node's durable identity: the configured value
// wins, otherwise the one persisted under the data directory, otherwise a
// freshly generated id that is persisted for future runs.
func loadServerID(dataDir, configured string) (identity.ServerID, error) {
	if configured != "" {
		return identity.ServerID(configured), nil
	}

	path := filepath.Join(dataDir, "SERVER_ID")
	data, err := os.ReadFile(path)
	if err == nil {
		return identity.ServerID(strings.TrimSpace(string(data))), nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	id := identity.NewServerID()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o644); err != nil {
		return "", err
	}
	slog.Info("generated new server identity", "server_id", id)
	return id, nil
}
