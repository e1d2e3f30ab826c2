// Package http exposes the node's admin API: table management proposed
// through the replicated catalog, read access to the reactor directory and
// the internal raft message endpoint.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"go.etcd.io/etcd/raft/v3/raftpb"

	"tablectl/pkg/catalog"
	"tablectl/pkg/directory"
	"tablectl/pkg/identity"
	"tablectl/pkg/shard"
)

const (
	contentTypeJSON        = "application/json"
	defaultHTTPPort        = "8080"
	defaultShutdownTimeout = time.Second * 5
)

type iRaftNode interface {
	IsLeader() bool
	LeaderAddr() string
	Execute(ctx context.Context, cmd catalog.Command) error
	Handle(ctx context.Context, message raftpb.Message) error

	Run(ctx context.Context) error
	Stop() error
}

type iCatalog interface {
	Snapshot() map[identity.NamespaceID]catalog.Table
}

type iDirectory interface {
	Snapshot() map[identity.NamespaceID]directory.Entry
	Get(ns identity.NamespaceID) (directory.Entry, bool)
}

// Server is the admin HTTP server of one node.
type Server struct {
	node       iRaftNode
	catalog    iCatalog
	dir        iDirectory
	httpServer *http.Server
	URL        string
	addr       string
}

func NewServer(node iRaftNode, cat iCatalog, dir iDirectory, port string) *Server {
	if port == "" {
		port = defaultHTTPPort
	}
	return &Server{
		node:    node,
		catalog: cat,
		dir:     dir,
		URL:     "http://localhost:" + port,
		addr:    ":" + port,
	}
}

// Start runs the raft node loop and the HTTP listener.
func (s *Server) Start() error {
	go func() {
		if err := s.node.Run(context.Background()); err != nil {
			slog.Error("raft node error", "error", err)
		}
	}()

	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.createRouter(),
		ReadHeaderTimeout: time.Second,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("HTTP server started", "addr", s.URL)
	return nil
}

func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}
	return s.node.Stop()
}

func (s *Server) createRouter() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/api/tables", s.handleListTables)
	r.Get("/api/tables/{namespace}", s.handleGetTable)
	r.Put("/api/tables/{namespace}", s.handlePutTable)
	r.Delete("/api/tables/{namespace}", s.handleDropTable)
	r.Get("/api/directory", s.handleDirectory)
	r.Get("/api/directory/{namespace}", s.handleDirectoryEntry)
	r.Post("/api/internal/raft", s.handleRaft)

	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("error encoding response", "error", err)
	}
}

// redirectLeader sends catalog mutations to the current leader. When the
// leader is unknown or is ourselves the request is handled locally.
func (s *Server) redirectLeader(w http.ResponseWriter, r *http.Request) (bool, error) {
	if s.node.IsLeader() {
		return false, nil
	}

	leaderAddr := s.node.LeaderAddr()
	if leaderAddr == "" || leaderAddr == s.URL {
		return false, nil
	}

	leaderURL, err := url.JoinPath(leaderAddr, r.URL.Path)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, NewErrorResponse("failed to build leader URL"))
		return false, fmt.Errorf("failed to join leader path: %w", err)
	}

	http.Redirect(w, r, leaderURL, http.StatusTemporaryRedirect)
	return true, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewOKResponse())
}

// tableSpec is the wire format of a table definition.
type tableSpec struct {
	SplitPoints []string              `json:"split_points,omitempty"`
	Shards      []catalog.ShardConfig `json:"shards"`
}

type tableView struct {
	Namespace identity.NamespaceID `json:"namespace"`
	tableSpec
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	snapshot := s.catalog.Snapshot()
	out := make([]tableView, 0, len(snapshot))
	for ns, tbl := range snapshot {
		if tbl.Deleted {
			continue
		}
		out = append(out, tableView{
			Namespace: ns,
			tableSpec: tableSpec{
				SplitPoints: tbl.Scheme.SplitPoints,
				Shards:      tbl.Config.Shards,
			},
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Namespace < out[j].Namespace })
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	ns := identity.NamespaceID(chi.URLParam(r, "namespace"))
	tbl, ok := s.catalog.Snapshot()[ns]
	if !ok || tbl.Deleted {
		s.writeJSON(w, http.StatusNotFound, NewErrorResponse("table not found"))
		return
	}
	s.writeJSON(w, http.StatusOK, tableView{
		Namespace: ns,
		tableSpec: tableSpec{
			SplitPoints: tbl.Scheme.SplitPoints,
			Shards:      tbl.Config.Shards,
		},
	})
}

func (s *Server) handlePutTable(w http.ResponseWriter, r *http.Request) {
	if redirected, err := s.redirectLeader(w, r); redirected || err != nil {
		if err != nil {
			slog.Error("failed to redirect to leader", "error", err)
		}
		return
	}

	var spec tableSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}

	scheme, err := shard.NewScheme(spec.SplitPoints)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	tbl := catalog.Table{
		Config: catalog.ReplicationConfig{Shards: spec.Shards},
		Scheme: scheme,
	}
	if err := tbl.Validate(); err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}

	ns := identity.NamespaceID(chi.URLParam(r, "namespace"))
	if err := s.node.Execute(r.Context(), catalog.NewPutTable(ns, tbl)); err != nil {
		if errors.Is(err, catalog.ErrNamespaceDeleted) {
			s.writeJSON(w, http.StatusConflict, NewErrorResponse(err.Error()))
			return
		}
		s.writeJSON(w, http.StatusInternalServerError, NewErrorResponse(err.Error()))
		return
	}
	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}

func (s *Server) handleDropTable(w http.ResponseWriter, r *http.Request) {
	if redirected, err := s.redirectLeader(w, r); redirected || err != nil {
		if err != nil {
			slog.Error("failed to redirect to leader", "error", err)
		}
		return
	}

	ns := identity.NamespaceID(chi.URLParam(r, "namespace"))
	if tbl, ok := s.catalog.Snapshot()[ns]; !ok || tbl.Deleted {
		s.writeJSON(w, http.StatusNotFound, NewErrorResponse("table not found"))
		return
	}

	if err := s.node.Execute(r.Context(), catalog.NewDropTable(ns)); err != nil {
		s.writeJSON(w, http.StatusInternalServerError, NewErrorResponse(err.Error()))
		return
	}
	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}

// roleView flattens one shard-range role for JSON; range keys cannot be
// marshaled as map keys.
type roleView struct {
	Begin string `json:"begin"`
	End   string `json:"end,omitempty"`
	Role  string `json:"role"`
}

type entryView struct {
	Peer  identity.PeerID `json:"peer"`
	Epoch uint64          `json:"epoch"`
	Roles []roleView      `json:"roles"`
}

func newEntryView(entry directory.Entry) entryView {
	view := entryView{
		Peer:  entry.Peer,
		Epoch: entry.Epoch,
		Roles: make([]roleView, 0, len(entry.Roles)),
	}
	for r, role := range entry.Roles {
		view.Roles = append(view.Roles, roleView{
			Begin: r.Begin,
			End:   r.End,
			Role:  role.String(),
		})
	}
	sort.Slice(view.Roles, func(i, j int) bool { return view.Roles[i].Begin < view.Roles[j].Begin })
	return view
}

func (s *Server) handleDirectory(w http.ResponseWriter, r *http.Request) {
	out := make(map[identity.NamespaceID]entryView)
	for ns, entry := range s.dir.Snapshot() {
		out[ns] = newEntryView(entry)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDirectoryEntry(w http.ResponseWriter, r *http.Request) {
	ns := identity.NamespaceID(chi.URLParam(r, "namespace"))
	entry, ok := s.dir.Get(ns)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, NewErrorResponse("no directory entry"))
		return
	}
	s.writeJSON(w, http.StatusOK, newEntryView(entry))
}

func (s *Server) handleRaft(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	var msg raftpb.Message
	if err := dec.Decode(&msg); err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	if err := s.node.Handle(r.Context(), msg); err != nil {
		s.writeJSON(w, http.StatusInternalServerError, NewErrorResponse(err.Error()))
		return
	}
	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}
