package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.etcd.io/etcd/raft/v3/raftpb"

	"tablectl/pkg/blueprint"
	"tablectl/pkg/catalog"
	"tablectl/pkg/directory"
	"tablectl/pkg/identity"
	"tablectl/pkg/shard"
)

// fakeRaftNode applies executed commands straight to a catalog store.
type fakeRaftNode struct {
	store      *catalog.Store
	leader     bool
	leaderAddr string
}

func (n *fakeRaftNode) IsLeader() bool     { return n.leader }
func (n *fakeRaftNode) LeaderAddr() string { return n.leaderAddr }
func (n *fakeRaftNode) Execute(ctx context.Context, cmd catalog.Command) error {
	return n.store.Apply(cmd)
}
func (n *fakeRaftNode) Handle(ctx context.Context, message raftpb.Message) error { return nil }
func (n *fakeRaftNode) Run(ctx context.Context) error                            { return nil }
func (n *fakeRaftNode) Stop() error                                              { return nil }

func newTestServer() (*Server, *catalog.Store, *directory.Directory) {
	store := catalog.NewStore()
	dir := directory.New()
	node := &fakeRaftNode{store: store, leader: true}
	return NewServer(node, store, dir, ""), store, dir
}

func decodeResp(t *testing.T, rr *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response JSON: %v, body=%s", err, rr.Body.String())
	}
	return resp
}

func TestHealthHandler(t *testing.T) {
	s, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	s.createRouter().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if resp := decodeResp(t, rr); resp.Status != StatusOK {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestPutTableHandler(t *testing.T) {
	s, store, _ := newTestServer()
	server := identity.NewServerID()

	body := `{"split_points":["m"],"shards":[{"director":"` + string(server) + `"},{"director":"` + string(server) + `"}]}`
	req := httptest.NewRequest(http.MethodPut, "/api/tables/orders", strings.NewReader(body))
	rr := httptest.NewRecorder()

	s.createRouter().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rr.Code, rr.Body.String())
	}
	tbl, ok := store.Snapshot()["orders"]
	if !ok || tbl.Deleted {
		t.Fatal("table not written to catalog")
	}
	if got := tbl.Scheme.NumShards(); got != 2 {
		t.Fatalf("expected 2 shards, got %d", got)
	}
}

func TestPutTableHandler_RejectsBadShardCount(t *testing.T) {
	s, _, _ := newTestServer()
	server := identity.NewServerID()

	body := `{"split_points":["m"],"shards":[{"director":"` + string(server) + `"}]}`
	req := httptest.NewRequest(http.MethodPut, "/api/tables/orders", strings.NewReader(body))
	rr := httptest.NewRecorder()

	s.createRouter().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestPutTableHandler_RejectsDeletedNamespace(t *testing.T) {
	s, store, _ := newTestServer()
	server := identity.NewServerID()
	if err := store.Apply(catalog.NewDropTable("orders")); err != nil {
		t.Fatalf("seed tombstone: %v", err)
	}

	body := `{"shards":[{"director":"` + string(server) + `"}]}`
	req := httptest.NewRequest(http.MethodPut, "/api/tables/orders", strings.NewReader(body))
	rr := httptest.NewRecorder()

	s.createRouter().ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("unexpected status: %d body=%s", rr.Code, rr.Body.String())
	}
	if got := store.Snapshot()["orders"]; !got.Deleted {
		t.Fatal("tombstone must survive a rejected reuse")
	}
}

func TestDropTableHandler(t *testing.T) {
	s, store, _ := newTestServer()
	server := identity.NewServerID()
	scheme, err := shard.NewScheme(nil)
	if err != nil {
		t.Fatalf("NewScheme failed: %v", err)
	}
	tbl := catalog.Table{
		Config: catalog.ReplicationConfig{Shards: []catalog.ShardConfig{{Director: server}}},
		Scheme: scheme,
	}
	if err := store.Apply(catalog.NewPutTable("orders", tbl)); err != nil {
		t.Fatalf("seed table: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/tables/orders", nil)
	rr := httptest.NewRecorder()
	s.createRouter().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rr.Code, rr.Body.String())
	}
	if got := store.Snapshot()["orders"]; !got.Deleted {
		t.Fatal("table not tombstoned")
	}

	// A second delete finds only the tombstone.
	rr = httptest.NewRecorder()
	s.createRouter().ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/tables/orders", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unexpected status on double delete: %d", rr.Code)
	}
}

func TestListTablesSkipsTombstones(t *testing.T) {
	s, store, _ := newTestServer()
	if err := store.Apply(catalog.NewDropTable("gone")); err != nil {
		t.Fatalf("seed tombstone: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/tables", nil)
	rr := httptest.NewRecorder()
	s.createRouter().ServeHTTP(rr, req)

	var out []tableView
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("tombstone leaked into listing: %+v", out)
	}
}

func TestDirectoryHandler(t *testing.T) {
	s, _, dir := newTestServer()
	peer := identity.NewPeerID()
	dir.Upsert("orders", directory.Entry{
		Peer:  peer,
		Epoch: 3,
		Roles: map[shard.Range]blueprint.Role{
			{Begin: "", End: "m"}: blueprint.RolePrimary,
			{Begin: "m", End: ""}: blueprint.RoleSecondary,
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/directory/orders", nil)
	rr := httptest.NewRecorder()
	s.createRouter().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	var view entryView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if view.Peer != peer || view.Epoch != 3 || len(view.Roles) != 2 {
		t.Fatalf("unexpected entry view: %+v", view)
	}
	if view.Roles[0].Begin != "" || view.Roles[0].Role != "primary" {
		t.Fatalf("roles not sorted by range begin: %+v", view.Roles)
	}
}

func TestMutationsRedirectToLeader(t *testing.T) {
	store := catalog.NewStore()
	node := &fakeRaftNode{store: store, leader: false, leaderAddr: "http://leader:8080"}
	s := NewServer(node, store, directory.New(), "")

	req := httptest.NewRequest(http.MethodDelete, "/api/tables/orders", nil)
	rr := httptest.NewRecorder()
	s.createRouter().ServeHTTP(rr, req)

	if rr.Code != http.StatusTemporaryRedirect {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "http://leader:8080/api/tables/orders" {
		t.Fatalf("unexpected redirect target: %s", loc)
	}
}
