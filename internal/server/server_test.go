package server_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"

	"github.com/cBournhonesque/naia-go/internal/server"
)

// fakeRegistry is an in-memory server.Registry used to exercise the
// introspection API without a real replication connection table.
type fakeRegistry struct {
	mu    sync.Mutex
	conns map[string]server.ConnectionSummary
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{conns: make(map[string]server.ConnectionSummary)}
}

func (f *fakeRegistry) add(c server.ConnectionSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conns[c.PeerAddress] = c
}

func (f *fakeRegistry) Connections() []server.ConnectionSummary {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]server.ConnectionSummary, 0, len(f.conns))
	for _, c := range f.conns {
		out = append(out, c)
	}
	return out
}

func (f *fakeRegistry) Lookup(peer string) (server.ConnectionSummary, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.conns[peer]
	return c, ok
}

func (f *fakeRegistry) Kick(peer string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.conns[peer]; !ok {
		return fmt.Errorf("%s: %w", peer, server.ErrConnectionNotFound)
	}
	delete(f.conns, peer)
	return nil
}

// setupTestServer creates a real HTTP server backed by reg and returns
// typed ConnectRPC clients for each procedure. The server is cleaned up
// when the test finishes.
func setupTestServer(t *testing.T, reg server.Registry, opts ...connect.HandlerOption) (
	list *connect.Client[server.ListConnectionsRequest, server.ListConnectionsResponse],
	get *connect.Client[server.GetConnectionRequest, server.GetConnectionResponse],
	kick *connect.Client[server.KickConnectionRequest, server.KickConnectionResponse],
) {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	path, handler := server.New(reg, logger, opts...)

	mux := http.NewServeMux()
	mux.Handle(path, handler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	clientOpts := []connect.ClientOption{connect.WithCodec(server.JSONCodec{})}

	list = connect.NewClient[server.ListConnectionsRequest, server.ListConnectionsResponse](
		srv.Client(), srv.URL+server.ProcedureListConnections, clientOpts...)
	get = connect.NewClient[server.GetConnectionRequest, server.GetConnectionResponse](
		srv.Client(), srv.URL+server.ProcedureGetConnection, clientOpts...)
	kick = connect.NewClient[server.KickConnectionRequest, server.KickConnectionResponse](
		srv.Client(), srv.URL+server.ProcedureKickConnection, clientOpts...)

	return list, get, kick
}

func TestListConnectionsEmpty(t *testing.T) {
	t.Parallel()

	list, _, _ := setupTestServer(t, newFakeRegistry())

	resp, err := list.CallUnary(context.Background(), connect.NewRequest(&server.ListConnectionsRequest{}))
	if err != nil {
		t.Fatalf("ListConnections: %v", err)
	}
	if len(resp.Msg.Connections) != 0 {
		t.Errorf("Connections = %v, want empty", resp.Msg.Connections)
	}
}

func TestListConnectionsReturnsAll(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistry()
	reg.add(server.ConnectionSummary{PeerAddress: "10.0.0.1:14191", ConnectedAt: time.Now(), ObjectCount: 3})
	reg.add(server.ConnectionSummary{PeerAddress: "10.0.0.2:14191", ConnectedAt: time.Now(), ObjectCount: 1})

	list, _, _ := setupTestServer(t, reg)

	resp, err := list.CallUnary(context.Background(), connect.NewRequest(&server.ListConnectionsRequest{}))
	if err != nil {
		t.Fatalf("ListConnections: %v", err)
	}
	if len(resp.Msg.Connections) != 2 {
		t.Fatalf("Connections = %d, want 2", len(resp.Msg.Connections))
	}
}

func TestGetConnectionFound(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistry()
	reg.add(server.ConnectionSummary{PeerAddress: "10.0.0.1:14191", ServerTick: 42, ObjectCount: 5})

	_, get, _ := setupTestServer(t, reg)

	resp, err := get.CallUnary(context.Background(), connect.NewRequest(&server.GetConnectionRequest{
		PeerAddress: "10.0.0.1:14191",
	}))
	if err != nil {
		t.Fatalf("GetConnection: %v", err)
	}
	if resp.Msg.Connection.ServerTick != 42 {
		t.Errorf("ServerTick = %d, want 42", resp.Msg.Connection.ServerTick)
	}
}

func TestGetConnectionNotFound(t *testing.T) {
	t.Parallel()

	_, get, _ := setupTestServer(t, newFakeRegistry())

	_, err := get.CallUnary(context.Background(), connect.NewRequest(&server.GetConnectionRequest{
		PeerAddress: "10.0.0.9:14191",
	}))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var connErr *connect.Error
	if !errors.As(err, &connErr) || connErr.Code() != connect.CodeNotFound {
		t.Errorf("error = %v, want CodeNotFound", err)
	}
}

func TestGetConnectionMissingPeerAddress(t *testing.T) {
	t.Parallel()

	_, get, _ := setupTestServer(t, newFakeRegistry())

	_, err := get.CallUnary(context.Background(), connect.NewRequest(&server.GetConnectionRequest{}))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var connErr *connect.Error
	if !errors.As(err, &connErr) || connErr.Code() != connect.CodeInvalidArgument {
		t.Errorf("error = %v, want CodeInvalidArgument", err)
	}
}

func TestKickConnectionRemovesIt(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistry()
	reg.add(server.ConnectionSummary{PeerAddress: "10.0.0.1:14191"})

	_, get, kick := setupTestServer(t, reg)

	if _, err := kick.CallUnary(context.Background(), connect.NewRequest(&server.KickConnectionRequest{
		PeerAddress: "10.0.0.1:14191",
	})); err != nil {
		t.Fatalf("KickConnection: %v", err)
	}

	_, err := get.CallUnary(context.Background(), connect.NewRequest(&server.GetConnectionRequest{
		PeerAddress: "10.0.0.1:14191",
	}))
	var connErr *connect.Error
	if !errors.As(err, &connErr) || connErr.Code() != connect.CodeNotFound {
		t.Errorf("connection still present after kick: err = %v", err)
	}
}

func TestKickConnectionNotFound(t *testing.T) {
	t.Parallel()

	_, _, kick := setupTestServer(t, newFakeRegistry())

	_, err := kick.CallUnary(context.Background(), connect.NewRequest(&server.KickConnectionRequest{
		PeerAddress: "10.0.0.9:14191",
	}))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var connErr *connect.Error
	if !errors.As(err, &connErr) || connErr.Code() != connect.CodeNotFound {
		t.Errorf("error = %v, want CodeNotFound", err)
	}
}
