// Package server implements the operator introspection API a naia-server
// process exposes over HTTP: connection listing, inspection, and forced
// disconnection. The gRPC health endpoint served beside it is mounted by
// cmd/naia-server, not by this package.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/connect"
)

// Sentinel errors for the server package.
var (
	// ErrMissingPeerAddress indicates a request omitted the required
	// peer_address field.
	ErrMissingPeerAddress = errors.New("peer_address must be set")

	// ErrConnectionNotFound indicates no tracked connection matches the
	// requested peer address.
	ErrConnectionNotFound = errors.New("connection not found")
)

// ConnectionSummary is the JSON shape returned for a single tracked
// connection.
type ConnectionSummary struct {
	PeerAddress  string    `json:"peer_address"`
	ConnectedAt  time.Time `json:"connected_at"`
	ServerTick   uint16    `json:"server_tick"`
	RTTMillis    float64   `json:"rtt_millis"`
	JitterMillis float64   `json:"jitter_millis"`
	ObjectCount  int       `json:"object_count"`
	EntityCount  int       `json:"entity_count"`
}

// Registry is the subset of a connection manager the introspection API
// needs. It is implemented by the facade's server-side connection table.
type Registry interface {
	// Connections returns a snapshot of all currently tracked connections.
	Connections() []ConnectionSummary

	// Lookup returns the summary for a single peer address, if tracked.
	Lookup(peerAddress string) (ConnectionSummary, bool)

	// Kick forcibly disconnects the connection for peerAddress. Returns
	// an error wrapping ErrConnectionNotFound if no such connection exists.
	Kick(peerAddress string) error
}

// Request/response message shapes for the introspection service.
type (
	ListConnectionsRequest struct{}

	ListConnectionsResponse struct {
		Connections []ConnectionSummary `json:"connections"`
	}

	GetConnectionRequest struct {
		PeerAddress string `json:"peer_address"`
	}

	GetConnectionResponse struct {
		Connection ConnectionSummary `json:"connection"`
	}

	KickConnectionRequest struct {
		PeerAddress string `json:"peer_address"`
	}

	KickConnectionResponse struct{}
)

const serviceName = "naia.introspection.v1.IntrospectionService"

// Procedure paths for the introspection service, mux-routed the same way
// ConnectRPC routes generated service procedures.
const (
	ProcedureListConnections = "/" + serviceName + "/ListConnections"
	ProcedureGetConnection   = "/" + serviceName + "/GetConnection"
	ProcedureKickConnection  = "/" + serviceName + "/KickConnection"
)

// IntrospectionServer answers operator queries about active replication
// connections. Each RPC delegates to a Registry; the server itself holds no
// connection state.
type IntrospectionServer struct {
	registry Registry
	logger   *slog.Logger
}

// New creates a new IntrospectionServer and returns the HTTP handler
// together with the path prefix it should be mounted under.
func New(registry Registry, logger *slog.Logger, opts ...connect.HandlerOption) (string, http.Handler) {
	srv := &IntrospectionServer{
		registry: registry,
		logger:   logger.With(slog.String("component", "server")),
	}

	handlerOpts := append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(ProcedureListConnections, connect.NewUnaryHandler(
		ProcedureListConnections, srv.ListConnections, handlerOpts...))
	mux.Handle(ProcedureGetConnection, connect.NewUnaryHandler(
		ProcedureGetConnection, srv.GetConnection, handlerOpts...))
	mux.Handle(ProcedureKickConnection, connect.NewUnaryHandler(
		ProcedureKickConnection, srv.KickConnection, handlerOpts...))

	return "/" + serviceName + "/", mux
}

// ListConnections returns all currently tracked connections.
func (s *IntrospectionServer) ListConnections(
	ctx context.Context,
	_ *connect.Request[ListConnectionsRequest],
) (*connect.Response[ListConnectionsResponse], error) {
	s.logger.InfoContext(ctx, "ListConnections called")

	return connect.NewResponse(&ListConnectionsResponse{
		Connections: s.registry.Connections(),
	}), nil
}

// GetConnection returns a single connection by peer address.
func (s *IntrospectionServer) GetConnection(
	ctx context.Context,
	req *connect.Request[GetConnectionRequest],
) (*connect.Response[GetConnectionResponse], error) {
	peer := req.Msg.PeerAddress
	if peer == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, ErrMissingPeerAddress)
	}

	s.logger.InfoContext(ctx, "GetConnection called", slog.String("peer_address", peer))

	conn, ok := s.registry.Lookup(peer)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound,
			fmt.Errorf("%s: %w", peer, ErrConnectionNotFound))
	}

	return connect.NewResponse(&GetConnectionResponse{Connection: conn}), nil
}

// KickConnection forcibly disconnects a connection by peer address.
func (s *IntrospectionServer) KickConnection(
	ctx context.Context,
	req *connect.Request[KickConnectionRequest],
) (*connect.Response[KickConnectionResponse], error) {
	peer := req.Msg.PeerAddress
	if peer == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, ErrMissingPeerAddress)
	}

	s.logger.InfoContext(ctx, "KickConnection called", slog.String("peer_address", peer))

	if err := s.registry.Kick(peer); err != nil {
		return nil, mapRegistryError(err, peer)
	}

	return connect.NewResponse(&KickConnectionResponse{}), nil
}

// mapRegistryError translates Registry errors into appropriate ConnectRPC
// error codes.
func mapRegistryError(err error, peer string) *connect.Error {
	if errors.Is(err, ErrConnectionNotFound) {
		return connect.NewError(connect.CodeNotFound, fmt.Errorf("kick %s: %w", peer, err))
	}
	return connect.NewError(connect.CodeInternal, fmt.Errorf("kick %s: %w", peer, err))
}
