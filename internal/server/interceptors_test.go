package server_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"

	"github.com/cBournhonesque/naia-go/internal/server"
)

// setupServerWithInterceptors creates a test IntrospectionServer with the
// given ConnectRPC handler options (interceptors).
func setupServerWithInterceptors(
	t *testing.T,
	opts ...connect.HandlerOption,
) *connect.Client[server.ListConnectionsRequest, server.ListConnectionsResponse] {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	path, handler := server.New(newFakeRegistry(), logger, opts...)

	mux := http.NewServeMux()
	mux.Handle(path, handler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return connect.NewClient[server.ListConnectionsRequest, server.ListConnectionsResponse](
		srv.Client(), srv.URL+server.ProcedureListConnections, connect.WithCodec(server.JSONCodec{}))
}

// setupPanicServer creates a test server whose handler panics on every
// call, using the given handler options (interceptors).
func setupPanicServer(
	t *testing.T,
	opts ...connect.HandlerOption,
) *connect.Client[server.ListConnectionsRequest, server.ListConnectionsResponse] {
	t.Helper()

	handlerOpts := append([]connect.HandlerOption{connect.WithCodec(server.JSONCodec{})}, opts...)
	handler := connect.NewUnaryHandler(
		server.ProcedureListConnections,
		func(context.Context, *connect.Request[server.ListConnectionsRequest]) (*connect.Response[server.ListConnectionsResponse], error) {
			panic("intentional test panic")
		},
		handlerOpts...,
	)

	mux := http.NewServeMux()
	mux.Handle(server.ProcedureListConnections, handler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return connect.NewClient[server.ListConnectionsRequest, server.ListConnectionsResponse](
		srv.Client(), srv.URL+server.ProcedureListConnections, connect.WithCodec(server.JSONCodec{}))
}

// -------------------------------------------------------------------------
// TestLoggingInterceptor
// -------------------------------------------------------------------------

func TestLoggingInterceptorSuccess(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)
	client := setupServerWithInterceptors(t, server.LoggingInterceptorOption(logger))

	resp, err := client.CallUnary(context.Background(), connect.NewRequest(&server.ListConnectionsRequest{}))
	if err != nil {
		t.Fatalf("ListConnections: %v", err)
	}
	if resp == nil {
		t.Fatal("response is nil")
	}
}

func TestLoggingInterceptorError(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)

	path, handler := server.New(newFakeRegistry(), logger, server.LoggingInterceptorOption(logger))
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := connect.NewClient[server.GetConnectionRequest, server.GetConnectionResponse](
		srv.Client(), srv.URL+server.ProcedureGetConnection, connect.WithCodec(server.JSONCodec{}))

	_, err := client.CallUnary(context.Background(), connect.NewRequest(&server.GetConnectionRequest{
		PeerAddress: "10.0.0.9:14191",
	}))
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var connectErr *connect.Error
	if !errors.As(err, &connectErr) {
		t.Fatalf("expected connect.Error, got %T: %v", err, err)
	}
	if connectErr.Code() != connect.CodeNotFound {
		t.Errorf("code = %s, want NotFound", connectErr.Code())
	}
}

// -------------------------------------------------------------------------
// TestRecoveryInterceptor
// -------------------------------------------------------------------------

func TestRecoveryInterceptorNoPanic(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)
	client := setupServerWithInterceptors(t, server.RecoveryInterceptorOption(logger))

	resp, err := client.CallUnary(context.Background(), connect.NewRequest(&server.ListConnectionsRequest{}))
	if err != nil {
		t.Fatalf("ListConnections: %v", err)
	}
	if resp == nil {
		t.Fatal("response is nil")
	}
}

func TestRecoveryInterceptorPanic(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)
	client := setupPanicServer(t, server.RecoveryInterceptorOption(logger))

	_, err := client.CallUnary(context.Background(), connect.NewRequest(&server.ListConnectionsRequest{}))
	if err == nil {
		t.Fatal("expected error after panic, got nil")
	}

	var connectErr *connect.Error
	if !errors.As(err, &connectErr) {
		t.Fatalf("expected connect.Error, got %T: %v", err, err)
	}
	if connectErr.Code() != connect.CodeInternal {
		t.Errorf("code = %s, want Internal", connectErr.Code())
	}
}

// -------------------------------------------------------------------------
// TestBothInterceptors — logging + recovery together
// -------------------------------------------------------------------------

func TestBothInterceptors(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)
	client := setupServerWithInterceptors(t,
		server.LoggingInterceptorOption(logger),
		server.RecoveryInterceptorOption(logger),
	)

	resp, err := client.CallUnary(context.Background(), connect.NewRequest(&server.ListConnectionsRequest{}))
	if err != nil {
		t.Fatalf("ListConnections: %v", err)
	}
	if resp == nil {
		t.Fatal("response is nil")
	}
}
