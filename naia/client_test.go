package naia_test

import (
	"log/slog"
	"net/netip"
	"testing"
	"time"

	"github.com/cBournhonesque/naia-go/internal/config"
	"github.com/cBournhonesque/naia-go/internal/demo"
	"github.com/cBournhonesque/naia-go/internal/replicate"
	"github.com/cBournhonesque/naia-go/naia"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testReplicationConfig() config.ReplicationConfig {
	return config.ReplicationConfig{
		TickInterval:          5 * time.Millisecond,
		PingInterval:          50 * time.Millisecond,
		RTTSampleSize:         10,
		SendHandshakeInterval: 10 * time.Millisecond,
		DisconnectionTimeout:  2 * time.Second,
		CommandHistorySize:    3,
		HandshakeSecret:       "test-secret",
	}
}

// newConnectedPair binds a Server to an ephemeral loopback port and
// drives a Client through the handshake against it, failing the test
// if EventConnected is not observed on both ends within the deadline.
func newConnectedPair(t *testing.T) (*naia.Server, *naia.Client, netip.AddrPort) {
	t.Helper()

	m, err := demo.Manifest()
	if err != nil {
		t.Fatalf("demo.Manifest: %v", err)
	}

	srv := naia.NewServer(testReplicationConfig(), m, []byte("test-secret"), testLogger())
	if err := srv.Listen(netip.MustParseAddrPort("127.0.0.1:0")); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })

	clientCfg := config.DefaultClientConfig(srv.LocalAddr().String())
	clientCfg.TickInterval = 5 * time.Millisecond
	clientCfg.SendHandshakeInterval = 10 * time.Millisecond
	clientCfg.PingInterval = 50 * time.Millisecond

	cl, err := naia.New(clientCfg, m, testLogger())
	if err != nil {
		t.Fatalf("naia.New: %v", err)
	}
	if err := cl.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = cl.Close() })

	var peer netip.AddrPort
	clientConnected, serverConnected := false, false
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		now := time.Now()
		for _, ev := range cl.Receive(now) {
			if ev.Kind == naia.EventConnected {
				clientConnected = true
			}
		}
		for _, ev := range srv.Receive(now) {
			if ev.Kind == naia.EventConnected {
				serverConnected = true
				peer, _ = netip.ParseAddrPort(ev.Peer)
			}
		}
		if clientConnected && serverConnected {
			return srv, cl, peer
		}
		time.Sleep(time.Millisecond)
	}

	t.Fatalf("handshake did not complete: client=%v server=%v", clientConnected, serverConnected)
	return nil, nil, netip.AddrPort{}
}

func TestClientServerHandshake(t *testing.T) {
	t.Parallel()
	newConnectedPair(t)
}

func TestServerReplicatesObjectToClient(t *testing.T) {
	t.Parallel()

	srv, cl, peer := newConnectedPair(t)

	const key replicate.GlobalKey = 1
	want := demo.Position{X: 1.5, Y: -2.5}
	if err := srv.AddObject(peer.String(), key, want, 2); err != nil {
		t.Fatalf("AddObject: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		now := time.Now()
		srv.Receive(now)
		for _, ev := range cl.Receive(now) {
			if ev.Kind != naia.EventReplication {
				continue
			}
			if ev.Replication.Kind != replicate.EventCreateObject {
				continue
			}
			got, ok := ev.Replication.Value.(demo.Position)
			if !ok {
				t.Fatalf("replicated value type = %T, want demo.Position", ev.Replication.Value)
			}
			if got != want {
				t.Fatalf("replicated value = %+v, want %+v", got, want)
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("object replication event never arrived")
}

func TestClientServerMessageChannel(t *testing.T) {
	t.Parallel()

	srv, cl, peer := newConnectedPair(t)

	cl.SendMessage(naia.ChannelUnorderedReliable, []byte("ping from client"))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		now := time.Now()
		cl.Receive(now)
		for _, ev := range srv.Receive(now) {
			if ev.Kind == naia.EventMessage && ev.Peer == peer.String() && string(ev.Message) == "ping from client" {
				return
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("server never received client message")
}

func TestServerBroadcastReachesClient(t *testing.T) {
	t.Parallel()

	srv, cl, _ := newConnectedPair(t)

	srv.Broadcast(naia.ChannelOrderedReliable, []byte("broadcast payload"))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		now := time.Now()
		srv.Receive(now)
		for _, ev := range cl.Receive(now) {
			if ev.Kind == naia.EventMessage && string(ev.Message) == "broadcast payload" {
				return
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("client never received broadcast message")
}
