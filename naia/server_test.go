package naia_test

import (
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/cBournhonesque/naia-go/internal/demo"
	"github.com/cBournhonesque/naia-go/internal/replicate"
	"github.com/cBournhonesque/naia-go/naia"
)

func TestServerUnknownPeerErrors(t *testing.T) {
	t.Parallel()

	m, err := demo.Manifest()
	if err != nil {
		t.Fatalf("demo.Manifest: %v", err)
	}
	srv := naia.NewServer(testReplicationConfig(), m, []byte("test-secret"), testLogger())
	if err := srv.Listen(netip.MustParseAddrPort("127.0.0.1:0")); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })

	const unknown = "127.0.0.1:9"
	if err := srv.AddObject(unknown, replicate.GlobalKey(1), demo.Position{}, 2); !errors.Is(err, naia.ErrUnknownPeer) {
		t.Errorf("AddObject to unknown peer: got %v, want ErrUnknownPeer", err)
	}
	if err := srv.RemoveObject(unknown, replicate.GlobalKey(1)); !errors.Is(err, naia.ErrUnknownPeer) {
		t.Errorf("RemoveObject to unknown peer: got %v, want ErrUnknownPeer", err)
	}
	if err := srv.AddPawn(unknown, replicate.GlobalKey(1)); !errors.Is(err, naia.ErrUnknownPeer) {
		t.Errorf("AddPawn to unknown peer: got %v, want ErrUnknownPeer", err)
	}
	if err := srv.RemovePawn(unknown, replicate.GlobalKey(1)); !errors.Is(err, naia.ErrUnknownPeer) {
		t.Errorf("RemovePawn to unknown peer: got %v, want ErrUnknownPeer", err)
	}
	if err := srv.SendMessage(unknown, naia.ChannelUnorderedReliable, []byte("x")); !errors.Is(err, naia.ErrUnknownPeer) {
		t.Errorf("SendMessage to unknown peer: got %v, want ErrUnknownPeer", err)
	}

	if _, ok := srv.Lookup(unknown); ok {
		t.Errorf("Lookup of unknown peer returned ok=true")
	}
	if err := srv.Kick(unknown); err == nil {
		t.Errorf("Kick of unknown peer returned nil error")
	}
}

func TestServerRegistryReflectsConnectedPeer(t *testing.T) {
	t.Parallel()

	srv, _, peer := newConnectedPair(t)

	summary, ok := srv.Lookup(peer.String())
	if !ok {
		t.Fatalf("Lookup(%s) = not found, want found", peer)
	}
	if summary.PeerAddress != peer.String() {
		t.Errorf("PeerAddress = %q, want %q", summary.PeerAddress, peer.String())
	}
	if summary.ConnectedAt.IsZero() {
		t.Errorf("ConnectedAt is zero, want set")
	}

	conns := srv.Connections()
	if len(conns) != 1 {
		t.Fatalf("Connections() returned %d entries, want 1", len(conns))
	}
	if conns[0].PeerAddress != peer.String() {
		t.Errorf("Connections()[0].PeerAddress = %q, want %q", conns[0].PeerAddress, peer.String())
	}

	if err := srv.Kick(peer.String()); err != nil {
		t.Fatalf("Kick: %v", err)
	}
	if _, ok := srv.Lookup(peer.String()); ok {
		t.Errorf("Lookup after Kick still reports the peer as connected")
	}
}

func TestServerObjectCountTracksAddRemove(t *testing.T) {
	t.Parallel()

	srv, _, peer := newConnectedPair(t)

	if err := srv.AddObject(peer.String(), replicate.GlobalKey(1), demo.Position{}, 2); err != nil {
		t.Fatalf("AddObject: %v", err)
	}
	if err := srv.AddObject(peer.String(), replicate.GlobalKey(2), demo.Position{}, 2); err != nil {
		t.Fatalf("AddObject: %v", err)
	}

	summary, ok := srv.Lookup(peer.String())
	if !ok {
		t.Fatalf("Lookup(%s) = not found", peer)
	}
	if summary.ObjectCount != 2 {
		t.Fatalf("ObjectCount = %d, want 2", summary.ObjectCount)
	}

	if err := srv.RemoveObject(peer.String(), replicate.GlobalKey(1)); err != nil {
		t.Fatalf("RemoveObject: %v", err)
	}
	summary, _ = srv.Lookup(peer.String())
	if summary.ObjectCount != 1 {
		t.Fatalf("ObjectCount after RemoveObject = %d, want 1", summary.ObjectCount)
	}
}

func TestServerReapsTimedOutConnection(t *testing.T) {
	t.Parallel()

	srv, _, peer := newConnectedPair(t)

	// Simulate a long silence by driving Receive with a timestamp far
	// enough in the future to exceed DisconnectionTimeout, without
	// actually sleeping the test for that duration.
	future := time.Now().Add(testReplicationConfig().DisconnectionTimeout + time.Second)
	events := srv.Receive(future)

	var sawDisconnect bool
	for _, ev := range events {
		if ev.Kind == naia.EventDisconnected && ev.Peer == peer.String() {
			sawDisconnect = true
		}
	}
	if !sawDisconnect {
		t.Fatalf("expected EventDisconnected for %s, got %+v", peer, events)
	}
	if _, ok := srv.Lookup(peer.String()); ok {
		t.Errorf("peer still present in registry after timeout reap")
	}
}
