package handshake_test

import (
	"testing"

	"github.com/cBournhonesque/naia-go/internal/handshake"
)

func TestClientHandshakeHappyPath(t *testing.T) {
	t.Parallel()

	secret := []byte("server-secret")
	server := handshake.NewServer(secret)
	client := handshake.NewClient()

	ts := [handshake.TimestampSize]byte{1, 2, 3}
	res := client.Tick(ts)
	if res.NewState != handshake.AwaitingChallengeResponse {
		t.Fatalf("expected to remain in AwaitingChallengeResponse, got %v", res.NewState)
	}

	digest := server.ChallengeResponse(ts)

	res = client.HandleChallengeResponse(ts, digest)
	if res.NewState != handshake.AwaitingConnectResponse {
		t.Fatalf("expected AwaitingConnectResponse, got %v", res.NewState)
	}
	gotDigest, ok := client.Digest()
	if !ok || gotDigest != digest {
		t.Fatal("expected client to store the server digest")
	}

	payload, err := client.ConnectRequestPayload()
	if err != nil {
		t.Fatalf("ConnectRequestPayload: %v", err)
	}
	if len(payload) != handshake.TimestampSize+handshake.DigestSize {
		t.Fatalf("unexpected payload length %d", len(payload))
	}

	admitted, err := server.HandleConnectRequest(ts, digest)
	if err != nil || !admitted {
		t.Fatalf("HandleConnectRequest: admitted=%v err=%v", admitted, err)
	}

	// Duplicate connect request with the same timestamp/digest is idempotent.
	admitted, err = server.HandleConnectRequest(ts, digest)
	if err != nil || !admitted {
		t.Fatalf("duplicate HandleConnectRequest: admitted=%v err=%v", admitted, err)
	}

	res = client.HandleConnectResponse()
	if res.NewState != handshake.Connected {
		t.Fatalf("expected Connected, got %v", res.NewState)
	}
}

func TestClientIgnoresStaleChallengeResponse(t *testing.T) {
	t.Parallel()

	client := handshake.NewClient()
	outstanding := [handshake.TimestampSize]byte{9, 9, 9}
	client.Tick(outstanding)

	stale := [handshake.TimestampSize]byte{1, 1, 1}
	res := client.HandleChallengeResponse(stale, [handshake.DigestSize]byte{})
	if res.Changed {
		t.Fatal("stale challenge response should not change state")
	}
	if client.State() != handshake.AwaitingChallengeResponse {
		t.Fatalf("expected to remain AwaitingChallengeResponse, got %v", client.State())
	}
}

func TestServerRejectsUnrelatedTimestampAfterAdmission(t *testing.T) {
	t.Parallel()

	secret := []byte("server-secret")
	server := handshake.NewServer(secret)

	ts := [handshake.TimestampSize]byte{1}
	digest := server.ChallengeResponse(ts)
	if _, err := server.HandleConnectRequest(ts, digest); err != nil {
		t.Fatalf("first admission: %v", err)
	}

	other := [handshake.TimestampSize]byte{2}
	otherDigest := server.ChallengeResponse(other)
	if _, err := server.HandleConnectRequest(other, otherDigest); err == nil {
		t.Fatal("expected rejection of unrelated timestamp after admission")
	}
}

func TestServerRejectsBadDigest(t *testing.T) {
	t.Parallel()

	server := handshake.NewServer([]byte("secret"))
	ts := [handshake.TimestampSize]byte{5}
	var badDigest [handshake.DigestSize]byte

	if _, err := server.HandleConnectRequest(ts, badDigest); err == nil {
		t.Fatal("expected digest mismatch error")
	}
}

func TestConnectRequestPayloadErrorsWithoutDigest(t *testing.T) {
	t.Parallel()

	client := handshake.NewClient()
	if _, err := client.ConnectRequestPayload(); err == nil {
		t.Fatal("expected error when no digest has been stored")
	}
}
