package handshake_test

import (
	"errors"
	"testing"

	"github.com/cBournhonesque/naia-go/internal/handshake"
)

func TestComputeDigestDeterministic(t *testing.T) {
	t.Parallel()

	secret := []byte("k")
	ts := [handshake.TimestampSize]byte{1, 2, 3, 4}

	a := handshake.ComputeDigest(secret, ts)
	b := handshake.ComputeDigest(secret, ts)
	if a != b {
		t.Fatal("ComputeDigest should be deterministic for the same inputs")
	}
}

func TestValidateDigestRejectsWrongSecret(t *testing.T) {
	t.Parallel()

	ts := [handshake.TimestampSize]byte{1}
	digest := handshake.ComputeDigest([]byte("correct"), ts)

	err := handshake.ValidateDigest([]byte("wrong"), ts, digest)
	if !errors.Is(err, handshake.ErrDigestMismatch) {
		t.Fatalf("expected ErrDigestMismatch, got %v", err)
	}
}

func TestNewTimestampsAreUnique(t *testing.T) {
	t.Parallel()

	a, err := handshake.NewTimestamp()
	if err != nil {
		t.Fatalf("NewTimestamp: %v", err)
	}
	b, err := handshake.NewTimestamp()
	if err != nil {
		t.Fatalf("NewTimestamp: %v", err)
	}
	if a == b {
		t.Fatal("expected two consecutive timestamps to differ")
	}
}
