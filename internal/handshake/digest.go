package handshake

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// TimestampSize is the wire size of a handshake timestamp in bytes.
const TimestampSize = 12

// DigestSize is the wire size of the server digest in bytes.
const DigestSize = 32

// ErrDigestMismatch indicates a connect request's digest did not
// validate against the server secret.
var ErrDigestMismatch = errors.New("handshake: digest mismatch")

// NewTimestamp returns a fresh 12-byte timestamp: the 8-byte wall-clock
// time in Unix nanoseconds followed by 4 bytes of randomness, guaranteeing
// uniqueness across concurrent handshake attempts from one client even
// if the clock has coarse resolution.
func NewTimestamp() ([TimestampSize]byte, error) {
	var ts [TimestampSize]byte
	binary.BigEndian.PutUint64(ts[:8], uint64(time.Now().UnixNano())) //nolint:gosec // intentional conversion of Unix nanoseconds
	if _, err := rand.Read(ts[8:]); err != nil {
		return ts, fmt.Errorf("handshake: generate timestamp nonce: %w", err)
	}
	return ts, nil
}

// ComputeDigest returns the keyed digest for timestamp under secret:
// HMAC-SHA256(secret, timestamp), which is already 32 bytes wide.
func ComputeDigest(secret []byte, timestamp [TimestampSize]byte) [DigestSize]byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(timestamp[:])
	sum := mac.Sum(nil)

	var digest [DigestSize]byte
	copy(digest[:], sum)
	return digest
}

// ValidateDigest reports whether digest is the correct keyed digest for
// timestamp under secret, in constant time.
func ValidateDigest(secret []byte, timestamp [TimestampSize]byte, digest [DigestSize]byte) error {
	want := ComputeDigest(secret, timestamp)
	if subtle.ConstantTimeCompare(want[:], digest[:]) != 1 {
		return ErrDigestMismatch
	}
	return nil
}
