package naia

import (
	"encoding/binary"
	"fmt"

	"github.com/cBournhonesque/naia-go/internal/handshake"
	"github.com/cBournhonesque/naia-go/internal/proto"
)

// Handshake packets are small fixed-shape payloads, so they are encoded
// directly with encoding/binary rather than through wire.Writer's
// bit-level framing, the same way the data phase's header itself is
// encoded.

func encodeChallengeRequest(ts [handshake.TimestampSize]byte) []byte {
	buf := make([]byte, proto.ConnectionlessHeaderSize+handshake.TimestampSize)
	_ = proto.ConnectionlessHeader{Type: proto.ClientChallengeRequest}.Marshal(buf)
	copy(buf[proto.ConnectionlessHeaderSize:], ts[:])
	return buf
}

func decodeChallengeRequest(buf []byte) (ts [handshake.TimestampSize]byte, err error) {
	if len(buf) < proto.ConnectionlessHeaderSize+handshake.TimestampSize {
		return ts, fmt.Errorf("naia: truncated challenge request")
	}
	copy(ts[:], buf[proto.ConnectionlessHeaderSize:])
	return ts, nil
}

func encodeChallengeResponse(ts [handshake.TimestampSize]byte, digest [handshake.DigestSize]byte, serverTick uint16) []byte {
	const tickSize = 2
	buf := make([]byte, proto.ConnectionlessHeaderSize+handshake.TimestampSize+handshake.DigestSize+tickSize)
	_ = proto.ConnectionlessHeader{Type: proto.ServerChallengeResponse}.Marshal(buf)
	off := proto.ConnectionlessHeaderSize
	copy(buf[off:], ts[:])
	off += handshake.TimestampSize
	copy(buf[off:], digest[:])
	off += handshake.DigestSize
	binary.BigEndian.PutUint16(buf[off:], serverTick)
	return buf
}

func decodeChallengeResponse(buf []byte) (ts [handshake.TimestampSize]byte, digest [handshake.DigestSize]byte, serverTick uint16, err error) {
	const tickSize = 2
	want := proto.ConnectionlessHeaderSize + handshake.TimestampSize + handshake.DigestSize + tickSize
	if len(buf) < want {
		return ts, digest, 0, fmt.Errorf("naia: truncated challenge response")
	}
	off := proto.ConnectionlessHeaderSize
	copy(ts[:], buf[off:])
	off += handshake.TimestampSize
	copy(digest[:], buf[off:])
	off += handshake.DigestSize
	serverTick = binary.BigEndian.Uint16(buf[off:])
	return ts, digest, serverTick, nil
}

func encodeConnectRequest(payload []byte) []byte {
	buf := make([]byte, proto.ConnectionlessHeaderSize+len(payload))
	_ = proto.ConnectionlessHeader{Type: proto.ClientConnectRequest}.Marshal(buf)
	copy(buf[proto.ConnectionlessHeaderSize:], payload)
	return buf
}

func decodeConnectRequest(buf []byte) (ts [handshake.TimestampSize]byte, digest [handshake.DigestSize]byte, err error) {
	want := proto.ConnectionlessHeaderSize + handshake.TimestampSize + handshake.DigestSize
	if len(buf) < want {
		return ts, digest, fmt.Errorf("naia: truncated connect request")
	}
	off := proto.ConnectionlessHeaderSize
	copy(ts[:], buf[off:])
	off += handshake.TimestampSize
	copy(digest[:], buf[off:])
	return ts, digest, nil
}

func encodeConnectResponse(serverTick uint16) []byte {
	const tickSize = 2
	buf := make([]byte, proto.ConnectionlessHeaderSize+tickSize)
	_ = proto.ConnectionlessHeader{Type: proto.ServerConnectResponse}.Marshal(buf)
	binary.BigEndian.PutUint16(buf[proto.ConnectionlessHeaderSize:], serverTick)
	return buf
}

func decodeConnectResponse(buf []byte) (serverTick uint16, err error) {
	const tickSize = 2
	if len(buf) < proto.ConnectionlessHeaderSize+tickSize {
		return 0, fmt.Errorf("naia: truncated connect response")
	}
	return binary.BigEndian.Uint16(buf[proto.ConnectionlessHeaderSize:]), nil
}

func encodePing(h proto.Header, nonce uint16) []byte {
	const nonceSize = 2
	buf := make([]byte, proto.HeaderSize+nonceSize)
	_ = h.Marshal(buf)
	binary.BigEndian.PutUint16(buf[proto.HeaderSize:], nonce)
	return buf
}

func decodePingPong(buf []byte) (proto.Header, uint16, error) {
	const nonceSize = 2
	h, n, err := proto.UnmarshalHeader(buf)
	if err != nil {
		return proto.Header{}, 0, err
	}
	if len(buf) < n+nonceSize {
		return proto.Header{}, 0, fmt.Errorf("naia: truncated ping/pong nonce")
	}
	return h, binary.BigEndian.Uint16(buf[n:]), nil
}

func encodePong(h proto.Header, nonce uint16) []byte {
	return encodePing(h, nonce)
}
