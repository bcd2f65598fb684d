// Package proto implements the packet framer: the fixed header that every
// data-phase packet carries, and the connectionless variant used during
// the handshake.
package proto

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed data-phase header size in bytes: packet_type(1)
// + host_tick(2) + last_recv_tick(2) + local_packet_index(2).
const HeaderSize = 7

// ConnectionlessHeaderSize is the size of the header used for handshake
// packets, which omit the tick/index fields.
const ConnectionlessHeaderSize = 1

// PacketType is the 1-byte packet type discriminant.
type PacketType uint8

const (
	// ClientChallengeRequest is sent by the client to begin a handshake.
	ClientChallengeRequest PacketType = iota + 1

	// ServerChallengeResponse echoes the client's timestamp with a digest.
	ServerChallengeResponse

	// ClientConnectRequest carries the timestamp, digest and optional auth.
	ClientConnectRequest

	// ServerConnectResponse completes the handshake.
	ServerConnectResponse

	// Data carries replication actions and/or messages.
	Data

	// Heartbeat keeps the connection alive with no payload.
	Heartbeat

	// Disconnect notifies the peer of an orderly teardown.
	Disconnect

	// Ping carries an RTT probe.
	Ping

	// Pong answers a Ping, reflecting its nonce.
	Pong
)

// connectionlessTypes is the set of packet types that use the
// connectionless header variant (handshake phase, before a
// ServerConnection/ClientConnection exists to track ticks against).
var connectionlessTypes = map[PacketType]bool{
	ClientChallengeRequest:  true,
	ServerChallengeResponse: true,
	ClientConnectRequest:    true,
	ServerConnectResponse:   true,
}

// IsConnectionless reports whether t uses the connectionless header
// variant.
func (t PacketType) IsConnectionless() bool {
	return connectionlessTypes[t]
}

var packetTypeNames = map[PacketType]string{
	ClientChallengeRequest:  "ClientChallengeRequest",
	ServerChallengeResponse: "ServerChallengeResponse",
	ClientConnectRequest:    "ClientConnectRequest",
	ServerConnectResponse:   "ServerConnectResponse",
	Data:                    "Data",
	Heartbeat:               "Heartbeat",
	Disconnect:              "Disconnect",
	Ping:                    "Ping",
	Pong:                    "Pong",
}

// String returns the human-readable packet type name.
func (t PacketType) String() string {
	if name, ok := packetTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", uint8(t))
}

// ErrTruncatedHeader indicates the buffer was too short to hold a header
// of the expected variant. Callers treat this as a protocol error: the
// packet is dropped silently and the connection is preserved.
var ErrTruncatedHeader = fmt.Errorf("proto: truncated packet header")

// ErrUnknownPacketType indicates the first byte did not match any known
// PacketType.
var ErrUnknownPacketType = fmt.Errorf("proto: unknown packet type")

// Header is the data-phase packet header.
type Header struct {
	Type PacketType

	// HostTick is the sender's current tick.
	HostTick uint16

	// LastRecvTick is the sender's most recently observed peer tick.
	LastRecvTick uint16

	// LocalPacketIndex is the sender's outgoing packet counter (wraps).
	LocalPacketIndex uint16
}

// Marshal encodes the header into the first HeaderSize bytes of buf,
// which must be at least HeaderSize bytes long.
func (h Header) Marshal(buf []byte) error {
	if len(buf) < HeaderSize {
		return fmt.Errorf("proto: marshal header: buffer too small (%d < %d)", len(buf), HeaderSize)
	}
	buf[0] = byte(h.Type)
	binary.BigEndian.PutUint16(buf[1:3], h.HostTick)
	binary.BigEndian.PutUint16(buf[3:5], h.LastRecvTick)
	binary.BigEndian.PutUint16(buf[5:7], h.LocalPacketIndex)
	return nil
}

// UnmarshalHeader decodes a data-phase header from buf.
func UnmarshalHeader(buf []byte) (Header, int, error) {
	if len(buf) < HeaderSize {
		return Header{}, 0, fmt.Errorf("%w: have %d bytes, need %d", ErrTruncatedHeader, len(buf), HeaderSize)
	}
	h := Header{
		Type:             PacketType(buf[0]),
		HostTick:         binary.BigEndian.Uint16(buf[1:3]),
		LastRecvTick:     binary.BigEndian.Uint16(buf[3:5]),
		LocalPacketIndex: binary.BigEndian.Uint16(buf[5:7]),
	}
	if _, ok := packetTypeNames[h.Type]; !ok {
		return Header{}, 0, fmt.Errorf("%w: %d", ErrUnknownPacketType, buf[0])
	}
	return h, HeaderSize, nil
}

// ConnectionlessHeader is the reduced header used during the handshake:
// a single packet-type marker byte with no tick/index fields.
type ConnectionlessHeader struct {
	Type PacketType
}

// Marshal encodes the connectionless header into the first byte of buf.
func (h ConnectionlessHeader) Marshal(buf []byte) error {
	if len(buf) < ConnectionlessHeaderSize {
		return fmt.Errorf("proto: marshal connectionless header: buffer too small")
	}
	buf[0] = byte(h.Type)
	return nil
}

// UnmarshalConnectionlessHeader decodes a connectionless header from buf.
func UnmarshalConnectionlessHeader(buf []byte) (ConnectionlessHeader, int, error) {
	if len(buf) < ConnectionlessHeaderSize {
		return ConnectionlessHeader{}, 0, fmt.Errorf("%w: empty buffer", ErrTruncatedHeader)
	}
	t := PacketType(buf[0])
	if _, ok := packetTypeNames[t]; !ok {
		return ConnectionlessHeader{}, 0, fmt.Errorf("%w: %d", ErrUnknownPacketType, buf[0])
	}
	return ConnectionlessHeader{Type: t}, ConnectionlessHeaderSize, nil
}
