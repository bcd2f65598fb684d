package naia

import (
	"github.com/cBournhonesque/naia-go/internal/command"
	"github.com/cBournhonesque/naia-go/internal/replicate"
)

// EventKind tags one entry returned from a Receive call.
type EventKind uint8

const (
	// EventConnected fires once the handshake completes.
	EventConnected EventKind = iota + 1
	// EventRejected denotes a failed handshake. Neither Client nor
	// Server emits it: the server drops a connect request whose digest
	// does not validate, and the client keeps resending its handshake.
	EventRejected
	// EventDisconnected fires once a connection is torn down, whether
	// by explicit Disconnect packet or liveness timeout.
	EventDisconnected
	// EventMessage fires once per message a channel has newly admitted.
	EventMessage
	// EventReplication wraps a replicate.Event: an object/entity/pawn
	// create, update or delete the applier decoded. Client-side only.
	EventReplication
	// EventCommand wraps a command.Event: a newly accepted or replayed
	// pawn command.
	EventCommand
)

// Event is one entry returned from Client.Receive or a server
// connection's pending event queue. Only the fields relevant to Kind
// are populated.
type Event struct {
	Kind EventKind

	// Peer identifies which connection this event concerns. Always
	// empty on the client (there is only ever one peer: the server).
	Peer string

	Err error

	Channel ChannelKind
	Message []byte

	Replication replicate.Event
	Command     command.Event
}
