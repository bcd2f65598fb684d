// Package channel implements the five message-channel delivery
// disciplines consumed by the command pipeline and by user-level
// messaging: unordered-unreliable, sequenced-unreliable,
// unordered-reliable, sequenced-reliable and ordered-reliable. Every
// discipline shares one contract so callers can treat a connection's
// channel set uniformly.
package channel

import (
	"time"

	"github.com/cBournhonesque/naia-go/internal/wire"
)

// Channel is the uniform contract every delivery discipline implements.
type Channel interface {
	// SendMessage enqueues payload for the next CollectMessages/
	// WriteMessages pass. payload is copied; the caller may reuse its
	// buffer immediately.
	SendMessage(payload []byte)

	// CollectMessages selects which pending/outstanding messages are
	// due to go out in the next packet: everything new, plus (for
	// reliable disciplines) anything whose retransmit backoff —
	// keyed on the connection's current smoothed rtt — has elapsed as
	// of now.
	CollectMessages(now time.Time, rtt time.Duration) []OutgoingMessage

	// HasMessages reports whether CollectMessages would currently
	// return anything, so callers can skip building an empty channel
	// section.
	HasMessages() bool

	// WriteMessages serializes msgs (as returned by CollectMessages)
	// into w and returns the IDs actually written, in wire order.
	WriteMessages(w *wire.Writer, msgs []OutgoingMessage) ([]uint16, error)

	// NotifyMessageDelivered informs a reliable discipline that the
	// ack tracker has confirmed delivery of the packet carrying id, so
	// it can stop retransmitting that message. A no-op on unreliable
	// disciplines.
	NotifyMessageDelivered(id uint16)

	// ReadMessages deserializes one channel section from r, applying
	// this discipline's drop/reorder rule, and makes newly-admitted
	// messages available from ReceiveMessages.
	ReadMessages(r *wire.Reader) error

	// ReceiveMessages drains and returns messages now ready for the
	// application, in this discipline's delivery order.
	ReceiveMessages() [][]byte
}

// OutgoingMessage pairs a message's wire ID with its payload. ID is
// meaningless for unordered-unreliable (always 0) since that discipline
// never needs one.
type OutgoingMessage struct {
	ID      uint16
	Payload []byte
}
