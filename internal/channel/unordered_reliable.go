package channel

import (
	"fmt"
	"time"

	"github.com/cBournhonesque/naia-go/internal/wire"
)

// UnorderedReliable retransmits every message with exponential backoff
// keyed on the connection's RTT until the ack tracker confirms
// delivery, and delivers to the application in whatever order messages
// arrive (no reorder buffer).
type UnorderedReliable struct {
	out reliableOutbox

	seen  map[uint16]bool
	inbox [][]byte
}

// NewUnorderedReliable returns an empty UnorderedReliable channel.
func NewUnorderedReliable() *UnorderedReliable {
	return &UnorderedReliable{seen: make(map[uint16]bool)}
}

// SendMessage implements Channel.
func (c *UnorderedReliable) SendMessage(payload []byte) {
	c.out.enqueue(payload)
}

// CollectMessages implements Channel.
func (c *UnorderedReliable) CollectMessages(now time.Time, rtt time.Duration) []OutgoingMessage {
	return c.out.due(now, rtt)
}

// HasMessages implements Channel.
func (c *UnorderedReliable) HasMessages() bool {
	return c.out.hasPending()
}

// WriteMessages implements Channel.
func (c *UnorderedReliable) WriteMessages(w *wire.Writer, msgs []OutgoingMessage) ([]uint16, error) {
	return writeIDPayloadMessages(w, msgs, func(id uint16, now time.Time) {
		c.out.markSent(id, now)
	})
}

// NotifyMessageDelivered implements Channel.
func (c *UnorderedReliable) NotifyMessageDelivered(id uint16) {
	c.out.retire(id)
}

// ReadMessages implements Channel. Duplicate deliveries of the same ID
// (the sender retransmitted before the ack propagated) are deduplicated
// by id rather than dropped at the packet level, since unordered
// delivery has no "supersede" notion to lean on.
func (c *UnorderedReliable) ReadMessages(r *wire.Reader) error {
	n, err := r.ReadVarUint(7)
	if err != nil {
		return fmt.Errorf("channel: read message count: %w", err)
	}
	for i := uint64(0); i < n; i++ {
		id64, err := r.ReadUint(16)
		if err != nil {
			return fmt.Errorf("channel: read message id: %w", err)
		}
		payload, err := r.ReadBytes()
		if err != nil {
			return fmt.Errorf("channel: read message payload: %w", err)
		}
		id := uint16(id64)
		if c.seen[id] {
			continue
		}
		c.seen[id] = true
		c.inbox = append(c.inbox, payload)
	}
	return nil
}

// ReceiveMessages implements Channel.
func (c *UnorderedReliable) ReceiveMessages() [][]byte {
	out := c.inbox
	c.inbox = nil
	return out
}

// writeIDPayloadMessages writes the common id+length-prefixed-payload
// wire shape shared by every reliable discipline's WriteMessages, and
// calls markSent for each id written so the caller's backoff bookkeeping
// stays in sync with what actually went out.
func writeIDPayloadMessages(w *wire.Writer, msgs []OutgoingMessage, markSent func(id uint16, now time.Time)) ([]uint16, error) {
	w.WriteVarUint(uint64(len(msgs)), 7)
	now := time.Now()
	ids := make([]uint16, 0, len(msgs))
	for _, m := range msgs {
		w.WriteUint(uint64(m.ID), 16)
		w.WriteBytes(m.Payload)
		markSent(m.ID, now)
		ids = append(ids, m.ID)
	}
	return ids, nil
}
