package channel

import (
	"fmt"
	"time"

	"github.com/cBournhonesque/naia-go/internal/seqnum"
	"github.com/cBournhonesque/naia-go/internal/wire"
)

// SequencedUnreliable assigns each sent message a monotonic u16 ID and
// never retransmits; the receiver drops any message whose ID is not
// strictly after the highest ID it has already admitted, so a
// reordered-and-then-arriving stale message is silently discarded.
type SequencedUnreliable struct {
	nextOutgoingID uint16
	outbox         []OutgoingMessage

	highestSeen    uint16
	hasHighestSeen bool
	inbox          [][]byte
}

// NewSequencedUnreliable returns an empty SequencedUnreliable channel.
func NewSequencedUnreliable() *SequencedUnreliable {
	return &SequencedUnreliable{}
}

// SendMessage implements Channel.
func (c *SequencedUnreliable) SendMessage(payload []byte) {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	c.outbox = append(c.outbox, OutgoingMessage{ID: c.nextOutgoingID, Payload: cp})
	c.nextOutgoingID++
}

// CollectMessages implements Channel.
func (c *SequencedUnreliable) CollectMessages(time.Time, time.Duration) []OutgoingMessage {
	if len(c.outbox) == 0 {
		return nil
	}
	out := make([]OutgoingMessage, len(c.outbox))
	copy(out, c.outbox)
	return out
}

// HasMessages implements Channel.
func (c *SequencedUnreliable) HasMessages() bool {
	return len(c.outbox) > 0
}

// WriteMessages implements Channel.
func (c *SequencedUnreliable) WriteMessages(w *wire.Writer, msgs []OutgoingMessage) ([]uint16, error) {
	w.WriteVarUint(uint64(len(msgs)), 7)
	ids := make([]uint16, 0, len(msgs))
	for _, m := range msgs {
		w.WriteUint(uint64(m.ID), 16)
		w.WriteBytes(m.Payload)
		ids = append(ids, m.ID)
	}
	c.outbox = c.outbox[:0]
	return ids, nil
}

// NotifyMessageDelivered implements Channel as a no-op.
func (c *SequencedUnreliable) NotifyMessageDelivered(uint16) {}

// ReadMessages implements Channel.
func (c *SequencedUnreliable) ReadMessages(r *wire.Reader) error {
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

		if c.hasHighestSeen && !seqnum.After(id, c.highestSeen) {
			continue // superseded: drop silently.
		}
		c.highestSeen = id
		c.hasHighestSeen = true
		c.inbox = append(c.inbox, payload)
	}
	return nil
}

// ReceiveMessages implements Channel.
func (c *SequencedUnreliable) ReceiveMessages() [][]byte {
	out := c.inbox
	c.inbox = nil
	return out
}
