package channel

import (
	"fmt"
	"time"

	"github.com/cBournhonesque/naia-go/internal/wire"
)

// UnorderedUnreliable is send-and-forget: every enqueued message is
// written exactly once, in whatever order SendMessage was called, and
// never retransmitted or tracked after being written.
type UnorderedUnreliable struct {
	outbox [][]byte
	inbox  [][]byte
}

// NewUnorderedUnreliable returns an empty UnorderedUnreliable channel.
func NewUnorderedUnreliable() *UnorderedUnreliable {
	return &UnorderedUnreliable{}
}

// SendMessage implements Channel.
func (c *UnorderedUnreliable) SendMessage(payload []byte) {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	c.outbox = append(c.outbox, cp)
}

// CollectMessages implements Channel: every pending message is always
// due, since there is no retransmission to schedule.
func (c *UnorderedUnreliable) CollectMessages(time.Time, time.Duration) []OutgoingMessage {
	if len(c.outbox) == 0 {
		return nil
	}
	msgs := make([]OutgoingMessage, len(c.outbox))
	for i, p := range c.outbox {
		msgs[i] = OutgoingMessage{Payload: p}
	}
	return msgs
}

// HasMessages implements Channel.
func (c *UnorderedUnreliable) HasMessages() bool {
	return len(c.outbox) > 0
}

// WriteMessages implements Channel. Every message handed in is
// considered sent and dropped from the outbox immediately: there is no
// later confirmation to wait for.
func (c *UnorderedUnreliable) WriteMessages(w *wire.Writer, msgs []OutgoingMessage) ([]uint16, error) {
	w.WriteVarUint(uint64(len(msgs)), 7)
	for _, m := range msgs {
		w.WriteBytes(m.Payload)
	}
	c.outbox = c.outbox[:0]
	return nil, nil
}

// NotifyMessageDelivered implements Channel as a no-op: this discipline
// never retransmits.
func (c *UnorderedUnreliable) NotifyMessageDelivered(uint16) {}

// ReadMessages implements Channel.
func (c *UnorderedUnreliable) ReadMessages(r *wire.Reader) error {
	n, err := r.ReadVarUint(7)
	if err != nil {
		return fmt.Errorf("channel: read message count: %w", err)
	}
	for i := uint64(0); i < n; i++ {
		payload, err := r.ReadBytes()
		if err != nil {
			return fmt.Errorf("channel: read message payload: %w", err)
		}
		c.inbox = append(c.inbox, payload)
	}
	return nil
}

// ReceiveMessages implements Channel.
func (c *UnorderedUnreliable) ReceiveMessages() [][]byte {
	out := c.inbox
	c.inbox = nil
	return out
}
