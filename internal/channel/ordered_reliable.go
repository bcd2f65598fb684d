package channel

import (
	"fmt"
	"time"

	"github.com/cBournhonesque/naia-go/internal/seqnum"
	"github.com/cBournhonesque/naia-go/internal/wire"
)

// OrderedReliable retransmits with backoff like UnorderedReliable, and
// additionally buffers out-of-order arrivals so the application only
// ever sees a contiguous prefix starting from nextExpected.
type OrderedReliable struct {
	out reliableOutbox

	nextExpected uint16
	reorder      map[uint16][]byte
	inbox        [][]byte
}

// NewOrderedReliable returns an empty OrderedReliable channel.
func NewOrderedReliable() *OrderedReliable {
	return &OrderedReliable{reorder: make(map[uint16][]byte)}
}

// SendMessage implements Channel.
func (c *OrderedReliable) SendMessage(payload []byte) {
	c.out.enqueue(payload)
}

// CollectMessages implements Channel.
func (c *OrderedReliable) CollectMessages(now time.Time, rtt time.Duration) []OutgoingMessage {
	return c.out.due(now, rtt)
}

// HasMessages implements Channel.
func (c *OrderedReliable) HasMessages() bool {
	return c.out.hasPending()
}

// WriteMessages implements Channel.
func (c *OrderedReliable) WriteMessages(w *wire.Writer, msgs []OutgoingMessage) ([]uint16, error) {
	return writeIDPayloadMessages(w, msgs, func(id uint16, now time.Time) {
		c.out.markSent(id, now)
	})
}

// NotifyMessageDelivered implements Channel.
func (c *OrderedReliable) NotifyMessageDelivered(id uint16) {
	c.out.retire(id)
}

// ReadMessages implements Channel. Every admitted message is buffered by
// ID; drainContiguous then promotes whatever contiguous run starting at
// nextExpected is now available.
func (c *OrderedReliable) ReadMessages(r *wire.Reader) error {
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

		if seqnum.Before(id, c.nextExpected) {
			continue // already delivered, a retransmit racing the ack.
		}
		if _, dup := c.reorder[id]; dup {
			continue
		}
		c.reorder[id] = payload
	}
	c.drainContiguous()
	return nil
}

func (c *OrderedReliable) drainContiguous() {
	for {
		payload, ok := c.reorder[c.nextExpected]
		if !ok {
			return
		}
		delete(c.reorder, c.nextExpected)
		c.inbox = append(c.inbox, payload)
		c.nextExpected++
	}
}

// ReceiveMessages implements Channel.
func (c *OrderedReliable) ReceiveMessages() [][]byte {
	out := c.inbox
	c.inbox = nil
	return out
}
