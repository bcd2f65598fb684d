package channel

import (
	"fmt"
	"time"

	"github.com/cBournhonesque/naia-go/internal/seqnum"
	"github.com/cBournhonesque/naia-go/internal/wire"
)

// SequencedReliable retransmits with backoff like UnorderedReliable, but
// the receiver drops any message superseded by one it has already
// admitted, same rule as SequencedUnreliable. Used where delivery must
// eventually succeed but only the newest value matters (e.g. a
// continuously-updated scalar).
type SequencedReliable struct {
	out reliableOutbox

	highestSeen    uint16
	hasHighestSeen bool
	inbox          [][]byte
}

// NewSequencedReliable returns an empty SequencedReliable channel.
func NewSequencedReliable() *SequencedReliable {
	return &SequencedReliable{}
}

// SendMessage implements Channel.
func (c *SequencedReliable) SendMessage(payload []byte) {
	c.out.enqueue(payload)
}

// CollectMessages implements Channel.
func (c *SequencedReliable) CollectMessages(now time.Time, rtt time.Duration) []OutgoingMessage {
	return c.out.due(now, rtt)
}

// HasMessages implements Channel.
func (c *SequencedReliable) HasMessages() bool {
	return c.out.hasPending()
}

// WriteMessages implements Channel.
func (c *SequencedReliable) WriteMessages(w *wire.Writer, msgs []OutgoingMessage) ([]uint16, error) {
	return writeIDPayloadMessages(w, msgs, func(id uint16, now time.Time) {
		c.out.markSent(id, now)
	})
}

// NotifyMessageDelivered implements Channel.
func (c *SequencedReliable) NotifyMessageDelivered(id uint16) {
	c.out.retire(id)
}

// ReadMessages implements Channel.
func (c *SequencedReliable) ReadMessages(r *wire.Reader) error {
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
			continue
		}
		c.highestSeen = id
		c.hasHighestSeen = true
		c.inbox = append(c.inbox, payload)
	}
	return nil
}

// ReceiveMessages implements Channel.
func (c *SequencedReliable) ReceiveMessages() [][]byte {
	out := c.inbox
	c.inbox = nil
	return out
}
