package channel

import "time"

// minBackoff bounds the retransmit backoff from below for the first
// retry, independent of rtt, so a not-yet-measured connection (rtt==0)
// still retransmits at a sane cadence rather than every tick.
const minBackoff = 25 * time.Millisecond

// maxBackoffAttempts caps the exponential backoff shift so a
// long-unacknowledged message does not end up waiting minutes between
// retries.
const maxBackoffAttempts = 6

// pendingMessage is one outstanding reliable message awaiting
// acknowledgement.
type pendingMessage struct {
	id         uint16
	payload    []byte
	lastSentAt time.Time
	attempt    int
}

// reliableOutbox is the retransmit bookkeeping shared by every reliable
// discipline: assign IDs, decide what's due for (re)transmission given
// the connection's current smoothed RTT, and retire messages once the
// ack tracker confirms delivery.
type reliableOutbox struct {
	nextID  uint16
	pending []*pendingMessage
}

func (o *reliableOutbox) enqueue(payload []byte) uint16 {
	id := o.nextID
	o.nextID++

	cp := make([]byte, len(payload))
	copy(cp, payload)
	o.pending = append(o.pending, &pendingMessage{id: id, payload: cp})
	return id
}

func backoffDuration(rtt time.Duration, attempt int) time.Duration {
	base := rtt
	if base < minBackoff {
		base = minBackoff
	}
	shift := attempt
	if shift > maxBackoffAttempts {
		shift = maxBackoffAttempts
	}
	return base << shift //nolint:gosec // shift bounded by maxBackoffAttempts
}

// due returns the pending messages whose backoff has elapsed as of now,
// as OutgoingMessage values ready for WriteMessages.
func (o *reliableOutbox) due(now time.Time, rtt time.Duration) []OutgoingMessage {
	var out []OutgoingMessage
	for _, m := range o.pending {
		if m.lastSentAt.IsZero() || now.Sub(m.lastSentAt) >= backoffDuration(rtt, m.attempt) {
			out = append(out, OutgoingMessage{ID: m.id, Payload: m.payload})
		}
	}
	return out
}

func (o *reliableOutbox) hasPending() bool {
	return len(o.pending) > 0
}

// markSent records that id was (re)transmitted at now, advancing its
// backoff attempt counter.
func (o *reliableOutbox) markSent(id uint16, now time.Time) {
	for _, m := range o.pending {
		if m.id == id {
			m.lastSentAt = now
			m.attempt++
			return
		}
	}
}

// retire removes id from the pending set once it has been delivered.
func (o *reliableOutbox) retire(id uint16) {
	for i, m := range o.pending {
		if m.id == id {
			o.pending = append(o.pending[:i], o.pending[i+1:]...)
			return
		}
	}
}
