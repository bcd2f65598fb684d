// Package ack tracks the delivery status of outgoing packets using the
// peer's self-reported "last observed index" rather than explicit
// per-packet acknowledgements: every incoming header carries the
// highest packet index the peer has observed, and everything at or
// below that index within a sliding window is inferred delivered,
// while anything that falls out of the window unacknowledged is
// inferred dropped.
package ack

import (
	"sort"

	"github.com/cBournhonesque/naia-go/internal/seqnum"
)

// Notifier receives exactly one delivery outcome per outgoing packet
// index, in ascending wrapping order.
type Notifier interface {
	NotifyPacketDelivered(index uint16)
	NotifyPacketDropped(index uint16)
}

// Tracker maintains the sliding window of in-flight outgoing packet
// indices for one connection.
type Tracker struct {
	windowSize uint16

	// inFlight holds indices sent but not yet resolved as delivered or
	// dropped, in ascending insertion (== wrapping send) order.
	inFlight []uint16
}

// NewTracker returns a Tracker with the given sliding window size: an
// in-flight index older than windowSize behind the peer's latest
// observed index is declared dropped.
func NewTracker(windowSize uint16) *Tracker {
	return &Tracker{windowSize: windowSize}
}

// RecordSent registers index as newly sent and awaiting resolution.
func (t *Tracker) RecordSent(index uint16) {
	t.inFlight = append(t.inFlight, index)
}

// InFlightCount reports how many outgoing packets are still awaiting
// resolution.
func (t *Tracker) InFlightCount() int {
	return len(t.inFlight)
}

// Observe processes an incoming header's "last observed index" and
// notifies n of every resolution, in ascending wrapping order. Indices
// at or before lastObserved (and within the window behind it) are
// delivered; indices that fall more than windowSize behind lastObserved
// are dropped.
func (t *Tracker) Observe(lastObserved uint16, n Notifier) {
	if len(t.inFlight) == 0 {
		return
	}

	// Oldest first: the further behind lastObserved, the earlier.
	sort.SliceStable(t.inFlight, func(i, j int) bool {
		return seqnum.WrappingDiff(lastObserved, t.inFlight[i]) > seqnum.WrappingDiff(lastObserved, t.inFlight[j])
	})

	remaining := t.inFlight[:0]
	for _, idx := range t.inFlight {
		diff := seqnum.WrappingDiff(lastObserved, idx) // > 0 when idx is behind lastObserved
		switch {
		case diff < 0:
			// idx is still ahead of what the peer has observed: unresolved.
			remaining = append(remaining, idx)
		case diff <= int16(t.windowSize): //nolint:gosec // windowSize bounded well under int16 range
			n.NotifyPacketDelivered(idx)
		default:
			n.NotifyPacketDropped(idx)
		}
	}
	t.inFlight = remaining
}
