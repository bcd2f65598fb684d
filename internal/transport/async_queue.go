package transport

import (
	"net/netip"
)

// asyncDatagram pairs a payload with its peer address for queues that
// need to preserve per-packet addressing (the inbound side; the
// outbound side is always addressed to the single connected peer).
type asyncDatagram struct {
	payload []byte
	from    netip.AddrPort
}

// AsyncQueue adapts a transport that runs its own executor (e.g. a
// browser WebRTC data channel driven by its own event loop) to the
// Socket interface the core consumes. The async side owns two bounded
// channels, one per direction; the core only ever calls the
// non-blocking TryRecv/Send pair and never awaits anything.
//
// The async transport's own goroutine(s) call Deliver to push received
// datagrams in and Outbound to drain datagrams the core wants sent.
type AsyncQueue struct {
	local netip.AddrPort

	inboundCh  chan asyncDatagram
	outboundCh chan asyncDatagram

	closeCh chan struct{}
}

// NewAsyncQueue returns an AsyncQueue bound to local with the given
// per-direction queue capacity. A full inbound queue causes Deliver to
// drop the datagram (indistinguishable from network loss to the core);
// a full outbound queue causes Send to return ErrOutboundQueueFull so
// the caller can apply backpressure if it wants to.
func NewAsyncQueue(local netip.AddrPort, capacity int) *AsyncQueue {
	return &AsyncQueue{
		local:      local,
		inboundCh:  make(chan asyncDatagram, capacity),
		outboundCh: make(chan asyncDatagram, capacity),
		closeCh:    make(chan struct{}),
	}
}

// ErrOutboundQueueFull is returned by Send when the outbound queue is at
// capacity and the async transport has not drained it in time.
var ErrOutboundQueueFull = &queueFullError{}

type queueFullError struct{}

func (*queueFullError) Error() string { return "transport: outbound queue full" }

// Deliver is called by the async transport's own loop to hand a
// received datagram to the core. Non-blocking: drops the datagram if
// the inbound queue is full.
func (q *AsyncQueue) Deliver(payload []byte, from netip.AddrPort) {
	select {
	case <-q.closeCh:
		return
	default:
	}

	select {
	case q.inboundCh <- asyncDatagram{payload: payload, from: from}:
	default:
	}
}

// Outbound is called by the async transport's own loop to drain a
// datagram the core wants sent. ok is false when the queue is empty.
func (q *AsyncQueue) Outbound() (payload []byte, to netip.AddrPort, ok bool) {
	select {
	case d := <-q.outboundCh:
		return d.payload, d.from, true
	default:
		return nil, netip.AddrPort{}, false
	}
}

// TryRecv implements Socket.
func (q *AsyncQueue) TryRecv() ([]byte, netip.AddrPort, bool, error) {
	select {
	case d := <-q.inboundCh:
		return d.payload, d.from, true, nil
	default:
		return nil, netip.AddrPort{}, false, nil
	}
}

// Send implements Socket.
func (q *AsyncQueue) Send(addr netip.AddrPort, payload []byte) error {
	select {
	case <-q.closeCh:
		return ErrSocketClosed
	default:
	}

	select {
	case q.outboundCh <- asyncDatagram{payload: payload, from: addr}:
		return nil
	default:
		return ErrOutboundQueueFull
	}
}

// LocalAddr implements Socket.
func (q *AsyncQueue) LocalAddr() netip.AddrPort {
	return q.local
}

// Close implements Socket. Afterwards Deliver discards datagrams and
// Send returns ErrSocketClosed; the inbound/outbound channels themselves are
// left open since a concurrent Deliver/Outbound call racing with Close
// must not panic on a closed-channel send.
func (q *AsyncQueue) Close() error {
	close(q.closeCh)
	return nil
}
