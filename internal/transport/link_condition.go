package transport

import (
	"container/heap"
	"math/rand/v2"
	"net/netip"
	"sync"
	"time"
)

// LinkConditionConfig configures probabilistic impairment for testing
// against loss, duplication, reordering and added latency. All
// probabilities are in [0,1]; a zero-value LinkConditionConfig is a
// perfect link (no impairment).
type LinkConditionConfig struct {
	// DropRate is the probability an inbound or outbound datagram is
	// silently discarded.
	DropRate float64

	// DuplicateRate is the probability a delivered datagram is
	// delivered a second time.
	DuplicateRate float64

	// LatencyMin/LatencyMax bound a uniformly-distributed extra delay
	// applied to every datagram that is not dropped. LatencyMax of zero
	// disables added latency (and reordering, since datagrams are then
	// delivered in submission order).
	LatencyMin time.Duration
	LatencyMax time.Duration
}

// enabled reports whether cfg would alter a perfect link.
func (cfg LinkConditionConfig) enabled() bool {
	return cfg.DropRate > 0 || cfg.DuplicateRate > 0 || cfg.LatencyMax > 0
}

// scheduledDatagram is an entry in the reorder/latency delay heap.
type scheduledDatagram struct {
	deliverAt time.Time
	payload   []byte
	from      netip.AddrPort
}

type delayHeap []scheduledDatagram

func (h delayHeap) Len() int            { return len(h) }
func (h delayHeap) Less(i, j int) bool  { return h[i].deliverAt.Before(h[j].deliverAt) }
func (h delayHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *delayHeap) Push(x interface{}) { *h = append(*h, x.(scheduledDatagram)) } //nolint:forcetypeassert // heap.Interface contract
func (h *delayHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// LinkCondition wraps a Socket, applying DropRate/DuplicateRate/latency
// to every datagram that passes through TryRecv. It is intended for
// tests that need to exercise the replication engine's loss/reorder
// handling deterministically-in-distribution, not for production use.
type LinkCondition struct {
	inner Socket
	cfg   LinkConditionConfig
	rng   *rand.Rand

	mu      sync.Mutex
	pending delayHeap
}

// NewLinkCondition wraps inner with the given impairment config.
func NewLinkCondition(inner Socket, cfg LinkConditionConfig, seed uint64) *LinkCondition {
	return &LinkCondition{
		inner: inner,
		cfg:   cfg,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), //nolint:gosec // test-only determinism, not security
	}
}

// TryRecv implements Socket. It drains ready entries from the delay
// heap (oldest deliverAt first) in addition to polling the wrapped
// socket, so reordering naturally falls out of the heap's ordering by
// deliverAt rather than arrival order.
func (lc *LinkCondition) TryRecv() ([]byte, netip.AddrPort, bool, error) {
	lc.drainInner()

	lc.mu.Lock()
	defer lc.mu.Unlock()

	if len(lc.pending) == 0 {
		return nil, netip.AddrPort{}, false, nil
	}
	if lc.pending[0].deliverAt.After(time.Now()) {
		return nil, netip.AddrPort{}, false, nil
	}

	item := heap.Pop(&lc.pending).(scheduledDatagram) //nolint:forcetypeassert // heap.Interface contract
	return item.payload, item.from, true, nil
}

// drainInner pulls every currently-available datagram out of the
// wrapped socket and schedules it (possibly dropped, possibly
// duplicated) into the delay heap.
func (lc *LinkCondition) drainInner() {
	for {
		payload, from, ok, err := lc.inner.TryRecv()
		if err != nil || !ok {
			return
		}
		lc.schedule(payload, from)
	}
}

func (lc *LinkCondition) schedule(payload []byte, from netip.AddrPort) {
	if !lc.cfg.enabled() {
		lc.enqueue(payload, from, time.Now())
		return
	}

	if lc.rng.Float64() < lc.cfg.DropRate {
		return
	}

	lc.enqueue(payload, from, lc.deliveryTime())

	if lc.rng.Float64() < lc.cfg.DuplicateRate {
		dup := make([]byte, len(payload))
		copy(dup, payload)
		lc.enqueue(dup, from, lc.deliveryTime())
	}
}

func (lc *LinkCondition) deliveryTime() time.Time {
	if lc.cfg.LatencyMax <= 0 {
		return time.Now()
	}
	spread := lc.cfg.LatencyMax - lc.cfg.LatencyMin
	extra := lc.cfg.LatencyMin
	if spread > 0 {
		extra += time.Duration(lc.rng.Int64N(int64(spread)))
	}
	return time.Now().Add(extra)
}

func (lc *LinkCondition) enqueue(payload []byte, from netip.AddrPort, at time.Time) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	heap.Push(&lc.pending, scheduledDatagram{deliverAt: at, payload: payload, from: from})
}

// Send implements Socket, applying the same drop/duplicate policy to
// outbound datagrams. Latency is not applied on send: the receiving
// side's LinkCondition (if any) already models one-way delay, and
// applying it twice would double-count it.
func (lc *LinkCondition) Send(addr netip.AddrPort, payload []byte) error {
	if lc.cfg.enabled() && lc.rng.Float64() < lc.cfg.DropRate {
		return nil
	}
	if err := lc.inner.Send(addr, payload); err != nil {
		return err
	}
	if lc.cfg.enabled() && lc.rng.Float64() < lc.cfg.DuplicateRate {
		return lc.inner.Send(addr, payload)
	}
	return nil
}

// LocalAddr implements Socket.
func (lc *LinkCondition) LocalAddr() netip.AddrPort {
	return lc.inner.LocalAddr()
}

// Close implements Socket.
func (lc *LinkCondition) Close() error {
	return lc.inner.Close()
}
