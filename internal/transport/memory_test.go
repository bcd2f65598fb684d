package transport_test

import (
	"net/netip"
	"sync"

	"github.com/cBournhonesque/naia-go/internal/transport"
)

// memorySocket is an in-process Socket double: two memorySockets wired
// together via wireMemorySockets deliver datagrams through a
// mutex-guarded in-memory inbox, with no actual network I/O. Used to exercise LinkCondition
// and higher layers deterministically.
type memorySocket struct {
	local netip.AddrPort
	peer  *memorySocket

	mu     sync.Mutex
	inbox  []memoryDatagram
	closed bool
}

type memoryDatagram struct {
	payload []byte
	from    netip.AddrPort
}

func newMemorySocket(addr netip.AddrPort) *memorySocket {
	return &memorySocket{local: addr}
}

// wireMemorySockets connects a and b so that a.Send delivers into
// b's inbox and vice versa.
func wireMemorySockets(a, b *memorySocket) {
	a.peer = b
	b.peer = a
}

func (m *memorySocket) TryRecv() ([]byte, netip.AddrPort, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.inbox) == 0 {
		return nil, netip.AddrPort{}, false, nil
	}
	d := m.inbox[0]
	m.inbox = m.inbox[1:]
	return d.payload, d.from, true, nil
}

func (m *memorySocket) Send(_ netip.AddrPort, payload []byte) error {
	m.mu.Lock()
	closed := m.closed
	peer := m.peer
	m.mu.Unlock()

	if closed {
		return transport.ErrSocketClosed
	}
	if peer == nil {
		return nil
	}

	cp := make([]byte, len(payload))
	copy(cp, payload)

	peer.mu.Lock()
	peer.inbox = append(peer.inbox, memoryDatagram{payload: cp, from: m.local})
	peer.mu.Unlock()
	return nil
}

func (m *memorySocket) LocalAddr() netip.AddrPort {
	return m.local
}

func (m *memorySocket) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
