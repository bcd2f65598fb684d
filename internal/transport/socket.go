// Package transport implements the datagram boundary the replication
// core consumes: a non-blocking try-receive/send pair over an opaque
// byte payload, a UDP binding of it, a link-condition injector for
// testing against loss/duplication/reordering/latency, and a bounded
// dual-queue adapter for async transports that run their own executor.
//
// The core never blocks on a Socket: TryRecv returns immediately with a
// nil payload, a zero address, ok == false and a nil error when nothing
// is pending.
package transport

import "net/netip"

// Socket is the datagram transport boundary consumed by the replication
// core. Implementations are best-effort: a datagram may be dropped,
// reordered, or duplicated by the underlying medium.
type Socket interface {
	// TryRecv returns the next pending datagram without blocking. ok is
	// false when nothing is currently available; it is not an error.
	TryRecv() (payload []byte, from netip.AddrPort, ok bool, err error)

	// Send transmits payload to addr. Send does not guarantee delivery.
	Send(addr netip.AddrPort, payload []byte) error

	// LocalAddr returns the address this socket is bound to.
	LocalAddr() netip.AddrPort

	// Close releases the underlying resources. Subsequent Send calls
	// return an error; TryRecv may still return datagrams queued before
	// Close and otherwise reports ok == false.
	Close() error
}
