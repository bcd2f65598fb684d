package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// MaxDatagramSize is the largest payload UDPSocket will read in one
// call; payloads larger than this are truncated by the kernel before
// Go ever sees them, so this is sized well above any realistic MTU.
const MaxDatagramSize = 65535

// ErrSocketClosed indicates an operation was attempted on a socket after Close.
var ErrSocketClosed = errors.New("transport: socket closed")

type inbound struct {
	payload []byte
	from    netip.AddrPort
}

// UDPSocket implements Socket over a bound UDP conn. A single background
// goroutine reads datagrams into a bounded channel so TryRecv never
// blocks the caller; Send writes directly to the underlying conn.
type UDPSocket struct {
	conn   *net.UDPConn
	local  netip.AddrPort
	logger *slog.Logger

	inboundCh chan inbound

	mu     sync.Mutex
	closed bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewUDPSocket binds a UDP socket to localAddr and starts its background
// receive loop. The socket is hardened with SO_REUSEADDR so a restarted
// server can rebind immediately.
func NewUDPSocket(localAddr netip.AddrPort, logger *slog.Logger) (*UDPSocket, error) {
	network := "udp4"
	if localAddr.Addr().Is6() && !localAddr.Addr().Is4In6() {
		network = "udp6"
	}

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return setSocketOpts(c)
		},
	}

	pc, err := lc.ListenPacket(context.Background(), network, localAddr.String())
	if err != nil {
		return nil, fmt.Errorf("transport: listen UDP %s: %w", localAddr, err)
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		_ = pc.Close()
		return nil, fmt.Errorf("transport: listen UDP %s: unexpected conn type %T", localAddr, pc)
	}

	boundAddr, ok := netip.AddrFromSlice(conn.LocalAddr().(*net.UDPAddr).IP)
	if !ok {
		boundAddr = localAddr.Addr()
	}
	bound := netip.AddrPortFrom(boundAddr.Unmap(), uint16(conn.LocalAddr().(*net.UDPAddr).Port)) //nolint:gosec // port always fits uint16

	ctx, cancel := context.WithCancel(context.Background())
	s := &UDPSocket{
		conn:      conn,
		local:     bound,
		logger:    logger.With(slog.String("component", "transport.udp"), slog.String("local", bound.String())),
		inboundCh: make(chan inbound, 256),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	go s.recvLoop(ctx)

	return s, nil
}

func setSocketOpts(c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		//nolint:gosec // G115: fd uintptr->int is safe; kernel FDs are always small positive integers.
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return fmt.Errorf("raw conn control: %w", err)
	}
	return sockErr
}

func (s *UDPSocket) recvLoop(ctx context.Context) {
	defer close(s.done)

	buf := make([]byte, MaxDatagramSize)
	for {
		if ctx.Err() != nil {
			return
		}

		n, addr, err := s.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("recv error", slog.String("error", err.Error()))
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		select {
		case s.inboundCh <- inbound{payload: payload, from: addr}:
		case <-ctx.Done():
			return
		default:
			// Inbound channel is full: drop the datagram rather than
			// block the receive loop. Best-effort transport, so this
			// is indistinguishable from network loss to the core.
			s.logger.Debug("inbound queue full, dropping datagram", slog.String("from", addr.String()))
		}
	}
}

// TryRecv implements Socket.
func (s *UDPSocket) TryRecv() ([]byte, netip.AddrPort, bool, error) {
	select {
	case in := <-s.inboundCh:
		return in.payload, in.from, true, nil
	default:
		return nil, netip.AddrPort{}, false, nil
	}
}

// Send implements Socket.
func (s *UDPSocket) Send(addr netip.AddrPort, payload []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSocketClosed
	}
	s.mu.Unlock()

	if _, err := s.conn.WriteToUDPAddrPort(payload, addr); err != nil {
		return fmt.Errorf("transport: send to %s: %w", addr, err)
	}
	return nil
}

// LocalAddr implements Socket.
func (s *UDPSocket) LocalAddr() netip.AddrPort {
	return s.local
}

// Close implements Socket.
func (s *UDPSocket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	err := s.conn.Close()
	<-s.done
	if err != nil {
		return fmt.Errorf("transport: close: %w", err)
	}
	return nil
}
