package naia

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/cBournhonesque/naia-go/internal/ack"
	"github.com/cBournhonesque/naia-go/internal/command"
	"github.com/cBournhonesque/naia-go/internal/config"
	"github.com/cBournhonesque/naia-go/internal/handshake"
	"github.com/cBournhonesque/naia-go/internal/manifest"
	"github.com/cBournhonesque/naia-go/internal/proto"
	"github.com/cBournhonesque/naia-go/internal/replicate"
	"github.com/cBournhonesque/naia-go/internal/rtt"
	"github.com/cBournhonesque/naia-go/internal/server"
	"github.com/cBournhonesque/naia-go/internal/ticker"
	"github.com/cBournhonesque/naia-go/internal/transport"
	"github.com/cBournhonesque/naia-go/internal/wire"
)

// ErrUnknownPeer is returned by Server methods addressing a peer that
// is not (or no longer) connected.
var ErrUnknownPeer = errors.New("naia: unknown peer")

// serverConnection is one connected client's full server-side state.
type serverConnection struct {
	addr        netip.AddrPort
	connectedAt time.Time
	lastRecvAt  time.Time

	hs  *handshake.Server
	mgr *replicate.Manager

	inbox    *command.Inbox
	channels *channelSet
	notifier *channelAckNotifier

	ackTracker   *ack.Tracker
	rttEstimator *rtt.Estimator

	lastRecvTick uint16

	objectCount int
	entityCount int
}

// Server manages every connection accepted over one UDP socket, driving
// one world tick shared by all of them.
type Server struct {
	cfg    config.ReplicationConfig
	m      *manifest.Manifest
	logger *slog.Logger
	sock   transport.Socket

	secret []byte
	tick   *ticker.Ticker

	mu    sync.Mutex
	conns map[netip.AddrPort]*serverConnection

	lastSendAt time.Time
}

// NewServer constructs a Server. secret is the handshake HMAC key every
// connection's digest is validated against.
func NewServer(cfg config.ReplicationConfig, m *manifest.Manifest, secret []byte, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	t := ticker.New(cfg.TickInterval)
	t.Seed(0, time.Now())

	return &Server{
		cfg:    cfg,
		m:      m,
		logger: logger.With(slog.String("component", "naia.server")),
		secret: secret,
		tick:   t,
		conns:  make(map[netip.AddrPort]*serverConnection),
	}
}

// Listen binds the UDP socket the server accepts connections on.
func (s *Server) Listen(addr netip.AddrPort) error {
	sock, err := transport.NewUDPSocket(addr, s.logger)
	if err != nil {
		return fmt.Errorf("naia: listen: %w", err)
	}
	s.sock = sock
	return nil
}

// LocalAddr returns the address the listening socket is bound to. Only
// valid after Listen returns successfully.
func (s *Server) LocalAddr() netip.AddrPort {
	return s.sock.LocalAddr()
}

// Close releases the listening socket.
func (s *Server) Close() error {
	if s.sock == nil {
		return nil
	}
	return s.sock.Close()
}

// Receive drains every pending datagram, advances the world tick,
// flushes one outgoing packet per connection that is due, tears down
// connections that timed out, and returns every event produced.
func (s *Server) Receive(now time.Time) []Event {
	if s.sock == nil {
		return nil
	}

	var events []Event
	s.tick.Advance(now)

	for {
		payload, from, ok, err := s.sock.TryRecv()
		if err != nil {
			s.logger.Warn("socket receive error", slog.String("error", err.Error()))
			break
		}
		if !ok {
			break
		}
		events = append(events, s.handleDatagram(from, payload, now)...)
	}

	events = append(events, s.reapTimedOut(now)...)

	if s.lastSendAt.IsZero() || now.Sub(s.lastSendAt) >= s.cfg.TickInterval {
		s.flushAll(now)
		s.lastSendAt = now
	}

	return events
}

func (s *Server) reapTimedOut(now time.Time) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []Event
	for addr, conn := range s.conns {
		if conn.lastRecvAt.IsZero() || now.Sub(conn.lastRecvAt) <= s.cfg.DisconnectionTimeout {
			continue
		}
		delete(s.conns, addr)
		events = append(events, Event{Kind: EventDisconnected, Peer: addr.String(), Err: errors.New("naia: disconnection timeout")})
	}
	return events
}

func (s *Server) handleDatagram(from netip.AddrPort, buf []byte, now time.Time) []Event {
	if len(buf) == 0 {
		return nil
	}

	switch proto.PacketType(buf[0]) {
	case proto.ClientChallengeRequest:
		s.handleChallengeRequest(from, buf)
		return nil
	case proto.ClientConnectRequest:
		return s.handleConnectRequest(from, buf, now)
	case proto.Data:
		return s.handleData(from, buf, now)
	case proto.Ping:
		s.handlePing(from, buf)
		return nil
	case proto.Disconnect:
		return s.handleDisconnect(from)
	default:
		return nil
	}
}

func (s *Server) connFor(from netip.AddrPort) *serverConnection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[from]
}

func (s *Server) handleChallengeRequest(from netip.AddrPort, buf []byte) {
	ts, err := decodeChallengeRequest(buf)
	if err != nil {
		return
	}

	conn := s.connFor(from)
	if conn == nil {
		conn = &serverConnection{
			addr:         from,
			hs:           handshake.NewServer(s.secret),
			mgr:          replicate.New(),
			inbox:        command.NewInbox(),
			channels:     newChannelSet(),
			ackTracker:   ack.NewTracker(ackWindowSize),
			rttEstimator: rtt.NewEstimator(),
		}
		conn.notifier = newChannelAckNotifier(conn.channels)
		s.mu.Lock()
		s.conns[from] = conn
		s.mu.Unlock()
	}

	digest := conn.hs.ChallengeResponse(ts)
	if err := s.sock.Send(from, encodeChallengeResponse(ts, digest, s.tick.Tick())); err != nil {
		s.logger.Warn("send challenge response", slog.String("error", err.Error()))
	}
}

func (s *Server) handleConnectRequest(from netip.AddrPort, buf []byte, now time.Time) []Event {
	ts, digest, err := decodeConnectRequest(buf)
	if err != nil {
		return nil
	}

	conn := s.connFor(from)
	if conn == nil {
		return nil
	}

	admitted, err := conn.hs.HandleConnectRequest(ts, digest)
	if err != nil || !admitted {
		s.logger.Debug("connect request rejected", slog.String("peer", from.String()))
		return nil
	}

	firstAdmission := conn.connectedAt.IsZero()
	if firstAdmission {
		conn.connectedAt = now
	}
	conn.lastRecvAt = now

	if err := s.sock.Send(from, encodeConnectResponse(s.tick.Tick())); err != nil {
		s.logger.Warn("send connect response", slog.String("error", err.Error()))
	}

	if !firstAdmission {
		return nil
	}
	return []Event{{Kind: EventConnected, Peer: from.String()}}
}

func (s *Server) handleData(from netip.AddrPort, buf []byte, now time.Time) []Event {
	conn := s.connFor(from)
	if conn == nil || !conn.hs.Admitted() {
		return nil
	}
	conn.lastRecvAt = now

	h, r, err := unmarshalDataPacket(buf)
	if err != nil {
		s.logger.Debug("malformed data packet", slog.String("peer", from.String()), slog.String("error", err.Error()))
		return nil
	}

	conn.lastRecvTick = h.HostTick
	conn.ackTracker.Observe(h.LastRecvTick, newFanoutNotifier(conn.notifier, conn.mgr))

	pawnKey, entries, present, err := readCommandSection(r, s.m)
	if err != nil {
		s.logger.Warn("read command section", slog.String("peer", from.String()), slog.String("error", err.Error()))
		return nil
	}
	if err := readChannelSections(r, conn.channels); err != nil {
		s.logger.Warn("read channel sections", slog.String("peer", from.String()), slog.String("error", err.Error()))
		return nil
	}

	var events []Event
	if present {
		for _, ce := range command.NewCommandEvents(pawnKey, conn.inbox.Accept(pawnKey, entries)) {
			events = append(events, Event{Kind: EventCommand, Peer: from.String(), Command: ce})
		}
	}
	for _, ev := range drainChannelMessages(conn.channels) {
		ev.Peer = from.String()
		events = append(events, ev)
	}
	return events
}

func (s *Server) handlePing(from netip.AddrPort, buf []byte) {
	_, nonce, err := decodePingPong(buf)
	if err != nil {
		return
	}
	h := proto.Header{Type: proto.Pong, HostTick: s.tick.Tick()}
	if err := s.sock.Send(from, encodePong(h, nonce)); err != nil {
		s.logger.Warn("send pong", slog.String("error", err.Error()))
	}
}

func (s *Server) handleDisconnect(from netip.AddrPort) []Event {
	s.mu.Lock()
	_, existed := s.conns[from]
	delete(s.conns, from)
	s.mu.Unlock()

	if !existed {
		return nil
	}
	return []Event{{Kind: EventDisconnected, Peer: from.String()}}
}

// flushAll sends one Data packet to every admitted connection, whether
// or not it has outgoing actions or messages pending.
func (s *Server) flushAll(now time.Time) {
	s.mu.Lock()
	addrs := make([]netip.AddrPort, 0, len(s.conns))
	for addr, conn := range s.conns {
		if conn.hs.Admitted() {
			addrs = append(addrs, addr)
		}
	}
	s.mu.Unlock()

	for _, addr := range addrs {
		s.flushOne(addr, now)
	}
}

func (s *Server) flushOne(addr netip.AddrPort, now time.Time) {
	conn := s.connFor(addr)
	if conn == nil {
		return
	}

	idx := s.tick.Tick()
	body := wire.NewWriter()
	if err := writeActionsSection(body, conn.mgr, s.m, idx); err != nil {
		s.logger.Warn("write actions section", slog.String("peer", addr.String()), slog.String("error", err.Error()))
		return
	}

	rttSample, _ := conn.rttEstimator.RTT()
	writtenIDs, err := writeChannelSections(body, conn.channels, now, rttSample)
	if err != nil {
		s.logger.Warn("write channel sections", slog.String("peer", addr.String()), slog.String("error", err.Error()))
		return
	}

	h := proto.Header{
		Type:             proto.Data,
		HostTick:         idx,
		LastRecvTick:     conn.lastRecvTick,
		LocalPacketIndex: idx,
	}
	conn.ackTracker.RecordSent(idx)
	conn.notifier.recordSent(idx, writtenIDs)

	if err := s.sock.Send(addr, marshalDataPacket(h, body)); err != nil {
		s.logger.Warn("send data packet", slog.String("peer", addr.String()), slog.String("error", err.Error()))
	}
}

// -------------------------------------------------------------------------
// Replication API: the application drives each connection's Manager
// through these methods.
// -------------------------------------------------------------------------

func (s *Server) connOrErr(peer string) (*serverConnection, error) {
	addr, err := netip.ParseAddrPort(peer)
	if err != nil {
		return nil, fmt.Errorf("naia: parse peer address %q: %w", peer, err)
	}
	conn := s.connFor(addr)
	if conn == nil {
		return nil, fmt.Errorf("%s: %w", peer, ErrUnknownPeer)
	}
	return conn, nil
}

// AddObject starts replicating value under key to peer.
func (s *Server) AddObject(peer string, key replicate.GlobalKey, value manifest.Replicate, diffMaskBits int) error {
	conn, err := s.connOrErr(peer)
	if err != nil {
		return err
	}
	conn.mgr.AddObject(key, value, diffMaskBits)
	conn.objectCount++
	return nil
}

// RemoveObject stops replicating key to peer.
func (s *Server) RemoveObject(peer string, key replicate.GlobalKey) error {
	conn, err := s.connOrErr(peer)
	if err != nil {
		return err
	}
	conn.mgr.RemoveObject(key)
	conn.objectCount--
	return nil
}

// AddEntity starts replicating an entity under key to peer, with the
// given initial component set.
func (s *Server) AddEntity(peer string, key replicate.GlobalKey, components []replicate.ComponentValue) error {
	conn, err := s.connOrErr(peer)
	if err != nil {
		return err
	}
	conn.mgr.AddEntity(key, components)
	conn.entityCount++
	return nil
}

// RemoveEntity stops replicating key and its attached components to peer.
func (s *Server) RemoveEntity(peer string, key replicate.GlobalKey) error {
	conn, err := s.connOrErr(peer)
	if err != nil {
		return err
	}
	conn.mgr.RemoveEntity(key)
	conn.entityCount--
	return nil
}

// AddComponent attaches a new component under componentKey to the
// already-added entity entityKey, for peer.
func (s *Server) AddComponent(peer string, entityKey, componentKey replicate.GlobalKey, value manifest.Replicate, diffMaskBits int) error {
	conn, err := s.connOrErr(peer)
	if err != nil {
		return err
	}
	conn.mgr.AddComponent(entityKey, componentKey, value, diffMaskBits)
	return nil
}

// AddPawnEntity marks key as peer's client-predicted pawn entity.
func (s *Server) AddPawnEntity(peer string, key replicate.GlobalKey) error {
	conn, err := s.connOrErr(peer)
	if err != nil {
		return err
	}
	conn.mgr.AddPawnEntity(key)
	return nil
}

// RemovePawnEntity unmarks key as peer's pawn entity.
func (s *Server) RemovePawnEntity(peer string, key replicate.GlobalKey) error {
	conn, err := s.connOrErr(peer)
	if err != nil {
		return err
	}
	conn.mgr.RemovePawnEntity(key)
	return nil
}

// AddPawn marks key as peer's client-predicted pawn.
func (s *Server) AddPawn(peer string, key replicate.GlobalKey) error {
	conn, err := s.connOrErr(peer)
	if err != nil {
		return err
	}
	conn.mgr.AddPawn(key)
	return nil
}

// RemovePawn unmarks key as peer's pawn.
func (s *Server) RemovePawn(peer string, key replicate.GlobalKey) error {
	conn, err := s.connOrErr(peer)
	if err != nil {
		return err
	}
	conn.mgr.RemovePawn(key)
	return nil
}

// SendMessage enqueues payload on the given channel for peer's next
// outgoing packet.
func (s *Server) SendMessage(peer string, kind ChannelKind, payload []byte) error {
	conn, err := s.connOrErr(peer)
	if err != nil {
		return err
	}
	conn.channels.send(kind, payload)
	return nil
}

// Broadcast enqueues payload on the given channel for every connected peer.
func (s *Server) Broadcast(kind ChannelKind, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		conn.channels.send(kind, payload)
	}
}

// -------------------------------------------------------------------------
// server.Registry implementation, for the operator introspection API.
// -------------------------------------------------------------------------

var _ server.Registry = (*Server)(nil)

// Connections implements server.Registry.
func (s *Server) Connections() []server.ConnectionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]server.ConnectionSummary, 0, len(s.conns))
	for addr, conn := range s.conns {
		out = append(out, summarize(addr, conn))
	}
	return out
}

// Lookup implements server.Registry.
func (s *Server) Lookup(peerAddress string) (server.ConnectionSummary, bool) {
	addr, err := netip.ParseAddrPort(peerAddress)
	if err != nil {
		return server.ConnectionSummary{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.conns[addr]
	if !ok {
		return server.ConnectionSummary{}, false
	}
	return summarize(addr, conn), true
}

// Kick implements server.Registry.
func (s *Server) Kick(peerAddress string) error {
	addr, err := netip.ParseAddrPort(peerAddress)
	if err != nil {
		return fmt.Errorf("%s: %w", peerAddress, server.ErrConnectionNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conns[addr]; !ok {
		return fmt.Errorf("%s: %w", peerAddress, server.ErrConnectionNotFound)
	}
	delete(s.conns, addr)
	return nil
}

func summarize(addr netip.AddrPort, conn *serverConnection) server.ConnectionSummary {
	rttSample, _ := conn.rttEstimator.RTT()
	return server.ConnectionSummary{
		PeerAddress:  addr.String(),
		ConnectedAt:  conn.connectedAt,
		ServerTick:   conn.lastRecvTick,
		RTTMillis:    float64(rttSample.Milliseconds()),
		JitterMillis: float64(conn.rttEstimator.Jitter().Milliseconds()),
		ObjectCount:  conn.objectCount,
		EntityCount:  conn.entityCount,
	}
}
