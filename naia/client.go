package naia

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/cBournhonesque/naia-go/internal/ack"
	"github.com/cBournhonesque/naia-go/internal/command"
	"github.com/cBournhonesque/naia-go/internal/config"
	"github.com/cBournhonesque/naia-go/internal/handshake"
	"github.com/cBournhonesque/naia-go/internal/manifest"
	"github.com/cBournhonesque/naia-go/internal/proto"
	"github.com/cBournhonesque/naia-go/internal/replicate"
	"github.com/cBournhonesque/naia-go/internal/rtt"
	"github.com/cBournhonesque/naia-go/internal/ticker"
	"github.com/cBournhonesque/naia-go/internal/transport"
	"github.com/cBournhonesque/naia-go/internal/wire"
)

// clientPhase tracks where a Client is in its connection lifecycle.
type clientPhase uint8

const (
	phaseIdle clientPhase = iota
	phaseHandshaking
	phaseConnected
	phaseDisconnected
)

// Client is one connection to a naia server. All methods except
// Receive are non-blocking and merely queue state for the next
// Receive/flush pass; Client itself performs no I/O on a background
// goroutine beyond the Socket's own receive loop.
type Client struct {
	cfg     config.ClientConfig
	m       *manifest.Manifest
	logger  *slog.Logger
	sock    transport.Socket
	srvAddr netip.AddrPort

	phase clientPhase
	hs    *handshake.Client

	tick           *ticker.Ticker
	rttEstimator   *rtt.Estimator
	ackTracker     *ack.Tracker
	notifier       *channelAckNotifier
	channels       *channelSet
	applier        *replicate.Applier
	cmdBuf         *command.Buffer
	lastRecvTick   uint16
	lastPingNonce  uint16
	lastHSSendAt   time.Time
	lastPingSendAt time.Time
	lastSendAt     time.Time
	lastRecvAt     time.Time

	hasPawn bool
	pawnKey replicate.LocalKey
}

// New constructs a Client for cfg. m must register every
// command/component/message type this connection will exchange.
func New(cfg config.ClientConfig, m *manifest.Manifest, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("naia: invalid client config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:          cfg,
		m:            m,
		logger:       logger.With(slog.String("component", "naia.client")),
		tick:         ticker.New(cfg.TickInterval),
		rttEstimator: rtt.NewEstimator(),
		ackTracker:   ack.NewTracker(ackWindowSize),
		channels:     newChannelSet(),
		applier:      replicate.NewApplier(),
		cmdBuf:       command.NewBuffer(cfg.CommandHistorySize),
		hs:           handshake.NewClient(),
	}, nil
}

// Connect resolves cfg.ServerAddress, binds a local UDP socket and
// begins the handshake. It does not block for the handshake to
// complete; poll Receive for EventConnected. The handshake is resent
// until it succeeds; no rejection event is emitted.
func (c *Client) Connect() error {
	addr, err := net.ResolveUDPAddr("udp", c.cfg.ServerAddress)
	if err != nil {
		return fmt.Errorf("naia: resolve server address %q: %w", c.cfg.ServerAddress, err)
	}
	c.srvAddr = addr.AddrPort()

	local, err := netip.ParseAddrPort("0.0.0.0:0")
	if err != nil {
		return fmt.Errorf("naia: parse wildcard local address: %w", err)
	}
	sock, err := transport.NewUDPSocket(local, c.logger)
	if err != nil {
		return fmt.Errorf("naia: bind client socket: %w", err)
	}
	c.sock = sock
	c.phase = phaseHandshaking
	return nil
}

// SendCommand enqueues cmd, tagged at tick, for pawnKey's next outgoing
// command bundle. The command is recorded at once, but bundles are only
// sent while the client has a pawn assigned.
func (c *Client) SendCommand(pawnKey replicate.LocalKey, tick uint16, cmd manifest.Replicate) {
	c.cmdBuf.Record(pawnKey, tick, cmd)
}

// SendMessage enqueues payload on the given channel for the next
// outgoing packet.
func (c *Client) SendMessage(kind ChannelKind, payload []byte) {
	c.channels.send(kind, payload)
}

// Tick returns the client's current local tick estimate.
func (c *Client) Tick() uint16 {
	return c.tick.Tick()
}

// RTT returns the current smoothed round-trip estimate and whether any
// sample has been observed yet.
func (c *Client) RTT() (time.Duration, bool) {
	return c.rttEstimator.RTT()
}

// Close releases the underlying socket.
func (c *Client) Close() error {
	if c.sock == nil {
		return nil
	}
	return c.sock.Close()
}

// Receive drains pending datagrams, advances the tick and handshake
// timers, flushes whatever outgoing packets are due, and returns every event
// produced. It never blocks.
func (c *Client) Receive(now time.Time) []Event {
	if c.phase == phaseIdle || c.sock == nil {
		return nil
	}

	var events []Event
	c.tick.Advance(now)

	for i := 0; i < c.cfg.MaxEventsPerReceive; i++ {
		payload, _, ok, err := c.sock.TryRecv()
		if err != nil {
			c.logger.Warn("socket receive error", slog.String("error", err.Error()))
			break
		}
		if !ok {
			break
		}
		evs := c.handleDatagram(payload, now)
		events = append(events, evs...)
	}

	if c.phase == phaseConnected && !c.lastRecvAt.IsZero() && now.Sub(c.lastRecvAt) > c.cfg.DisconnectionTimeout {
		c.phase = phaseDisconnected
		events = append(events, Event{Kind: EventDisconnected, Err: errors.New("naia: disconnection timeout")})
		return events
	}

	c.flush(now)
	return events
}

func (c *Client) handleDatagram(buf []byte, now time.Time) []Event {
	if len(buf) == 0 {
		return nil
	}
	c.lastRecvAt = now

	switch proto.PacketType(buf[0]) {
	case proto.ServerChallengeResponse:
		return c.handleChallengeResponse(buf, now)
	case proto.ServerConnectResponse:
		return c.handleConnectResponse(buf, now)
	case proto.Data:
		return c.handleData(buf, now)
	case proto.Pong:
		c.handlePong(buf, now)
		return nil
	case proto.Disconnect:
		c.phase = phaseDisconnected
		return []Event{{Kind: EventDisconnected}}
	default:
		return nil
	}
}

func (c *Client) handleChallengeResponse(buf []byte, now time.Time) []Event {
	ts, digest, serverTick, err := decodeChallengeResponse(buf)
	if err != nil {
		c.logger.Debug("malformed challenge response", slog.String("error", err.Error()))
		return nil
	}
	res := c.hs.HandleChallengeResponse(ts, digest)
	return c.runHandshakeActions(res, serverTick, now)
}

func (c *Client) handleConnectResponse(buf []byte, now time.Time) []Event {
	_, err := decodeConnectResponse(buf)
	if err != nil {
		return nil
	}
	res := c.hs.HandleConnectResponse()
	return c.runHandshakeActions(res, 0, now)
}

func (c *Client) runHandshakeActions(res handshake.Result, serverTick uint16, now time.Time) []Event {
	var events []Event
	for _, action := range res.Actions {
		switch action {
		case handshake.ActionSeedTick:
			c.tick.Seed(serverTick, now)
		case handshake.ActionSendConnectRequest:
			c.sendConnectRequest(now)
		case handshake.ActionNotifyConnected:
			c.phase = phaseConnected
			events = append(events, Event{Kind: EventConnected})
		}
	}
	return events
}

func (c *Client) handleData(buf []byte, now time.Time) []Event {
	if c.phase != phaseConnected {
		return nil
	}
	h, r, err := unmarshalDataPacket(buf)
	if err != nil {
		c.logger.Debug("malformed data packet", slog.String("error", err.Error()))
		return nil
	}

	c.lastRecvTick = h.HostTick
	c.ackTracker.Observe(h.LastRecvTick, newFanoutNotifier(c.notifierOrNoop()))
	c.tick.ApplyDrift(h.HostTick, now)

	repEvents, err := readActionsSection(r, c.applier, c.m)
	if err != nil {
		c.logger.Warn("read actions section", slog.String("error", err.Error()))
		return nil
	}
	if err := readChannelSections(r, c.channels); err != nil {
		c.logger.Warn("read channel sections", slog.String("error", err.Error()))
		return nil
	}

	events := make([]Event, 0, len(repEvents))
	for _, re := range repEvents {
		events = append(events, c.replicationEventToEvents(re)...)
	}
	events = append(events, drainChannelMessages(c.channels)...)
	return events
}

// replicationEventToEvents converts one decoded replicate.Event into
// zero or more public Events. A pawn reset additionally triggers replay
// of every locally-buffered command issued after the acknowledged tick,
// since the authoritative value just superseded local prediction.
func (c *Client) replicationEventToEvents(re replicate.Event) []Event {
	out := []Event{{Kind: EventReplication, Replication: re}}
	if re.Kind == replicate.EventAssignPawn {
		c.hasPawn = true
		c.pawnKey = re.ObjectKey
	}
	if re.Kind == replicate.EventUnassignPawn {
		c.cmdBuf.Forget(c.pawnKey)
		c.hasPawn = false
	}
	if re.Kind == replicate.EventResetPawn && c.hasPawn {
		for _, ce := range command.Replay(c.cmdBuf, c.pawnKey, c.lastRecvTick) {
			out = append(out, Event{Kind: EventCommand, Command: ce})
		}
	}
	return out
}

func (c *Client) handlePong(buf []byte, now time.Time) {
	_, nonce, err := decodePingPong(buf)
	if err != nil {
		return
	}
	c.rttEstimator.RecordPongReceived(nonce, now)
}

func (c *Client) notifierOrNoop() *channelAckNotifier {
	if c.notifier == nil {
		c.notifier = newChannelAckNotifier(c.channels)
	}
	return c.notifier
}

func (c *Client) sendConnectRequest(now time.Time) {
	payload, err := c.hs.ConnectRequestPayload()
	if err != nil {
		c.logger.Warn("build connect request", slog.String("error", err.Error()))
		return
	}
	c.lastHSSendAt = now
	_ = c.sock.Send(c.srvAddr, encodeConnectRequest(payload))
}

// flush sends the outgoing packets the client's current phase and timers
// call for: while handshaking, at most one handshake packet; once
// connected, a Data packet and a Ping may both go out in one call.
func (c *Client) flush(now time.Time) {
	switch c.phase {
	case phaseHandshaking:
		if c.lastHSSendAt.IsZero() || now.Sub(c.lastHSSendAt) >= c.cfg.SendHandshakeInterval {
			c.resendHandshake(now)
		}
	case phaseConnected:
		if c.lastSendAt.IsZero() || now.Sub(c.lastSendAt) >= c.cfg.TickInterval {
			c.sendData(now)
		}
		if c.lastPingSendAt.IsZero() || now.Sub(c.lastPingSendAt) >= c.cfg.PingInterval {
			c.sendPing(now)
		}
	}
}

// resendHandshake drives the client FSM's retry-interval tick and sends
// whichever packet the current state calls for.
func (c *Client) resendHandshake(now time.Time) {
	var fresh [handshake.TimestampSize]byte
	if c.hs.State() == handshake.AwaitingChallengeResponse {
		ts, err := handshake.NewTimestamp()
		if err != nil {
			c.logger.Warn("generate handshake timestamp", slog.String("error", err.Error()))
			return
		}
		fresh = ts
	}

	c.lastHSSendAt = now
	res := c.hs.Tick(fresh)
	for _, action := range res.Actions {
		switch action {
		case handshake.ActionSendChallengeRequest:
			if err := c.sock.Send(c.srvAddr, encodeChallengeRequest(c.hs.Timestamp())); err != nil {
				c.logger.Warn("send challenge request", slog.String("error", err.Error()))
			}
		case handshake.ActionSendConnectRequest:
			c.sendConnectRequest(now)
		}
	}
}

func (c *Client) sendData(now time.Time) {
	rttSample, _ := c.rttEstimator.RTT()

	body := wire.NewWriter()
	if c.hasPawn {
		if err := writeCommandSection(body, c.m, c.pawnKey, c.cmdBuf.Bundle(c.pawnKey)); err != nil {
			c.logger.Warn("write command section", slog.String("error", err.Error()))
			return
		}
	} else {
		body.WriteBool(false)
	}

	writtenIDs, err := writeChannelSections(body, c.channels, now, rttSample)
	if err != nil {
		c.logger.Warn("write channel sections", slog.String("error", err.Error()))
		return
	}

	// HostTick and LocalPacketIndex are always the same counter here: one
	// Data packet goes out per tick, so the tick value doubles as this
	// packet's index for the ack tracker, and LastRecvTick doubles as
	// the peer's "last observed index" — see ack.Tracker's doc comment.
	idx := c.tick.Tick()
	h := proto.Header{
		Type:             proto.Data,
		HostTick:         idx,
		LastRecvTick:     c.lastRecvTick,
		LocalPacketIndex: idx,
	}
	c.ackTracker.RecordSent(idx)
	c.notifierOrNoop().recordSent(idx, writtenIDs)

	c.lastSendAt = now
	if err := c.sock.Send(c.srvAddr, marshalDataPacket(h, body)); err != nil {
		c.logger.Warn("send data packet", slog.String("error", err.Error()))
	}
}

func (c *Client) sendPing(now time.Time) {
	c.lastPingNonce++
	nonce := c.lastPingNonce
	c.rttEstimator.RecordPingSent(nonce, now)
	c.lastPingSendAt = now

	h := proto.Header{Type: proto.Ping, HostTick: c.tick.Tick(), LastRecvTick: c.lastRecvTick}
	if err := c.sock.Send(c.srvAddr, encodePing(h, nonce)); err != nil {
		c.logger.Warn("send ping", slog.String("error", err.Error()))
	}
}
