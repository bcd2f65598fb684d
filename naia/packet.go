package naia

import (
	"fmt"
	"time"

	"github.com/cBournhonesque/naia-go/internal/ack"
	"github.com/cBournhonesque/naia-go/internal/command"
	"github.com/cBournhonesque/naia-go/internal/manifest"
	"github.com/cBournhonesque/naia-go/internal/proto"
	"github.com/cBournhonesque/naia-go/internal/replicate"
	"github.com/cBournhonesque/naia-go/internal/wire"
)

// ackWindowSize bounds how far behind the peer's latest observed index
// an in-flight packet may fall before the ack tracker gives up on it
// and declares it dropped.
const ackWindowSize = 256

// writeActionsSection determines, via a dry run, exactly how many
// queued actions fit under replicate.MTUSize for this packet, restores
// them to the manager's queue, then writes the one-byte count prefix
// the real format uses ahead of the action bytes (see
// PacketBudget.Count's doc comment) followed by the actions themselves
// written straight into w — a second, real pass, since WriteAction's
// committed bytes cannot be measured and then spliced in without
// re-deriving the manager's own mask-snapshot bookkeeping a second
// time.
func writeActionsSection(w *wire.Writer, mgr *replicate.Manager, m *manifest.Manifest, packetIndex uint16) error {
	var accepted []replicate.Action

	dryBudget := replicate.NewPacketBudget()
	dryW := wire.NewWriter()
	for {
		action, ok := mgr.PopOutgoingAction(packetIndex)
		if !ok {
			break
		}
		wrote, err := replicate.WriteAction(dryBudget, dryW, m, action)
		if err != nil {
			mgr.UnpopOutgoingAction(packetIndex, action)
			return fmt.Errorf("naia: measure outgoing action: %w", err)
		}
		if !wrote {
			mgr.UnpopOutgoingAction(packetIndex, action)
			break
		}
		accepted = append(accepted, action)
	}

	// Restore the queue to its original order before the real pass:
	// Unpop always re-inserts at the front, so unpopping in reverse of
	// pop order reproduces the original sequence.
	for i := len(accepted) - 1; i >= 0; i-- {
		mgr.UnpopOutgoingAction(packetIndex, accepted[i])
	}

	w.WriteUint(uint64(len(accepted)), 8)

	budget := replicate.NewPacketBudget()
	for range accepted {
		action, ok := mgr.PopOutgoingAction(packetIndex)
		if !ok {
			return fmt.Errorf("naia: outgoing action queue shrank between passes")
		}
		wrote, err := replicate.WriteAction(budget, w, m, action)
		if err != nil {
			return fmt.Errorf("naia: write outgoing action: %w", err)
		}
		if !wrote {
			return fmt.Errorf("naia: outgoing action no longer fit on second pass")
		}
	}
	return nil
}

// readActionsSection is writeActionsSection's counterpart.
func readActionsSection(r *wire.Reader, app *replicate.Applier, m *manifest.Manifest) ([]replicate.Event, error) {
	count, err := r.ReadUint(8)
	if err != nil {
		return nil, fmt.Errorf("naia: read action count: %w", err)
	}

	var events []replicate.Event
	for i := uint64(0); i < count; i++ {
		evs, err := app.ReadAction(r, m)
		if err != nil {
			return nil, fmt.Errorf("naia: read action %d/%d: %w", i+1, count, err)
		}
		events = append(events, evs...)
	}
	return events, nil
}

// writeChannelSections writes all five channel sections, in
// channelOrder, each self-delimited by its own message-count prefix.
// It returns the wire IDs written per channel, so the caller can record
// which IDs are riding this outgoing packet for later ack resolution.
func writeChannelSections(w *wire.Writer, cs *channelSet, now time.Time, rtt time.Duration) (map[ChannelKind][]uint16, error) {
	written := make(map[ChannelKind][]uint16)
	for _, kind := range channelOrder {
		ch := cs.get(kind)
		msgs := ch.CollectMessages(now, rtt)
		ids, err := ch.WriteMessages(w, msgs)
		if err != nil {
			return nil, fmt.Errorf("naia: write %s channel: %w", kind, err)
		}
		if len(ids) > 0 {
			written[kind] = ids
		}
	}
	return written, nil
}

// readChannelSections reads all five channel sections, in
// channelOrder, draining each into the application-visible inbox.
func readChannelSections(r *wire.Reader, cs *channelSet) error {
	for _, kind := range channelOrder {
		if err := cs.get(kind).ReadMessages(r); err != nil {
			return fmt.Errorf("naia: read %s channel: %w", kind, err)
		}
	}
	return nil
}

// drainChannelMessages collects every message newly admitted across all
// five channels as EventMessage entries.
func drainChannelMessages(cs *channelSet) []Event {
	var events []Event
	for _, kind := range channelOrder {
		for _, payload := range cs.get(kind).ReceiveMessages() {
			events = append(events, Event{Kind: EventMessage, Channel: kind, Message: payload})
		}
	}
	return events
}

// channelAckNotifier adapts a channelSet's per-packet sent-message IDs
// into the ack.Notifier the ack tracker drives: on delivery it tells
// each channel which of its messages were confirmed, so reliable
// disciplines stop retransmitting them; on drop it does nothing,
// leaving the message in its channel's retransmit queue.
type channelAckNotifier struct {
	cs      *channelSet
	pending map[uint16]map[ChannelKind][]uint16
}

func newChannelAckNotifier(cs *channelSet) *channelAckNotifier {
	return &channelAckNotifier{cs: cs, pending: make(map[uint16]map[ChannelKind][]uint16)}
}

// recordSent associates the message IDs written into packetIndex with
// their channels, so a later delivery/drop resolution can be dispatched
// back to the right channel.
func (n *channelAckNotifier) recordSent(packetIndex uint16, ids map[ChannelKind][]uint16) {
	if len(ids) == 0 {
		return
	}
	n.pending[packetIndex] = ids
}

func (n *channelAckNotifier) NotifyPacketDelivered(index uint16) {
	for kind, ids := range n.pending[index] {
		ch := n.cs.get(kind)
		for _, id := range ids {
			ch.NotifyMessageDelivered(id)
		}
	}
	delete(n.pending, index)
}

func (n *channelAckNotifier) NotifyPacketDropped(index uint16) {
	delete(n.pending, index)
}

var _ ack.Notifier = (*channelAckNotifier)(nil)

// fanoutNotifier dispatches one ack.Tracker resolution to every
// notifier in notifiers, in order. A connection's outgoing packet
// carries both channel messages and (server-side) replication actions,
// and both need to hear the same delivered/dropped resolution for the
// same packet index.
type fanoutNotifier struct {
	notifiers []ack.Notifier
}

func newFanoutNotifier(notifiers ...ack.Notifier) *fanoutNotifier {
	return &fanoutNotifier{notifiers: notifiers}
}

func (f *fanoutNotifier) NotifyPacketDelivered(index uint16) {
	for _, n := range f.notifiers {
		n.NotifyPacketDelivered(index)
	}
}

func (f *fanoutNotifier) NotifyPacketDropped(index uint16) {
	for _, n := range f.notifiers {
		n.NotifyPacketDropped(index)
	}
}

var _ ack.Notifier = (*fanoutNotifier)(nil)

// writeCommandSection writes an optional command bundle section: a
// presence bit, and if set, pawnKey's retained command history.
func writeCommandSection(w *wire.Writer, m *manifest.Manifest, pawnKey replicate.LocalKey, entries []command.Entry) error {
	if len(entries) == 0 {
		w.WriteBool(false)
		return nil
	}
	w.WriteBool(true)
	return command.WriteBundle(w, m, pawnKey, entries)
}

// readCommandSection is writeCommandSection's counterpart.
func readCommandSection(r *wire.Reader, m *manifest.Manifest) (replicate.LocalKey, []command.Entry, bool, error) {
	present, err := r.ReadBool()
	if err != nil {
		return 0, nil, false, fmt.Errorf("naia: read command section presence: %w", err)
	}
	if !present {
		return 0, nil, false, nil
	}
	pawnKey, entries, err := command.ReadBundle(r, m)
	if err != nil {
		return 0, nil, false, err
	}
	return pawnKey, entries, true, nil
}

// marshalDataPacket builds a complete Data packet: the fixed header
// followed by body, a continuous bitstream that body already holds in
// whole bytes (every section above only ever calls wire.Writer methods,
// never an independent sub-writer spliced in afterward).
func marshalDataPacket(h proto.Header, body *wire.Writer) []byte {
	buf := make([]byte, proto.HeaderSize+body.ByteLength())
	_ = h.Marshal(buf[:proto.HeaderSize])
	copy(buf[proto.HeaderSize:], body.Bytes())
	return buf
}

// unmarshalDataPacket splits a received Data packet into its header and
// a Reader positioned at the start of the body.
func unmarshalDataPacket(buf []byte) (proto.Header, *wire.Reader, error) {
	h, n, err := proto.UnmarshalHeader(buf)
	if err != nil {
		return proto.Header{}, nil, err
	}
	return h, wire.NewReader(buf[n:]), nil
}
