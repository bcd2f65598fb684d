package naia

import (
	"testing"
	"time"

	"github.com/cBournhonesque/naia-go/internal/command"
	"github.com/cBournhonesque/naia-go/internal/demo"
	"github.com/cBournhonesque/naia-go/internal/proto"
	"github.com/cBournhonesque/naia-go/internal/replicate"
	"github.com/cBournhonesque/naia-go/internal/wire"
)

func TestWriteReadChannelSectionsRoundTrip(t *testing.T) {
	t.Parallel()

	send := newChannelSet()
	send.send(ChannelUnorderedReliable, []byte("hello"))
	send.send(ChannelOrderedReliable, []byte("world"))

	w := wire.NewWriter()
	written, err := writeChannelSections(w, send, time.Now(), 20*time.Millisecond)
	if err != nil {
		t.Fatalf("writeChannelSections: %v", err)
	}
	if len(written[ChannelUnorderedReliable]) != 1 || len(written[ChannelOrderedReliable]) != 1 {
		t.Fatalf("expected one written id per populated channel, got %v", written)
	}

	recv := newChannelSet()
	r := wire.NewReader(w.Bytes())
	if err := readChannelSections(r, recv); err != nil {
		t.Fatalf("readChannelSections: %v", err)
	}

	events := drainChannelMessages(recv)
	if len(events) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(events))
	}

	var gotUnordered, gotOrdered bool
	for _, ev := range events {
		if ev.Kind != EventMessage {
			t.Fatalf("expected EventMessage, got %v", ev.Kind)
		}
		switch ev.Channel {
		case ChannelUnorderedReliable:
			if string(ev.Message) != "hello" {
				t.Errorf("unordered reliable payload = %q, want %q", ev.Message, "hello")
			}
			gotUnordered = true
		case ChannelOrderedReliable:
			if string(ev.Message) != "world" {
				t.Errorf("ordered reliable payload = %q, want %q", ev.Message, "world")
			}
			gotOrdered = true
		default:
			t.Errorf("unexpected channel %v", ev.Channel)
		}
	}
	if !gotUnordered || !gotOrdered {
		t.Fatalf("missing expected channel delivery: unordered=%v ordered=%v", gotUnordered, gotOrdered)
	}
}

func TestWriteReadChannelSectionsEmpty(t *testing.T) {
	t.Parallel()

	w := wire.NewWriter()
	written, err := writeChannelSections(w, newChannelSet(), time.Now(), 0)
	if err != nil {
		t.Fatalf("writeChannelSections: %v", err)
	}
	if len(written) != 0 {
		t.Fatalf("expected no written ids, got %v", written)
	}

	recv := newChannelSet()
	if err := readChannelSections(wire.NewReader(w.Bytes()), recv); err != nil {
		t.Fatalf("readChannelSections: %v", err)
	}
	if events := drainChannelMessages(recv); len(events) != 0 {
		t.Fatalf("expected no events, got %v", events)
	}
}

func TestChannelAckNotifierRoundTrip(t *testing.T) {
	t.Parallel()

	cs := newChannelSet()
	cs.send(ChannelUnorderedReliable, []byte("retry me"))

	w := wire.NewWriter()
	ids, err := writeChannelSections(w, cs, time.Now(), 0)
	if err != nil {
		t.Fatalf("writeChannelSections: %v", err)
	}

	n := newChannelAckNotifier(cs)
	n.recordSent(7, ids)
	n.NotifyPacketDelivered(7)

	if _, pending := n.pending[7]; pending {
		t.Fatalf("expected packet 7 to be cleared from pending after delivery")
	}

	// A second outstanding packet that is instead dropped must also
	// clear from pending without panicking, and without affecting
	// channel retransmit state for the already-delivered packet.
	cs.send(ChannelUnorderedReliable, []byte("second"))
	w2 := wire.NewWriter()
	ids2, err := writeChannelSections(w2, cs, time.Now(), 0)
	if err != nil {
		t.Fatalf("writeChannelSections: %v", err)
	}
	n.recordSent(8, ids2)
	n.NotifyPacketDropped(8)
	if _, pending := n.pending[8]; pending {
		t.Fatalf("expected packet 8 to be cleared from pending after drop")
	}
}

func TestWriteReadCommandSectionAbsent(t *testing.T) {
	t.Parallel()

	m, err := demo.Manifest()
	if err != nil {
		t.Fatalf("demo.Manifest: %v", err)
	}

	w := wire.NewWriter()
	if err := writeCommandSection(w, m, 0, nil); err != nil {
		t.Fatalf("writeCommandSection: %v", err)
	}

	pawnKey, entries, present, err := readCommandSection(wire.NewReader(w.Bytes()), m)
	if err != nil {
		t.Fatalf("readCommandSection: %v", err)
	}
	if present {
		t.Fatalf("expected no command section present")
	}
	if pawnKey != 0 || entries != nil {
		t.Fatalf("expected zero-value results for absent section, got %v %v", pawnKey, entries)
	}
}

func TestWriteReadCommandSectionRoundTrip(t *testing.T) {
	t.Parallel()

	m, err := demo.Manifest()
	if err != nil {
		t.Fatalf("demo.Manifest: %v", err)
	}

	const pawnKey replicate.LocalKey = 3
	entries := []command.Entry{
		{Tick: 10, Command: demo.MoveCommand{DX: 1, DY: 0}},
		{Tick: 11, Command: demo.MoveCommand{DX: 0, DY: 1}},
	}

	w := wire.NewWriter()
	if err := writeCommandSection(w, m, pawnKey, entries); err != nil {
		t.Fatalf("writeCommandSection: %v", err)
	}

	gotKey, gotEntries, present, err := readCommandSection(wire.NewReader(w.Bytes()), m)
	if err != nil {
		t.Fatalf("readCommandSection: %v", err)
	}
	if !present {
		t.Fatalf("expected command section present")
	}
	if gotKey != pawnKey {
		t.Fatalf("pawn key = %d, want %d", gotKey, pawnKey)
	}
	if len(gotEntries) != len(entries) {
		t.Fatalf("got %d entries, want %d", len(gotEntries), len(entries))
	}
	for i, e := range gotEntries {
		want := entries[i].Command.(demo.MoveCommand)
		got, ok := e.Command.(demo.MoveCommand)
		if !ok {
			t.Fatalf("entry %d: unexpected command type %T", i, e.Command)
		}
		if e.Tick != entries[i].Tick || got != want {
			t.Errorf("entry %d = %+v, want tick %d command %+v", i, e, entries[i].Tick, want)
		}
	}
}

func TestMarshalUnmarshalDataPacketRoundTrip(t *testing.T) {
	t.Parallel()

	body := wire.NewWriter()
	body.WriteBool(true)
	body.WriteUint(42, 8)

	h := proto.Header{Type: proto.Data, HostTick: 100, LastRecvTick: 99, LocalPacketIndex: 100}
	buf := marshalDataPacket(h, body)

	gotH, r, err := unmarshalDataPacket(buf)
	if err != nil {
		t.Fatalf("unmarshalDataPacket: %v", err)
	}
	if gotH != h {
		t.Fatalf("header = %+v, want %+v", gotH, h)
	}

	present, err := r.ReadBool()
	if err != nil || !present {
		t.Fatalf("ReadBool = %v, %v, want true, nil", present, err)
	}
	val, err := r.ReadUint(8)
	if err != nil || val != 42 {
		t.Fatalf("ReadUint = %v, %v, want 42, nil", val, err)
	}
}
