package command_test

import (
	"testing"

	"github.com/cBournhonesque/naia-go/internal/command"
	"github.com/cBournhonesque/naia-go/internal/manifest"
	"github.com/cBournhonesque/naia-go/internal/replicate"
	"github.com/cBournhonesque/naia-go/internal/wire"
)

type moveCommand struct {
	DX, DY int32
}

func (moveCommand) ReplicateType() uint16 { return 1 }

func newTestManifest(t *testing.T) *manifest.Manifest {
	t.Helper()
	m, err := manifest.New(manifest.TypeDescriptor{
		NaiaID: 1,
		Write: func(value manifest.Replicate, w *wire.Writer) {
			c := value.(moveCommand) //nolint:forcetypeassert
			w.WriteUint(uint64(uint32(c.DX)), 32)
			w.WriteUint(uint64(uint32(c.DY)), 32)
		},
		Read: func(r *wire.Reader) (manifest.Replicate, error) {
			dx, err := r.ReadUint(32)
			if err != nil {
				return nil, err
			}
			dy, err := r.ReadUint(32)
			if err != nil {
				return nil, err
			}
			return moveCommand{DX: int32(dx), DY: int32(dy)}, nil //nolint:gosec
		},
	})
	if err != nil {
		t.Fatalf("manifest.New: %v", err)
	}
	return m
}

func TestBufferBundleCapsAtHistorySize(t *testing.T) {
	t.Parallel()

	buf := command.NewBuffer(3)
	const pawn = replicate.LocalKey(1)

	for tick := uint16(0); tick < 5; tick++ {
		buf.Record(pawn, tick, moveCommand{DX: int32(tick)})
	}

	bundle := buf.Bundle(pawn)
	if len(bundle) != 3 {
		t.Fatalf("Bundle len = %d, want 3", len(bundle))
	}
	for i, want := range []uint16{2, 3, 4} {
		if bundle[i].Tick != want {
			t.Fatalf("bundle[%d].Tick = %d, want %d", i, bundle[i].Tick, want)
		}
	}
}

func TestReplaySinceReturnsOnlyLaterTicks(t *testing.T) {
	t.Parallel()

	buf := command.NewBuffer(3)
	const pawn = replicate.LocalKey(1)
	buf.Record(pawn, 10, moveCommand{DX: 1})
	buf.Record(pawn, 11, moveCommand{DX: 2})
	buf.Record(pawn, 12, moveCommand{DX: 3})

	replay := command.Replay(buf, pawn, 10)
	if len(replay) != 2 {
		t.Fatalf("Replay len = %d, want 2", len(replay))
	}
	if replay[0].Tick != 11 || replay[1].Tick != 12 {
		t.Fatalf("replay ticks = [%d %d], want [11 12]", replay[0].Tick, replay[1].Tick)
	}
	for _, e := range replay {
		if e.Kind != command.EventReplayCommand {
			t.Fatalf("event kind = %v, want EventReplayCommand", e.Kind)
		}
	}
}

func TestBundleWireRoundTrip(t *testing.T) {
	t.Parallel()

	m := newTestManifest(t)
	buf := command.NewBuffer(3)
	const pawn = replicate.LocalKey(7)
	buf.Record(pawn, 1, moveCommand{DX: 1, DY: -1})
	buf.Record(pawn, 2, moveCommand{DX: 2, DY: -2})

	w := wire.NewWriter()
	if err := command.WriteBundle(w, m, pawn, buf.Bundle(pawn)); err != nil {
		t.Fatalf("WriteBundle: %v", err)
	}

	r := wire.NewReader(w.Bytes())
	gotPawn, entries, err := command.ReadBundle(r, m)
	if err != nil {
		t.Fatalf("ReadBundle: %v", err)
	}
	if gotPawn != pawn {
		t.Fatalf("pawn = %d, want %d", gotPawn, pawn)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[1].Command.(moveCommand) != (moveCommand{DX: 2, DY: -2}) { //nolint:forcetypeassert
		t.Fatalf("entries[1].Command = %+v", entries[1].Command)
	}
}

func TestInboxDropsAlreadyExecutedEntries(t *testing.T) {
	t.Parallel()

	inbox := command.NewInbox()
	const pawn = replicate.LocalKey(1)

	first := inbox.Accept(pawn, []command.Entry{
		{Tick: 1, Command: moveCommand{DX: 1}},
		{Tick: 2, Command: moveCommand{DX: 2}},
	})
	if len(first) != 2 {
		t.Fatalf("first accept len = %d, want 2", len(first))
	}

	// Next packet re-bundles tick 2 (redundancy) alongside a new tick 3.
	second := inbox.Accept(pawn, []command.Entry{
		{Tick: 2, Command: moveCommand{DX: 2}},
		{Tick: 3, Command: moveCommand{DX: 3}},
	})
	if len(second) != 1 || second[0].Tick != 3 {
		t.Fatalf("second accept = %v, want only tick 3", second)
	}
}

func TestInboxDedupesWithinOneBundle(t *testing.T) {
	t.Parallel()

	inbox := command.NewInbox()
	const pawn = replicate.LocalKey(1)

	// A dropped-and-recovered earlier packet can deliver an
	// out-of-order bundle whose own entries overlap in tick.
	events := inbox.Accept(pawn, []command.Entry{
		{Tick: 5, Command: moveCommand{DX: 5}},
		{Tick: 4, Command: moveCommand{DX: 4}},
		{Tick: 5, Command: moveCommand{DX: 5}},
	})
	if len(events) != 2 {
		t.Fatalf("events len = %d, want 2 (ticks 4,5 deduped)", len(events))
	}
	if events[0].Tick != 4 || events[1].Tick != 5 {
		t.Fatalf("events = %v, want ticks [4 5]", events)
	}
}

func TestInboxForgetResetsWatermark(t *testing.T) {
	t.Parallel()

	inbox := command.NewInbox()
	const pawn = replicate.LocalKey(1)
	inbox.Accept(pawn, []command.Entry{{Tick: 9, Command: moveCommand{DX: 1}}})
	inbox.Forget(pawn)

	events := inbox.Accept(pawn, []command.Entry{{Tick: 9, Command: moveCommand{DX: 1}}})
	if len(events) != 1 {
		t.Fatalf("after Forget, tick 9 should be accepted again, got %v", events)
	}
}
