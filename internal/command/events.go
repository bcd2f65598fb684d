package command

import (
	"github.com/cBournhonesque/naia-go/internal/manifest"
	"github.com/cBournhonesque/naia-go/internal/replicate"
)

// EventKind distinguishes the two command-pipeline events surfaced to
// the application.
type EventKind uint8

const (
	// EventNewCommand fires once per command the server's inbox newly
	// accepts, for execution against the pawn's authoritative state.
	// The client emits no event when it issues a command.
	EventNewCommand EventKind = iota + 1
	// EventReplayCommand fires once per retained command re-applied
	// after an authoritative pawn update superseded local prediction.
	EventReplayCommand
)

// Event is one command the pipeline wants the application to execute
// (or re-execute) against pawnKey's local state.
type Event struct {
	Kind    EventKind
	PawnKey replicate.LocalKey
	Tick    uint16
	Command manifest.Replicate
}

// Replay returns the ReplayCommand events for pawnKey's commands issued
// after ackedTick, oldest first — the client-side reaction to a pawn's
// EventResetPawn: every entry still retained beyond the tick the
// authoritative update accounts for must be re-applied on top of it to
// keep local prediction converged with what the server will eventually
// confirm.
func Replay(buf *Buffer, pawnKey replicate.LocalKey, ackedTick uint16) []Event {
	entries := buf.ReplaySince(pawnKey, ackedTick)
	events := make([]Event, len(entries))
	for i, e := range entries {
		events[i] = Event{Kind: EventReplayCommand, PawnKey: pawnKey, Tick: e.Tick, Command: e.Command}
	}
	return events
}

// NewCommandEvents wraps freshly-accepted inbox entries (see
// Inbox.Accept) as EventNewCommand events for the application to
// execute in order.
func NewCommandEvents(pawnKey replicate.LocalKey, entries []Entry) []Event {
	events := make([]Event, len(entries))
	for i, e := range entries {
		events[i] = Event{Kind: EventNewCommand, PawnKey: pawnKey, Tick: e.Tick, Command: e.Command}
	}
	return events
}
