// Package command implements the client's outgoing command pipeline and
// replay buffer, and the server's matching inbox: commands are tagged
// with the client tick at issue and sent reliably, but redundantly — the
// client keeps re-sending its last N commands per pawn on every
// outgoing packet so the server can tolerate loss of the packet a
// command first went out on. The same retained window doubles as the
// client's replay buffer: when an authoritative pawn update lands and
// supersedes local prediction, every retained command issued after the
// update's tick is re-applied on top of it.
package command

import (
	"github.com/cBournhonesque/naia-go/internal/manifest"
	"github.com/cBournhonesque/naia-go/internal/replicate"
	"github.com/cBournhonesque/naia-go/internal/seqnum"
)

// DefaultHistorySize is N from the bundling scheme: each outgoing
// packet carries the most recent 3 commands per pawn, not just the
// newest one.
const DefaultHistorySize = 3

// Entry is one issued command, tagged with the client tick it was
// issued at.
type Entry struct {
	Tick    uint16
	Command manifest.Replicate
}

// Buffer retains, per pawn, the most recently issued commands — the
// client-side half of the pipeline. It is written to once per local
// command issue and read from twice: once to build the redundant
// outgoing bundle, once to find what must be replayed after a
// correction.
type Buffer struct {
	capacity int
	entries  map[replicate.LocalKey][]Entry
}

// NewBuffer returns an empty Buffer retaining up to capacity commands
// per pawn.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &Buffer{capacity: capacity, entries: make(map[replicate.LocalKey][]Entry)}
}

// Record appends a newly issued command for pawnKey, dropping the
// oldest retained entry once capacity is exceeded.
func (b *Buffer) Record(pawnKey replicate.LocalKey, tick uint16, cmd manifest.Replicate) {
	entries := append(b.entries[pawnKey], Entry{Tick: tick, Command: cmd})
	if len(entries) > b.capacity {
		entries = entries[len(entries)-b.capacity:]
	}
	b.entries[pawnKey] = entries
}

// Bundle returns every command currently retained for pawnKey, oldest
// first, for inclusion in the next outgoing packet. Sending the whole
// window on every packet — not just the newest entry — is what lets the
// server recover a command whose first packet was dropped.
func (b *Buffer) Bundle(pawnKey replicate.LocalKey) []Entry {
	entries := b.entries[pawnKey]
	if len(entries) == 0 {
		return nil
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// ReplaySince returns every retained command for pawnKey issued after
// ackedTick, oldest first: the commands a freshly landed authoritative
// pawn update has not yet accounted for and that must be re-applied on
// top of it to preserve local prediction.
func (b *Buffer) ReplaySince(pawnKey replicate.LocalKey, ackedTick uint16) []Entry {
	var replay []Entry
	for _, e := range b.entries[pawnKey] {
		if seqnum.After(e.Tick, ackedTick) {
			replay = append(replay, e)
		}
	}
	return replay
}

// Forget drops all retained history for pawnKey, called once the pawn
// is unassigned or removed.
func (b *Buffer) Forget(pawnKey replicate.LocalKey) {
	delete(b.entries, pawnKey)
}
