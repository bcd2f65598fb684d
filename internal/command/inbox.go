package command

import (
	"sort"

	"github.com/cBournhonesque/naia-go/internal/replicate"
	"github.com/cBournhonesque/naia-go/internal/seqnum"
)

// Inbox is the server-side receiving half of the command pipeline: it
// folds one connection's redundantly-bundled, per-pawn command stream
// into an execution order, discarding entries it has already executed
// and ticks repeated within the same bundle.
type Inbox struct {
	lastExecuted map[replicate.LocalKey]uint16
	known        map[replicate.LocalKey]bool
}

// NewInbox returns an empty Inbox for one new connection.
func NewInbox() *Inbox {
	return &Inbox{
		lastExecuted: make(map[replicate.LocalKey]uint16),
		known:        make(map[replicate.LocalKey]bool),
	}
}

// Accept folds a freshly-decoded bundle for pawnKey into execution
// order, returning only the entries not yet executed, oldest tick
// first, and advancing the inbox's watermark for pawnKey to the highest
// tick returned. A bundle may repeat entries already executed in an
// earlier packet; those are silently dropped here rather than replayed
// a second time on the server.
func (ib *Inbox) Accept(pawnKey replicate.LocalKey, bundle []Entry) []Entry {
	last, seenBefore := ib.lastExecuted[pawnKey]

	fresh := make([]Entry, 0, len(bundle))
	for _, e := range bundle {
		if seenBefore && !seqnum.After(e.Tick, last) {
			continue
		}
		fresh = append(fresh, e)
	}
	if len(fresh) == 0 {
		return nil
	}

	sort.Slice(fresh, func(i, j int) bool {
		return seqnum.Before(fresh[i].Tick, fresh[j].Tick)
	})

	// A bundle can itself contain duplicate ticks across overlapping
	// sends; keep only the first occurrence of each once sorted.
	deduped := fresh[:1]
	for _, e := range fresh[1:] {
		if e.Tick != deduped[len(deduped)-1].Tick {
			deduped = append(deduped, e)
		}
	}

	ib.lastExecuted[pawnKey] = deduped[len(deduped)-1].Tick
	ib.known[pawnKey] = true
	return deduped
}

// Forget drops watermark state for pawnKey, called once the pawn is
// removed from this connection.
func (ib *Inbox) Forget(pawnKey replicate.LocalKey) {
	delete(ib.lastExecuted, pawnKey)
	delete(ib.known, pawnKey)
}
