package command

import (
	"fmt"

	"github.com/cBournhonesque/naia-go/internal/manifest"
	"github.com/cBournhonesque/naia-go/internal/replicate"
	"github.com/cBournhonesque/naia-go/internal/wire"
)

// maxBundleEntries bounds the one-byte count prefix.
const maxBundleEntries = 255

// WriteBundle serializes pawnKey's command history: a 16-bit pawn local
// key, a one-byte entry count, then per entry the tick and the
// command's tagged naia_id/body pair. Bundling the whole retained
// window (not just the newest command) on every packet is what gives
// the server a second and third chance at a command whose first packet
// was dropped.
func WriteBundle(w *wire.Writer, m *manifest.Manifest, pawnKey replicate.LocalKey, entries []Entry) error {
	if len(entries) > maxBundleEntries {
		entries = entries[len(entries)-maxBundleEntries:]
	}

	w.WriteUint(uint64(pawnKey), 16)
	w.WriteUint(uint64(len(entries)), 8)
	for _, e := range entries {
		w.WriteUint(uint64(e.Tick), 16)
		if err := m.WriteTagged(w, e.Command); err != nil {
			return err
		}
	}
	return nil
}

// ReadBundle is WriteBundle's counterpart, returning the pawn local key
// the bundle was addressed to alongside its decoded entries in wire
// order (oldest first, by convention of the writer).
func ReadBundle(r *wire.Reader, m *manifest.Manifest) (replicate.LocalKey, []Entry, error) {
	pawnKey64, err := r.ReadUint(16)
	if err != nil {
		return 0, nil, fmt.Errorf("command: read pawn key: %w", err)
	}
	count, err := r.ReadUint(8)
	if err != nil {
		return 0, nil, fmt.Errorf("command: read bundle count: %w", err)
	}

	entries := make([]Entry, 0, count)
	for i := uint64(0); i < count; i++ {
		tick, err := r.ReadUint(16)
		if err != nil {
			return 0, nil, fmt.Errorf("command: read tick: %w", err)
		}
		cmd, err := m.ReadTagged(r)
		if err != nil {
			return 0, nil, fmt.Errorf("command: read command body: %w", err)
		}
		entries = append(entries, Entry{Tick: uint16(tick), Command: cmd})
	}
	return replicate.LocalKey(pawnKey64), entries, nil
}
