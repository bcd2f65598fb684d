package replicate

import (
	"github.com/cBournhonesque/naia-go/internal/manifest"
	"github.com/cBournhonesque/naia-go/internal/wire"
)

// MTUSize is the per-packet byte budget the action writer stays under,
// leaving room for the datagram's framing header.
const MTUSize = 508

// maxActionsPerPacket bounds the per-packet action counter to a single
// byte prefix: exceeding it would require a second replication frame,
// which this wire format does not support.
const maxActionsPerPacket = 255

// PacketBudget tracks how much of one outgoing packet's replication
// frame has been filled so far, across repeated WriteAction calls.
// Reset it once per assembled packet.
type PacketBudget struct {
	actionCount int
	byteLen     int
}

// NewPacketBudget returns an empty budget for a fresh packet.
func NewPacketBudget() *PacketBudget {
	return &PacketBudget{}
}

// Count reports how many actions have been accepted into this packet so
// far. The packet assembler writes this as the one-byte action-count
// prefix ahead of the action bytes themselves.
func (b *PacketBudget) Count() int {
	return b.actionCount
}

// WriteAction serializes action into w if doing so keeps the packet
// within MTUSize and maxActionsPerPacket; it reports whether the
// action was written. On false, nothing has been written to w and the
// caller hands the action back with Manager.UnpopOutgoingAction.
func WriteAction(budget *PacketBudget, w *wire.Writer, m *manifest.Manifest, action Action) (bool, error) {
	scratch := wire.NewWriter()
	scratch.WriteUint(uint64(action.Type), 8)

	if err := writeActionBody(scratch, m, action); err != nil {
		return false, err
	}

	bodyBytes := scratch.ByteLength()
	hypothetical := budget.byteLen + bodyBytes
	if budget.actionCount == 0 {
		hypothetical += 2 // room for the action-count prefix itself
	}
	if hypothetical >= MTUSize || budget.actionCount >= maxActionsPerPacket {
		return false, nil
	}

	w.WriteUint(uint64(action.Type), 8)
	if err := writeActionBody(w, m, action); err != nil {
		return false, err
	}

	budget.actionCount++
	budget.byteLen = hypothetical
	return true, nil
}

func writeActionBody(w *wire.Writer, m *manifest.Manifest, action Action) error {
	switch action.Type {
	case ActionCreateObject:
		w.WriteUint(uint64(action.Value.ReplicateType()), 16)
		w.WriteUint(uint64(action.LocalKey), 16)
		return m.WriteBody(w, action.Value)

	case ActionDeleteReplicate, ActionAssignPawn, ActionUnassignPawn,
		ActionDeleteEntity, ActionAssignPawnEntity, ActionUnassignPawnEntity:
		w.WriteUint(uint64(action.LocalKey), 16)
		return nil

	case ActionUpdatePawn:
		// Pawns are client-predicted: the server sends the full
		// authoritative value to reconcile, not a partial diff, so no
		// diff-mask bytes go on the wire here.
		w.WriteUint(uint64(action.LocalKey), 16)
		return m.WriteBody(w, action.Value)

	case ActionUpdateReplicate:
		w.WriteUint(uint64(action.LocalKey), 16)
		w.WriteBytes(action.Mask.RawBytes())
		return m.WritePartial(w, action.Value, action.Mask)

	case ActionCreateEntity:
		w.WriteUint(uint64(action.LocalKey), 16)
		w.WriteUint(uint64(len(action.Components)), 8)
		for _, c := range action.Components {
			w.WriteUint(uint64(c.Value.ReplicateType()), 16)
			w.WriteUint(uint64(c.LocalKey), 16)
			if err := m.WriteBody(w, c.Value); err != nil {
				return err
			}
		}
		return nil

	case ActionAddComponent:
		w.WriteUint(uint64(action.EntityLocalKey), 16)
		w.WriteUint(uint64(action.Value.ReplicateType()), 16)
		w.WriteUint(uint64(action.LocalKey), 16)
		return m.WriteBody(w, action.Value)

	default:
		return nil
	}
}
