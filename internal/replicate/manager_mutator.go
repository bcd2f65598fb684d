package replicate

// MutateProperty implements manifest.Mutator: a Property's Set call
// reports its owning record (identified by recordKey, the record's
// GlobalKey cast to uint64) and the dirty bit index, and Manager marks
// that bit in the record's live diff mask. A record not currently
// tracked (already cleaned up, or never attached) is silently ignored:
// a detached Property behaves as a plain value holder.
func (m *Manager) MutateProperty(recordKey uint64, bit int) {
	record, ok := m.records[GlobalKey(recordKey)]
	if !ok {
		return
	}
	record.mask.Set(bit)
}
