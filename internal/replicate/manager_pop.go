package replicate

import (
	"sort"

	"github.com/cBournhonesque/naia-go/internal/diffmask"
)

// PopOutgoingAction removes the next queued action and prepares it for
// writing into the packet identified by packetIndex: CreateEntity's
// component bundle is materialized here (not at enqueue time) from the
// entity's current live component set, and any diff mask the action
// carries is snapshotted and cleared from the live record so further
// property changes accumulate into a fresh mask for the next update.
//
// A popped action must be either written into the packet (and left
// popped — PopOutgoingAction records it in the per-packet sent-actions
// list) or handed back via UnpopOutgoingAction if it didn't fit,
// before any other action is popped for the same packet: pop/unpop
// pairs are not reentrant.
func (m *Manager) PopOutgoingAction(packetIndex uint16) (Action, bool) {
	action, ok := m.popFrontQueued()
	if !ok {
		return Action{}, false
	}

	if action.Type == ActionCreateEntity {
		action = m.materializeCreateEntity(action)
	}

	m.sentActions[packetIndex] = append(m.sentActions[packetIndex], action)

	switch action.Type {
	case ActionCreateObject, ActionAddComponent:
		m.popCreateMask(action.Key)
	case ActionCreateEntity:
		m.popCreateEntityMasks(action.Components)
	case ActionUpdateReplicate, ActionUpdatePawn:
		action.Mask = m.popUpdateMask(packetIndex, action.Key)
	}

	return action, true
}

func (m *Manager) materializeCreateEntity(action Action) Action {
	entity := m.entities[action.Key]
	if entity == nil {
		return action
	}

	keys := make([]GlobalKey, 0, len(entity.components))
	for k := range entity.components {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	bundle := make([]bundledComponent, 0, len(keys))
	for _, componentKey := range keys {
		record, ok := m.records[componentKey]
		if !ok {
			continue
		}
		value, ok := m.values[componentKey]
		if !ok {
			continue
		}
		bundle = append(bundle, bundledComponent{GlobalKey: componentKey, LocalKey: record.localKey, Value: value})
	}
	action.Components = bundle
	return action
}

func (m *Manager) popCreateMask(key GlobalKey) {
	record, ok := m.records[key]
	if !ok {
		return
	}
	m.lastPoppedMask = record.mask.Clone()
	record.mask.Clear()
}

func (m *Manager) popCreateEntityMasks(bundle []bundledComponent) {
	list := make([]componentMaskSnapshot, 0, len(bundle))
	for _, c := range bundle {
		record, ok := m.records[c.GlobalKey]
		if !ok {
			continue
		}
		list = append(list, componentMaskSnapshot{Key: c.GlobalKey, Mask: record.mask.Clone()})
		record.mask.Clear()
	}
	m.lastPoppedMaskList = list
}

// popUpdateMask locks in the live diff mask for an update action: the
// snapshot is what gets serialized and is also filed under
// sentUpdates[packetIndex][key] so a later drop notification can
// reconstruct exactly which properties this packet was responsible
// for.
func (m *Manager) popUpdateMask(packetIndex uint16, key GlobalKey) *diffmask.Mask {
	record, ok := m.records[key]
	if !ok {
		return nil
	}

	locked := record.mask.Clone()

	if _, exists := m.sentUpdates[packetIndex]; !exists {
		m.sentUpdates[packetIndex] = make(map[GlobalKey]*diffmask.Mask)
		m.lastLastUpdatePacketIndex = m.lastUpdatePacketIndex
		m.lastUpdatePacketIndex = packetIndex
	}
	m.sentUpdates[packetIndex][key] = locked

	m.lastPoppedMask = record.mask.Clone()
	record.mask.Clear()

	return locked
}

// UnpopOutgoingAction reverses a PopOutgoingAction call for an action
// that did not end up being written into packetIndex's packet: the
// action is restored to the front of the queue (so it is the very next
// thing popped) and any diff mask cleared by the pop is restored onto
// the live record.
func (m *Manager) UnpopOutgoingAction(packetIndex uint16, action Action) {
	if sent := m.sentActions[packetIndex]; len(sent) > 0 {
		sent = sent[:len(sent)-1]
		if len(sent) == 0 {
			delete(m.sentActions, packetIndex)
		} else {
			m.sentActions[packetIndex] = sent
		}
	}

	switch action.Type {
	case ActionCreateObject, ActionAddComponent:
		m.unpopCreateMask(action.Key)
		m.pushFront(action)
	case ActionCreateEntity:
		m.unpopCreateEntityMasks()
		m.pushFront(action)
	case ActionUpdateReplicate, ActionUpdatePawn:
		restored := m.unpopUpdateMask(packetIndex, action.Key)
		action.Mask = restored
		m.pushFront(action)
	default:
		m.pushFront(action)
	}
}

func (m *Manager) unpopCreateMask(key GlobalKey) {
	record, ok := m.records[key]
	if !ok || m.lastPoppedMask == nil {
		return
	}
	record.mask.Clear()
	record.mask.Or(m.lastPoppedMask)
}

func (m *Manager) unpopCreateEntityMasks() {
	for _, snap := range m.lastPoppedMaskList {
		record, ok := m.records[snap.Key]
		if !ok {
			continue
		}
		record.mask.Clear()
		record.mask.Or(snap.Mask)
	}
}

func (m *Manager) unpopUpdateMask(packetIndex uint16, key GlobalKey) *diffmask.Mask {
	if updates := m.sentUpdates[packetIndex]; updates != nil {
		delete(updates, key)
		if len(updates) == 0 {
			delete(m.sentUpdates, packetIndex)
		}
	}

	m.lastUpdatePacketIndex = m.lastLastUpdatePacketIndex

	record, ok := m.records[key]
	if !ok {
		return nil
	}
	if m.lastPoppedMask != nil {
		record.mask.Clear()
		record.mask.Or(m.lastPoppedMask)
	}
	return record.mask.Clone()
}
