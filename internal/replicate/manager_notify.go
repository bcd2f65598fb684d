package replicate

// NotifyPacketDelivered implements ack.Notifier: every action sent in
// packetIndex's packet is resolved as successfully delivered, advancing
// each record's lifecycle status and releasing any deletion that had
// been deferred pending that delivery.
func (m *Manager) NotifyPacketDelivered(packetIndex uint16) {
	delivered, ok := m.sentActions[packetIndex]
	if !ok {
		return
	}
	delete(m.sentActions, packetIndex)

	var cleanup []GlobalKey
	clearedUpdates := false

	for _, action := range delivered {
		switch action.Type {
		case ActionCreateObject:
			cleanup = append(cleanup, m.onObjectCreateDelivered(action.Key)...)
		case ActionDeleteReplicate:
			cleanup = append(cleanup, action.Key)
		case ActionUpdateReplicate, ActionUpdatePawn:
			if !clearedUpdates {
				delete(m.sentUpdates, packetIndex)
				clearedUpdates = true
			}
		case ActionCreateEntity:
			cleanup = append(cleanup, m.onEntityCreateDelivered(action)...)
		case ActionDeleteEntity:
			cleanup = append(cleanup, m.onEntityDeleteDelivered(action.Key)...)
		case ActionAddComponent:
			cleanup = append(cleanup, m.onComponentCreateDelivered(action.Key)...)
		case ActionAssignPawn, ActionUnassignPawn, ActionAssignPawnEntity, ActionUnassignPawnEntity:
			// No bookkeeping beyond the flags already flipped when queued.
		}
	}

	for _, key := range cleanup {
		m.replicateCleanup(key)
	}
}

func (m *Manager) onObjectCreateDelivered(key GlobalKey) []GlobalKey {
	record, ok := m.records[key]
	if !ok {
		return nil
	}
	if m.delayedDelete[key] {
		delete(m.delayedDelete, key)
		m.queueReplicateDelete(key, record)
		return nil
	}
	record.status = Created
	return nil
}

func (m *Manager) onComponentCreateDelivered(key GlobalKey) []GlobalKey {
	return m.onObjectCreateDelivered(key)
}

func (m *Manager) onEntityCreateDelivered(action Action) []GlobalKey {
	entity, ok := m.entities[action.Key]
	if !ok {
		return nil
	}

	if m.delayedEntityDelete[action.Key] {
		delete(m.delayedEntityDelete, action.Key)
		entity.status = Deleting
		m.pushBack(Action{Type: ActionDeleteEntity, Key: action.Key, LocalKey: entity.localKey})
		return nil
	}

	entity.status = Created
	for _, c := range action.Components {
		if record, ok := m.records[c.GlobalKey]; ok {
			record.status = Created
		}
	}

	// Any component attached after CreateEntity was popped (so it
	// missed this action's bundle) still needs its own AddComponent.
	for componentKey := range entity.components {
		record, ok := m.records[componentKey]
		if !ok || record.status != Creating {
			continue
		}
		value, ok := m.values[componentKey]
		if !ok {
			continue
		}
		m.pushBack(Action{
			Type:           ActionAddComponent,
			Key:            componentKey,
			EntityKey:      action.Key,
			LocalKey:       record.localKey,
			EntityLocalKey: entity.localKey,
			Value:          value,
		})
	}
	return nil
}

func (m *Manager) onEntityDeleteDelivered(key GlobalKey) []GlobalKey {
	entity, ok := m.entities[key]
	if !ok {
		return nil
	}
	delete(m.entities, key)
	delete(m.entityLocalToGlobal, entity.localKey)
	m.entityKeys.recycle(entity.localKey)
	delete(m.pawnEntities, key)

	cleanup := make([]GlobalKey, 0, len(entity.components))
	for componentKey := range entity.components {
		cleanup = append(cleanup, componentKey)
	}
	return cleanup
}

// NotifyPacketDropped implements ack.Notifier: guaranteed-delivery
// actions sent in packetIndex's packet are re-queued for resend;
// update actions instead have their dropped properties folded back
// into the live diff mask (minus anything already re-sent in a later
// packet), so the next CollectReplicateUpdates pass resends only what
// is still outstanding.
func (m *Manager) NotifyPacketDropped(packetIndex uint16) {
	dropped, ok := m.sentActions[packetIndex]
	if !ok {
		return
	}

	for _, action := range dropped {
		switch action.Type {
		case ActionUpdateReplicate, ActionUpdatePawn:
			m.restoreDroppedUpdateMask(packetIndex, action.Key)
		default:
			m.pushBack(action)
		}
	}

	delete(m.sentUpdates, packetIndex)
	delete(m.sentActions, packetIndex)
}

func (m *Manager) restoreDroppedUpdateMask(packetIndex uint16, key GlobalKey) {
	updates, ok := m.sentUpdates[packetIndex]
	if !ok {
		return
	}
	droppedMask, ok := updates[key]
	if !ok {
		return
	}

	pending := droppedMask.Clone()

	if packetIndex != m.lastUpdatePacketIndex {
		for walk := packetIndex + 1; walk != m.lastUpdatePacketIndex; walk++ {
			if laterUpdates, ok := m.sentUpdates[walk]; ok {
				if laterMask, ok := laterUpdates[key]; ok {
					pending.Nand(laterMask)
				}
			}
		}
		if latestUpdates, ok := m.sentUpdates[m.lastUpdatePacketIndex]; ok {
			if latestMask, ok := latestUpdates[key]; ok {
				pending.Nand(latestMask)
			}
		}
	}

	if record, ok := m.records[key]; ok {
		record.mask.Or(pending)
	}
}
