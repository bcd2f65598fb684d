package replicate

import (
	"fmt"

	"github.com/cBournhonesque/naia-go/internal/manifest"
)

// ComponentValue is one (key, value, diff-mask-bits) triple supplied to
// AddEntity for each component the entity starts with.
type ComponentValue struct {
	Key          GlobalKey
	Value        manifest.Replicate
	DiffMaskBits int
}

// AddEntity admits a new entity, together with its initial component
// set, into this connection's view. Every component is first admitted
// as its own replicateRecord (status Creating) exactly as AddObject
// would, then the entity record itself is created and a CreateEntity
// action is queued. The action's component bundle is left empty here:
// it is materialized from the entity's live component set at pop time,
// so a component attached between enqueue and pop is still included.
func (m *Manager) AddEntity(key GlobalKey, components []ComponentValue) {
	if _, exists := m.entities[key]; exists {
		panic(fmt.Sprintf("replicate: entity %d added twice", key))
	}

	entity := newEntityRecord(m.entityKeys.generate())
	for _, c := range components {
		m.replicateInit(c.Key, c.Value, c.DiffMaskBits, Creating)
		entity.components[c.Key] = true
	}

	m.entityLocalToGlobal[entity.localKey] = key
	m.entities[key] = entity
	m.pushBack(Action{Type: ActionCreateEntity, Key: key, LocalKey: entity.localKey})
}

// RemoveEntity queues removal of a previously-added entity, cascading
// to every attached component exactly as a standalone object delete
// would (an entity's deletion is a component-set deletion).
func (m *Manager) RemoveEntity(key GlobalKey) {
	if m.HasPawnEntity(key) {
		m.RemovePawnEntity(key)
	}

	entity, ok := m.entities[key]
	if !ok {
		panic(fmt.Sprintf("replicate: removing entity %d not present on this connection", key))
	}

	switch entity.status {
	case Creating:
		m.delayedEntityDelete[key] = true
	case Created:
		entity.status = Deleting
		m.pushBack(Action{Type: ActionDeleteEntity, Key: key, LocalKey: entity.localKey})
		for componentKey := range entity.components {
			delete(m.pawns, componentKey)
			if record, ok := m.records[componentKey]; ok {
				record.status = Deleting
			}
		}
	case Deleting:
		// Already in progress.
	}
}

// HasEntity reports whether key is currently tracked on this connection.
func (m *Manager) HasEntity(key GlobalKey) bool {
	_, ok := m.entities[key]
	return ok
}

// AddPawnEntity marks an entity as client-predicted, queuing an
// AssignPawnEntity action.
func (m *Manager) AddPawnEntity(key GlobalKey) {
	entity, ok := m.entities[key]
	if !ok {
		panic(fmt.Sprintf("replicate: cannot make nonexistent entity %d a pawn", key))
	}
	if m.pawnEntities[key] {
		return
	}
	m.pawnEntities[key] = true
	m.pushBack(Action{Type: ActionAssignPawnEntity, Key: key, LocalKey: entity.localKey})
}

// RemovePawnEntity reverses AddPawnEntity.
func (m *Manager) RemovePawnEntity(key GlobalKey) {
	entity, ok := m.entities[key]
	if !ok {
		panic(fmt.Sprintf("replicate: entity %d not present on this connection", key))
	}
	if !m.pawnEntities[key] {
		panic(fmt.Sprintf("replicate: entity %d is not assigned as a pawn", key))
	}
	delete(m.pawnEntities, key)
	m.pushBack(Action{Type: ActionUnassignPawnEntity, Key: key, LocalKey: entity.localKey})
}

// HasPawnEntity reports whether key is currently a pawn entity.
func (m *Manager) HasPawnEntity(key GlobalKey) bool {
	return m.pawnEntities[key]
}

// AddComponent attaches a new component to an already-added entity. If
// the entity itself hasn't been acknowledged created yet, the component
// rides along inside the entity's (not yet popped) CreateEntity bundle
// instead of getting its own AddComponent action.
func (m *Manager) AddComponent(entityKey, componentKey GlobalKey, value manifest.Replicate, diffMaskBits int) {
	entity, ok := m.entities[entityKey]
	if !ok {
		panic(fmt.Sprintf("replicate: cannot add component to nonexistent entity %d", entityKey))
	}

	localKey := m.replicateInit(componentKey, value, diffMaskBits, Creating)
	entity.components[componentKey] = true

	switch entity.status {
	case Creating:
		// Will be picked up when CreateEntity is popped or delivered.
	case Created:
		m.pushBack(Action{
			Type:           ActionAddComponent,
			Key:            componentKey,
			EntityKey:      entityKey,
			LocalKey:       localKey,
			EntityLocalKey: entity.localKey,
			Value:          value,
		})
	case Deleting:
		// Entity is going away; don't bother telling the peer about a
		// component it will never need.
	}
}

// CollectReplicateUpdates scans every Created record with a dirty diff
// mask and queues the corresponding update action: UpdatePawn for a
// record marked as a pawn, UpdateReplicate otherwise. Called once per
// outgoing-tick before packets are assembled.
func (m *Manager) CollectReplicateUpdates() {
	for key, record := range m.records {
		if record.status != Created || record.mask.IsClear() {
			continue
		}
		value, ok := m.values[key]
		if !ok {
			continue
		}
		if m.pawns[key] {
			m.pushBack(Action{Type: ActionUpdatePawn, Key: key, LocalKey: record.localKey, Value: value, Mask: record.mask})
		} else {
			m.pushBack(Action{Type: ActionUpdateReplicate, Key: key, LocalKey: record.localKey, Value: value, Mask: record.mask})
		}
	}
}

// GlobalKeyFromLocal resolves a local object/component key back to its
// GlobalKey, used when decoding a client->server message that
// references a replicated object by its connection-local key.
func (m *Manager) GlobalKeyFromLocal(local LocalKey) (GlobalKey, bool) {
	key, ok := m.localToGlobal[local]
	return key, ok
}

// GlobalEntityKeyFromLocal mirrors GlobalKeyFromLocal for entities.
func (m *Manager) GlobalEntityKeyFromLocal(local LocalKey) (GlobalKey, bool) {
	key, ok := m.entityLocalToGlobal[local]
	return key, ok
}
