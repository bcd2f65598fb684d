package replicate

import (
	"fmt"

	"github.com/cBournhonesque/naia-go/internal/diffmask"
	"github.com/cBournhonesque/naia-go/internal/manifest"
)

// Manager is the per-connection replication state machine: it owns one
// connection's view of which objects, entities and components the peer
// knows about, queues the actions needed to keep that view in sync, and
// reconciles delivery/drop outcomes reported by the acknowledgement
// tracker. One Manager exists per connected client.
type Manager struct {
	objectKeys *localKeyGenerator
	entityKeys *localKeyGenerator

	values        map[GlobalKey]manifest.Replicate
	localToGlobal map[LocalKey]GlobalKey
	records       map[GlobalKey]*replicateRecord
	pawns         map[GlobalKey]bool
	delayedDelete map[GlobalKey]bool

	entityLocalToGlobal map[LocalKey]GlobalKey
	entities            map[GlobalKey]*entityRecord
	pawnEntities        map[GlobalKey]bool
	delayedEntityDelete map[GlobalKey]bool

	queued []Action

	sentActions map[uint16][]Action
	sentUpdates map[uint16]map[GlobalKey]*diffmask.Mask

	lastUpdatePacketIndex     uint16
	lastLastUpdatePacketIndex uint16

	// lastPoppedMask/lastPoppedMaskList hold the most recently popped
	// create/update diff-mask snapshot(s), consulted by an immediately
	// following unpop call in the same per-packet write loop. Pop and
	// unpop are always paired synchronously within one packet assembly
	// pass, so one slot suffices.
	lastPoppedMask     *diffmask.Mask
	lastPoppedMaskList []componentMaskSnapshot
}

type componentMaskSnapshot struct {
	Key  GlobalKey
	Mask *diffmask.Mask
}

// New returns an empty Manager for one new connection.
func New() *Manager {
	return &Manager{
		objectKeys:          newLocalKeyGenerator(),
		entityKeys:          newLocalKeyGenerator(),
		values:              make(map[GlobalKey]manifest.Replicate),
		localToGlobal:       make(map[LocalKey]GlobalKey),
		records:             make(map[GlobalKey]*replicateRecord),
		pawns:               make(map[GlobalKey]bool),
		delayedDelete:       make(map[GlobalKey]bool),
		entityLocalToGlobal: make(map[LocalKey]GlobalKey),
		entities:            make(map[GlobalKey]*entityRecord),
		pawnEntities:        make(map[GlobalKey]bool),
		delayedEntityDelete: make(map[GlobalKey]bool),
		sentActions:         make(map[uint16][]Action),
		sentUpdates:         make(map[uint16]map[GlobalKey]*diffmask.Mask),
	}
}

// HasOutgoingActions reports whether any action is queued and ready to
// be popped for writing into an outgoing packet.
func (m *Manager) HasOutgoingActions() bool {
	return len(m.queued) != 0
}

func (m *Manager) pushBack(a Action) {
	m.queued = append(m.queued, a)
}

func (m *Manager) pushFront(a Action) {
	m.queued = append([]Action{a}, m.queued...)
}

func (m *Manager) popFrontQueued() (Action, bool) {
	if len(m.queued) == 0 {
		return Action{}, false
	}
	a := m.queued[0]
	m.queued = m.queued[1:]
	return a, true
}

// replicateInit admits a new object or component into this connection's
// record store under status, assigning and returning its local key.
// Panics if key is already tracked: re-adding a live record is a
// programming error in the caller, not a protocol condition.
func (m *Manager) replicateInit(key GlobalKey, value manifest.Replicate, diffMaskBits int, status Status) LocalKey {
	if _, exists := m.values[key]; exists {
		panic(fmt.Sprintf("replicate: object %d added twice", key))
	}
	m.values[key] = value
	localKey := m.objectKeys.generate()
	m.localToGlobal[localKey] = key
	m.records[key] = newReplicateRecord(localKey, diffMaskBits, status)
	return localKey
}

// replicateCleanup tears down all per-connection bookkeeping for a
// fully-deleted object/component, recycling its local key.
func (m *Manager) replicateCleanup(key GlobalKey) {
	record, ok := m.records[key]
	if !ok {
		// Likely a duplicate delivered deletion notification.
		return
	}
	delete(m.records, key)
	delete(m.values, key)
	delete(m.localToGlobal, record.localKey)
	m.objectKeys.recycle(record.localKey)
	delete(m.pawns, key)
}

// AddObject admits a new replicated object into this connection's view
// and queues a CreateObject action for it.
func (m *Manager) AddObject(key GlobalKey, value manifest.Replicate, diffMaskBits int) {
	localKey := m.replicateInit(key, value, diffMaskBits, Creating)
	m.pushBack(Action{Type: ActionCreateObject, Key: key, LocalKey: localKey, Value: value})
}

// RemoveObject queues removal of a previously-added object. If the
// object's create action hasn't been acknowledged yet, the delete is
// deferred until it has (delayedDelete), since a client that never
// learned of an object cannot be told to delete it.
func (m *Manager) RemoveObject(key GlobalKey) {
	if m.HasPawn(key) {
		m.RemovePawn(key)
	}

	record, ok := m.records[key]
	if !ok {
		panic(fmt.Sprintf("replicate: removing object %d not present on this connection", key))
	}

	switch record.status {
	case Creating:
		m.delayedDelete[key] = true
	case Created:
		m.queueReplicateDelete(key, record)
	case Deleting:
		// Already in progress.
	}
}

func (m *Manager) queueReplicateDelete(key GlobalKey, record *replicateRecord) {
	record.status = Deleting
	m.pushBack(Action{Type: ActionDeleteReplicate, Key: key, LocalKey: record.localKey})
}

// HasObject reports whether key is currently tracked on this connection.
func (m *Manager) HasObject(key GlobalKey) bool {
	_, ok := m.values[key]
	return ok
}

// AddPawn marks an already-added object as client-predicted ("pawn"),
// queuing an AssignPawn action. A no-op if already a pawn.
func (m *Manager) AddPawn(key GlobalKey) {
	if !m.HasObject(key) {
		panic(fmt.Sprintf("replicate: cannot make nonexistent object %d a pawn", key))
	}
	if m.pawns[key] {
		return
	}
	m.pawns[key] = true
	record := m.records[key]
	m.pushBack(Action{Type: ActionAssignPawn, Key: key, LocalKey: record.localKey})
}

// RemovePawn reverses AddPawn, queuing an UnassignPawn action. Panics
// if key is not currently a pawn.
func (m *Manager) RemovePawn(key GlobalKey) {
	if !m.pawns[key] {
		panic(fmt.Sprintf("replicate: object %d is not assigned as a pawn", key))
	}
	delete(m.pawns, key)
	record := m.records[key]
	m.pushBack(Action{Type: ActionUnassignPawn, Key: key, LocalKey: record.localKey})
}

// HasPawn reports whether key is currently a pawn on this connection.
func (m *Manager) HasPawn(key GlobalKey) bool {
	return m.pawns[key]
}
