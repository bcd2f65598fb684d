// Package replicate also supplies Applier, the client-side mirror of
// Manager: a passive decoder that turns an incoming stream of wire
// actions into local-key-addressed state plus a batch of user-visible
// events, never initiating network traffic of its own.
package replicate

import (
	"errors"
	"fmt"

	"github.com/cBournhonesque/naia-go/internal/diffmask"
	"github.com/cBournhonesque/naia-go/internal/manifest"
	"github.com/cBournhonesque/naia-go/internal/wire"
)

// EventKind tags one user-visible replication event produced by Applier.
type EventKind uint8

const (
	EventCreateObject EventKind = iota + 1
	EventUpdateObject
	EventDeleteObject
	EventAssignPawn
	EventUnassignPawn
	EventCreateEntity
	EventDeleteEntity
	EventAddComponent
	EventUpdateComponent
	EventRemoveComponent
	// EventResetPawn marks a pawn update: the server's authoritative
	// value supersedes whatever the client had predicted locally, so the
	// command pipeline must replay every command issued after the
	// acknowledged tick on top of it.
	EventResetPawn
)

// Event is one change the applier observed while decoding an incoming
// action stream, ready for the public client facade to hand to the
// application.
type Event struct {
	Kind EventKind

	ObjectKey LocalKey
	EntityKey LocalKey

	Value    manifest.Replicate // current value, for Create/Update events
	Previous manifest.Replicate // removed value, for Delete/Remove events
}

// ErrUnknownLocalKey indicates an incoming action referenced a local
// key the applier has no record of — either a protocol bug or a
// message that arrived after its owning delete.
var ErrUnknownLocalKey = errors.New("replicate: unknown local key")

type clientEntity struct {
	components map[LocalKey]bool
}

// Applier is the client-side replication state mirror for one
// connection.
type Applier struct {
	objects map[LocalKey]manifest.Replicate
	pawns   map[LocalKey]bool

	entities          map[LocalKey]*clientEntity
	pawnEntities      map[LocalKey]bool
	componentToEntity map[LocalKey]LocalKey
}

// NewApplier returns an empty Applier for one new connection.
func NewApplier() *Applier {
	return &Applier{
		objects:           make(map[LocalKey]manifest.Replicate),
		pawns:             make(map[LocalKey]bool),
		entities:          make(map[LocalKey]*clientEntity),
		pawnEntities:      make(map[LocalKey]bool),
		componentToEntity: make(map[LocalKey]LocalKey),
	}
}

// Object returns the current value stored under a local key, if any.
func (a *Applier) Object(key LocalKey) (manifest.Replicate, bool) {
	v, ok := a.objects[key]
	return v, ok
}

// ReadAction decodes one wire action from r and applies it to the
// applier's local state, returning the events it produced (most
// actions produce exactly one; CreateEntity with a nonempty component
// bundle produces one CreateEntity event followed by one AddComponent
// event per bundled component).
func (a *Applier) ReadAction(r *wire.Reader, m *manifest.Manifest) ([]Event, error) {
	typeTag, err := r.ReadUint(8)
	if err != nil {
		return nil, fmt.Errorf("replicate: read action type: %w", err)
	}

	switch ActionType(typeTag) {
	case ActionCreateObject:
		return a.readCreateObject(r, m)
	case ActionDeleteReplicate:
		return a.readDeleteObject(r)
	case ActionUpdateReplicate:
		return a.readUpdateReplicate(r, m)
	case ActionUpdatePawn:
		return a.readUpdatePawn(r, m)
	case ActionAssignPawn:
		return a.readAssignPawn(r)
	case ActionUnassignPawn:
		return a.readUnassignPawn(r)
	case ActionCreateEntity:
		return a.readCreateEntity(r, m)
	case ActionDeleteEntity:
		return a.readDeleteEntity(r)
	case ActionAssignPawnEntity:
		return a.readAssignPawnEntity(r)
	case ActionUnassignPawnEntity:
		return a.readUnassignPawnEntity(r)
	case ActionAddComponent:
		return a.readAddComponent(r, m)
	default:
		return nil, fmt.Errorf("replicate: unknown action type %d", typeTag)
	}
}

func (a *Applier) readCreateObject(r *wire.Reader, m *manifest.Manifest) ([]Event, error) {
	naiaID, err := r.ReadUint(16)
	if err != nil {
		return nil, err
	}
	localKey, err := r.ReadUint(16)
	if err != nil {
		return nil, err
	}
	value, err := m.ReadBody(r, uint16(naiaID))
	if err != nil {
		return nil, err
	}
	a.objects[LocalKey(localKey)] = value
	return []Event{{Kind: EventCreateObject, ObjectKey: LocalKey(localKey), Value: value}}, nil
}

func (a *Applier) readDeleteObject(r *wire.Reader) ([]Event, error) {
	localKey, err := r.ReadUint(16)
	if err != nil {
		return nil, err
	}
	key := LocalKey(localKey)
	prev, ok := a.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLocalKey, key)
	}
	delete(a.objects, key)
	delete(a.pawns, key)
	return []Event{{Kind: EventDeleteObject, ObjectKey: key, Previous: prev}}, nil
}

func (a *Applier) readUpdateReplicate(r *wire.Reader, m *manifest.Manifest) ([]Event, error) {
	localKey, err := r.ReadUint(16)
	if err != nil {
		return nil, err
	}
	key := LocalKey(localKey)
	current, ok := a.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLocalKey, key)
	}

	rawMask, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	descriptor, err := m.Lookup(current.ReplicateType())
	if err != nil {
		return nil, err
	}
	mask, err := diffmask.FromBytes(descriptor.DiffMaskBits, rawMask)
	if err != nil {
		return nil, err
	}

	updated, err := m.ReadPartial(r, current.ReplicateType(), mask, current)
	if err != nil {
		return nil, err
	}
	a.objects[key] = updated

	kind := EventUpdateObject
	if _, isComponent := a.componentToEntity[key]; isComponent {
		kind = EventUpdateComponent
	}
	return []Event{{Kind: kind, ObjectKey: key, Value: updated}}, nil
}

func (a *Applier) readUpdatePawn(r *wire.Reader, m *manifest.Manifest) ([]Event, error) {
	localKey, err := r.ReadUint(16)
	if err != nil {
		return nil, err
	}
	key := LocalKey(localKey)
	current, ok := a.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLocalKey, key)
	}
	updated, err := m.ReadBody(r, current.ReplicateType())
	if err != nil {
		return nil, err
	}
	a.objects[key] = updated
	return []Event{{Kind: EventResetPawn, ObjectKey: key, Value: updated}}, nil
}

func (a *Applier) readAssignPawn(r *wire.Reader) ([]Event, error) {
	localKey, err := r.ReadUint(16)
	if err != nil {
		return nil, err
	}
	key := LocalKey(localKey)
	a.pawns[key] = true
	return []Event{{Kind: EventAssignPawn, ObjectKey: key}}, nil
}

func (a *Applier) readUnassignPawn(r *wire.Reader) ([]Event, error) {
	localKey, err := r.ReadUint(16)
	if err != nil {
		return nil, err
	}
	key := LocalKey(localKey)
	delete(a.pawns, key)
	return []Event{{Kind: EventUnassignPawn, ObjectKey: key}}, nil
}

func (a *Applier) readCreateEntity(r *wire.Reader, m *manifest.Manifest) ([]Event, error) {
	localEntityKey, err := r.ReadUint(16)
	if err != nil {
		return nil, err
	}
	entityKey := LocalKey(localEntityKey)
	count, err := r.ReadUint(8)
	if err != nil {
		return nil, err
	}

	entity := &clientEntity{components: make(map[LocalKey]bool)}
	a.entities[entityKey] = entity

	events := []Event{{Kind: EventCreateEntity, EntityKey: entityKey}}
	for i := uint64(0); i < count; i++ {
		naiaID, err := r.ReadUint(16)
		if err != nil {
			return nil, err
		}
		localComponentKey, err := r.ReadUint(16)
		if err != nil {
			return nil, err
		}
		value, err := m.ReadBody(r, uint16(naiaID))
		if err != nil {
			return nil, err
		}
		componentKey := LocalKey(localComponentKey)
		a.objects[componentKey] = value
		entity.components[componentKey] = true
		a.componentToEntity[componentKey] = entityKey
		events = append(events, Event{Kind: EventAddComponent, ObjectKey: componentKey, EntityKey: entityKey, Value: value})
	}
	return events, nil
}

func (a *Applier) readDeleteEntity(r *wire.Reader) ([]Event, error) {
	localEntityKey, err := r.ReadUint(16)
	if err != nil {
		return nil, err
	}
	entityKey := LocalKey(localEntityKey)
	entity, ok := a.entities[entityKey]
	if !ok {
		return nil, fmt.Errorf("%w: entity %d", ErrUnknownLocalKey, entityKey)
	}
	delete(a.entities, entityKey)
	delete(a.pawnEntities, entityKey)

	events := []Event{{Kind: EventDeleteEntity, EntityKey: entityKey}}
	for componentKey := range entity.components {
		prev := a.objects[componentKey]
		delete(a.objects, componentKey)
		delete(a.componentToEntity, componentKey)
		events = append(events, Event{Kind: EventRemoveComponent, ObjectKey: componentKey, EntityKey: entityKey, Previous: prev})
	}
	return events, nil
}

func (a *Applier) readAssignPawnEntity(r *wire.Reader) ([]Event, error) {
	localEntityKey, err := r.ReadUint(16)
	if err != nil {
		return nil, err
	}
	entityKey := LocalKey(localEntityKey)
	a.pawnEntities[entityKey] = true
	return []Event{{Kind: EventAssignPawn, EntityKey: entityKey}}, nil
}

func (a *Applier) readUnassignPawnEntity(r *wire.Reader) ([]Event, error) {
	localEntityKey, err := r.ReadUint(16)
	if err != nil {
		return nil, err
	}
	entityKey := LocalKey(localEntityKey)
	delete(a.pawnEntities, entityKey)
	return []Event{{Kind: EventUnassignPawn, EntityKey: entityKey}}, nil
}

func (a *Applier) readAddComponent(r *wire.Reader, m *manifest.Manifest) ([]Event, error) {
	localEntityKey, err := r.ReadUint(16)
	if err != nil {
		return nil, err
	}
	entityKey := LocalKey(localEntityKey)
	naiaID, err := r.ReadUint(16)
	if err != nil {
		return nil, err
	}
	localComponentKey, err := r.ReadUint(16)
	if err != nil {
		return nil, err
	}
	value, err := m.ReadBody(r, uint16(naiaID))
	if err != nil {
		return nil, err
	}

	componentKey := LocalKey(localComponentKey)
	a.objects[componentKey] = value
	a.componentToEntity[componentKey] = entityKey
	if entity, ok := a.entities[entityKey]; ok {
		entity.components[componentKey] = true
	}
	return []Event{{Kind: EventAddComponent, ObjectKey: componentKey, EntityKey: entityKey, Value: value}}, nil
}
