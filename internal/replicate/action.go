package replicate

import (
	"github.com/cBournhonesque/naia-go/internal/diffmask"
	"github.com/cBournhonesque/naia-go/internal/manifest"
)

// ActionType tags the wire shape of an Action, matching the teacher's
// packet-type-byte convention used throughout the framing layer.
type ActionType uint8

const (
	ActionCreateObject ActionType = iota + 1
	ActionDeleteReplicate
	ActionUpdateReplicate
	ActionAssignPawn
	ActionUnassignPawn
	ActionUpdatePawn
	ActionCreateEntity
	ActionDeleteEntity
	ActionAssignPawnEntity
	ActionUnassignPawnEntity
	ActionAddComponent
)

func (t ActionType) String() string {
	switch t {
	case ActionCreateObject:
		return "create_object"
	case ActionDeleteReplicate:
		return "delete_replicate"
	case ActionUpdateReplicate:
		return "update_replicate"
	case ActionAssignPawn:
		return "assign_pawn"
	case ActionUnassignPawn:
		return "unassign_pawn"
	case ActionUpdatePawn:
		return "update_pawn"
	case ActionCreateEntity:
		return "create_entity"
	case ActionDeleteEntity:
		return "delete_entity"
	case ActionAssignPawnEntity:
		return "assign_pawn_entity"
	case ActionUnassignPawnEntity:
		return "unassign_pawn_entity"
	case ActionAddComponent:
		return "add_component"
	default:
		return "unknown"
	}
}

// bundledComponent is one entry of a CreateEntity action's component
// list, materialized at pop time from the entity record's live
// component set rather than carried from enqueue time, so a component
// attached after CreateEntity was queued but before it was popped is
// still included in the same action.
type bundledComponent struct {
	GlobalKey GlobalKey
	LocalKey  LocalKey
	Value     manifest.Replicate
}

// Action is a single queued or in-flight replication instruction. Not
// every field is meaningful for every Type; see writeAction for the
// exact wire shape each produces.
type Action struct {
	Type ActionType

	// Key is the primary record this action concerns: an object key for
	// object/pawn actions, an entity key for entity/pawn-entity actions,
	// a component key for AddComponent.
	Key GlobalKey

	// EntityKey additionally identifies the owning entity for
	// AddComponent.
	EntityKey GlobalKey

	// LocalKey is the local key assigned to Key (or, for AddComponent,
	// to the component) at the time this action was built.
	LocalKey LocalKey

	// EntityLocalKey is the owning entity's local key, used only by
	// AddComponent.
	EntityLocalKey LocalKey

	// Value is the current replicated value, present for
	// CreateObject/UpdateReplicate/UpdatePawn/AddComponent.
	Value manifest.Replicate

	// Mask is the diff-mask snapshot taken at pop time for
	// UpdateReplicate/UpdatePawn, naming exactly which properties this
	// action's payload carries.
	Mask *diffmask.Mask

	// Components is the CreateEntity component bundle, materialized at
	// pop time; nil until popped.
	Components []bundledComponent
}
