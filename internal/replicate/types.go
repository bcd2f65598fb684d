package replicate

// GlobalKey identifies an object, entity or component across the whole
// server, independent of any one connection's view of it. The
// application mints these (typically a dense index into its own
// world/ECS storage) and passes them into Manager unchanged; Manager
// never interprets the value, only uses it as a map key.
type GlobalKey uint64

// LocalKey identifies an object, entity or component within a single
// connection's namespace. Assigned by Manager when the record is first
// created for that connection and recycled once the delete is
// acknowledged, keeping the wire representation a dense uint16 instead
// of GlobalKey's full range.
type LocalKey uint16

// Status tracks where a replicated record is in its create/delete
// lifecycle for one connection, gating whether further actions queue
// immediately or wait for the in-flight action to be acknowledged.
type Status uint8

const (
	// Creating means a create action for this record is queued or
	// in flight but not yet acknowledged delivered.
	Creating Status = iota
	// Created means the peer has acknowledged the create action.
	Created
	// Deleting means a delete action is queued or in flight.
	Deleting
)

func (s Status) String() string {
	switch s {
	case Creating:
		return "creating"
	case Created:
		return "created"
	case Deleting:
		return "deleting"
	default:
		return "unknown"
	}
}
