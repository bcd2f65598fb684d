package replicate

import "github.com/cBournhonesque/naia-go/internal/diffmask"

// replicateRecord is the per-connection bookkeeping for one replicated
// object or component: its assigned local key, lifecycle status and
// live diff mask. Entities themselves have no replicateRecord — they
// are tracked by entityRecord — but every component attached to an
// entity gets one, same as a standalone object.
type replicateRecord struct {
	localKey LocalKey
	status   Status
	mask     *diffmask.Mask
}

func newReplicateRecord(localKey LocalKey, diffMaskBits int, status Status) *replicateRecord {
	return &replicateRecord{
		localKey: localKey,
		status:   status,
		mask:     diffmask.New(diffMaskBits),
	}
}

// entityRecord is the per-connection bookkeeping for one replicated
// entity: its local key, lifecycle status and the set of component
// global keys currently attached to it. The component set is consulted
// at pop time to materialize a CreateEntity action's full component
// bundle, and again on delete to cascade component deletion.
type entityRecord struct {
	localKey   LocalKey
	status     Status
	components map[GlobalKey]bool
}

func newEntityRecord(localKey LocalKey) *entityRecord {
	return &entityRecord{
		localKey:   localKey,
		status:     Creating,
		components: make(map[GlobalKey]bool),
	}
}
