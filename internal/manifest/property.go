package manifest

// Mutator is the back-pointer a Property uses to mark its owning
// record's diff-mask bit on Set. The replication manager (server) and
// applier (client) both implement it over their respective record
// stores.
type Mutator interface {
	// MutateProperty marks bit dirty within the record identified by
	// recordKey. recordKey is opaque to Property: it is whatever the
	// owning Mutator needs to find its own bookkeeping for that record.
	MutateProperty(recordKey uint64, bit int)
}

// Property wraps a single replicated field: assigning through Set marks
// the owning record's diff-mask bit via Mutator, exactly the
// "assignment is instrumented" shape of the teacher's generated
// field-property glue. A Property not yet attached to a Mutator (for
// example while a component is still under local construction) behaves
// as a plain value holder: Set just updates the value.
type Property[T any] struct {
	value     T
	mutator   Mutator
	recordKey uint64
	bit       int
}

// NewProperty returns a detached Property holding initial. Attach must
// be called before Set will mark any diff-mask bit.
func NewProperty[T any](initial T, bit int) Property[T] {
	return Property[T]{value: initial, bit: bit}
}

// Attach binds the Property to mutator/recordKey so future Set calls
// mark the correct diff-mask bit. Called once the owning record is
// admitted into the replication manager's record store.
func (p *Property[T]) Attach(mutator Mutator, recordKey uint64) {
	p.mutator = mutator
	p.recordKey = recordKey
}

// Get returns the current value.
func (p *Property[T]) Get() T {
	return p.value
}

// Set updates the value and, if attached, marks the owning record's
// diff-mask bit dirty.
func (p *Property[T]) Set(v T) {
	p.value = v
	if p.mutator != nil {
		p.mutator.MutateProperty(p.recordKey, p.bit)
	}
}
