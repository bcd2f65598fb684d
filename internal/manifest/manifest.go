// Package manifest implements the naia_id <-> user type registry: a
// stable wire identifier for every component/message type the
// application declares, plus the per-type (write, read, diff-mask-size)
// dispatch table that lets the replication engine treat heterogeneous
// user types homogeneously.
package manifest

import (
	"errors"
	"fmt"

	"github.com/cBournhonesque/naia-go/internal/diffmask"
	"github.com/cBournhonesque/naia-go/internal/wire"
)

// Replicate is the interface every user-declared component/message type
// implements. It carries no behavior of its own beyond identifying
// itself; (de)serialization and diff-mask sizing are supplied
// out-of-band through the TypeDescriptor the user registers for it, so
// a single dispatch table can operate over a heterogeneous set of
// concrete types via one tag.
type Replicate interface {
	// ReplicateType returns the stable naia_id identifying this value's
	// concrete type, matching the TypeDescriptor it was registered
	// under.
	ReplicateType() uint16
}

// TypeDescriptor is the per-type dispatch table entry a user supplies
// for each Replicate type: the generated glue a derive macro would
// produce in a language with one.
type TypeDescriptor struct {
	// NaiaID is the stable wire identifier for this type.
	NaiaID uint16

	// Write serializes value into w. value's concrete type must match
	// what Read produces for this descriptor.
	Write func(value Replicate, w *wire.Writer)

	// Read deserializes a value of this descriptor's type from r.
	Read func(r *wire.Reader) (Replicate, error)

	// DiffMaskBits is the number of independently-dirty-trackable
	// properties this type declares, sizing the diff mask the
	// replication manager maintains per instance.
	DiffMaskBits int

	// WritePartial serializes only the properties marked dirty in mask,
	// in declaration order. An update action calls this instead of
	// Write so only changed fields cross the wire. If nil, updates fall
	// back to Write and always resend every property.
	WritePartial func(value Replicate, mask *diffmask.Mask, w *wire.Writer)

	// ReadPartial mirrors WritePartial on the receiving side, applying
	// only the properties flagged in mask onto an existing value (a
	// prior full Read result) and returning the updated value. If nil,
	// update actions fall back to Read and replace the value wholesale.
	ReadPartial func(existing Replicate, mask *diffmask.Mask, r *wire.Reader) (Replicate, error)
}

// ErrUnknownNaiaID indicates a wire naia_id has no registered descriptor.
var ErrUnknownNaiaID = errors.New("manifest: unknown naia_id")

// ErrDuplicateNaiaID indicates Register was called twice for the same ID.
var ErrDuplicateNaiaID = errors.New("manifest: duplicate naia_id")

// Manifest is the built registry: an immutable-after-construction lookup
// from naia_id to TypeDescriptor.
type Manifest struct {
	byID map[uint16]TypeDescriptor
}

// New builds a Manifest from descriptors. Returns ErrDuplicateNaiaID if
// two descriptors share a NaiaID.
func New(descriptors ...TypeDescriptor) (*Manifest, error) {
	m := &Manifest{byID: make(map[uint16]TypeDescriptor, len(descriptors))}
	for _, d := range descriptors {
		if _, exists := m.byID[d.NaiaID]; exists {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateNaiaID, d.NaiaID)
		}
		m.byID[d.NaiaID] = d
	}
	return m, nil
}

// Lookup returns the TypeDescriptor registered for naiaID.
func (m *Manifest) Lookup(naiaID uint16) (TypeDescriptor, error) {
	d, ok := m.byID[naiaID]
	if !ok {
		return TypeDescriptor{}, fmt.Errorf("%w: %d", ErrUnknownNaiaID, naiaID)
	}
	return d, nil
}

// WriteTagged writes naia_id followed by value's serialized form, using
// the registered descriptor for value.ReplicateType().
func (m *Manifest) WriteTagged(w *wire.Writer, value Replicate) error {
	d, err := m.Lookup(value.ReplicateType())
	if err != nil {
		return err
	}
	w.WriteUint(uint64(d.NaiaID), 16)
	d.Write(value, w)
	return nil
}

// ReadTagged reads a naia_id from r and dispatches to the registered
// descriptor's Read.
func (m *Manifest) ReadTagged(r *wire.Reader) (Replicate, error) {
	id64, err := r.ReadUint(16)
	if err != nil {
		return nil, fmt.Errorf("manifest: read naia_id: %w", err)
	}
	d, err := m.Lookup(uint16(id64))
	if err != nil {
		return nil, err
	}
	return d.Read(r)
}

// WriteBody serializes value's payload only (no naia_id tag), using the
// registered descriptor's Write. Callers that need to interleave other
// fields (a local key, an owning entity key) between the tag and the
// payload use this instead of WriteTagged.
func (m *Manifest) WriteBody(w *wire.Writer, value Replicate) error {
	d, err := m.Lookup(value.ReplicateType())
	if err != nil {
		return err
	}
	d.Write(value, w)
	return nil
}

// ReadBody deserializes a payload of the type registered under naiaID,
// the counterpart to WriteBody.
func (m *Manifest) ReadBody(r *wire.Reader, naiaID uint16) (Replicate, error) {
	d, err := m.Lookup(naiaID)
	if err != nil {
		return nil, err
	}
	return d.Read(r)
}

// WritePartial serializes only the dirty properties of value per mask,
// using the registered descriptor's WritePartial, or its full Write if
// the descriptor declares no partial form.
func (m *Manifest) WritePartial(w *wire.Writer, value Replicate, mask *diffmask.Mask) error {
	d, err := m.Lookup(value.ReplicateType())
	if err != nil {
		return err
	}
	if d.WritePartial != nil {
		d.WritePartial(value, mask, w)
		return nil
	}
	d.Write(value, w)
	return nil
}

// ReadPartial reads a partial update for naiaID's type, applying it onto
// existing, falling back to a full Read if the descriptor declares no
// partial form (existing is then ignored).
func (m *Manifest) ReadPartial(r *wire.Reader, naiaID uint16, mask *diffmask.Mask, existing Replicate) (Replicate, error) {
	d, err := m.Lookup(naiaID)
	if err != nil {
		return nil, err
	}
	if d.ReadPartial != nil {
		return d.ReadPartial(existing, mask, r)
	}
	return d.Read(r)
}
