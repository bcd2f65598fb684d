package manifest_test

import (
	"errors"
	"testing"

	"github.com/cBournhonesque/naia-go/internal/manifest"
	"github.com/cBournhonesque/naia-go/internal/wire"
)

type position struct {
	x, y int32
}

func (position) ReplicateType() uint16 { return 1 }

func positionDescriptor() manifest.TypeDescriptor {
	return manifest.TypeDescriptor{
		NaiaID: 1,
		Write: func(v manifest.Replicate, w *wire.Writer) {
			p := v.(position) //nolint:forcetypeassert // test fixture, type is known
			w.WriteUint(uint64(int64(p.x)), 32)
			w.WriteUint(uint64(int64(p.y)), 32)
		},
		Read: func(r *wire.Reader) (manifest.Replicate, error) {
			x, err := r.ReadUint(32)
			if err != nil {
				return nil, err
			}
			y, err := r.ReadUint(32)
			if err != nil {
				return nil, err
			}
			return position{x: int32(x), y: int32(y)}, nil //nolint:gosec // test fixture roundtrip
		},
		DiffMaskBits: 2,
	}
}

func TestManifestWriteReadTagged(t *testing.T) {
	t.Parallel()

	m, err := manifest.New(positionDescriptor())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	w := wire.NewWriter()
	if err := m.WriteTagged(w, position{x: 3, y: -4}); err != nil {
		t.Fatalf("WriteTagged: %v", err)
	}

	r := wire.NewReader(w.Bytes())
	got, err := m.ReadTagged(r)
	if err != nil {
		t.Fatalf("ReadTagged: %v", err)
	}
	p, ok := got.(position)
	if !ok || p.x != 3 || p.y != -4 {
		t.Fatalf("got %#v, want position{3,-4}", got)
	}
}

func TestManifestRejectsDuplicateNaiaID(t *testing.T) {
	t.Parallel()

	_, err := manifest.New(positionDescriptor(), positionDescriptor())
	if !errors.Is(err, manifest.ErrDuplicateNaiaID) {
		t.Fatalf("expected ErrDuplicateNaiaID, got %v", err)
	}
}

func TestManifestLookupUnknownID(t *testing.T) {
	t.Parallel()

	m, err := manifest.New(positionDescriptor())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = m.Lookup(99)
	if !errors.Is(err, manifest.ErrUnknownNaiaID) {
		t.Fatalf("expected ErrUnknownNaiaID, got %v", err)
	}
}

type recordingMutator struct {
	marked []int
}

func (m *recordingMutator) MutateProperty(_ uint64, bit int) {
	m.marked = append(m.marked, bit)
}

func TestPropertySetMarksMutatorWhenAttached(t *testing.T) {
	t.Parallel()

	p := manifest.NewProperty(int32(0), 3)
	if p.Get() != 0 {
		t.Fatalf("Get() = %d, want 0", p.Get())
	}

	p.Set(5)
	if p.Get() != 5 {
		t.Fatalf("Get() = %d, want 5", p.Get())
	}

	mut := &recordingMutator{}
	p.Attach(mut, 42)
	p.Set(6)

	if len(mut.marked) != 1 || mut.marked[0] != 3 {
		t.Fatalf("expected bit 3 marked once, got %v", mut.marked)
	}
}
