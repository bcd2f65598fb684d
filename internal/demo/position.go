// Package demo registers one tiny Replicate type and one tiny command
// type, so cmd/naia-server has something concrete to host without
// depending on any particular embedding application's domain model.
// An application embedding naia registers its own manifest instead of
// this one; see internal/config's ManifestFile comment.
package demo

import (
	"math"

	"github.com/cBournhonesque/naia-go/internal/diffmask"
	"github.com/cBournhonesque/naia-go/internal/manifest"
	"github.com/cBournhonesque/naia-go/internal/wire"
)

const (
	// NaiaIDPosition identifies Position on the wire.
	NaiaIDPosition uint16 = 1
	// NaiaIDMoveCommand identifies MoveCommand on the wire.
	NaiaIDMoveCommand uint16 = 2
)

const (
	diffBitX = iota
	diffBitY
	positionDiffMaskBits
)

// Position is a minimal two-float replicated component.
type Position struct {
	X, Y float32
}

// ReplicateType implements manifest.Replicate.
func (Position) ReplicateType() uint16 { return NaiaIDPosition }

func writePosition(v manifest.Replicate, w *wire.Writer) {
	p := v.(Position)
	w.WriteUint(uint64(math.Float32bits(p.X)), 32)
	w.WriteUint(uint64(math.Float32bits(p.Y)), 32)
}

func readPosition(r *wire.Reader) (manifest.Replicate, error) {
	x, err := r.ReadUint(32)
	if err != nil {
		return nil, err
	}
	y, err := r.ReadUint(32)
	if err != nil {
		return nil, err
	}
	return Position{X: math.Float32frombits(uint32(x)), Y: math.Float32frombits(uint32(y))}, nil
}

func writePositionPartial(v manifest.Replicate, mask *diffmask.Mask, w *wire.Writer) {
	p := v.(Position)
	if mask.Test(diffBitX) {
		w.WriteUint(uint64(math.Float32bits(p.X)), 32)
	}
	if mask.Test(diffBitY) {
		w.WriteUint(uint64(math.Float32bits(p.Y)), 32)
	}
}

func readPositionPartial(existing manifest.Replicate, mask *diffmask.Mask, r *wire.Reader) (manifest.Replicate, error) {
	p := existing.(Position)
	if mask.Test(diffBitX) {
		x, err := r.ReadUint(32)
		if err != nil {
			return nil, err
		}
		p.X = math.Float32frombits(uint32(x))
	}
	if mask.Test(diffBitY) {
		y, err := r.ReadUint(32)
		if err != nil {
			return nil, err
		}
		p.Y = math.Float32frombits(uint32(y))
	}
	return p, nil
}

// MoveCommand is a minimal pawn command: a one-tick displacement.
type MoveCommand struct {
	DX, DY float32
}

// ReplicateType implements manifest.Replicate.
func (MoveCommand) ReplicateType() uint16 { return NaiaIDMoveCommand }

func writeMoveCommand(v manifest.Replicate, w *wire.Writer) {
	c := v.(MoveCommand)
	w.WriteUint(uint64(math.Float32bits(c.DX)), 32)
	w.WriteUint(uint64(math.Float32bits(c.DY)), 32)
}

func readMoveCommand(r *wire.Reader) (manifest.Replicate, error) {
	dx, err := r.ReadUint(32)
	if err != nil {
		return nil, err
	}
	dy, err := r.ReadUint(32)
	if err != nil {
		return nil, err
	}
	return MoveCommand{DX: math.Float32frombits(uint32(dx)), DY: math.Float32frombits(uint32(dy))}, nil
}

// Manifest builds the descriptor set for Position and MoveCommand.
func Manifest() (*manifest.Manifest, error) {
	return manifest.New(
		manifest.TypeDescriptor{
			NaiaID:       NaiaIDPosition,
			Write:        writePosition,
			Read:         readPosition,
			DiffMaskBits: positionDiffMaskBits,
			WritePartial: writePositionPartial,
			ReadPartial:  readPositionPartial,
		},
		manifest.TypeDescriptor{
			NaiaID: NaiaIDMoveCommand,
			Write:  writeMoveCommand,
			Read:   readMoveCommand,
		},
	)
}
