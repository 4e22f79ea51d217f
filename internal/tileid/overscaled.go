package tileid

import (
	"fmt"
	"math"
)

// OverscaledTileID is a canonical tile rendered at OverscaledZ >= Canonical.Z
// in world copy Wrap. Construct it with NewOverscaledTileID so the packed key
// is filled in.
type OverscaledTileID struct {
	OverscaledZ int
	Wrap        int
	Canonical   CanonicalTileID

	key uint64
}

func NewOverscaledTileID(overscaledZ, wrap, z int, x, y uint32) OverscaledTileID {
	return OverscaledTileID{
		OverscaledZ: overscaledZ,
		Wrap:        wrap,
		Canonical:   CanonicalTileID{Z: z, X: x, Y: y},
		key:         CalculateKey(wrap, overscaledZ, z, x, y),
	}
}

// Key is the cache index of the id.
func (id OverscaledTileID) Key() uint64 {
	return id.key
}

func (id OverscaledTileID) Validate() error {
	if err := id.Canonical.Validate(); err != nil {
		return err
	}
	if id.OverscaledZ < id.Canonical.Z || id.OverscaledZ-id.Canonical.Z > 15 {
		return fmt.Errorf("%w: %d for canonical z %d", ErrInvalidOverscale, id.OverscaledZ, id.Canonical.Z)
	}
	return nil
}

func (id OverscaledTileID) Equals(o OverscaledTileID) bool {
	return id.OverscaledZ == o.OverscaledZ && id.Wrap == o.Wrap && id.Canonical == o.Canonical
}

// ScaledTo re-derives the id at targetZ: deeper targets overscale the same
// canonical tile, shallower ones address the ancestor.
func (id OverscaledTileID) ScaledTo(targetZ int) OverscaledTileID {
	c := id.Canonical
	if targetZ > c.Z {
		return NewOverscaledTileID(targetZ, id.Wrap, c.Z, c.X, c.Y)
	}
	dz := uint(c.Z - targetZ)
	return NewOverscaledTileID(targetZ, id.Wrap, targetZ, c.X>>dz, c.Y>>dz)
}

// CalculateScaledKey equals ScaledTo(targetZ).Key() when withWrap is set and
// ScaledTo(targetZ).Wrapped().Key() otherwise, without building the id.
func (id OverscaledTileID) CalculateScaledKey(targetZ int, withWrap bool) uint64 {
	if id.OverscaledZ == targetZ && withWrap {
		return id.key
	}
	wrap := 0
	if withWrap {
		wrap = id.Wrap
	}
	c := id.Canonical
	if targetZ > c.Z {
		return CalculateKey(wrap, targetZ, c.Z, c.X, c.Y)
	}
	dz := uint(c.Z - targetZ)
	return CalculateKey(wrap, targetZ, targetZ, c.X>>dz, c.Y>>dz)
}

// IsChildOf reports whether ancestor covers id. Tiles in different world
// copies are never related; an ancestor at overscaled zoom 0 covers its
// whole world copy.
func (id OverscaledTileID) IsChildOf(ancestor OverscaledTileID) bool {
	if ancestor.Wrap != id.Wrap {
		return false
	}
	if ancestor.OverscaledZ == 0 {
		return true
	}
	if ancestor.OverscaledZ >= id.OverscaledZ || ancestor.Canonical.Z >= id.Canonical.Z {
		return false
	}
	dz := uint(id.Canonical.Z - ancestor.Canonical.Z)
	return ancestor.Canonical.X == id.Canonical.X>>dz && ancestor.Canonical.Y == id.Canonical.Y>>dz
}

// Parent steps one overscaled level up. ok is false at the root.
func (id OverscaledTileID) Parent() (OverscaledTileID, bool) {
	c := id.Canonical
	if id.OverscaledZ > c.Z {
		return NewOverscaledTileID(id.OverscaledZ-1, id.Wrap, c.Z, c.X, c.Y), true
	}
	if c.Z == 0 {
		return OverscaledTileID{}, false
	}
	pz := c.Z - 1
	return NewOverscaledTileID(pz, id.Wrap, pz, c.X>>1, c.Y>>1), true
}

// Children returns the ids one overscaled level down. At or beyond the
// source's max zoom the source has no deeper data, so the single child is the
// same canonical tile overscaled once more.
func (id OverscaledTileID) Children(sourceMaxZoom int) []OverscaledTileID {
	c := id.Canonical
	if id.OverscaledZ >= sourceMaxZoom {
		return []OverscaledTileID{NewOverscaledTileID(id.OverscaledZ+1, id.Wrap, c.Z, c.X, c.Y)}
	}
	children := c.Children()
	out := make([]OverscaledTileID, 0, 4)
	for _, ch := range children {
		out = append(out, NewOverscaledTileID(ch.Z, id.Wrap, ch.Z, ch.X, ch.Y))
	}
	return out
}

// Siblings returns the children of the parent at the same overscaled zoom,
// the id itself included.
func (id OverscaledTileID) Siblings() []OverscaledTileID {
	if id.OverscaledZ > id.Canonical.Z {
		return []OverscaledTileID{id}
	}
	p, ok := id.Parent()
	if !ok {
		return []OverscaledTileID{id}
	}
	return p.Children(math.MaxInt)
}

// Less orders ids by wrap, overscaled zoom, x, then y.
func (id OverscaledTileID) Less(o OverscaledTileID) bool {
	if id.Wrap != o.Wrap {
		return id.Wrap < o.Wrap
	}
	if id.OverscaledZ != o.OverscaledZ {
		return id.OverscaledZ < o.OverscaledZ
	}
	if id.Canonical.X != o.Canonical.X {
		return id.Canonical.X < o.Canonical.X
	}
	return id.Canonical.Y < o.Canonical.Y
}

// Wrapped returns the same tile in world copy 0.
func (id OverscaledTileID) Wrapped() OverscaledTileID {
	return id.UnwrapTo(0)
}

func (id OverscaledTileID) UnwrapTo(wrap int) OverscaledTileID {
	c := id.Canonical
	return NewOverscaledTileID(id.OverscaledZ, wrap, c.Z, c.X, c.Y)
}

func (id OverscaledTileID) OverscaleFactor() float64 {
	return math.Exp2(float64(id.OverscaledZ - id.Canonical.Z))
}

func (id OverscaledTileID) String() string {
	return fmt.Sprintf("%d/%d/%d@%d", id.OverscaledZ, id.Canonical.X, id.Canonical.Y, id.Wrap)
}

// Direction names a tile border for Neighbor.
type Direction int

const (
	Left Direction = iota
	Right
	Top
	Bottom
)

// Neighbor returns the adjacent tile across the given border. Crossing the
// antimeridian moves into the neighbouring world copy; the poles wrap
// vertically within the same copy.
func (id OverscaledTileID) Neighbor(dir Direction) OverscaledTileID {
	c := id.Canonical
	last := uint32(1)<<uint(c.Z) - 1
	x, y, w := c.X, c.Y, id.Wrap
	switch dir {
	case Left:
		if x == 0 {
			x = last
			w--
		} else {
			x--
		}
	case Right:
		if x == last {
			x = 0
			w++
		} else {
			x++
		}
	case Top:
		if y == 0 {
			y = last
		} else {
			y--
		}
	case Bottom:
		if y == last {
			y = 0
		} else {
			y++
		}
	}
	return NewOverscaledTileID(id.OverscaledZ, w, c.Z, x, y)
}
