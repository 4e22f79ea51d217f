// Package tileid addresses tiles in the quadtree pyramid: canonical
// (z, x, y) ids, overscaled ids carrying a world copy, and the packed keys
// used to index the tile cache.
package tileid

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jaennil/guide_helper/tilestream/internal/mercator"
)

// MaxZoom bounds the zoom levels accepted from outside the process.
const MaxZoom = 28

var (
	ErrInvalidZoom       = errors.New("tile zoom out of range")
	ErrInvalidCoordinate = errors.New("tile coordinate out of range")
	ErrInvalidOverscale  = errors.New("overscaled zoom out of range")
	ErrInvalidQuadkey    = errors.New("invalid quadkey")
)

// CanonicalTileID is an absolute quadtree address.
type CanonicalTileID struct {
	Z int
	X uint32
	Y uint32
}

func NewCanonicalTileID(z int, x, y uint32) CanonicalTileID {
	return CanonicalTileID{Z: z, X: x, Y: y}
}

func (c CanonicalTileID) Key() uint64 {
	return CalculateKey(0, c.Z, c.Z, c.X, c.Y)
}

func (c CanonicalTileID) Equals(o CanonicalTileID) bool {
	return c == o
}

// Validate reports whether x and y lie inside the 2^z grid.
func (c CanonicalTileID) Validate() error {
	if c.Z < 0 || c.Z > MaxZoom {
		return fmt.Errorf("%w: %d", ErrInvalidZoom, c.Z)
	}
	dim := uint64(1) << uint(c.Z)
	if uint64(c.X) >= dim || uint64(c.Y) >= dim {
		return fmt.Errorf("%w: %s", ErrInvalidCoordinate, c)
	}
	return nil
}

// Parent returns the tile one level up. ok is false at z 0.
func (c CanonicalTileID) Parent() (CanonicalTileID, bool) {
	if c.Z == 0 {
		return CanonicalTileID{}, false
	}
	return CanonicalTileID{Z: c.Z - 1, X: c.X >> 1, Y: c.Y >> 1}, true
}

// Children returns the four children in quadrant order: top-left,
// top-right, bottom-left, bottom-right.
func (c CanonicalTileID) Children() [4]CanonicalTileID {
	z, x, y := c.Z+1, c.X*2, c.Y*2
	return [4]CanonicalTileID{
		{Z: z, X: x, Y: y},
		{Z: z, X: x + 1, Y: y},
		{Z: z, X: x, Y: y + 1},
		{Z: z, X: x + 1, Y: y + 1},
	}
}

// Siblings returns the four children of the parent, the tile itself included.
// The root is its own only sibling.
func (c CanonicalTileID) Siblings() []CanonicalTileID {
	p, ok := c.Parent()
	if !ok {
		return []CanonicalTileID{c}
	}
	ch := p.Children()
	return ch[:]
}

// Quadkey encodes the tile as a base-4 string, one digit per level.
func (c CanonicalTileID) Quadkey() string {
	var b strings.Builder
	b.Grow(c.Z)
	for i := c.Z; i > 0; i-- {
		mask := uint32(1) << uint(i-1)
		digit := byte('0')
		if c.X&mask != 0 {
			digit++
		}
		if c.Y&mask != 0 {
			digit += 2
		}
		b.WriteByte(digit)
	}
	return b.String()
}

func FromQuadkey(quadkey string) (CanonicalTileID, error) {
	z := len(quadkey)
	if z > MaxZoom {
		return CanonicalTileID{}, fmt.Errorf("%w: %q too long", ErrInvalidQuadkey, quadkey)
	}
	var x, y uint32
	for i := z; i > 0; i-- {
		mask := uint32(1) << uint(i-1)
		switch quadkey[z-i] {
		case '0':
		case '1':
			x |= mask
		case '2':
			y |= mask
		case '3':
			x |= mask
			y |= mask
		default:
			return CanonicalTileID{}, fmt.Errorf("%w: %q", ErrInvalidQuadkey, quadkey)
		}
	}
	return CanonicalTileID{Z: z, X: x, Y: y}, nil
}

// URL substitutes {z}, {x} and {y} in a tile URL template.
func (c CanonicalTileID) URL(template string) string {
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(c.Z),
		"{x}", strconv.FormatUint(uint64(c.X), 10),
		"{y}", strconv.FormatUint(uint64(c.Y), 10),
	)
	return r.Replace(template)
}

func (c CanonicalTileID) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y)
}

// PointToTile returns the tile at zoom z containing the given lng/lat.
func PointToTile(lng, lat float64, z int) CanonicalTileID {
	fx, fy := mercator.PointToTileFraction(lng, lat, z)
	dim := math.Exp2(float64(z))
	x := math.Min(math.Max(math.Floor(fx), 0), dim-1)
	y := math.Min(math.Max(math.Floor(fy), 0), dim-1)
	return CanonicalTileID{Z: z, X: uint32(x), Y: uint32(y)}
}
