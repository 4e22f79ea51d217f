// Package geometry holds the bounding volumes used for tile visibility:
// axis aligned boxes and camera frustums in tile-grid space.
package geometry

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Intersection classifies a box against a frustum.
type Intersection int

const (
	Outside Intersection = iota
	Partial
	Inside
)

func (i Intersection) String() string {
	switch i {
	case Outside:
		return "outside"
	case Partial:
		return "partial"
	case Inside:
		return "inside"
	}
	return "unknown"
}

type Aabb struct {
	Min    mgl64.Vec3
	Max    mgl64.Vec3
	Center mgl64.Vec3
}

func NewAabb(min, max mgl64.Vec3) Aabb {
	return Aabb{Min: min, Max: max, Center: min.Add(max).Mul(0.5)}
}

// FromPoints returns the smallest box holding every point.
func FromPoints(points []mgl64.Vec3) Aabb {
	inf := math.Inf(1)
	min := mgl64.Vec3{inf, inf, inf}
	max := mgl64.Vec3{-inf, -inf, -inf}
	for _, p := range points {
		for i := 0; i < 3; i++ {
			min[i] = math.Min(min[i], p[i])
			max[i] = math.Max(max[i], p[i])
		}
	}
	return NewAabb(min, max)
}

// TileAabb returns the box of tile (z, x, y) in world copy wrap for a world
// that is worldSize units wide. Heights are passed through untouched.
func TileAabb(worldSize float64, z int, x, y uint32, wrap int, minH, maxH float64) Aabb {
	s := worldSize / math.Exp2(float64(z))
	offset := float64(wrap) * worldSize
	return NewAabb(
		mgl64.Vec3{float64(x)*s + offset, float64(y) * s, minH},
		mgl64.Vec3{float64(x+1)*s + offset, float64(y+1) * s, maxH},
	)
}

// Quadrant returns one quarter of the box in the xy plane. Index 0 is
// top-left, 1 top-right, 2 bottom-left and 3 bottom-right. The z range is
// kept whole.
func (a Aabb) Quadrant(index int) Aabb {
	qMin, qMax := a.Min, a.Max
	if index%2 == 0 {
		qMax[0] = a.Center[0]
	} else {
		qMin[0] = a.Center[0]
	}
	if index < 2 {
		qMax[1] = a.Center[1]
	} else {
		qMin[1] = a.Center[1]
	}
	return NewAabb(qMin, qMax)
}

// Corners returns the eight corners, bottom face first.
func (a Aabb) Corners() [8]mgl64.Vec3 {
	mn, mx := a.Min, a.Max
	return [8]mgl64.Vec3{
		{mn[0], mn[1], mn[2]},
		{mx[0], mn[1], mn[2]},
		{mx[0], mx[1], mn[2]},
		{mn[0], mx[1], mn[2]},
		{mn[0], mn[1], mx[2]},
		{mx[0], mn[1], mx[2]},
		{mx[0], mx[1], mx[2]},
		{mn[0], mx[1], mx[2]},
	}
}

func (a Aabb) ClosestPoint(p mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{
		clamp(p[0], a.Min[0], a.Max[0]),
		clamp(p[1], a.Min[1], a.Max[1]),
		clamp(p[2], a.Min[2], a.Max[2]),
	}
}

// DistanceX is the signed offset from p to the box along x, zero inside.
func (a Aabb) DistanceX(p mgl64.Vec3) float64 {
	return clamp(p[0], a.Min[0], a.Max[0]) - p[0]
}

func (a Aabb) DistanceY(p mgl64.Vec3) float64 {
	return clamp(p[1], a.Min[1], a.Max[1]) - p[1]
}

func (a Aabb) DistanceZ(p mgl64.Vec3) float64 {
	return clamp(p[2], a.Min[2], a.Max[2]) - p[2]
}

// ContainsXY reports whether p lies within eps of the box in the xy plane.
func (a Aabb) ContainsXY(p mgl64.Vec3, eps float64) bool {
	return p[0] >= a.Min[0]-eps && p[0] <= a.Max[0]+eps &&
		p[1] >= a.Min[1]-eps && p[1] <= a.Max[1]+eps
}

func (a Aabb) IntersectsAabb(b Aabb) bool {
	for axis := 0; axis < 3; axis++ {
		if a.Min[axis] > b.Max[axis] || a.Max[axis] < b.Min[axis] {
			return false
		}
	}
	return true
}

func (a Aabb) IntersectsAabbXY(b Aabb) bool {
	if a.Min[0] > b.Max[0] || b.Min[0] > a.Max[0] {
		return false
	}
	return a.Min[1] <= b.Max[1] && b.Min[1] <= a.Max[1]
}

// Intersects classifies the box against f using all eight corners.
func (a Aabb) Intersects(f *Frustum) Intersection {
	if !a.IntersectsAabb(f.Bounds) {
		return Outside
	}
	corners := a.Corners()
	return f.classify(corners[:])
}

// IntersectsFlat treats the box as a quad on the ground plane z = 0.
func (a Aabb) IntersectsFlat(f *Frustum) Intersection {
	if !a.IntersectsAabb(f.Bounds) {
		return Outside
	}
	quad := [4]mgl64.Vec3{
		{a.Min[0], a.Min[1], 0},
		{a.Max[0], a.Min[1], 0},
		{a.Max[0], a.Max[1], 0},
		{a.Min[0], a.Max[1], 0},
	}
	return f.classify(quad[:])
}

// Encapsulate grows the box to hold b.
func (a *Aabb) Encapsulate(b Aabb) {
	for i := 0; i < 3; i++ {
		a.Min[i] = math.Min(a.Min[i], b.Min[i])
		a.Max[i] = math.Max(a.Max[i], b.Max[i])
	}
	a.Center = a.Min.Add(a.Max).Mul(0.5)
}

func (a *Aabb) EncapsulatePoint(p mgl64.Vec3) {
	for i := 0; i < 3; i++ {
		a.Min[i] = math.Min(a.Min[i], p[i])
		a.Max[i] = math.Max(a.Max[i], p[i])
	}
	a.Center = a.Min.Add(a.Max).Mul(0.5)
}

// ApplyTransform returns the box holding the transformed corners.
func (a Aabb) ApplyTransform(m mgl64.Mat4) Aabb {
	corners := a.Corners()
	points := make([]mgl64.Vec3, 0, len(corners))
	for _, c := range corners {
		points = append(points, mgl64.TransformCoordinate(c, m))
	}
	return FromPoints(points)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(math.Min(v, hi), lo)
}
