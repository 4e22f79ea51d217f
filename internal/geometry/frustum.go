package geometry

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// corner indices into Frustum.Points
const (
	nearTL = iota
	nearTR
	nearBR
	nearBL
	farTL
	farTR
	farBR
	farBL
)

var clipCorners = [8]mgl64.Vec4{
	{-1, 1, -1, 1},
	{1, 1, -1, 1},
	{1, -1, -1, 1},
	{-1, -1, -1, 1},
	{-1, 1, 1, 1},
	{1, 1, 1, 1},
	{1, -1, 1, 1},
	{-1, -1, 1, 1},
}

// near, far, left, right, bottom, top
var planeCorners = [6][3]int{
	{nearTL, nearTR, nearBR},
	{farBR, farTR, farTL},
	{nearTL, nearBL, farBL},
	{nearBR, nearTR, farTR},
	{nearBL, nearBR, farBR},
	{nearTL, farTL, farTR},
}

// Frustum is the camera volume in tile-grid units: x and y count tiles of
// the deepest zoom considered, z stays in altitude units. Every plane
// normal points into the volume, so a point p is inside a plane when
// dot(normal, p) + d >= 0.
type Frustum struct {
	Points [8]mgl64.Vec3
	Planes [6]mgl64.Vec4
	Bounds Aabb
}

// FromInverseProjection unprojects the clip-space cube through invProj and
// rescales x and y by worldSize / 2^maxZoom.
func FromInverseProjection(invProj mgl64.Mat4, worldSize float64, maxZoom int) *Frustum {
	scaledTileSize := worldSize / math.Exp2(float64(maxZoom))

	f := &Frustum{}
	for i, c := range clipCorners {
		p := invProj.Mul4x1(c)
		k := 1 / p[3] / scaledTileSize
		f.Points[i] = mgl64.Vec3{p[0] * k, p[1] * k, p[2] / p[3]}
	}
	f.Bounds = FromPoints(f.Points[:])

	var centroid mgl64.Vec3
	for _, p := range f.Points {
		centroid = centroid.Add(p)
	}
	centroid = centroid.Mul(1.0 / 8)

	for i, idx := range planeCorners {
		a := f.Points[idx[0]].Sub(f.Points[idx[1]])
		b := f.Points[idx[2]].Sub(f.Points[idx[1]])
		n := a.Cross(b)
		if l := n.Len(); l > 0 {
			n = n.Mul(1 / l)
		}
		d := -n.Dot(f.Points[idx[1]])
		// A mirrored projection flips the winding of every triple.
		if n.Dot(centroid)+d < 0 {
			n, d = n.Mul(-1), -d
		}
		f.Planes[i] = n.Vec4(d)
	}
	return f
}

func (f *Frustum) ContainsPoint(p mgl64.Vec3) bool {
	for _, plane := range f.Planes {
		if plane.Vec3().Dot(p)+plane[3] < 0 {
			return false
		}
	}
	return true
}

func (f *Frustum) classify(points []mgl64.Vec3) Intersection {
	fullyInside := true
	for _, plane := range f.Planes {
		n := plane.Vec3()
		inside := 0
		for _, p := range points {
			if n.Dot(p)+plane[3] >= 0 {
				inside++
			}
		}
		if inside == 0 {
			return Outside
		}
		if inside != len(points) {
			fullyInside = false
		}
	}
	if fullyInside {
		return Inside
	}
	return Partial
}
