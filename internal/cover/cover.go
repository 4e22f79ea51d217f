// Package cover selects the tiles visible from a camera, each at the level
// of detail its distance calls for.
package cover

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/jaennil/guide_helper/tilestream/internal/geometry"
	"github.com/jaennil/guide_helper/tilestream/internal/tileid"
	"github.com/jaennil/guide_helper/tilestream/internal/transform"
)

const (
	// NumWorldCopies is how many repeated worlds are considered on each side
	// of the primary one.
	NumWorldCopies = 3

	// MaxElevation bounds tile boxes vertically in elevation mode.
	MaxElevation = 100 * 1000.0

	// centerEpsilon is the slack, in tiles of the deepest zoom, used when
	// deciding whether a node holds the map center.
	centerEpsilon = 1e-6
)

// Options describe the data source the cover is computed for.
type Options struct {
	MinZoom int
	// MaxZoom is the deepest zoom the source serves. Deeper camera zooms
	// overscale tiles of this zoom. Zero means unlimited.
	MaxZoom int
	// Elevation switches to full 3D box tests with a fixed altitude range.
	Elevation bool
}

type quadNode struct {
	x, y         uint32
	z            int
	wrap         int
	aabb         geometry.Aabb
	fullyVisible bool
}

type leaf struct {
	id       tileid.OverscaledTileID
	distance float64
}

// Resolver computes covers. It keeps its node arena between calls, so one
// Resolver must not be used from several goroutines at once.
type Resolver struct {
	nodes  []quadNode
	stack  []int
	leaves []leaf
}

func NewResolver() *Resolver {
	return &Resolver{}
}

// Cover returns the tiles covering the snapshot's view, nearest first.
func Cover(s *transform.Snapshot, opts Options) []tileid.OverscaledTileID {
	return NewResolver().Cover(s, opts)
}

// MaxTileZoom is the zoom whose tiles are used closest to the camera.
func MaxTileZoom(cameraZoom float64, opts Options) int {
	z := math.Max(cameraZoom, float64(opts.MinZoom))
	if opts.MaxZoom > 0 {
		z = math.Min(z, float64(opts.MaxZoom))
	}
	return int(math.Floor(z))
}

// heightRange is the altitude span given to every node box. Root and split
// nodes share it, so a child never reaches outside its parent.
func heightRange(elevation bool) (minH, maxH float64) {
	if elevation {
		return -MaxElevation, MaxElevation
	}
	return 0, 0
}

func (r *Resolver) Cover(s *transform.Snapshot, opts Options) []tileid.OverscaledTileID {
	maxTileZoom := MaxTileZoom(s.Zoom, opts)
	overscaledZ := maxTileZoom
	if mapZoom := int(math.Floor(s.Zoom)); mapZoom > maxTileZoom {
		overscaledZ = mapZoom
	}

	numTiles := math.Exp2(float64(maxTileZoom))
	scaledTileSize := s.WorldSize / numTiles
	meterToTile := s.PixelsPerMeter / scaledTileSize

	cx, cy := s.CenterMercator()
	center := mgl64.Vec3{cx * numTiles, cy * numTiles, 0}
	camera := mgl64.Vec3{s.Position[0] * numTiles, s.Position[1] * numTiles, s.Position[2]}
	topDown := s.Pitch == 0

	frustum := geometry.FromInverseProjection(s.InvProjMatrix, s.WorldSize, maxTileZoom)

	minH, maxH := heightRange(opts.Elevation)

	r.nodes = r.nodes[:0]
	r.stack = r.stack[:0]
	r.leaves = r.leaves[:0]

	push := func(n quadNode) {
		r.nodes = append(r.nodes, n)
		r.stack = append(r.stack, len(r.nodes)-1)
	}
	root := func(wrap int) quadNode {
		return quadNode{
			wrap: wrap,
			aabb: geometry.TileAabb(numTiles, 0, 0, 0, wrap, minH, maxH),
		}
	}

	if s.RenderWorldCopies {
		for i := 1; i <= NumWorldCopies; i++ {
			push(root(-i))
			push(root(i))
		}
	}
	push(root(0))

	shouldSplit := func(n *quadNode) bool {
		if n.z < opts.MinZoom {
			return true
		}
		if n.z >= maxTileZoom {
			return false
		}
		if topDown {
			return true
		}

		closest := n.aabb.ClosestPoint(camera)
		toCorner := closest.Sub(camera)
		toCorner[2] *= meterToTile
		if toCorner.Dot(s.Forward) < math.Exp2(float64(maxTileZoom-n.z)) {
			return true
		}

		// At steep pitch the center can fall outside the split radius.
		return n.aabb.ContainsXY(center, centerEpsilon)
	}

	for len(r.stack) > 0 {
		h := r.stack[len(r.stack)-1]
		r.stack = r.stack[:len(r.stack)-1]
		n := r.nodes[h]

		if !n.fullyVisible {
			var hit geometry.Intersection
			if opts.Elevation {
				hit = n.aabb.Intersects(frustum)
			} else {
				hit = n.aabb.IntersectsFlat(frustum)
			}
			if hit == geometry.Outside {
				continue
			}
			n.fullyVisible = hit == geometry.Inside
		}

		if n.z == maxTileZoom || !shouldSplit(&n) {
			tileZoom := n.z
			if n.z == maxTileZoom {
				tileZoom = overscaledZ
			}
			span := math.Exp2(float64(maxTileZoom - n.z))
			dx := (float64(n.x)+0.5+float64(n.wrap)*math.Exp2(float64(n.z)))*span - camera[0]
			dy := (float64(n.y)+0.5)*span - camera[1]
			r.leaves = append(r.leaves, leaf{
				id:       tileid.NewOverscaledTileID(tileZoom, n.wrap, n.z, n.x, n.y),
				distance: math.Hypot(dx, dy),
			})
			continue
		}

		for i := 0; i < 4; i++ {
			push(quadNode{
				x:            n.x<<1 + uint32(i%2),
				y:            n.y<<1 + uint32(i>>1),
				z:            n.z + 1,
				wrap:         n.wrap,
				aabb:         n.aabb.Quadrant(i),
				fullyVisible: n.fullyVisible,
			})
		}
	}

	sort.SliceStable(r.leaves, func(i, j int) bool {
		a, b := r.leaves[i], r.leaves[j]
		if a.distance != b.distance {
			return a.distance < b.distance
		}
		return a.id.Less(b.id)
	})

	out := make([]tileid.OverscaledTileID, len(r.leaves))
	for i, l := range r.leaves {
		out[i] = l.id
	}
	return out
}
