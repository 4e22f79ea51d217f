// Package transform turns a host camera description into the per-frame
// snapshot consumed by the cover resolver.
//
// World space is the pixel space of the whole map at the camera zoom: x
// grows east, y grows south and z is the altitude in meters. The view
// matrix flips y and scales z by pixels per meter before the look-at, so
// the inverse of the combined matrix maps clip space straight back into
// world space.
package transform

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/jaennil/guide_helper/tilestream/internal/mercator"
)

const (
	// TileSize is the pixel size of one tile at its own zoom.
	TileSize = 512

	MaxPitch   = 85.0
	DefaultFOV = 36.8699
)

var (
	ErrInvalidViewport = errors.New("viewport must have positive width and height")
	ErrInvalidFOV      = errors.New("field of view must be within (0, 180) degrees")
	ErrInvalidZoom     = errors.New("zoom must be within [0, 24]")
)

// Camera is the state supplied by the host engine for one frame. Angles are
// in degrees.
type Camera struct {
	Lng               float64 `json:"lng"`
	Lat               float64 `json:"lat"`
	Zoom              float64 `json:"zoom"`
	Pitch             float64 `json:"pitch"`
	Bearing           float64 `json:"bearing"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	FOV               float64 `json:"fov"`
	RenderWorldCopies bool    `json:"render_world_copies"`
}

// Snapshot is the derived camera state for one frame.
type Snapshot struct {
	Lng, Lat float64
	Zoom     float64
	// Pitch and Bearing in radians.
	Pitch   float64
	Bearing float64
	Width   int
	Height  int

	WorldSize      float64
	PixelsPerMeter float64

	ProjMatrix    mgl64.Mat4
	InvProjMatrix mgl64.Mat4

	// Position is the camera in unit mercator x/y and altitude in meters.
	Position mgl64.Vec3
	// Forward is the unit view direction in world axes.
	Forward mgl64.Vec3

	RenderWorldCopies bool
}

// NewSnapshot builds the view-projection of a perspective camera orbiting
// the map center at the distance where the viewport height spans Height
// pixels on the ground.
func NewSnapshot(c Camera) (*Snapshot, error) {
	if c.Width <= 0 || c.Height <= 0 {
		return nil, ErrInvalidViewport
	}
	if c.Zoom < 0 || c.Zoom > 24 {
		return nil, fmt.Errorf("%w: %f", ErrInvalidZoom, c.Zoom)
	}
	fovDeg := c.FOV
	if fovDeg == 0 {
		fovDeg = DefaultFOV
	}
	if fovDeg <= 0 || fovDeg >= 180 {
		return nil, fmt.Errorf("%w: %f", ErrInvalidFOV, fovDeg)
	}

	fov := mgl64.DegToRad(fovDeg)
	pitch := mgl64.DegToRad(math.Min(math.Max(c.Pitch, 0), MaxPitch))
	bearing := mgl64.DegToRad(c.Bearing)
	width, height := float64(c.Width), float64(c.Height)

	worldSize := TileSize * math.Exp2(c.Zoom)
	mx, my := mercator.FromLngLat(c.Lng, c.Lat)
	ppm := mercator.PixelsPerMeter(c.Lat, worldSize)
	center := mgl64.Vec3{mx * worldSize, my * worldSize, 0}

	forward := mgl64.Vec3{
		math.Sin(pitch) * math.Sin(bearing),
		-math.Sin(pitch) * math.Cos(bearing),
		-math.Cos(pitch),
	}
	distance := 0.5 * height / math.Tan(fov/2)
	eye := center.Sub(forward.Mul(distance))

	near := height / 50
	topHalf := math.Sin(fov/2) * distance / math.Sin(math.Max(math.Pi/2-pitch-fov/2, 0.01))
	far := 1.01 * (math.Sin(pitch)*topHalf + distance)

	// GL space: y flipped to north, z in pixels.
	eyeGL := mgl64.Vec3{eye[0], -eye[1], eye[2]}
	centerGL := mgl64.Vec3{center[0], -center[1], 0}
	upGL := mgl64.Vec3{math.Sin(bearing), math.Cos(bearing), 0}

	view := mgl64.LookAtV(eyeGL, centerGL, upGL)
	toGL := mgl64.Scale3D(1, -1, ppm)
	proj := mgl64.Perspective(fov, width/height, near, far).Mul4(view).Mul4(toGL)

	return &Snapshot{
		Lng:               c.Lng,
		Lat:               c.Lat,
		Zoom:              c.Zoom,
		Pitch:             pitch,
		Bearing:           bearing,
		Width:             c.Width,
		Height:            c.Height,
		WorldSize:         worldSize,
		PixelsPerMeter:    ppm,
		ProjMatrix:        proj,
		InvProjMatrix:     proj.Inv(),
		Position:          mgl64.Vec3{eye[0] / worldSize, eye[1] / worldSize, eye[2] / ppm},
		Forward:           forward,
		RenderWorldCopies: c.RenderWorldCopies,
	}, nil
}

// CenterMercator returns the map center in unit mercator coordinates.
func (s *Snapshot) CenterMercator() (x, y float64) {
	return mercator.FromLngLat(s.Lng, s.Lat)
}

// Project maps a world point to clip space, mostly useful for checks.
func (s *Snapshot) Project(p mgl64.Vec3) mgl64.Vec3 {
	return mgl64.TransformCoordinate(p, s.ProjMatrix)
}
