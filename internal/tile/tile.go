// Package tile holds the GPU backed tile resource and its load state
// machine. A Tile is owned by one tile source and is only touched from the
// goroutine driving that source.
package tile

import (
	"errors"
	"image"
	"math"

	"github.com/jaennil/guide_helper/tilestream/internal/gpu"
	"github.com/jaennil/guide_helper/tilestream/internal/tileid"
)

var (
	ErrAlreadyLoading = errors.New("tile is already loading")
	ErrNoImage        = errors.New("tile load finished without an image")
)

type Status int

const (
	Ready Status = iota
	Loading
	Loaded
	Errored
)

func (s Status) String() string {
	switch s {
	case Ready:
		return "ready"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Errored:
		return "errored"
	}
	return "unknown"
}

// Canceler stops an outstanding fetch. Cancel must be safe to call more
// than once.
type Canceler interface {
	Cancel()
}

// StartFunc begins fetching the tile imagery. seq identifies the attempt and
// must be echoed back in the Result passed to Finish.
type StartFunc func(seq uint64) (Canceler, error)

// Result is the outcome of one fetch attempt.
type Result struct {
	Seq   uint64
	Image *image.RGBA
	Err   error
}

type Tile struct {
	ID     tileid.OverscaledTileID
	Status Status
	Width  int
	Height int
	Err    error

	Texture gpu.Texture

	// ParentTexture is borrowed from a loaded ancestor while this tile is
	// pending. TopLeft and Scale place this tile inside it in texture space.
	ParentTexture gpu.Texture
	TopLeft       [2]float64
	Scale         float64

	gl     gpu.Context
	seq    uint64
	cancel Canceler
}

func New(id tileid.OverscaledTileID, gl gpu.Context) *Tile {
	return &Tile{ID: id, Scale: 1, gl: gl}
}

// Load starts a fetch. Loaded and errored tiles release their texture
// first; a tile that is already loading is rejected.
func (t *Tile) Load(start StartFunc) error {
	if t.Status == Loading {
		return ErrAlreadyLoading
	}
	t.releaseTexture()

	t.seq++
	t.Status = Loading
	t.Err = nil

	cancel, err := start(t.seq)
	if err != nil {
		t.fail(err)
		return err
	}
	t.cancel = cancel
	return nil
}

// Finish applies a fetch result and uploads the image. Results of an
// earlier attempt, or arriving after the tile stopped loading, are dropped
// and Finish reports false.
func (t *Tile) Finish(res Result) bool {
	if t.Status != Loading || res.Seq != t.seq {
		return false
	}
	t.cancel = nil

	if res.Err != nil {
		t.fail(res.Err)
		return true
	}
	if res.Image == nil {
		t.fail(ErrNoImage)
		return true
	}

	tex, err := t.gl.CreateTexture(res.Image)
	if err != nil {
		t.fail(err)
		return true
	}
	t.Texture = tex
	t.Width, t.Height = tex.Width, tex.Height
	t.Status = Loaded
	t.dropBorrow()
	return true
}

// Unload cancels a pending fetch or releases the texture, leaving the tile
// ready to be loaded again.
func (t *Tile) Unload() {
	switch t.Status {
	case Loading:
		t.stopFetch()
	case Loaded, Errored:
		t.releaseTexture()
	}
	t.Status = Ready
	t.Err = nil
}

// Abort unloads the tile and forgets any borrowed ancestor imagery.
func (t *Tile) Abort() {
	t.Unload()
	t.dropBorrow()
}

// Borrow renders ancestor's texture while this tile is pending. ancestor
// must cover this tile and be loaded.
func (t *Tile) Borrow(ancestor *Tile) {
	if ancestor.Status != Loaded {
		return
	}
	dz := t.ID.Canonical.Z - ancestor.ID.Canonical.Z
	if dz < 0 {
		return
	}
	scale := 1 / math.Exp2(float64(dz))
	ax := ancestor.ID.Canonical.X << uint(dz)
	ay := ancestor.ID.Canonical.Y << uint(dz)

	t.ParentTexture = ancestor.Texture
	t.Scale = scale
	t.TopLeft = [2]float64{
		float64(t.ID.Canonical.X-ax) * scale,
		float64(t.ID.Canonical.Y-ay) * scale,
	}
}

// ReleaseBorrow forgets the ancestor texture if it is tex.
func (t *Tile) ReleaseBorrow(tex gpu.Texture) {
	if t.ParentTexture.Valid() && t.ParentTexture.ID == tex.ID {
		t.dropBorrow()
	}
}

// Drawable returns the texture to render and where this tile sits in it.
func (t *Tile) Drawable() (tex gpu.Texture, topLeft [2]float64, scale float64, ok bool) {
	if t.Texture.Valid() {
		return t.Texture, [2]float64{}, 1, true
	}
	if t.ParentTexture.Valid() {
		return t.ParentTexture, t.TopLeft, t.Scale, true
	}
	return gpu.Texture{}, [2]float64{}, 1, false
}

// Seq is the id of the current fetch attempt.
func (t *Tile) Seq() uint64 {
	return t.seq
}

func (t *Tile) fail(err error) {
	t.cancel = nil
	t.Status = Errored
	t.Err = err

	// Errored tiles render a transparent pixel.
	tex, texErr := t.gl.CreateTexture(image.NewRGBA(image.Rect(0, 0, 1, 1)))
	if texErr == nil {
		t.Texture = tex
		t.Width, t.Height = 1, 1
	}
}

func (t *Tile) stopFetch() {
	if t.cancel != nil {
		t.cancel.Cancel()
		t.cancel = nil
	}
}

func (t *Tile) releaseTexture() {
	if t.Texture.Valid() {
		t.gl.DeleteTexture(t.Texture)
	}
	t.Texture = gpu.Texture{}
	t.Width, t.Height = 0, 0
}

func (t *Tile) dropBorrow() {
	t.ParentTexture = gpu.Texture{}
	t.TopLeft = [2]float64{}
	t.Scale = 1
}
