// Package gpu abstracts the texture store of the host renderer.
package gpu

import (
	"errors"
	"image"
	"sync"
)

var (
	ErrEmptyImage     = errors.New("texture image is empty")
	ErrContextRemoved = errors.New("gpu context is closed")
)

// Texture is a handle to an uploaded 2D texture.
type Texture struct {
	ID     uint32
	Width  int
	Height int
}

// Valid reports whether the handle refers to an upload.
func (t Texture) Valid() bool {
	return t.ID != 0
}

// Context creates and deletes textures. Implementations are driven from the
// render goroutine only.
type Context interface {
	CreateTexture(img *image.RGBA) (Texture, error)
	DeleteTexture(tex Texture)
}

// Headless keeps textures in memory. It stands in for a real device in
// servers and tests.
type Headless struct {
	mu      sync.Mutex
	nextID  uint32
	pixels  map[uint32]*image.RGBA
	created int
	deleted int
	closed  bool
}

func NewHeadless() *Headless {
	return &Headless{pixels: make(map[uint32]*image.RGBA)}
}

func (h *Headless) CreateTexture(img *image.RGBA) (Texture, error) {
	if img == nil || img.Rect.Empty() {
		return Texture{}, ErrEmptyImage
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return Texture{}, ErrContextRemoved
	}
	h.nextID++
	h.pixels[h.nextID] = img
	h.created++
	b := img.Bounds()
	return Texture{ID: h.nextID, Width: b.Dx(), Height: b.Dy()}, nil
}

// DeleteTexture ignores handles that are unknown or already deleted.
func (h *Headless) DeleteTexture(tex Texture) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.pixels[tex.ID]; !ok {
		return
	}
	delete(h.pixels, tex.ID)
	h.deleted++
}

// Pixels returns the image behind a live texture.
func (h *Headless) Pixels(tex Texture) (*image.RGBA, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	img, ok := h.pixels[tex.ID]
	return img, ok
}

// Live is the number of textures created and not yet deleted.
func (h *Headless) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pixels)
}

func (h *Headless) Stats() (created, deleted int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.created, h.deleted
}

// Close drops every texture and rejects further uploads.
func (h *Headless) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.deleted += len(h.pixels)
	h.pixels = make(map[uint32]*image.RGBA)
}
