// Package protocol defines the tasks tile sources send to workers and the
// payloads they carry.
package protocol

import (
	"errors"
	"fmt"
	"image"

	"github.com/jaennil/guide_helper/tilestream/internal/tileid"
	"github.com/jaennil/guide_helper/tilestream/internal/transfer"
)

// Task types answered by workers.
const (
	TaskLoadTile   = "loadTile"
	TaskStoreTile  = "storeTile"
	TaskStoreStats = "storeStats"
)

var ErrBitmapSize = errors.New("bitmap size does not match pixel buffer")

// TileRequest asks a worker to fetch and decode one tile.
type TileRequest struct {
	SourceID    string
	Key         uint64
	OverscaledZ int
	Wrap        int
	Z           int
	X           uint32
	Y           uint32
	URL         string
}

func NewTileRequest(sourceID string, id tileid.OverscaledTileID, urlTemplate string) TileRequest {
	c := id.Canonical
	return TileRequest{
		SourceID:    sourceID,
		Key:         id.Key(),
		OverscaledZ: id.OverscaledZ,
		Wrap:        id.Wrap,
		Z:           c.Z,
		X:           c.X,
		Y:           c.Y,
		URL:         c.URL(urlTemplate),
	}
}

func (r TileRequest) TileID() tileid.OverscaledTileID {
	return tileid.NewOverscaledTileID(r.OverscaledZ, r.Wrap, r.Z, r.X, r.Y)
}

// Bitmap is a decoded tile. Encoded keeps the upstream bytes so the tile
// can be persisted without re-encoding.
type Bitmap struct {
	Width     int
	Height    int
	Pix       []byte
	Encoded   []byte
	FromStore bool
}

// NewBitmap takes the pixels of img, copying only when img is a sub-image.
func NewBitmap(img *image.RGBA, encoded []byte, fromStore bool) Bitmap {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := img.Pix
	if img.Stride != 4*w || b.Min != (image.Point{}) || len(pix) != 4*w*h {
		pix = make([]byte, 4*w*h)
		for y := 0; y < h; y++ {
			row := img.PixOffset(b.Min.X, b.Min.Y+y)
			copy(pix[y*4*w:(y+1)*4*w], img.Pix[row:row+4*w])
		}
	}
	return Bitmap{Width: w, Height: h, Pix: pix, Encoded: encoded, FromStore: fromStore}
}

func (b Bitmap) RGBA() *image.RGBA {
	return &image.RGBA{
		Pix:    b.Pix,
		Stride: 4 * b.Width,
		Rect:   image.Rect(0, 0, b.Width, b.Height),
	}
}

// StoreRequest persists the encoded bytes of a canonical tile.
type StoreRequest struct {
	Z    int
	X    uint32
	Y    uint32
	Data []byte
}

// StoreStats counts store activity on one worker.
type StoreStats struct {
	Hits   uint64
	Misses uint64
	Writes uint64
}

// NewRegistry returns a registry that knows every payload in this package.
func NewRegistry() *transfer.Registry {
	r := transfer.NewRegistry()
	transfer.MustRegister(r, "TileRequest", encodeTileRequest, decodeTileRequest)
	transfer.MustRegister(r, "Bitmap", encodeBitmap, decodeBitmap)
	transfer.MustRegister(r, "StoreRequest", encodeStoreRequest, decodeStoreRequest)
	transfer.MustRegister(r, "StoreStats", encodeStoreStats, decodeStoreStats)
	return r
}

func encodeTileRequest(r TileRequest, _ *transfer.TransferList) (transfer.Object, error) {
	return transfer.Object{
		"source": r.SourceID,
		"key":    r.Key,
		"zoom":   r.OverscaledZ,
		"wrap":   r.Wrap,
		"z":      r.Z,
		"x":      r.X,
		"y":      r.Y,
		"url":    r.URL,
	}, nil
}

func decodeTileRequest(o transfer.Object) (TileRequest, error) {
	var (
		r   TileRequest
		err error
	)
	if r.SourceID, err = o.String("source"); err != nil {
		return r, err
	}
	if r.Key, err = o.Uint64("key"); err != nil {
		return r, err
	}
	if r.OverscaledZ, err = o.Int("zoom"); err != nil {
		return r, err
	}
	if r.Wrap, err = o.Int("wrap"); err != nil {
		return r, err
	}
	if r.Z, err = o.Int("z"); err != nil {
		return r, err
	}
	if r.X, r.Y, err = coords(o); err != nil {
		return r, err
	}
	r.URL, err = o.String("url")
	return r, err
}

func encodeBitmap(b Bitmap, tl *transfer.TransferList) (transfer.Object, error) {
	if len(b.Pix) != 4*b.Width*b.Height {
		return nil, fmt.Errorf("%w: %dx%d with %d bytes", ErrBitmapSize, b.Width, b.Height, len(b.Pix))
	}
	tl.Add(b.Pix)
	tl.Add(b.Encoded)
	return transfer.Object{
		"width":     b.Width,
		"height":    b.Height,
		"pix":       b.Pix,
		"encoded":   b.Encoded,
		"fromStore": b.FromStore,
	}, nil
}

func decodeBitmap(o transfer.Object) (Bitmap, error) {
	var (
		b   Bitmap
		err error
	)
	if b.Width, err = o.Int("width"); err != nil {
		return b, err
	}
	if b.Height, err = o.Int("height"); err != nil {
		return b, err
	}
	if b.Pix, err = o.Bytes("pix"); err != nil {
		return b, err
	}
	if b.Encoded, err = o.Bytes("encoded"); err != nil {
		return b, err
	}
	if b.FromStore, err = o.Bool("fromStore"); err != nil {
		return b, err
	}
	if len(b.Pix) != 4*b.Width*b.Height {
		return b, fmt.Errorf("%w: %dx%d with %d bytes", ErrBitmapSize, b.Width, b.Height, len(b.Pix))
	}
	return b, nil
}

func encodeStoreRequest(r StoreRequest, tl *transfer.TransferList) (transfer.Object, error) {
	tl.Add(r.Data)
	return transfer.Object{"z": r.Z, "x": r.X, "y": r.Y, "data": r.Data}, nil
}

func decodeStoreRequest(o transfer.Object) (StoreRequest, error) {
	var (
		r   StoreRequest
		err error
	)
	if r.Z, err = o.Int("z"); err != nil {
		return r, err
	}
	if r.X, r.Y, err = coords(o); err != nil {
		return r, err
	}
	r.Data, err = o.Bytes("data")
	return r, err
}

func encodeStoreStats(s StoreStats, _ *transfer.TransferList) (transfer.Object, error) {
	return transfer.Object{"hits": s.Hits, "misses": s.Misses, "writes": s.Writes}, nil
}

func decodeStoreStats(o transfer.Object) (StoreStats, error) {
	var (
		s   StoreStats
		err error
	)
	if s.Hits, err = o.Uint64("hits"); err != nil {
		return s, err
	}
	if s.Misses, err = o.Uint64("misses"); err != nil {
		return s, err
	}
	s.Writes, err = o.Uint64("writes")
	return s, err
}

func coords(o transfer.Object) (uint32, uint32, error) {
	x, err := o.Uint64("x")
	if err != nil {
		return 0, 0, err
	}
	y, err := o.Uint64("y")
	if err != nil {
		return 0, 0, err
	}
	return uint32(x), uint32(y), nil
}
