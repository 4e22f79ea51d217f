package protocol

import (
	"errors"
	"image"
	"testing"

	"github.com/jaennil/guide_helper/tilestream/internal/tileid"
	"github.com/jaennil/guide_helper/tilestream/internal/transfer"
)

func TestTileRequestCarriesZoom(t *testing.T) {
	reg := NewRegistry()
	id := tileid.NewOverscaledTileID(12, -1, 10, 300, 400)
	req := NewTileRequest("osm", id, "https://tile.example/{z}/{x}/{y}.png")
	if req.URL != "https://tile.example/10/300/400.png" {
		t.Fatalf("unexpected url %s", req.URL)
	}

	wire, err := reg.Serialize(req, &transfer.TransferList{})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if z, err := wire.(transfer.Object).Int("zoom"); err != nil || z != 12 {
		t.Fatalf("expected zoom 12 on the wire, got %d (%v)", z, err)
	}

	back, err := reg.Deserialize(wire)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	got := back.(TileRequest)
	if got != req {
		t.Fatalf("expected %+v, got %+v", req, got)
	}
	if !got.TileID().Equals(id) || got.TileID().Key() != id.Key() {
		t.Fatalf("expected %s back, got %s", id, got.TileID())
	}
}

func TestBitmapTransfersBuffers(t *testing.T) {
	reg := NewRegistry()
	img := image.NewRGBA(image.Rect(0, 0, 2, 3))
	img.Pix[5] = 200
	bm := NewBitmap(img, []byte("png"), false)

	var tl transfer.TransferList
	wire, err := reg.Serialize(bm, &tl)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if tl.Len() != 2 {
		t.Fatalf("expected pixels and encoded bytes transferred, got %d buffers", tl.Len())
	}

	back, err := reg.Deserialize(wire)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	rgba := back.(Bitmap).RGBA()
	if rgba.Bounds().Dx() != 2 || rgba.Bounds().Dy() != 3 || rgba.Pix[5] != 200 {
		t.Fatalf("unexpected bitmap %v", rgba.Bounds())
	}
}

func TestNewBitmapCopiesSubImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Pix[img.PixOffset(2, 2)] = 9
	sub := img.SubImage(image.Rect(2, 2, 4, 4)).(*image.RGBA)

	bm := NewBitmap(sub, nil, true)
	if bm.Width != 2 || bm.Height != 2 || len(bm.Pix) != 16 || bm.Pix[0] != 9 {
		t.Fatalf("unexpected bitmap %dx%d %v", bm.Width, bm.Height, bm.Pix[:4])
	}
}

func TestBitmapSizeMismatch(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Serialize(Bitmap{Width: 4, Height: 4, Pix: make([]byte, 3)}, &transfer.TransferList{})
	if !errors.Is(err, ErrBitmapSize) {
		t.Fatalf("expected ErrBitmapSize, got %v", err)
	}

	_, err = reg.Deserialize(transfer.Object{
		transfer.NameKey: "Bitmap",
		"width":          1,
		"height":         1,
		"pix":            []byte{1},
	})
	if !errors.Is(err, ErrBitmapSize) {
		t.Fatalf("expected ErrBitmapSize, got %v", err)
	}
}

func TestStorePayloads(t *testing.T) {
	reg := NewRegistry()
	var tl transfer.TransferList
	wire, err := reg.Serialize(StoreRequest{Z: 3, X: 1, Y: 2, Data: []byte{1, 2}}, &tl)
	if err != nil || tl.Len() != 1 {
		t.Fatalf("Serialize: %v, %d buffers", err, tl.Len())
	}
	back, err := reg.Deserialize(wire)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if sr := back.(StoreRequest); sr.Z != 3 || sr.X != 1 || sr.Y != 2 || len(sr.Data) != 2 {
		t.Fatalf("unexpected %+v", sr)
	}

	wire, err = reg.Serialize(StoreStats{Hits: 4, Misses: 1, Writes: 2}, nil)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	back, err = reg.Deserialize(wire)
	if err != nil || back.(StoreStats) != (StoreStats{Hits: 4, Misses: 1, Writes: 2}) {
		t.Fatalf("unexpected %v (%v)", back, err)
	}
}
