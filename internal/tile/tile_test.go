package tile

import (
	"errors"
	"image"
	"testing"

	"github.com/jaennil/guide_helper/tilestream/internal/gpu"
	"github.com/jaennil/guide_helper/tilestream/internal/tileid"
)

type countingCancel struct{ n int }

func (c *countingCancel) Cancel() { c.n++ }

func startOK(c *countingCancel) StartFunc {
	return func(uint64) (Canceler, error) { return c, nil }
}

func rgba(w, h int) *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

func TestTileLoadLifecycle(t *testing.T) {
	gl := gpu.NewHeadless()
	tl := New(tileid.NewOverscaledTileID(3, 0, 3, 1, 2), gl)
	c := &countingCancel{}

	if err := tl.Load(startOK(c)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tl.Status != Loading {
		t.Fatalf("expected loading, got %s", tl.Status)
	}
	if err := tl.Load(startOK(c)); !errors.Is(err, ErrAlreadyLoading) {
		t.Fatalf("expected ErrAlreadyLoading, got %v", err)
	}

	if !tl.Finish(Result{Seq: tl.Seq(), Image: rgba(256, 256)}) {
		t.Fatal("expected the result to be applied")
	}
	if tl.Status != Loaded || tl.Width != 256 || !tl.Texture.Valid() {
		t.Fatalf("unexpected tile after load: %+v", tl)
	}

	tl.Unload()
	if tl.Status != Ready || tl.Texture.Valid() {
		t.Fatalf("expected a ready tile without texture, got %+v", tl)
	}
	if gl.Live() != 0 {
		t.Fatalf("expected the texture to be deleted, %d live", gl.Live())
	}
}

func TestTileErroredKeepsFallback(t *testing.T) {
	gl := gpu.NewHeadless()
	tl := New(tileid.NewOverscaledTileID(1, 0, 1, 0, 0), gl)

	if err := tl.Load(startOK(&countingCancel{})); err != nil {
		t.Fatalf("Load: %v", err)
	}
	boom := errors.New("upstream returned status 500")
	tl.Finish(Result{Seq: tl.Seq(), Err: boom})

	if tl.Status != Errored || !errors.Is(tl.Err, boom) {
		t.Fatalf("expected errored tile, got %s (%v)", tl.Status, tl.Err)
	}
	if !tl.Texture.Valid() || tl.Width != 1 || tl.Height != 1 {
		t.Fatalf("expected a 1x1 fallback texture, got %+v", tl.Texture)
	}

	// An errored tile can be loaded again and frees its fallback.
	if err := tl.Load(startOK(&countingCancel{})); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if gl.Live() != 0 {
		t.Fatalf("fallback texture leaked, %d live", gl.Live())
	}
}

func TestTileStartFailure(t *testing.T) {
	tl := New(tileid.NewOverscaledTileID(0, 0, 0, 0, 0), gpu.NewHeadless())
	boom := errors.New("no worker")
	err := tl.Load(func(uint64) (Canceler, error) { return nil, boom })
	if !errors.Is(err, boom) || tl.Status != Errored {
		t.Fatalf("expected errored tile with %v, got %s %v", boom, tl.Status, err)
	}
}

func TestTileUnloadWhileLoadingCancels(t *testing.T) {
	tl := New(tileid.NewOverscaledTileID(4, 0, 4, 3, 3), gpu.NewHeadless())
	c := &countingCancel{}
	if err := tl.Load(startOK(c)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	seq := tl.Seq()

	tl.Unload()
	tl.Unload()
	if c.n != 1 {
		t.Fatalf("expected a single cancel, got %d", c.n)
	}
	if tl.Finish(Result{Seq: seq, Image: rgba(1, 1)}) {
		t.Fatal("late result must be dropped after unload")
	}

	if err := tl.Load(startOK(c)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tl.Finish(Result{Seq: seq, Image: rgba(1, 1)}) {
		t.Fatal("result of the previous attempt must be dropped")
	}
	if tl.Status != Loading {
		t.Fatalf("expected tile still loading, got %s", tl.Status)
	}
}

func TestTileBorrowsAncestor(t *testing.T) {
	gl := gpu.NewHeadless()
	parent := New(tileid.NewOverscaledTileID(3, 0, 3, 2, 3), gl)
	if err := parent.Load(startOK(&countingCancel{})); err != nil {
		t.Fatalf("Load: %v", err)
	}
	parent.Finish(Result{Seq: parent.Seq(), Image: rgba(4, 4)})

	child := New(tileid.NewOverscaledTileID(5, 0, 5, 10, 13), gl)
	child.Borrow(parent)

	tex, topLeft, scale, ok := child.Drawable()
	if !ok || tex.ID != parent.Texture.ID {
		t.Fatalf("expected the parent texture, got %+v", tex)
	}
	if scale != 0.25 || topLeft != [2]float64{0.5, 0.25} {
		t.Fatalf("unexpected placement %v scale %f", topLeft, scale)
	}

	child.ReleaseBorrow(parent.Texture)
	if _, _, _, ok := child.Drawable(); ok {
		t.Fatal("expected nothing to draw after the borrow is released")
	}
}
