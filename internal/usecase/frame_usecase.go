package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/jaennil/guide_helper/tilestream/internal/cover"
	"github.com/jaennil/guide_helper/tilestream/internal/protocol"
	"github.com/jaennil/guide_helper/tilestream/internal/source"
	"github.com/jaennil/guide_helper/tilestream/internal/tile"
	"github.com/jaennil/guide_helper/tilestream/internal/tileid"
	"github.com/jaennil/guide_helper/tilestream/internal/transform"
	"github.com/jaennil/guide_helper/tilestream/pkg/logger"
)

// TileView is what a renderer needs to draw one covering tile.
type TileView struct {
	ID          string     `json:"id"`
	Z           int        `json:"z"`
	X           uint32     `json:"x"`
	Y           uint32     `json:"y"`
	OverscaledZ int        `json:"overscaled_z"`
	Wrap        int        `json:"wrap"`
	Status      string     `json:"status"`
	Texture     uint32     `json:"texture,omitempty"`
	Borrowed    bool       `json:"borrowed"`
	TopLeft     [2]float64 `json:"top_left"`
	Scale       float64    `json:"scale"`
}

type Frame struct {
	MaxTileZoom int          `json:"max_tile_zoom"`
	Cover       []string     `json:"cover"`
	Tiles       []TileView   `json:"tiles"`
	Applied     int          `json:"applied"`
	Source      source.Stats `json:"source"`
}

type Stats struct {
	Source source.Stats        `json:"source"`
	Store  protocol.StoreStats `json:"store"`
}

// FrameUseCase drives one tile source from camera updates. Calls are
// serialized so the source only ever sees one caller at a time.
type FrameUseCase struct {
	mu       sync.Mutex
	src      *source.Source
	resolver *cover.Resolver
	opts     cover.Options
	logger   logger.Logger
}

func NewFrameUseCase(src *source.Source, opts cover.Options, l logger.Logger) *FrameUseCase {
	return &FrameUseCase{
		src:      src,
		resolver: cover.NewResolver(),
		opts:     opts,
		logger:   logger.OrNop(l),
	}
}

// Frame resolves the cover for cam, requests its tiles and applies the
// worker replies that arrived so far. With a positive wait it keeps
// applying replies until no covering tile is loading, wait elapses or ctx
// is done.
func (uc *FrameUseCase) Frame(ctx context.Context, cam transform.Camera, wait time.Duration) (*Frame, error) {
	snap, err := transform.NewSnapshot(cam)
	if err != nil {
		return nil, err
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()

	ids := uc.resolver.Cover(snap, uc.opts)
	uc.src.RequestCover(ids)
	applied := uc.src.Update()

	if wait > 0 {
		applied += uc.settle(ctx, ids, wait)
	}

	f := &Frame{
		MaxTileZoom: cover.MaxTileZoom(snap.Zoom, uc.opts),
		Cover:       make([]string, len(ids)),
		Applied:     applied,
	}
	for i, id := range ids {
		f.Cover[i] = id.String()
	}
	for _, t := range uc.src.CoveringTiles(ids) {
		f.Tiles = append(f.Tiles, viewOf(t))
	}
	f.Source = uc.src.Stats()

	uc.logger.Debug("frame resolved",
		"zoom", cam.Zoom,
		"cover", len(ids),
		"tiles", len(f.Tiles),
		"applied", applied,
	)
	return f, nil
}

func (uc *FrameUseCase) settle(ctx context.Context, ids []tileid.OverscaledTileID, wait time.Duration) int {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	applied := 0
	for uc.loading(ids) {
		select {
		case <-uc.src.Notify():
			applied += uc.src.Update()
		case <-timer.C:
			return applied
		case <-ctx.Done():
			return applied
		}
	}
	return applied
}

func (uc *FrameUseCase) loading(ids []tileid.OverscaledTileID) bool {
	for _, id := range ids {
		if t, ok := uc.src.Tile(id); ok && t.Status == tile.Loading {
			return true
		}
	}
	return false
}

func (uc *FrameUseCase) Stats(ctx context.Context) (*Stats, error) {
	uc.mu.Lock()
	st := Stats{Source: uc.src.Stats()}
	uc.mu.Unlock()

	store, err := uc.src.StoreStats(ctx)
	if err != nil {
		return nil, err
	}
	st.Store = store
	return &st, nil
}

func viewOf(t *tile.Tile) TileView {
	c := t.ID.Canonical
	v := TileView{
		ID:          t.ID.String(),
		Z:           c.Z,
		X:           c.X,
		Y:           c.Y,
		OverscaledZ: t.ID.OverscaledZ,
		Wrap:        t.ID.Wrap,
		Status:      t.Status.String(),
		Scale:       1,
	}
	if tex, topLeft, scale, ok := t.Drawable(); ok {
		v.Texture = tex.ID
		v.Borrowed = !t.Texture.Valid()
		v.TopLeft = topLeft
		v.Scale = scale
	}
	return v
}

// Close tears the source down.
func (uc *FrameUseCase) Close() {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.src.Remove()
}
