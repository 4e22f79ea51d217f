package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/jaennil/guide_helper/tilestream/internal/message"
	"github.com/jaennil/guide_helper/tilestream/internal/protocol"
	"github.com/jaennil/guide_helper/tilestream/internal/tileid"
	"github.com/jaennil/guide_helper/tilestream/pkg/logger"
)

var (
	ErrBadPayload = errors.New("unexpected task payload")
	ErrDecode     = errors.New("tile image could not be decoded")
)

// TileFetcher returns the encoded bytes of a tile and whether they came
// from the persistent store.
type TileFetcher interface {
	FetchTile(ctx context.Context, id tileid.CanonicalTileID, url string) ([]byte, bool, error)
}

// TileStore persists encoded tiles.
type TileStore interface {
	StoreTile(ctx context.Context, id tileid.CanonicalTileID, data []byte) error
	Stats() protocol.StoreStats
}

// LoadTileHandler fetches a tile within timeout and decodes it to RGBA.
func LoadTileHandler(f TileFetcher, timeout time.Duration, l logger.Logger) message.Handler {
	l = logger.OrNop(l)
	return func(ctx context.Context, payload any) (any, error) {
		req, ok := payload.(protocol.TileRequest)
		if !ok {
			return nil, fmt.Errorf("%w: %T", ErrBadPayload, payload)
		}
		id := req.TileID().Canonical

		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		start := time.Now()
		data, fromStore, err := f.FetchTile(ctx, id, req.URL)
		if err != nil {
			l.Warn("tile fetch failed", "tile", id.String(), "url", req.URL, "error", err)
			return nil, err
		}
		img, err := Decode(data)
		if err != nil {
			l.Warn("tile decode failed", "tile", id.String(), "bytes", len(data), "error", err)
			return nil, err
		}
		l.Debug("tile loaded",
			"tile", id.String(),
			"from_store", fromStore,
			"duration", time.Since(start),
		)
		return protocol.NewBitmap(img, data, fromStore), nil
	}
}

// StoreTileHandler persists the bytes of a StoreRequest.
func StoreTileHandler(s TileStore) message.Handler {
	return func(ctx context.Context, payload any) (any, error) {
		req, ok := payload.(protocol.StoreRequest)
		if !ok {
			return nil, fmt.Errorf("%w: %T", ErrBadPayload, payload)
		}
		id := tileid.NewCanonicalTileID(req.Z, req.X, req.Y)
		if err := id.Validate(); err != nil {
			return nil, err
		}
		return nil, s.StoreTile(ctx, id, req.Data)
	}
}

func StoreStatsHandler(s TileStore) message.Handler {
	return func(context.Context, any) (any, error) {
		return s.Stats(), nil
	}
}

// Decode decodes png, jpeg or webp bytes into an RGBA image at origin 0,0.
func Decode(data []byte) (*image.RGBA, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba, nil
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst, nil
}
