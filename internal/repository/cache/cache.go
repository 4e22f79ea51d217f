// Package cache persists encoded tile bytes for the storage worker.
package cache

import (
	"context"
	"errors"

	"github.com/jaennil/guide_helper/tilestream/internal/tileid"
)

var ErrUnknownBackend = errors.New("unknown tile store backend")

type TileCacheKey struct {
	X int
	Y int
	Z int
}

func KeyFor(id tileid.CanonicalTileID) TileCacheKey {
	return TileCacheKey{X: int(id.X), Y: int(id.Y), Z: id.Z}
}

type TileCacheValue []byte

type TileCache interface {
	Get(context.Context, TileCacheKey) (TileCacheValue, bool, error)
	Set(context.Context, TileCacheKey, TileCacheValue) error
	Close() error
}
