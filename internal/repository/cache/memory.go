package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/jaennil/guide_helper/tilestream/internal/tileid"
)

const memoryTTL = time.Hour

// MemoryCache keeps tiles in a cost bounded ristretto cache, the cost of a
// tile being its size in bytes.
type MemoryCache struct {
	c *ristretto.Cache[uint64, TileCacheValue]
}

func NewMemoryCache(maxCost int64) (*MemoryCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[uint64, TileCacheValue]{
		NumCounters: 100_000,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create memory cache: %w", err)
	}
	return &MemoryCache{c: c}, nil
}

var _ TileCache = (*MemoryCache)(nil)

func (c *MemoryCache) Get(_ context.Context, k TileCacheKey) (TileCacheValue, bool, error) {
	v, ok := c.c.Get(memoryKey(k))
	return v, ok, nil
}

// Set waits for the write to be applied so a following Get sees it.
// Ristretto may still reject the tile under cost pressure.
func (c *MemoryCache) Set(_ context.Context, k TileCacheKey, v TileCacheValue) error {
	cost := int64(len(v))
	if cost == 0 {
		cost = 1
	}
	c.c.SetWithTTL(memoryKey(k), v, cost, memoryTTL)
	c.c.Wait()
	return nil
}

func (c *MemoryCache) Close() error {
	c.c.Close()
	return nil
}

func memoryKey(k TileCacheKey) uint64 {
	return tileid.NewCanonicalTileID(k.Z, uint32(k.X), uint32(k.Y)).Key()
}
