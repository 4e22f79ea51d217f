package cache

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

const (
	smallTileSize  = 1024      // 1KB
	mediumTileSize = 10 * 1024 // 10KB
	largeTileSize  = 50 * 1024 // 50KB
)

func generateTileData(size int) []byte {
	data := make([]byte, size)
	rand.Read(data)
	return data
}

func benchKey(i, mod int) TileCacheKey {
	return TileCacheKey{X: i % mod, Y: i % mod, Z: i % 20}
}

func setupSQLiteCache(b *testing.B) TileCache {
	b.Helper()
	c, err := NewSQLiteCache(filepath.Join(b.TempDir(), "test.db"), nil)
	if err != nil {
		b.Fatalf("Failed to create SQLite cache: %v", err)
	}
	b.Cleanup(func() { c.Close() })
	return c
}

func setupMemoryCache(b *testing.B) TileCache {
	b.Helper()
	c, err := NewMemoryCache(256 << 20)
	if err != nil {
		b.Fatalf("Failed to create memory cache: %v", err)
	}
	b.Cleanup(func() { c.Close() })
	return c
}

func setupFilesystemCache(b *testing.B) TileCache {
	b.Helper()
	c, err := NewFilesystemCache(b.TempDir())
	if err != nil {
		b.Fatalf("Failed to create filesystem cache: %v", err)
	}
	return c
}

func setupRedisCache(b *testing.B) TileCache {
	b.Helper()
	mr := miniredis.RunT(b)
	c, err := NewRedisCache(RedisConfig{Addr: mr.Addr()})
	if err != nil {
		b.Fatalf("Failed to create redis cache: %v", err)
	}
	b.Cleanup(func() { c.Close() })
	return c
}

var benchBackends = []struct {
	name  string
	setup func(*testing.B) TileCache
}{
	{"SQLite", setupSQLiteCache},
	{"Memory", setupMemoryCache},
	{"Filesystem", setupFilesystemCache},
	{"Redis", setupRedisCache},
}

var benchSizes = []struct {
	name string
	size int
}{
	{"Small", smallTileSize},
	{"Large", largeTileSize},
}

func BenchmarkSet(b *testing.B) {
	ctx := context.Background()
	for _, be := range benchBackends {
		for _, sz := range benchSizes {
			b.Run(be.name+"_"+sz.name, func(b *testing.B) {
				cache := be.setup(b)
				data := generateTileData(sz.size)

				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					if err := cache.Set(ctx, benchKey(i, 1000), data); err != nil {
						b.Fatalf("Set failed: %v", err)
					}
				}
			})
		}
	}
}

func BenchmarkGet(b *testing.B) {
	ctx := context.Background()
	for _, be := range benchBackends {
		for _, sz := range benchSizes {
			b.Run(be.name+"_"+sz.name, func(b *testing.B) {
				cache := be.setup(b)
				data := generateTileData(sz.size)

				// Populate cache
				for i := 0; i < 100; i++ {
					cache.Set(ctx, benchKey(i, 100), data)
				}

				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					if _, _, err := cache.Get(ctx, benchKey(i, 100)); err != nil {
						b.Fatalf("Get failed: %v", err)
					}
				}
			})
		}
	}
}

// Benchmark mixed operations (80% reads, 20% writes - typical cache pattern)
func BenchmarkMixed(b *testing.B) {
	ctx := context.Background()
	for _, be := range benchBackends {
		b.Run(be.name, func(b *testing.B) {
			cache := be.setup(b)
			data := generateTileData(mediumTileSize)

			// Pre-populate with some data
			for i := 0; i < 50; i++ {
				cache.Set(ctx, benchKey(i, 100), data)
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				key := benchKey(i, 100)
				if i%5 == 0 {
					cache.Set(ctx, key, data)
				} else {
					cache.Get(ctx, key)
				}
			}
		})
	}
}

func BenchmarkConcurrent(b *testing.B) {
	ctx := context.Background()
	for _, be := range benchBackends {
		b.Run(be.name, func(b *testing.B) {
			cache := be.setup(b)
			data := generateTileData(mediumTileSize)

			b.RunParallel(func(pb *testing.PB) {
				i := 0
				for pb.Next() {
					key := benchKey(i, 100)
					if i%5 == 0 {
						cache.Set(ctx, key, data)
					} else {
						cache.Get(ctx, key)
					}
					i++
				}
			})
		})
	}
}
