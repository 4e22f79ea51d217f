package cache

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/jaennil/guide_helper/tilestream/internal/tileid"
)

func newRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewRedisCache(RedisConfig{Addr: mr.Addr(), TTL: time.Hour})
	if err != nil {
		t.Fatalf("NewRedisCache: %v", err)
	}
	return c, mr
}

func backends(t *testing.T) map[string]TileCache {
	t.Helper()
	mem, err := NewMemoryCache(1 << 20)
	if err != nil {
		t.Fatalf("NewMemoryCache: %v", err)
	}
	sq, err := NewSQLiteCache(filepath.Join(t.TempDir(), "tiles.db"), nil)
	if err != nil {
		t.Fatalf("NewSQLiteCache: %v", err)
	}
	fsc, err := NewFilesystemCache(filepath.Join(t.TempDir(), "tiles"))
	if err != nil {
		t.Fatalf("NewFilesystemCache: %v", err)
	}
	rc, _ := newRedisCache(t)

	all := map[string]TileCache{"memory": mem, "sqlite": sq, "filesystem": fsc, "redis": rc}
	t.Cleanup(func() {
		for _, c := range all {
			c.Close()
		}
	})
	return all
}

func TestGetSet(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			key := KeyFor(tileid.NewCanonicalTileID(12, 2345, 1234))

			if _, ok, err := c.Get(ctx, key); err != nil || ok {
				t.Fatalf("expected a miss, got ok=%v err=%v", ok, err)
			}

			if err := c.Set(ctx, key, []byte("first")); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := c.Set(ctx, key, []byte("second")); err != nil {
				t.Fatalf("Set: %v", err)
			}

			v, ok, err := c.Get(ctx, key)
			if err != nil || !ok {
				t.Fatalf("expected a hit, got ok=%v err=%v", ok, err)
			}
			if !bytes.Equal(v, []byte("second")) {
				t.Fatalf("expected the last write, got %q", v)
			}

			other := KeyFor(tileid.NewCanonicalTileID(12, 1234, 2345))
			if _, ok, _ := c.Get(ctx, other); ok {
				t.Fatal("x and y must not be swapped")
			}
		})
	}
}

func TestRedisTTL(t *testing.T) {
	c, mr := newRedisCache(t)
	defer c.Close()
	ctx := context.Background()
	key := TileCacheKey{X: 1, Y: 2, Z: 3}

	if err := c.Set(ctx, key, []byte("tile")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !mr.Exists("tile:3:1:2") {
		t.Fatal("expected the tile under tile:z:x:y")
	}

	mr.FastForward(2 * time.Hour)
	if _, ok, err := c.Get(ctx, key); err != nil || ok {
		t.Fatalf("expected the tile to expire, got ok=%v err=%v", ok, err)
	}
}

func TestRedisErrors(t *testing.T) {
	c, mr := newRedisCache(t)
	defer c.Close()
	mr.SetError("server down")

	if _, _, err := c.Get(context.Background(), TileCacheKey{}); err == nil {
		t.Fatal("expected an error")
	}
	if err := c.Set(context.Background(), TileCacheKey{}, []byte("x")); err == nil {
		t.Fatal("expected an error")
	}
}

func TestNewRedisCacheUnreachable(t *testing.T) {
	if _, err := NewRedisCache(RedisConfig{Addr: "127.0.0.1:1"}); err == nil {
		t.Fatal("expected a connection error")
	}
}

func TestSQLiteReopenKeepsTiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiles.db")
	ctx := context.Background()
	key := TileCacheKey{X: 4, Y: 5, Z: 6}

	c, err := NewSQLiteCache(path, nil)
	if err != nil {
		t.Fatalf("NewSQLiteCache: %v", err)
	}
	if err := c.Set(ctx, key, []byte("tile")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	c.Close()

	c, err = NewSQLiteCache(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c.Close()
	if v, ok, err := c.Get(ctx, key); err != nil || !ok || string(v) != "tile" {
		t.Fatalf("expected the tile to survive a reopen, got %q ok=%v err=%v", v, ok, err)
	}
}
