package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// FilesystemCache stores tiles as dir/z/x/y.
type FilesystemCache struct {
	dir string
}

func NewFilesystemCache(dir string) (*FilesystemCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create tile dir: %w", err)
	}
	return &FilesystemCache{dir: dir}, nil
}

var _ TileCache = (*FilesystemCache)(nil)

func (c *FilesystemCache) Get(_ context.Context, k TileCacheKey) (TileCacheValue, bool, error) {
	content, err := os.ReadFile(c.pathFor(k))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return content, true, nil
}

// Set writes through a temp file so readers never see a partial tile.
func (c *FilesystemCache) Set(_ context.Context, k TileCacheKey, v TileCacheValue) error {
	path := c.pathFor(k)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), ".tile-*")
	if err != nil {
		return err
	}
	if _, err := f.Write(v); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return err
	}
	return os.Rename(f.Name(), path)
}

func (c *FilesystemCache) Close() error {
	return nil
}

func (c *FilesystemCache) pathFor(k TileCacheKey) string {
	return filepath.Join(c.dir, strconv.Itoa(k.Z), strconv.Itoa(k.X), strconv.Itoa(k.Y))
}
