// Package source keeps the tiles of one raster source: a bounded LRU of
// tile resources, loaded through the worker dispatcher, with ancestor
// imagery standing in while a tile is pending.
package source

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/jaennil/guide_helper/tilestream/internal/gpu"
	"github.com/jaennil/guide_helper/tilestream/internal/message"
	"github.com/jaennil/guide_helper/tilestream/internal/protocol"
	"github.com/jaennil/guide_helper/tilestream/internal/tile"
	"github.com/jaennil/guide_helper/tilestream/internal/tileid"
	"github.com/jaennil/guide_helper/tilestream/pkg/logger"
	"github.com/jaennil/guide_helper/tilestream/pkg/metrics"
)

const DefaultCapacity = 50

var (
	ErrInvalidCapacity = errors.New("tile cache capacity must be positive")
	ErrUnexpectedReply = errors.New("unexpected load tile reply")
)

// Dispatcher is the part of message.Dispatcher a source uses.
type Dispatcher interface {
	Actor() message.Sender
	StorageActor() message.Sender
	Ready() bool
	Remove()
}

type Options struct {
	ID       string
	URL      string
	Capacity int
}

type completion struct {
	key    uint64
	seq    uint64
	bitmap *protocol.Bitmap
	err    error
}

// Source is driven from a single goroutine: RequestCover, Update,
// CoveringTiles, AbortTile and Remove must not run concurrently. Worker
// replies are queued and applied by Update.
type Source struct {
	id         string
	url        string
	gl         gpu.Context
	dispatcher Dispatcher
	log        logger.Logger
	capacity   int
	cache      *simplelru.LRU[uint64, *tile.Tile]

	mu     sync.Mutex
	done   []completion
	notify chan struct{}
}

func New(opts Options, d Dispatcher, gl gpu.Context, l logger.Logger) (*Source, error) {
	if opts.Capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, opts.Capacity)
	}
	s := &Source{
		id:         opts.ID,
		url:        opts.URL,
		gl:         gl,
		dispatcher: d,
		log:        logger.OrNop(l),
		capacity:   opts.Capacity,
		notify:     make(chan struct{}, 1),
	}
	cache, err := simplelru.NewLRU(opts.Capacity, s.onEvict)
	if err != nil {
		return nil, fmt.Errorf("create tile cache: %w", err)
	}
	s.cache = cache
	return s, nil
}

func (s *Source) ID() string {
	return s.id
}

// RequestCover makes sure every id has a tile, starting loads for the
// missing ones, then aborts cached tiles far away from ids[0]. ids must be
// sorted nearest first.
func (s *Source) RequestCover(ids []tileid.OverscaledTileID) {
	metrics.CoverTiles.Set(float64(len(ids)))

	for _, id := range ids {
		key := id.Key()
		if t, ok := s.cache.Get(key); ok {
			metrics.CacheHits.Inc()
			if t.Status == tile.Ready {
				s.load(t)
			}
			continue
		}
		metrics.CacheMisses.Inc()

		t := tile.New(id, s.gl)
		if ancestor := s.loadedAncestor(id); ancestor != nil {
			t.Borrow(ancestor)
		}
		if s.cache.Add(key, t) {
			metrics.CacheEvictions.Inc()
		}
		s.load(t)
	}

	if len(ids) > 0 {
		s.abortDistant(ids)
	}
}

// loadedAncestor walks the cache from most to least recently used and
// returns the deepest loaded tile covering id.
func (s *Source) loadedAncestor(id tileid.OverscaledTileID) *tile.Tile {
	var best *tile.Tile
	keys := s.cache.Keys()
	for i := len(keys) - 1; i >= 0; i-- {
		t, ok := s.cache.Peek(keys[i])
		if !ok || t.Status != tile.Loaded || !id.IsChildOf(t.ID) {
			continue
		}
		if best == nil || t.ID.OverscaledZ > best.ID.OverscaledZ {
			best = t
		}
	}
	return best
}

func (s *Source) load(t *tile.Tile) {
	id := t.ID
	key := id.Key()
	err := t.Load(func(seq uint64) (tile.Canceler, error) {
		req := protocol.NewTileRequest(s.id, id, s.url)
		md := &message.Metadata{Type: "message", Zoom: id.OverscaledZ}
		c, err := s.dispatcher.Actor().Send(protocol.TaskLoadTile, req, func(v any, err error) {
			s.complete(key, seq, v, err)
		}, false, md)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
	if err != nil {
		s.log.Warn("tile load not started", "source", s.id, "tile", id.String(), "error", err)
		metrics.TileLoads.WithLabelValues(tile.Errored.String()).Inc()
	}
}

// complete runs on an actor goroutine.
func (s *Source) complete(key, seq uint64, v any, err error) {
	c := completion{key: key, seq: seq, err: err}
	if err == nil {
		bm, ok := v.(protocol.Bitmap)
		if ok {
			c.bitmap = &bm
		} else {
			c.err = fmt.Errorf("%w: %T", ErrUnexpectedReply, v)
		}
	}

	s.mu.Lock()
	s.done = append(s.done, c)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Notify is signalled when worker replies are waiting for Update.
func (s *Source) Notify() <-chan struct{} {
	return s.notify
}

// Update applies queued worker replies and returns how many changed a
// tile. Replies for tiles that were evicted, aborted or reloaded since are
// dropped. Freshly fetched imagery is handed to the storage worker.
func (s *Source) Update() int {
	s.mu.Lock()
	done := s.done
	s.done = nil
	s.mu.Unlock()

	applied := 0
	for _, c := range done {
		t, ok := s.cache.Peek(c.key)
		if !ok {
			continue
		}
		res := tile.Result{Seq: c.seq, Err: c.err}
		if c.bitmap != nil {
			res.Image = c.bitmap.RGBA()
		}
		if !t.Finish(res) {
			continue
		}
		applied++
		metrics.TileLoads.WithLabelValues(t.Status.String()).Inc()

		if t.Status == tile.Errored {
			s.log.Warn("tile load failed", "source", s.id, "tile", t.ID.String(), "error", t.Err)
			continue
		}
		if c.bitmap != nil && !c.bitmap.FromStore && len(c.bitmap.Encoded) > 0 {
			s.persist(t.ID.Canonical, c.bitmap.Encoded)
		}
	}
	return applied
}

func (s *Source) persist(id tileid.CanonicalTileID, data []byte) {
	req := protocol.StoreRequest{Z: id.Z, X: id.X, Y: id.Y, Data: data}
	_, err := s.dispatcher.StorageActor().Send(protocol.TaskStoreTile, req, func(_ any, err error) {
		if err != nil {
			s.log.Warn("tile not stored", "source", s.id, "tile", id.String(), "error", err)
		}
	}, false, nil)
	if err != nil {
		s.log.Warn("tile not stored", "source", s.id, "tile", id.String(), "error", err)
	}
}

func (s *Source) abortDistant(ids []tileid.OverscaledTileID) {
	nearest := ids[0]
	wanted := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		wanted[id.Key()] = struct{}{}
	}

	for _, key := range s.cache.Keys() {
		if _, ok := wanted[key]; ok {
			continue
		}
		t, ok := s.cache.Peek(key)
		if !ok || !ShouldAbort(t.ID, nearest) {
			continue
		}
		s.log.Debug("aborting distant tile", "source", s.id, "tile", t.ID.String(), "nearest", nearest.String())
		s.cache.Remove(key)
		metrics.TilesAborted.Inc()
	}
}

// ShouldAbort reports whether id is too far from nearest, in zoom or in
// tiles, to be worth keeping.
func ShouldAbort(id, nearest tileid.OverscaledTileID) bool {
	if id.OverscaledZ < 3 {
		return false
	}
	dz := id.OverscaledZ - nearest.OverscaledZ
	if dz > 2 || dz < -10 {
		return true
	}

	// Compare canonical positions at the nearest tile's canonical zoom,
	// with world copies laid side by side.
	x, y := unwrapped(id, nearest.Canonical.Z)
	nx, ny := unwrapped(nearest, nearest.Canonical.Z)
	tolerance := math.Max(100, math.Exp2(math.Abs(float64(dz)))/2)
	return math.Abs(x-nx)+math.Abs(y-ny) > tolerance
}

func unwrapped(id tileid.OverscaledTileID, z int) (x, y float64) {
	c := id.Canonical
	scale := math.Exp2(float64(z - c.Z))
	x = (float64(c.X) + float64(id.Wrap)*math.Exp2(float64(c.Z))) * scale
	y = float64(c.Y) * scale
	return math.Floor(x), math.Floor(y)
}

// CoveringTiles returns the cached tiles among ids, in the order of ids.
func (s *Source) CoveringTiles(ids []tileid.OverscaledTileID) []*tile.Tile {
	tiles := make([]*tile.Tile, 0, len(ids))
	for _, id := range ids {
		if t, ok := s.cache.Get(id.Key()); ok {
			tiles = append(tiles, t)
		}
	}
	return tiles
}

// Tile returns the cached tile for id without touching its recency.
func (s *Source) Tile(id tileid.OverscaledTileID) (*tile.Tile, bool) {
	return s.cache.Peek(id.Key())
}

// AbortTile stops loading id and frees its texture. The tile stays cached
// and is reloaded the next time a cover asks for it.
func (s *Source) AbortTile(id tileid.OverscaledTileID) bool {
	t, ok := s.cache.Peek(id.Key())
	if !ok {
		return false
	}
	tex := t.Texture
	t.Abort()
	s.releaseBorrows(tex)
	return true
}

// Remove drops every tile and detaches from the workers.
func (s *Source) Remove() {
	s.cache.Purge()
	s.mu.Lock()
	s.done = nil
	s.mu.Unlock()
	s.dispatcher.Remove()
}

func (s *Source) onEvict(_ uint64, t *tile.Tile) {
	tex := t.Texture
	t.Abort()
	s.releaseBorrows(tex)
}

func (s *Source) releaseBorrows(tex gpu.Texture) {
	if !tex.Valid() {
		return
	}
	for _, key := range s.cache.Keys() {
		if other, ok := s.cache.Peek(key); ok {
			other.ReleaseBorrow(tex)
		}
	}
}

type Stats struct {
	Size     int `json:"size"`
	Capacity int `json:"capacity"`
	Ready    int `json:"ready"`
	Loading  int `json:"loading"`
	Loaded   int `json:"loaded"`
	Errored  int `json:"errored"`
}

func (s *Source) Stats() Stats {
	st := Stats{Size: s.cache.Len(), Capacity: s.capacity}
	for _, key := range s.cache.Keys() {
		t, ok := s.cache.Peek(key)
		if !ok {
			continue
		}
		switch t.Status {
		case tile.Ready:
			st.Ready++
		case tile.Loading:
			st.Loading++
		case tile.Loaded:
			st.Loaded++
		case tile.Errored:
			st.Errored++
		}
	}
	return st
}

// StoreStats asks the storage worker for its counters.
func (s *Source) StoreStats(ctx context.Context) (protocol.StoreStats, error) {
	v, err := s.dispatcher.StorageActor().Request(ctx, protocol.TaskStoreStats, nil, false, nil)
	if err != nil {
		return protocol.StoreStats{}, err
	}
	st, ok := v.(protocol.StoreStats)
	if !ok {
		return protocol.StoreStats{}, fmt.Errorf("%w: %T", ErrUnexpectedReply, v)
	}
	return st, nil
}
