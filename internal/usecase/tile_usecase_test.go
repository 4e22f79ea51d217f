package usecase

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jaennil/guide_helper/tilestream/internal/repository/cache"
	"github.com/jaennil/guide_helper/tilestream/internal/tileid"
)

type mapStore struct {
	mu     sync.Mutex
	tiles  map[cache.TileCacheKey]cache.TileCacheValue
	getErr error
}

func newMapStore() *mapStore {
	return &mapStore{tiles: make(map[cache.TileCacheKey]cache.TileCacheValue)}
}

func (s *mapStore) Get(_ context.Context, k cache.TileCacheKey) (cache.TileCacheValue, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	v, ok := s.tiles[k]
	return v, ok, nil
}

func (s *mapStore) Set(_ context.Context, k cache.TileCacheKey, v cache.TileCacheValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiles[k] = v
	return nil
}

func (s *mapStore) Close() error { return nil }

func (s *mapStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tiles)
}

type upstream struct {
	*httptest.Server
	requests atomic.Int32
}

func newUpstream(t *testing.T, h http.HandlerFunc) *upstream {
	t.Helper()
	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.requests.Add(1)
		h(w, r)
	}))
	t.Cleanup(u.Close)
	return u
}

func TestFetchTileFallsBackToUpstream(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "test-agent" || r.Header.Get("Referer") != "https://example.test" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.URL.Path != "/3/1/2.png" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("tile-bytes"))
	})
	store := newMapStore()
	uc := NewTileUseCase(store, UpstreamConfig{
		URL:       up.URL + "/{z}/{x}/{y}.png",
		UserAgent: "test-agent",
		Referer:   "https://example.test",
	}, nil)

	ctx := context.Background()
	id := tileid.NewCanonicalTileID(3, 1, 2)
	data, fromStore, err := uc.FetchTile(ctx, id, id.URL(up.URL+"/{z}/{x}/{y}.png"))
	if err != nil || fromStore || string(data) != "tile-bytes" {
		t.Fatalf("expected upstream bytes, got %q fromStore=%v err=%v", data, fromStore, err)
	}

	if err := uc.StoreTile(ctx, id, data); err != nil {
		t.Fatalf("StoreTile: %v", err)
	}
	data, fromStore, err = uc.FetchTile(ctx, id, "unused")
	if err != nil || !fromStore || string(data) != "tile-bytes" {
		t.Fatalf("expected a store hit, got %q fromStore=%v err=%v", data, fromStore, err)
	}
	if up.requests.Load() != 1 {
		t.Fatalf("expected one upstream request, got %d", up.requests.Load())
	}

	st := uc.Stats()
	if st.Hits != 1 || st.Misses != 1 || st.Writes != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestFetchTileBadStatus(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	uc := NewTileUseCase(newMapStore(), UpstreamConfig{}, nil)

	_, _, err := uc.FetchTile(context.Background(), tileid.NewCanonicalTileID(0, 0, 0), up.URL)
	if !errors.Is(err, ErrBadStatus) {
		t.Fatalf("expected ErrBadStatus, got %v", err)
	}
}

func TestFetchTileTimeout(t *testing.T) {
	release := make(chan struct{})
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	uc := NewTileUseCase(newMapStore(), UpstreamConfig{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err := uc.FetchTile(ctx, tileid.NewCanonicalTileID(0, 0, 0), up.URL)
	if !errors.Is(err, ErrFetchTimeout) {
		t.Fatalf("expected ErrFetchTimeout, got %v", err)
	}
}

func TestFetchTileIgnoresStoreErrors(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fresh"))
	})
	store := newMapStore()
	store.getErr = errors.New("disk gone")
	uc := NewTileUseCase(store, UpstreamConfig{}, nil)

	data, fromStore, err := uc.FetchTile(context.Background(), tileid.NewCanonicalTileID(0, 0, 0), up.URL)
	if err != nil || fromStore || string(data) != "fresh" {
		t.Fatalf("expected upstream bytes, got %q fromStore=%v err=%v", data, fromStore, err)
	}
}

func TestTileStoresOnMiss(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tile"))
	})
	store := newMapStore()
	uc := NewTileUseCase(store, UpstreamConfig{URL: up.URL + "/{z}/{x}/{y}.png"}, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		data, err := uc.Tile(ctx, tileid.NewCanonicalTileID(2, 1, 1))
		if err != nil || string(data) != "tile" {
			t.Fatalf("Tile: %q %v", data, err)
		}
	}
	if store.len() != 1 || up.requests.Load() != 1 {
		t.Fatalf("expected one stored tile and one upstream request, got %d and %d", store.len(), up.requests.Load())
	}

	if _, err := uc.Tile(ctx, tileid.NewCanonicalTileID(2, 9, 1)); !errors.Is(err, tileid.ErrInvalidCoordinate) {
		t.Fatalf("expected ErrInvalidCoordinate, got %v", err)
	}
}
