package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jaennil/guide_helper/tilestream/internal/protocol"
	"github.com/jaennil/guide_helper/tilestream/internal/repository/cache"
	"github.com/jaennil/guide_helper/tilestream/internal/tileid"
	"github.com/jaennil/guide_helper/tilestream/pkg/logger"
	"github.com/jaennil/guide_helper/tilestream/pkg/metrics"
	"github.com/jaennil/guide_helper/tilestream/pkg/telemetry"
)

var (
	ErrFetchTimeout = errors.New("tile fetch timed out")
	ErrBadStatus    = errors.New("upstream returned non-200 status")
)

type UpstreamConfig struct {
	URL       string
	UserAgent string
	Referer   string
	Timeout   time.Duration
}

// TileUseCase reads tiles from the store, falling back to the upstream
// tile server, and writes fetched tiles back to the store.
type TileUseCase struct {
	store      cache.TileCache
	upstream   UpstreamConfig
	httpClient *http.Client
	logger     logger.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
	writes atomic.Uint64
}

func NewTileUseCase(store cache.TileCache, cfg UpstreamConfig, l logger.Logger) *TileUseCase {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &TileUseCase{
		store:    store,
		upstream: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.OrNop(l),
	}
}

// FetchTile returns the encoded tile and whether it came from the store.
// A store failure is logged and treated as a miss.
func (uc *TileUseCase) FetchTile(ctx context.Context, id tileid.CanonicalTileID, url string) ([]byte, bool, error) {
	key := cache.KeyFor(id)
	data, exists, err := uc.store.Get(ctx, key)
	switch {
	case err != nil:
		uc.logger.Warn("store lookup failed, will fetch from upstream", "tile", id.String(), "error", err)
		metrics.StoreMisses.Inc()
		uc.misses.Add(1)
	case exists && len(data) > 0:
		metrics.StoreHits.Inc()
		uc.hits.Add(1)
		return data, true, nil
	default:
		metrics.StoreMisses.Inc()
		uc.misses.Add(1)
	}

	data, err = uc.fetchUpstream(ctx, id, url)
	if err != nil {
		return nil, false, err
	}
	return data, false, nil
}

func (uc *TileUseCase) fetchUpstream(ctx context.Context, id tileid.CanonicalTileID, url string) ([]byte, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "upstream.FetchTile")
	defer span.End()
	span.SetAttributes(
		attribute.String("tile.id", id.String()),
		attribute.String("http.url", url),
	)

	uc.logger.Debug("fetching from upstream", "url", url)
	metrics.UpstreamRequests.Inc()
	start := time.Now()
	defer func() {
		metrics.UpstreamLatency.Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set required headers for OpenStreetMap tile usage policy
	if uc.upstream.UserAgent != "" {
		req.Header.Set("User-Agent", uc.upstream.UserAgent)
	}
	if uc.upstream.Referer != "" {
		req.Header.Set("Referer", uc.upstream.Referer)
	}

	resp, err := uc.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %s", ErrFetchTimeout, url)
		}
		return nil, fmt.Errorf("failed to fetch tile from upstream: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, resp.Status)
		return nil, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %s", ErrFetchTimeout, url)
		}
		return nil, fmt.Errorf("failed to read tile data: %w", err)
	}

	uc.logger.Debug("fetched tile from upstream", "tile", id.String(), "size", len(data))
	return data, nil
}

func (uc *TileUseCase) StoreTile(ctx context.Context, id tileid.CanonicalTileID, data []byte) error {
	uc.logger.Debug("storing tile", "tile", id.String(), "size", len(data))
	if err := uc.store.Set(ctx, cache.KeyFor(id), data); err != nil {
		uc.logger.Error("failed to store tile", "tile", id.String(), "error", err)
		return err
	}
	metrics.StoreWrites.Inc()
	uc.writes.Add(1)
	return nil
}

// Tile serves a tile from the configured upstream template, storing it on
// the way.
func (uc *TileUseCase) Tile(ctx context.Context, id tileid.CanonicalTileID) ([]byte, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	data, fromStore, err := uc.FetchTile(ctx, id, id.URL(uc.upstream.URL))
	if err != nil {
		return nil, err
	}
	if !fromStore {
		if err := uc.StoreTile(ctx, id, data); err != nil {
			uc.logger.Warn("failed to store tile", "tile", id.String(), "error", err)
		}
	}
	return data, nil
}

func (uc *TileUseCase) Stats() protocol.StoreStats {
	return protocol.StoreStats{
		Hits:   uc.hits.Load(),
		Misses: uc.misses.Load(),
		Writes: uc.writes.Load(),
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
