package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jaennil/guide_helper/tilestream/internal/cover"
	"github.com/jaennil/guide_helper/tilestream/internal/gpu"
	v1 "github.com/jaennil/guide_helper/tilestream/internal/infrastructure/http/v1"
	"github.com/jaennil/guide_helper/tilestream/internal/infrastructure/http/v1/handler"
	"github.com/jaennil/guide_helper/tilestream/internal/message"
	"github.com/jaennil/guide_helper/tilestream/internal/protocol"
	"github.com/jaennil/guide_helper/tilestream/internal/repository/cache"
	"github.com/jaennil/guide_helper/tilestream/internal/source"
	"github.com/jaennil/guide_helper/tilestream/internal/usecase"
	"github.com/jaennil/guide_helper/tilestream/internal/worker"
	"github.com/jaennil/guide_helper/tilestream/pkg/config"
	"github.com/jaennil/guide_helper/tilestream/pkg/http_server"
	"github.com/jaennil/guide_helper/tilestream/pkg/logger"
	"github.com/jaennil/guide_helper/tilestream/pkg/telemetry"
)

func Run(cfg *config.Config) {
	ctx := context.Background()

	l := logger.NewZapLogger(cfg.Logger.Level)
	defer l.Sync()
	ctx = logger.WithLogger(ctx, l)

	l.Info("starting tilestream service", "config", cfg)

	// Initialize OpenTelemetry if enabled
	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.InitTracer(telemetry.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			Environment:    cfg.Telemetry.Environment,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		}, l)
		if err != nil {
			l.Fatal("failed to initialize telemetry", "error", err)
		}
		defer func() {
			if err := shutdownTelemetry(context.Background()); err != nil {
				l.Error("failed to shutdown telemetry", "error", err)
			}
		}()
		l.Info("telemetry initialized", "service", cfg.Telemetry.ServiceName)
	}

	store, err := NewStore(cfg, l)
	if err != nil {
		l.Fatal("failed to initialize tile store", "backend", cfg.Store.Backend, "error", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			l.Error("failed to close tile store", "error", err)
		}
	}()
	l.Info("tile store initialized", "backend", cfg.Store.Backend)

	tileUseCase := usecase.NewTileUseCase(store, usecase.UpstreamConfig{
		URL:       cfg.Source.URL,
		UserAgent: cfg.Upstream.UserAgent,
		Referer:   cfg.Upstream.Referer,
		Timeout:   cfg.Workers.FetchTimeout,
	}, l.With("component", "tiles"))

	pool, frameUseCase, err := NewFramePipeline(cfg, tileUseCase, l.With("component", "frames"))
	if err != nil {
		l.Fatal("failed to initialize frame pipeline", "error", err)
	}
	defer pool.Close()
	defer frameUseCase.Close()
	l.Info("worker pool initialized", "workers", pool.Size())

	h := handler.NewHandler(validator.New(), frameUseCase, tileUseCase)
	router := v1.NewRouter(h, l, cfg.Telemetry.Enabled)

	server := http_server.NewServer(ctx, cfg.HTTP.Server, router)

	go func() {
		l.Info("starting http server", "port", cfg.HTTP.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("failed to start server", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Error("server forced to shutdown", "error", err)
	}

	l.Info("server stopped")
}

// NewStore opens the persistent tile store selected by cfg.Store.Backend.
func NewStore(cfg *config.Config, l logger.Logger) (cache.TileCache, error) {
	switch cfg.Store.Backend {
	case "memory":
		return cache.NewMemoryCache(cfg.Store.MemoryMaxCost)
	case "sqlite":
		return cache.NewSQLiteCache(cfg.Store.SQLitePath, l)
	case "redis":
		return cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
	case "filesystem":
		return cache.NewFilesystemCache(cfg.Store.FilesystemDir)
	default:
		return nil, fmt.Errorf("%w: %q", cache.ErrUnknownBackend, cfg.Store.Backend)
	}
}

// NewFramePipeline wires the worker pool, the dispatcher and the tile source
// behind a frame use case. The caller closes the use case before the pool.
func NewFramePipeline(cfg *config.Config, tiles *usecase.TileUseCase, l logger.Logger) (*worker.Pool, *usecase.FrameUseCase, error) {
	reg := protocol.NewRegistry()
	reg.RegisterError("fetch_timeout", usecase.ErrFetchTimeout)
	reg.RegisterError("bad_status", usecase.ErrBadStatus)

	pool := worker.NewPool(cfg.Workers.Cap, reg, worker.Handlers{
		Fungible: map[string]message.Handler{
			protocol.TaskLoadTile: worker.LoadTileHandler(tiles, cfg.Workers.FetchTimeout, l),
		},
		Storage: map[string]message.Handler{
			protocol.TaskStoreTile:  worker.StoreTileHandler(tiles),
			protocol.TaskStoreStats: worker.StoreStatsHandler(tiles),
		},
	}, l)

	d, err := message.NewDispatcher(pool, reg, l)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	src, err := source.New(source.Options{
		ID:       cfg.Source.ID,
		URL:      cfg.Source.URL,
		Capacity: cfg.Source.Capacity,
	}, d, gpu.NewHeadless(), l)
	if err != nil {
		d.Remove()
		pool.Close()
		return nil, nil, err
	}

	frames := usecase.NewFrameUseCase(src, cover.Options{
		MinZoom:   cfg.Source.MinZoom,
		MaxZoom:   cfg.Source.MaxZoom,
		Elevation: cfg.Source.Elevation,
	}, l)
	return pool, frames, nil
}
