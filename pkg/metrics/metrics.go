package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CoverTiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tilestream_cover_tiles",
		Help: "Number of tiles in the last resolved cover",
	})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilestream_cache_hits_total",
		Help: "Total number of cover tiles already resident in the tile cache",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilestream_cache_misses_total",
		Help: "Total number of cover tiles that had to be requested",
	})

	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilestream_cache_evictions_total",
		Help: "Total number of tiles evicted because the cache was at capacity",
	})

	TilesAborted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilestream_tiles_aborted_total",
		Help: "Total number of tiles aborted by proximity eviction",
	})

	TileLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilestream_tile_loads_total",
		Help: "Total number of finished tile loads by outcome",
	}, []string{"outcome"})

	SchedulerQueued = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tilestream_scheduler_queued_tasks",
		Help: "Number of tasks waiting in actor schedulers",
	})

	WorkersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tilestream_workers_active",
		Help: "Number of running worker goroutines",
	})

	StoreHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilestream_store_hits_total",
		Help: "Total number of tile byte lookups served by the persistent store",
	})

	StoreMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilestream_store_misses_total",
		Help: "Total number of tile byte lookups missing from the persistent store",
	})

	StoreWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilestream_store_writes_total",
		Help: "Total number of tile byte store operations",
	})

	UpstreamRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilestream_upstream_requests_total",
		Help: "Total number of upstream tile requests",
	})

	UpstreamLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tilestream_upstream_latency_seconds",
		Help:    "Latency of upstream tile fetches in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// Redis metrics
	RedisOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "redis_operation_duration_seconds",
		Help:    "Duration of Redis operations in seconds",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"operation"})

	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redis_errors_total",
		Help: "Total number of Redis errors",
	}, []string{"operation"})
)
