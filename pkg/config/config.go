package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		HTTP      HTTP      `envPrefix:"HTTP_"`
		Logger    Logger    `envPrefix:"LOGGER_"`
		Telemetry Telemetry `envPrefix:"TELEMETRY_"`
		Redis     Redis     `envPrefix:"REDIS_"`
		Store     Store     `envPrefix:"STORE_"`
		Source    Source    `envPrefix:"SOURCE_"`
		Workers   Workers   `envPrefix:"WORKERS_"`
		Upstream  Upstream  `envPrefix:"UPSTREAM_"`
	}

	HTTP struct {
		Server  Server        `envPrefix:"SERVER_"`
		Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
	}

	Server struct {
		Port         string        `env:"PORT,required"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
		WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
		IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	}

	Logger struct {
		Level string `env:"LEVEL,required"`
	}

	Telemetry struct {
		Enabled        bool   `env:"ENABLED" envDefault:"false"`
		ServiceName    string `env:"SERVICE_NAME" envDefault:"guide-helper-tilestream"`
		ServiceVersion string `env:"SERVICE_VERSION" envDefault:"1.0.0"`
		Environment    string `env:"ENVIRONMENT" envDefault:"production"`
		OTLPEndpoint   string `env:"OTLP_ENDPOINT" envDefault:"otel-collector.observability.svc.cluster.local:4317"`
	}

	Redis struct {
		Addr     string        `env:"ADDR" envDefault:"localhost:6379"`
		Password string        `env:"PASSWORD" envDefault:""`
		DB       int           `env:"DB" envDefault:"0"`
		TTL      time.Duration `env:"TTL" envDefault:"24h"`
	}

	// Store selects where the storage worker persists raw tile bytes.
	Store struct {
		Backend       string `env:"BACKEND" envDefault:"memory"`
		SQLitePath    string `env:"SQLITE_PATH" envDefault:"file:tiles.db?cache=shared&mode=memory"`
		FilesystemDir string `env:"FILESYSTEM_DIR" envDefault:"./tiles"`
		MemoryMaxCost int64  `env:"MEMORY_MAX_COST" envDefault:"268435456"`
	}

	Source struct {
		ID        string `env:"ID" envDefault:"raster"`
		URL       string `env:"URL" envDefault:"https://tile.openstreetmap.org/{z}/{x}/{y}.png"`
		Capacity  int    `env:"CAPACITY" envDefault:"50"`
		MinZoom   int    `env:"MIN_ZOOM" envDefault:"0"`
		MaxZoom   int    `env:"MAX_ZOOM" envDefault:"19"`
		Elevation bool   `env:"ELEVATION" envDefault:"false"`
	}

	Workers struct {
		Cap          int           `env:"CAP" envDefault:"4"`
		FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"5s"`
	}

	Upstream struct {
		UserAgent string `env:"USER_AGENT" envDefault:"GuideHelper/1.0 (https://github.com/jaennil/guide_helper)"`
		Referer   string `env:"REFERER" envDefault:"https://guidehelper.ru.tuna.am"`
	}
)

func New() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Printf("NOTICE: .env file not found or cannot be loaded: %v\n", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
