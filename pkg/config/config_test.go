package config

import (
	"os"
	"testing"
	"time"
)

func TestNewAppliesDefaults(t *testing.T) {
	t.Setenv("HTTP_SERVER_PORT", "8080")
	t.Setenv("LOGGER_LEVEL", "debug")

	cfg, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if cfg.Source.Capacity != 50 {
		t.Errorf("expected default capacity 50, got %d", cfg.Source.Capacity)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("expected memory store backend, got %q", cfg.Store.Backend)
	}
	if cfg.Workers.FetchTimeout != 5*time.Second {
		t.Errorf("expected 5s fetch timeout, got %s", cfg.Workers.FetchTimeout)
	}
	if cfg.HTTP.Server.ReadTimeout != 15*time.Second {
		t.Errorf("expected 15s read timeout, got %s", cfg.HTTP.Server.ReadTimeout)
	}
}

func TestNewRequiresPort(t *testing.T) {
	t.Setenv("HTTP_SERVER_PORT", "")
	os.Unsetenv("HTTP_SERVER_PORT")
	t.Setenv("LOGGER_LEVEL", "info")

	if _, err := New(); err == nil {
		t.Fatal("expected error for missing HTTP_SERVER_PORT")
	}
}

func TestNewOverridesSource(t *testing.T) {
	t.Setenv("HTTP_SERVER_PORT", "9000")
	t.Setenv("LOGGER_LEVEL", "info")
	t.Setenv("SOURCE_MAX_ZOOM", "14")
	t.Setenv("SOURCE_ELEVATION", "true")
	t.Setenv("WORKERS_CAP", "2")

	cfg, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if cfg.Source.MaxZoom != 14 || !cfg.Source.Elevation || cfg.Workers.Cap != 2 {
		t.Errorf("unexpected overrides: %+v %+v", cfg.Source, cfg.Workers)
	}
}
