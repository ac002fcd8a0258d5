package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.ServerPort == "" {
		t.Fatalf("expected default server port")
	}
	if cfg.BackendURL == "" {
		t.Fatalf("expected default backend url")
	}
	if cfg.LocationInterval != 5*time.Second {
		t.Fatalf("expected 5s location interval, got %v", cfg.LocationInterval)
	}
	if cfg.MediaChunkLength != 30*time.Second {
		t.Fatalf("expected 30s media chunks, got %v", cfg.MediaChunkLength)
	}
	if cfg.CountdownSeconds != 3 {
		t.Fatalf("expected 3 second countdown, got %v", cfg.CountdownSeconds)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9100")
	t.Setenv("BACKEND_URL", "http://backend.example")
	t.Setenv("OSRM_URL", "http://osrm.example")
	t.Setenv("LOCATION_INTERVAL", "2s")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg := Load()
	if cfg.ServerPort != ":9100" {
		t.Fatalf("expected override port")
	}
	if cfg.BackendURL != "http://backend.example" {
		t.Fatalf("expected override backend")
	}
	if cfg.OSRMURL != "http://osrm.example" {
		t.Fatalf("expected override osrm")
	}
	if cfg.LocationInterval != 2*time.Second {
		t.Fatalf("expected override interval")
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Fatalf("expected override redis")
	}
}
