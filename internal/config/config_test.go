package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.CounterTTL != 24*time.Hour {
		t.Fatalf("expected 24h counter TTL, got %s", cfg.CounterTTL)
	}
	if cfg.RedisURL != "" {
		t.Fatalf("expected empty redis URL by default, got %q", cfg.RedisURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LEADFLOW_PORT", "9090")
	t.Setenv("LEADFLOW_STALE_AFTER", "12h")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Port)
	}
	if cfg.StaleAfter != 12*time.Hour {
		t.Fatalf("expected 12h stale threshold, got %s", cfg.StaleAfter)
	}
	if cfg.RedisURL != "redis://localhost:6379/0" {
		t.Fatalf("unexpected redis URL %q", cfg.RedisURL)
	}
}

func TestValidate(t *testing.T) {
	cfg := Config{Port: 8080, DatabaseURL: "", CounterTTL: time.Hour, DuplicateWindow: time.Hour}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing DATABASE_URL")
	}

	cfg.DatabaseURL = "postgres://x"
	cfg.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}

	cfg.Port = 8080
	cfg.CounterTTL = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive counter TTL")
	}
}
