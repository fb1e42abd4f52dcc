package config

import (
	"testing"
	"time"

	"github.com/iliyamo/training-booking/internal/database"
)

func TestParseEnvDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/tb.db")
	t.Setenv("CANCEL_CUTOFF", "6h")

	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("ParseEnv: %v", err)
	}
	if cfg.Port != "8080" || cfg.JWTSecret != "s3cret" || !cfg.EventsEnabled {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Policy.CancelCutoff != 6*time.Hour || cfg.Policy.AutobanHorizon != 2*time.Hour || cfg.Policy.EnrollCutoff != 0 {
		t.Fatalf("policy = %+v", cfg.Policy)
	}
	opts := cfg.DatabaseOptions()
	if database.Dialect(opts.Driver) != database.SQLite || opts.SQLitePath != "/tmp/tb.db" {
		t.Fatalf("database options = %+v", opts)
	}
}

func TestParseEnvRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	var cfg Config
	if err := ParseEnv(&cfg); err == nil {
		t.Fatalf("ParseEnv without JWT_SECRET succeeded")
	}
}

func TestRateLimitNormalize(t *testing.T) {
	got := RateLimitConfig{Capacity: 0, RefillTokens: -2, RefillInterval: 0, TTL: time.Second}.normalize()
	if got.Capacity != 1 || got.RefillTokens != 1 || got.RefillInterval != time.Second || got.TTL != 5*time.Second {
		t.Fatalf("normalize = %+v", got)
	}
}

func TestRedisAddress(t *testing.T) {
	if got := (RedisConfig{Addr: "cache:6379"}).Address(); got != "cache:6379" {
		t.Fatalf("Address = %q", got)
	}
	if got := (RedisConfig{Addr: "cache:6379", Host: "10.0.0.5", Port: "6380"}).Address(); got != "10.0.0.5:6380" {
		t.Fatalf("Address with host/port = %q", got)
	}
}

func TestLoadSettingsCacheConfig(t *testing.T) {
	t.Setenv("SETTINGS_CACHE_TTL", "0s")
	cfg, err := LoadSettingsCacheConfig()
	if err != nil {
		t.Fatalf("LoadSettingsCacheConfig: %v", err)
	}
	if !cfg.Enabled || cfg.TTL != time.Second || cfg.Prefix != "settings" {
		t.Fatalf("cfg = %+v", cfg)
	}
}
