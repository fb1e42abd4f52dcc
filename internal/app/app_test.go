package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/iliyamo/training-booking/internal/config"
	"github.com/iliyamo/training-booking/internal/queue"
)

func TestNewWiresSQLiteStack(t *testing.T) {
	t.Setenv("REDIS_ADDR", "127.0.0.1:1") // nothing listens there
	cfg := config.Config{
		DBDriver:   "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "app.db"),
		Policy:     config.PolicyDefaults{AutobanHorizon: 3 * time.Hour, BanText: "blocked"},
	}
	ctx := context.Background()
	a, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if a.Redis != nil {
		t.Fatalf("Redis client = %v, want nil when unreachable", a.Redis)
	}
	if _, ok := a.Events.(queue.NopPublisher); !ok {
		t.Fatalf("Events = %T, want NopPublisher when events are disabled", a.Events)
	}
	items, err := a.Settings.List(ctx)
	if err != nil {
		t.Fatalf("List settings: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("seeded settings = %d, want 4", len(items))
	}
	if p := a.Settings.Policy(ctx); p.AutobanHorizon != 3*time.Hour || p.BanText != "blocked" {
		t.Fatalf("policy = %+v", p)
	}
	if n, err := a.Sweep.RunWithPolicy(ctx); err != nil || n != 0 {
		t.Fatalf("RunWithPolicy = %d, %v", n, err)
	}
}
