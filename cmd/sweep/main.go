// Command sweep runs the autoban sweep once and exits.  Schedule it with
// cron; -hours overrides the configured horizon.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iliyamo/training-booking/internal/app"
	"github.com/iliyamo/training-booking/internal/config"
	"github.com/iliyamo/training-booking/internal/queue"
	"github.com/iliyamo/training-booking/internal/telemetry"
)

func main() {
	hours := flag.Int("hours", 0, "horizon in hours (0 uses the configured policy)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	processed, err := run(ctx, cfg, time.Duration(*hours)*time.Hour)
	stop()
	if err != nil {
		log.Printf("autoban-sweep: %v", err)
		os.Exit(1)
	}
	log.Printf("autoban-sweep: processed=%d", processed)
}

// run performs one sweep.  A zero horizon uses the configured policy.
// Tracing and the app are shut down before it returns, on success or not.
func run(ctx context.Context, cfg config.Config, horizon time.Duration) (int, error) {
	shutdownTracing, err := telemetry.Setup(ctx, "training-booking-sweep", cfg.OTelEndpoint)
	if err != nil {
		log.Printf("tracing disabled: %v", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer a.Close()

	var processed int
	if horizon > 0 {
		processed, err = a.Sweep.Run(ctx, horizon)
	} else {
		processed, err = a.Sweep.RunWithPolicy(ctx)
	}
	if err != nil {
		return processed, err
	}
	queue.Emit(ctx, a.Events, queue.NewEvent(queue.EventAutobanCompleted, 0, 0, "autoban", 0,
		map[string]any{"processed": processed}))
	return processed, nil
}
