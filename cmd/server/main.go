package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/training-booking/internal/app"
	"github.com/iliyamo/training-booking/internal/config"
	"github.com/iliyamo/training-booking/internal/handler"
	"github.com/iliyamo/training-booking/internal/middleware"
	"github.com/iliyamo/training-booking/internal/router"
	"github.com/iliyamo/training-booking/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	rl, err := config.LoadRateLimitConfig()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = serve(ctx, stop, cfg, rl)
	stop()
	if err != nil {
		log.Printf("server: %v", err)
		os.Exit(1)
	}
}

// serve runs the API until ctx is done or the listener fails, then shuts
// the server, the app and tracing down.
func serve(ctx context.Context, stop context.CancelFunc, cfg config.Config, rl config.RateLimitConfig) error {
	shutdownTracing, err := telemetry.Setup(ctx, "training-booking-api", cfg.OTelEndpoint)
	if err != nil {
		log.Printf("tracing disabled: %v", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e, router.Deps{
		DB:        a.DB,
		JWTSecret: cfg.JWTSecret,
		Participant: &handler.ParticipantHandler{
			Roster:   a.Roster,
			Gate:     a.Gate,
			Ledger:   a.Ledger,
			Settings: a.Settings,
			Inbox:    a.Audit,
			Events:   a.Events,
		},
		Admin: &handler.AdminHandler{
			Roster:   a.Roster,
			Ledger:   a.Ledger,
			Gate:     a.Gate,
			Sweep:    a.Sweep,
			Settings: a.Settings,
			Events:   a.Events,
		},
		BookingLimiter: middleware.NewTokenBucket(rl, a.Redis),
	})

	if cfg.SweepInterval > 0 {
		go a.RunSweepEvery(ctx, cfg.SweepInterval)
	}

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s, db=%s)", addr, cfg.Env, a.Dialect)
	startErr := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			startErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	select {
	case err := <-startErr:
		return err
	default:
		return nil
	}
}
