// Command worker consumes domain events and records the audit trail and
// participant notifications.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/iliyamo/training-booking/internal/config"
	"github.com/iliyamo/training-booking/internal/database"
	"github.com/iliyamo/training-booking/internal/queue"
	"github.com/iliyamo/training-booking/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = consume(ctx, cfg)
	stop()
	if err != nil {
		log.Printf("events-consumer: %v", err)
		os.Exit(1)
	}
}

// consume records events until ctx is done.  The database is closed before
// it returns.
func consume(ctx context.Context, cfg config.Config) error {
	db, dialect, err := database.Open(cfg.DatabaseOptions())
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db, dialect); err != nil {
		return err
	}

	rec := queue.NewRecorder(repository.NewAuditRepo(db))
	log.Printf("events-consumer: listening on %s (exchange %s)", cfg.AuditQueue, cfg.EventsExchange)
	err = queue.StartConsumer(ctx, queue.ConsumerConfig{
		URL:      cfg.RabbitURL,
		Exchange: cfg.EventsExchange,
		Queue:    cfg.AuditQueue,
	}, rec)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
