package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/training-booking/internal/database"
	"github.com/iliyamo/training-booking/internal/model"
	"github.com/iliyamo/training-booking/internal/queue"
	"github.com/iliyamo/training-booking/internal/repository"
)

type fixedPolicy Policy

func (p fixedPolicy) Policy(context.Context) Policy { return Policy(p) }

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) ofType(typ queue.EventType) []queue.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []queue.Event
	for _, ev := range p.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	db          *sql.DB
	now         time.Time
	trainings   *repository.TrainingRepo
	enrollments *repository.EnrollmentRepo
	debts       *repository.DebtRepo
	bans        *repository.BanRepo
	events      *recordingPublisher

	gate   *Gate
	ledger *Ledger
	roster *Roster
	sweep  *Sweep
}

func newFixture(t *testing.T, policy Policy) *fixture {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "booking.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.Migrate(context.Background(), db, database.SQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	f := &fixture{
		db:          db,
		now:         time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		trainings:   repository.NewTrainingRepo(db, database.SQLite),
		enrollments: repository.NewEnrollmentRepo(db, database.SQLite),
		debts:       repository.NewDebtRepo(db, database.SQLite),
		bans:        repository.NewBanRepo(db, database.SQLite),
		events:      &recordingPublisher{},
	}
	clock := Clock(func() time.Time { return f.now })
	f.gate = NewGate(db, f.bans, f.debts, clock)
	f.ledger = NewLedger(db, f.debts, f.trainings, f.gate, clock)
	f.roster = NewRoster(db, f.trainings, f.enrollments, f.debts, f.gate, fixedPolicy(policy), clock)
	f.sweep = NewSweep(db, f.enrollments, f.ledger, f.gate, fixedPolicy(policy), f.events, clock)
	return f
}

// training creates a session starting in startsIn from the fixture clock.
func (f *fixture) training(t *testing.T, main, reserve int, startsIn time.Duration) *model.Training {
	t.Helper()
	tr := &model.Training{
		Title:           "Evening volleyball",
		StartAt:         f.now.Add(startsIn),
		CapacityMain:    main,
		CapacityReserve: reserve,
		PriceCents:      1500,
		CreatedAt:       f.now,
	}
	if err := f.trainings.Create(context.Background(), tr); err != nil {
		t.Fatalf("create training: %v", err)
	}
	return tr
}

func (f *fixture) book(t *testing.T, userID, trainingID uint64) *model.Enrollment {
	t.Helper()
	e, err := f.roster.Book(context.Background(), userID, trainingID)
	if err != nil {
		t.Fatalf("Book(user %d): %v", userID, err)
	}
	return e
}

// advance moves the clock forward so later bookings sort after earlier ones.
func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func wantKind(t *testing.T, err error, want Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("err = nil, want kind %s", want)
	}
	if got := KindOf(err); got != want {
		t.Fatalf("KindOf(%v) = %s, want %s", err, got, want)
	}
}
