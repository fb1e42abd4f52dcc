package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/training-booking/internal/database"
	"github.com/iliyamo/training-booking/internal/model"
)

// TrainingRepo reads the training catalog.  Booking and cancellation lock
// the training row first, which serializes capacity checks per session.
type TrainingRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewTrainingRepo returns a TrainingRepo bound to db.
func NewTrainingRepo(db *sql.DB, dialect database.Dialect) *TrainingRepo {
	return &TrainingRepo{db: db, dialect: dialect}
}

// DB exposes the underlying handle so callers can open transactions.
func (r *TrainingRepo) DB() *sql.DB { return r.db }

const trainingColumns = `id, title, start_at, capacity_main, capacity_reserve, price_cents, is_cancelled, created_at`

func scanTraining(s scanner) (*model.Training, error) {
	var t model.Training
	var startAt, createdAt int64
	err := s.Scan(&t.ID, &t.Title, &startAt, &t.CapacityMain, &t.CapacityReserve, &t.PriceCents, &t.IsCancelled, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.StartAt = fromMillis(startAt)
	t.CreatedAt = fromMillis(createdAt)
	return &t, nil
}

// GetByID returns a training or ErrNotFound.
func (r *TrainingRepo) GetByID(ctx context.Context, id uint64) (*model.Training, error) {
	const q = `SELECT ` + trainingColumns + ` FROM trainings WHERE id = ?`
	return scanTraining(r.db.QueryRowContext(ctx, q, id))
}

// GetByIDTx reads a training inside tx without locking it.
func (r *TrainingRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Training, error) {
	const q = `SELECT ` + trainingColumns + ` FROM trainings WHERE id = ?`
	return scanTraining(tx.QueryRowContext(ctx, q, id))
}

// LockTx reads a training inside tx and holds a row lock on it until the
// transaction ends.
func (r *TrainingRepo) LockTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Training, error) {
	q := `SELECT ` + trainingColumns + ` FROM trainings WHERE id = ?` + r.dialect.ForUpdate()
	return scanTraining(tx.QueryRowContext(ctx, q, id))
}

// Create inserts a catalog entry and fills in its ID.  The booking core
// never writes trainings; this exists for seeding and tests.
func (r *TrainingRepo) Create(ctx context.Context, t *model.Training) error {
	const q = `INSERT INTO trainings (title, start_at, capacity_main, capacity_reserve, price_cents, is_cancelled, created_at)
               VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, t.Title, toMillis(t.StartAt), t.CapacityMain, t.CapacityReserve,
		t.PriceCents, t.IsCancelled, toMillis(t.CreatedAt))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return nil
}
