package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/training-booking/internal/model"
	"github.com/iliyamo/training-booking/internal/repository"
)

// Ledger owns debts.  Closing a debt calls straight into the gate inside
// the same transaction, so a debt is never left closed while its
// AUTO_DEBT ban stays active.
type Ledger struct {
	db        *sql.DB
	debts     *repository.DebtRepo
	trainings *repository.TrainingRepo
	gate      *Gate
	clock     Clock
}

// NewLedger wires a Ledger.  clock may be nil.
func NewLedger(db *sql.DB, debts *repository.DebtRepo, trainings *repository.TrainingRepo, gate *Gate, clock Clock) *Ledger {
	return &Ledger{db: db, debts: debts, trainings: trainings, gate: gate, clock: clock}
}

// OpenIfMissing returns the debt of a (user, training) pair, creating an
// OPEN one priced at the training's current price when none exists.  An
// existing debt, OPEN or CLOSED, is returned unchanged.
func (l *Ledger) OpenIfMissing(ctx context.Context, userID, trainingID uint64) (*model.Debt, error) {
	var debt *model.Debt
	err := withTx(ctx, l.db, func(tx *sql.Tx) error {
		var err error
		debt, err = l.openIfMissingTx(ctx, tx, userID, trainingID, l.clock.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return debt, nil
}

func (l *Ledger) openIfMissingTx(ctx context.Context, tx *sql.Tx, userID, trainingID uint64, now time.Time) (*model.Debt, error) {
	existing, err := l.debts.LockByPairTx(ctx, tx, userID, trainingID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lock debt: %w", err)
	}

	training, err := l.trainings.GetByIDTx(ctx, tx, trainingID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrTrainingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get training: %w", err)
	}

	debt := &model.Debt{
		UserID:      userID,
		TrainingID:  trainingID,
		AmountCents: training.PriceCents,
		Status:      model.DebtOpen,
		CreatedAt:   now,
	}
	err = l.debts.InsertTx(ctx, tx, debt)
	if errors.Is(err, repository.ErrDuplicate) {
		existing, err = l.debts.LockByPairTx(ctx, tx, userID, trainingID)
		if err != nil {
			return nil, fmt.Errorf("reload debt: %w", err)
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("insert debt: %w", err)
	}
	return debt, nil
}

// CloseResult is the outcome of Close.  Lifted lists the AUTO_DEBT bans
// that the close released; it is empty when other debts remain open or
// the debt was already closed.
type CloseResult struct {
	Debt   model.Debt
	Lifted []model.Ban
}

// Close marks a debt CLOSED and, in the same transaction, lifts the
// participant's AUTO_DEBT bans if no OPEN debt remains.  Closing an
// already closed debt is a no-op.
func (l *Ledger) Close(ctx context.Context, debtID uint64) (*CloseResult, error) {
	ctx, span := tracer.Start(ctx, "Ledger.Close", trace.WithAttributes(attribute.Int64("debt.id", int64(debtID))))
	defer span.End()

	now := l.clock.now()
	out := &CloseResult{Lifted: []model.Ban{}}
	err := withTx(ctx, l.db, func(tx *sql.Tx) error {
		debt, err := l.debts.LockByIDTx(ctx, tx, debtID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrDebtNotFound
		}
		if err != nil {
			return fmt.Errorf("lock debt: %w", err)
		}
		if debt.Status == model.DebtClosed {
			out.Debt = *debt
			return nil
		}
		if _, err := l.debts.CloseTx(ctx, tx, debt.ID, now); err != nil {
			return fmt.Errorf("close debt: %w", err)
		}
		debt.Status = model.DebtClosed
		debt.ClosedAt = &now
		out.Debt = *debt

		lifted, err := l.gate.liftIfNoOpenDebtsTx(ctx, tx, debt.UserID)
		if err != nil {
			return fmt.Errorf("lift bans: %w", err)
		}
		out.Lifted = lifted
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return out, nil
}

// HasOpenDebt reports whether the participant owes anything.
func (l *Ledger) HasOpenDebt(ctx context.Context, userID uint64) (bool, error) {
	ok, err := l.debts.HasOpen(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("has open debt: %w", err)
	}
	return ok, nil
}

// List pages through debts for administrators.
func (l *Ledger) List(ctx context.Context, f repository.DebtFilter, p repository.Page) ([]model.Debt, int, error) {
	items, total, err := l.debts.List(ctx, f, p)
	if err != nil {
		return nil, 0, fmt.Errorf("list debts: %w", err)
	}
	return items, total, nil
}
