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

// policySource supplies the thresholds in force.  *Settings implements it.
type policySource interface {
	Policy(ctx context.Context) Policy
}

// Roster owns enrollments: booking, cancellation with waitlist promotion
// and the roster view.
//
// Capacity is guarded by locking the training row at the start of every
// booking and cancellation transaction (SELECT ... FOR UPDATE on MySQL, a
// single writer connection on SQLite).  Counting and writing therefore
// never interleave for the same training.  Locks are always taken in the
// order training, then enrollment.
type Roster struct {
	db          *sql.DB
	trainings   *repository.TrainingRepo
	enrollments *repository.EnrollmentRepo
	debts       *repository.DebtRepo
	gate        *Gate
	policy      policySource
	clock       Clock
}

// NewRoster wires a Roster.  clock may be nil.
func NewRoster(db *sql.DB, trainings *repository.TrainingRepo, enrollments *repository.EnrollmentRepo,
	debts *repository.DebtRepo, gate *Gate, policy policySource, clock Clock) *Roster {
	return &Roster{db: db, trainings: trainings, enrollments: enrollments, debts: debts, gate: gate, policy: policy, clock: clock}
}

// closed reports whether an action with the given lead time is no longer
// allowed for a training starting at start.  A non-positive cutoff never
// closes.
func closed(start, now time.Time, cutoff time.Duration) bool {
	return cutoff > 0 && start.Sub(now) < cutoff
}

// Book places the participant on the training's primary list, or on the
// waitlist when the primary list is full.  A previously cancelled
// enrollment for the same pair is reactivated in place and placed as if
// it were new.
//
// Preconditions are checked in this order: training exists, training not
// cancelled, enrollment cutoff, participant not suspended, no open debt,
// not already enrolled.
func (r *Roster) Book(ctx context.Context, userID, trainingID uint64) (*model.Enrollment, error) {
	ctx, span := tracer.Start(ctx, "Roster.Book", trace.WithAttributes(
		attribute.Int64("user.id", int64(userID)),
		attribute.Int64("training.id", int64(trainingID)),
	))
	defer span.End()

	policy := r.policy.Policy(ctx)
	now := r.clock.now()

	var out *model.Enrollment
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		training, err := r.trainings.LockTx(ctx, tx, trainingID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTrainingNotFound
		}
		if err != nil {
			return fmt.Errorf("lock training: %w", err)
		}
		if training.IsCancelled {
			return ErrTrainingCancelled
		}
		if closed(training.StartAt, now, policy.EnrollCutoff) {
			return ErrTooLateToBook
		}

		blocked, err := r.gate.isBlockedTx(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		if blocked {
			return ErrSuspended
		}
		open, err := r.debts.CountOpenByUserTx(ctx, tx, userID)
		if err != nil {
			return fmt.Errorf("count open debts: %w", err)
		}
		if open > 0 {
			return ErrUnpaidDebt
		}

		existing, err := r.enrollments.LockByPairTx(ctx, tx, userID, trainingID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("lock enrollment: %w", err)
		}
		if existing != nil {
			switch existing.Status {
			case model.EnrollmentActive:
				return ErrAlreadyEnrolled
			case model.EnrollmentNoShow:
				return ErrEnrollmentNotActive
			}
		}

		waitlisted, err := r.place(ctx, tx, training)
		if err != nil {
			return err
		}

		if existing != nil {
			if err := r.enrollments.ReactivateTx(ctx, tx, existing.ID, waitlisted, now); err != nil {
				return fmt.Errorf("reactivate enrollment: %w", err)
			}
			existing.Status = model.EnrollmentActive
			existing.IsWaitlisted = waitlisted
			existing.IsPaid = false
			existing.CreatedAt = now
			out = existing
			return nil
		}

		e := &model.Enrollment{
			UserID:       userID,
			TrainingID:   trainingID,
			Status:       model.EnrollmentActive,
			IsWaitlisted: waitlisted,
			CreatedAt:    now,
		}
		if err := r.enrollments.InsertTx(ctx, tx, e); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrAlreadyEnrolled
			}
			return fmt.Errorf("insert enrollment: %w", err)
		}
		out = e
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Bool("enrollment.waitlisted", out.IsWaitlisted))
	return out, nil
}

// place decides the tier for a new booking.  It must run after the
// training row has been locked in tx.
func (r *Roster) place(ctx context.Context, tx *sql.Tx, t *model.Training) (bool, error) {
	primary, err := r.enrollments.CountActiveTx(ctx, tx, t.ID, false)
	if err != nil {
		return false, fmt.Errorf("count primary: %w", err)
	}
	if primary < t.CapacityMain {
		return false, nil
	}
	reserve, err := r.enrollments.CountActiveTx(ctx, tx, t.ID, true)
	if err != nil {
		return false, fmt.Errorf("count waitlist: %w", err)
	}
	if reserve < t.CapacityReserve {
		return true, nil
	}
	return false, ErrTrainingFull
}

// CancelResult is the outcome of Cancel.  Promoted is the waitlisted
// enrollment that took the freed primary slot, if any.
type CancelResult struct {
	Enrollment model.Enrollment
	Promoted   *model.Enrollment
}

// Cancel cancels the participant's own ACTIVE enrollment.  When a primary
// slot is freed, the oldest waitlisted enrollment of the same training is
// promoted in the same transaction.  An enrollment that belongs to someone
// else is reported as not found.
func (r *Roster) Cancel(ctx context.Context, userID, enrollmentID uint64) (*CancelResult, error) {
	ctx, span := tracer.Start(ctx, "Roster.Cancel", trace.WithAttributes(
		attribute.Int64("user.id", int64(userID)),
		attribute.Int64("enrollment.id", int64(enrollmentID)),
	))
	defer span.End()

	policy := r.policy.Policy(ctx)
	now := r.clock.now()

	var out *CancelResult
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		peek, err := r.enrollments.GetByIDTx(ctx, tx, enrollmentID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrEnrollmentNotFound
		}
		if err != nil {
			return fmt.Errorf("get enrollment: %w", err)
		}
		if peek.UserID != userID {
			return ErrEnrollmentNotFound
		}

		training, err := r.trainings.LockTx(ctx, tx, peek.TrainingID)
		if err != nil {
			return fmt.Errorf("lock training: %w", err)
		}
		e, err := r.enrollments.LockByIDTx(ctx, tx, enrollmentID)
		if err != nil {
			return fmt.Errorf("lock enrollment: %w", err)
		}
		if e.Status != model.EnrollmentActive {
			return ErrEnrollmentNotActive
		}
		if closed(training.StartAt, now, policy.CancelCutoff) {
			return ErrTooLateToCancel
		}

		if err := r.enrollments.SetStatusTx(ctx, tx, e.ID, model.EnrollmentCancelled); err != nil {
			return fmt.Errorf("cancel enrollment: %w", err)
		}
		e.Status = model.EnrollmentCancelled
		out = &CancelResult{Enrollment: *e}

		if e.IsWaitlisted {
			return nil
		}
		next, err := r.enrollments.LockOldestWaitlistedTx(ctx, tx, e.TrainingID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock waitlist head: %w", err)
		}
		if err := r.enrollments.PromoteTx(ctx, tx, next.ID); err != nil {
			return fmt.Errorf("promote enrollment: %w", err)
		}
		next.IsWaitlisted = false
		out.Promoted = next
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return out, nil
}

// Roster returns the ACTIVE enrollments of a training split into the
// primary list and the waitlist, each ordered by booking time.
func (r *Roster) Roster(ctx context.Context, trainingID uint64) (primary, waitlist []model.Enrollment, err error) {
	training, err := r.trainings.GetByID(ctx, trainingID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, ErrTrainingNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get training: %w", err)
	}
	if training.IsCancelled {
		return nil, nil, ErrTrainingCancelled
	}
	active, err := r.enrollments.ListActiveByTraining(ctx, trainingID)
	if err != nil {
		return nil, nil, fmt.Errorf("list enrollments: %w", err)
	}
	primary = []model.Enrollment{}
	waitlist = []model.Enrollment{}
	for _, e := range active {
		if e.IsWaitlisted {
			waitlist = append(waitlist, e)
		} else {
			primary = append(primary, e)
		}
	}
	return primary, waitlist, nil
}

// ListForUser returns the participant's enrollments, newest first.
func (r *Roster) ListForUser(ctx context.Context, userID uint64) ([]model.Enrollment, error) {
	items, err := r.enrollments.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return items, nil
}

// MarkPaid flags an ACTIVE enrollment as paid, which takes it out of the
// autoban sweep.  Marking a paid enrollment again is a no-op.
func (r *Roster) MarkPaid(ctx context.Context, enrollmentID uint64) (*model.Enrollment, error) {
	var out *model.Enrollment
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		e, err := r.enrollments.LockByIDTx(ctx, tx, enrollmentID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrEnrollmentNotFound
		}
		if err != nil {
			return fmt.Errorf("lock enrollment: %w", err)
		}
		if e.Status != model.EnrollmentActive {
			return ErrEnrollmentNotActive
		}
		if !e.IsPaid {
			if err := r.enrollments.MarkPaidTx(ctx, tx, e.ID); err != nil {
				return fmt.Errorf("mark paid: %w", err)
			}
			e.IsPaid = true
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
