package service

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/iliyamo/training-booking/internal/model"
	"github.com/iliyamo/training-booking/internal/queue"
	"github.com/iliyamo/training-booking/internal/repository"
)

// Sweep bills participants who have not paid for a training that is about
// to start: it opens a debt for each unpaid enrollment and suspends the
// participant until the debt is closed.
//
// Every enrollment is processed in its own transaction.  A failure on one
// enrollment is logged and the sweep moves on; the returned count only
// includes enrollments that were processed successfully.  Both steps are
// idempotent, so re-running over an overlapping window is safe.
//
// A ban.applied event is emitted once per AUTO_DEBT ban the sweep creates,
// after its transaction commits.  Refreshing an existing ban emits nothing.
type Sweep struct {
	db          *sql.DB
	enrollments *repository.EnrollmentRepo
	ledger      *Ledger
	gate        *Gate
	policy      policySource
	events      queue.Publisher
	clock       Clock
}

// NewSweep wires a Sweep.  events and clock may be nil.
func NewSweep(db *sql.DB, enrollments *repository.EnrollmentRepo, ledger *Ledger, gate *Gate, policy policySource, events queue.Publisher, clock Clock) *Sweep {
	return &Sweep{db: db, enrollments: enrollments, ledger: ledger, gate: gate, policy: policy, events: events, clock: clock}
}

// RunWithPolicy runs the sweep with the horizon from the current policy.
func (s *Sweep) RunWithPolicy(ctx context.Context) (int, error) {
	return s.Run(ctx, s.policy.Policy(ctx).AutobanHorizon)
}

// Run processes ACTIVE unpaid enrollments on non-cancelled trainings that
// start within [now, now+horizon] and returns how many were processed.
// Enrollments whose debt for the same training is already CLOSED are
// treated as settled and skipped.  The error is non-nil only when the
// candidate list cannot be read or ctx is done.
func (s *Sweep) Run(ctx context.Context, horizon time.Duration) (int, error) {
	ctx, span := tracer.Start(ctx, "Sweep.Run")
	defer span.End()

	now := s.clock.now()
	candidates, err := s.enrollments.ListUnpaidStartingBetween(ctx, now, now.Add(horizon))
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("list candidates: %w", err)
	}

	processed, skipped, failed := 0, 0, 0
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		ok, err := s.processOne(ctx, c, now)
		switch {
		case err != nil:
			failed++
			log.Printf("autoban-sweep: enrollment %d (user %d, training %d): %v",
				c.Enrollment.ID, c.Enrollment.UserID, c.Enrollment.TrainingID, err)
		case ok:
			processed++
		default:
			skipped++
		}
	}
	span.SetAttributes(
		attribute.Int("sweep.candidates", len(candidates)),
		attribute.Int("sweep.processed", processed),
		attribute.Int("sweep.failed", failed),
	)
	if failed > 0 || skipped > 0 {
		log.Printf("autoban-sweep: processed=%d skipped=%d failed=%d", processed, skipped, failed)
	}
	return processed, nil
}

func (s *Sweep) processOne(ctx context.Context, c repository.UnpaidCandidate, now time.Time) (bool, error) {
	var (
		processed bool
		applied   *model.Ban
	)
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		debt, err := s.ledger.openIfMissingTx(ctx, tx, c.Enrollment.UserID, c.Enrollment.TrainingID, now)
		if err != nil {
			return err
		}
		if debt.Status == model.DebtClosed {
			return nil
		}
		reason := fmt.Sprintf("Unpaid training #%d (debt #%d, amount %s)",
			c.Enrollment.TrainingID, debt.ID, formatCents(debt.AmountCents))
		ban, created, err := s.gate.applyAutoDebtSuspensionTx(ctx, tx, c.Enrollment.UserID, reason, now)
		if err != nil {
			return err
		}
		if created {
			applied = ban
		}
		processed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if applied != nil {
		queue.Emit(ctx, s.events, queue.NewEvent(queue.EventBanApplied, 0, applied.UserID, "ban", applied.ID,
			map[string]any{"type": applied.Type, "reason": applied.Reason}))
	}
	return processed, nil
}

func formatCents(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}
