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

// openDebtCounter is the read surface of the debt ledger that the gate
// needs.  Depending on it instead of *Ledger keeps the dependency one-way:
// the ledger calls the gate, the gate only reads debts.
type openDebtCounter interface {
	CountOpenByUserTx(ctx context.Context, tx *sql.Tx, userID uint64) (int, error)
}

// Gate owns suspensions.  It decides whether a participant may book and
// applies or lifts bans.
type Gate struct {
	db    *sql.DB
	bans  *repository.BanRepo
	debts openDebtCounter
	clock Clock
}

// NewGate wires a Gate.  clock may be nil.
func NewGate(db *sql.DB, bans *repository.BanRepo, debts openDebtCounter, clock Clock) *Gate {
	return &Gate{db: db, bans: bans, debts: debts, clock: clock}
}

// IsBlocked reports whether any active, unexpired ban exists for the
// participant.
func (g *Gate) IsBlocked(ctx context.Context, userID uint64) (bool, error) {
	n, err := g.bans.CountInEffect(ctx, userID, g.clock.now())
	if err != nil {
		return false, fmt.Errorf("count bans: %w", err)
	}
	return n > 0, nil
}

func (g *Gate) isBlockedTx(ctx context.Context, tx *sql.Tx, userID uint64, now time.Time) (bool, error) {
	n, err := g.bans.CountInEffectTx(ctx, tx, userID, now)
	if err != nil {
		return false, fmt.Errorf("count bans: %w", err)
	}
	return n > 0, nil
}

// ActiveBans lists the bans currently blocking a participant.
func (g *Gate) ActiveBans(ctx context.Context, userID uint64) ([]model.Ban, error) {
	bans, err := g.bans.ListInEffect(ctx, userID, g.clock.now())
	if err != nil {
		return nil, fmt.Errorf("list bans: %w", err)
	}
	return bans, nil
}

// ApplyManualSuspension deactivates every active ban of the participant
// and inserts a MANUAL one.  until is optional.
func (g *Gate) ApplyManualSuspension(ctx context.Context, userID uint64, reason string, until *time.Time) (*model.Ban, error) {
	ctx, span := tracer.Start(ctx, "Gate.ApplyManualSuspension", trace.WithAttributes(attribute.Int64("user.id", int64(userID))))
	defer span.End()

	now := g.clock.now()
	ban := &model.Ban{UserID: userID, Type: model.BanManual, Reason: reason, Until: until, Active: true, CreatedAt: now}
	err := withTx(ctx, g.db, func(tx *sql.Tx) error {
		active, err := g.bans.LockActiveByUserTx(ctx, tx, userID)
		if err != nil {
			return fmt.Errorf("lock bans: %w", err)
		}
		if err := g.bans.DeactivateTx(ctx, tx, banIDs(active)...); err != nil {
			return fmt.Errorf("deactivate bans: %w", err)
		}
		if err := g.bans.InsertTx(ctx, tx, ban); err != nil {
			return fmt.Errorf("insert ban: %w", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return ban, nil
}

// LiftManualSuspension deactivates the participant's active MANUAL bans
// and returns them.  AUTO_DEBT bans are left alone.
func (g *Gate) LiftManualSuspension(ctx context.Context, userID uint64) ([]model.Ban, error) {
	var lifted []model.Ban
	err := withTx(ctx, g.db, func(tx *sql.Tx) error {
		var err error
		lifted, err = g.liftTypeTx(ctx, tx, userID, model.BanManual)
		return err
	})
	if err != nil {
		return nil, err
	}
	return lifted, nil
}

// ApplyAutoDebtSuspension makes sure the participant has exactly one
// active AUTO_DEBT ban carrying reason.  An existing one only has its
// reason refreshed.
func (g *Gate) ApplyAutoDebtSuspension(ctx context.Context, userID uint64, reason string) (*model.Ban, error) {
	var ban *model.Ban
	err := withTx(ctx, g.db, func(tx *sql.Tx) error {
		var err error
		ban, _, err = g.applyAutoDebtSuspensionTx(ctx, tx, userID, reason, g.clock.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return ban, nil
}

// applyAutoDebtSuspensionTx reports created=true only when it inserted a
// new AUTO_DEBT row.
func (g *Gate) applyAutoDebtSuspensionTx(ctx context.Context, tx *sql.Tx, userID uint64, reason string, now time.Time) (ban *model.Ban, created bool, err error) {
	active, err := g.bans.LockActiveByUserTx(ctx, tx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("lock bans: %w", err)
	}
	for i := range active {
		if active[i].Type == model.BanAutoDebt {
			ban, err = g.refreshReasonTx(ctx, tx, &active[i], reason)
			return ban, false, err
		}
	}

	if err := g.bans.DeactivateTx(ctx, tx, banIDs(active)...); err != nil {
		return nil, false, fmt.Errorf("deactivate bans: %w", err)
	}
	ban = &model.Ban{UserID: userID, Type: model.BanAutoDebt, Reason: reason, Active: true, CreatedAt: now}
	err = g.bans.InsertTx(ctx, tx, ban)
	if errors.Is(err, repository.ErrDuplicate) {
		// a concurrent transaction inserted the AUTO_DEBT row first
		active, err = g.bans.LockActiveByUserTx(ctx, tx, userID)
		if err != nil {
			return nil, false, fmt.Errorf("lock bans: %w", err)
		}
		for i := range active {
			if active[i].Type == model.BanAutoDebt {
				ban, err = g.refreshReasonTx(ctx, tx, &active[i], reason)
				return ban, false, err
			}
		}
		return nil, false, fmt.Errorf("insert ban: %w", repository.ErrDuplicate)
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert ban: %w", err)
	}
	return ban, true, nil
}

func (g *Gate) refreshReasonTx(ctx context.Context, tx *sql.Tx, ban *model.Ban, reason string) (*model.Ban, error) {
	if ban.Reason != reason {
		if err := g.bans.UpdateReasonTx(ctx, tx, ban.ID, reason); err != nil {
			return nil, fmt.Errorf("update ban reason: %w", err)
		}
		ban.Reason = reason
	}
	return ban, nil
}

// LiftIfNoOpenDebts deactivates the participant's AUTO_DEBT bans when no
// OPEN debt remains, and returns the lifted bans.  MANUAL bans are never
// lifted here.
func (g *Gate) LiftIfNoOpenDebts(ctx context.Context, userID uint64) ([]model.Ban, error) {
	var lifted []model.Ban
	err := withTx(ctx, g.db, func(tx *sql.Tx) error {
		var err error
		lifted, err = g.liftIfNoOpenDebtsTx(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return lifted, nil
}

func (g *Gate) liftIfNoOpenDebtsTx(ctx context.Context, tx *sql.Tx, userID uint64) ([]model.Ban, error) {
	open, err := g.debts.CountOpenByUserTx(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("count open debts: %w", err)
	}
	if open > 0 {
		return nil, nil
	}
	return g.liftTypeTx(ctx, tx, userID, model.BanAutoDebt)
}

func (g *Gate) liftTypeTx(ctx context.Context, tx *sql.Tx, userID uint64, typ model.BanType) ([]model.Ban, error) {
	active, err := g.bans.LockActiveByUserTx(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("lock bans: %w", err)
	}
	lifted := []model.Ban{}
	for _, b := range active {
		if b.Type == typ {
			b.Active = false
			lifted = append(lifted, b)
		}
	}
	if err := g.bans.DeactivateTx(ctx, tx, banIDs(lifted)...); err != nil {
		return nil, fmt.Errorf("deactivate bans: %w", err)
	}
	return lifted, nil
}

// ListBans pages through bans for administrators.
func (g *Gate) ListBans(ctx context.Context, f repository.BanFilter, p repository.Page) ([]model.Ban, int, error) {
	items, total, err := g.bans.List(ctx, f, p)
	if err != nil {
		return nil, 0, fmt.Errorf("list bans: %w", err)
	}
	return items, total, nil
}

func banIDs(bans []model.Ban) []uint64 {
	ids := make([]uint64, 0, len(bans))
	for _, b := range bans {
		ids = append(ids, b.ID)
	}
	return ids
}
