package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/training-booking/internal/database"
	"github.com/iliyamo/training-booking/internal/model"
)

// DebtRepo persists debts.  The (user_id, training_id) pair is unique in
// the schema, which is what makes opening a debt idempotent.
type DebtRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewDebtRepo returns a DebtRepo bound to db.
func NewDebtRepo(db *sql.DB, dialect database.Dialect) *DebtRepo {
	return &DebtRepo{db: db, dialect: dialect}
}

const debtColumns = `id, user_id, training_id, amount_cents, status, created_at, closed_at`

func scanDebt(s scanner) (*model.Debt, error) {
	var d model.Debt
	var createdAt int64
	var closedAt sql.NullInt64
	err := s.Scan(&d.ID, &d.UserID, &d.TrainingID, &d.AmountCents, &d.Status, &createdAt, &closedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.CreatedAt = fromMillis(createdAt)
	if closedAt.Valid {
		t := fromMillis(closedAt.Int64)
		d.ClosedAt = &t
	}
	return &d, nil
}

// LockByIDTx reads a debt and locks it until tx ends.
func (r *DebtRepo) LockByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Debt, error) {
	q := `SELECT ` + debtColumns + ` FROM debts WHERE id = ?` + r.dialect.ForUpdate()
	return scanDebt(tx.QueryRowContext(ctx, q, id))
}

// LockByPairTx returns the debt of a (user, training) pair, locked, or
// ErrNotFound.
func (r *DebtRepo) LockByPairTx(ctx context.Context, tx *sql.Tx, userID, trainingID uint64) (*model.Debt, error) {
	q := `SELECT ` + debtColumns + ` FROM debts WHERE user_id = ? AND training_id = ?` + r.dialect.ForUpdate()
	return scanDebt(tx.QueryRowContext(ctx, q, userID, trainingID))
}

// InsertTx creates a debt and fills in its ID.  ErrDuplicate means another
// transaction already opened a debt for the pair.
func (r *DebtRepo) InsertTx(ctx context.Context, tx *sql.Tx, d *model.Debt) error {
	const q = `INSERT INTO debts (user_id, training_id, amount_cents, status, created_at, closed_at)
               VALUES (?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, d.UserID, d.TrainingID, d.AmountCents, d.Status, toMillis(d.CreatedAt), nullableMillis(d.ClosedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	d.ID = uint64(id)
	return nil
}

// CloseTx marks an OPEN debt CLOSED.  It reports whether a row changed.
func (r *DebtRepo) CloseTx(ctx context.Context, tx *sql.Tx, id uint64, now time.Time) (bool, error) {
	const q = `UPDATE debts SET status = ?, closed_at = ? WHERE id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, q, model.DebtClosed, toMillis(now), id, model.DebtOpen)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CountOpenByUserTx counts the OPEN debts of a participant inside tx.
func (r *DebtRepo) CountOpenByUserTx(ctx context.Context, tx *sql.Tx, userID uint64) (int, error) {
	const q = `SELECT COUNT(*) FROM debts WHERE user_id = ? AND status = ?`
	var n int
	err := tx.QueryRowContext(ctx, q, userID, model.DebtOpen).Scan(&n)
	return n, err
}

// HasOpen reports whether the participant owes anything.
func (r *DebtRepo) HasOpen(ctx context.Context, userID uint64) (bool, error) {
	const q = `SELECT 1 FROM debts WHERE user_id = ? AND status = ? LIMIT 1`
	var one int
	err := r.db.QueryRowContext(ctx, q, userID, model.DebtOpen).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DebtFilter narrows List.  Zero values mean "any".
type DebtFilter struct {
	UserID     uint64
	TrainingID uint64
	Status     model.DebtStatus
}

func (f DebtFilter) where() (string, []any) {
	var conds []string
	var args []any
	if f.UserID != 0 {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.TrainingID != 0 {
		conds = append(conds, "training_id = ?")
		args = append(args, f.TrainingID)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List returns one page of debts, newest first, and the total number of
// rows matching the filter.
func (r *DebtRepo) List(ctx context.Context, f DebtFilter, p Page) ([]model.Debt, int, error) {
	p = p.normalize()
	where, args := f.where()

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM debts`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `SELECT ` + debtColumns + ` FROM debts` + where + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, q, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []model.Debt{}
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, *d)
	}
	return items, total, rows.Err()
}
