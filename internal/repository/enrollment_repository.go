package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/training-booking/internal/database"
	"github.com/iliyamo/training-booking/internal/model"
)

// EnrollmentRepo persists enrollments.  Only the roster service writes
// through it; every write happens inside a transaction that already holds
// the lock on the owning training row.
type EnrollmentRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewEnrollmentRepo returns an EnrollmentRepo bound to db.
func NewEnrollmentRepo(db *sql.DB, dialect database.Dialect) *EnrollmentRepo {
	return &EnrollmentRepo{db: db, dialect: dialect}
}

const enrollmentColumns = `id, user_id, training_id, status, is_waitlisted, is_paid, created_at`

func scanEnrollment(s scanner) (*model.Enrollment, error) {
	var e model.Enrollment
	var createdAt int64
	err := s.Scan(&e.ID, &e.UserID, &e.TrainingID, &e.Status, &e.IsWaitlisted, &e.IsPaid, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	e.CreatedAt = fromMillis(createdAt)
	return &e, nil
}

func scanEnrollments(rows *sql.Rows) ([]model.Enrollment, error) {
	defer rows.Close()
	out := []model.Enrollment{}
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// GetByIDTx reads an enrollment inside tx without locking it.
func (r *EnrollmentRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Enrollment, error) {
	const q = `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = ?`
	return scanEnrollment(tx.QueryRowContext(ctx, q, id))
}

// LockByIDTx reads an enrollment and locks the row until tx ends.
func (r *EnrollmentRepo) LockByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Enrollment, error) {
	q := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = ?` + r.dialect.ForUpdate()
	return scanEnrollment(tx.QueryRowContext(ctx, q, id))
}

// LockByPairTx returns the single enrollment of a (user, training) pair,
// locked, or ErrNotFound.
func (r *EnrollmentRepo) LockByPairTx(ctx context.Context, tx *sql.Tx, userID, trainingID uint64) (*model.Enrollment, error) {
	q := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE user_id = ? AND training_id = ?` + r.dialect.ForUpdate()
	return scanEnrollment(tx.QueryRowContext(ctx, q, userID, trainingID))
}

// InsertTx creates an enrollment and fills in its ID.  A second row for
// the same pair yields ErrDuplicate.
func (r *EnrollmentRepo) InsertTx(ctx context.Context, tx *sql.Tx, e *model.Enrollment) error {
	const q = `INSERT INTO enrollments (user_id, training_id, status, is_waitlisted, is_paid, created_at)
               VALUES (?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, e.UserID, e.TrainingID, e.Status, e.IsWaitlisted, e.IsPaid, toMillis(e.CreatedAt))
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
	e.ID = uint64(id)
	return nil
}

// ReactivateTx turns a cancelled row back into an ACTIVE booking placed as
// if it were new: fresh created_at, unpaid, with the given tier.
func (r *EnrollmentRepo) ReactivateTx(ctx context.Context, tx *sql.Tx, id uint64, waitlisted bool, now time.Time) error {
	const q = `UPDATE enrollments SET status = ?, is_waitlisted = ?, is_paid = ?, created_at = ? WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, model.EnrollmentActive, waitlisted, false, toMillis(now), id)
	return err
}

// CountActiveTx counts ACTIVE enrollments of a training in one tier.
func (r *EnrollmentRepo) CountActiveTx(ctx context.Context, tx *sql.Tx, trainingID uint64, waitlisted bool) (int, error) {
	const q = `SELECT COUNT(*) FROM enrollments WHERE training_id = ? AND status = ? AND is_waitlisted = ?`
	var n int
	err := tx.QueryRowContext(ctx, q, trainingID, model.EnrollmentActive, waitlisted).Scan(&n)
	return n, err
}

// LockOldestWaitlistedTx returns the ACTIVE waitlisted enrollment with the
// earliest created_at (id breaks ties), locked, or ErrNotFound when the
// waitlist is empty.
func (r *EnrollmentRepo) LockOldestWaitlistedTx(ctx context.Context, tx *sql.Tx, trainingID uint64) (*model.Enrollment, error) {
	q := `SELECT ` + enrollmentColumns + ` FROM enrollments
          WHERE training_id = ? AND status = ? AND is_waitlisted = ?
          ORDER BY created_at ASC, id ASC LIMIT 1` + r.dialect.ForUpdate()
	return scanEnrollment(tx.QueryRowContext(ctx, q, trainingID, model.EnrollmentActive, true))
}

// SetStatusTx changes the status of one enrollment.
func (r *EnrollmentRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status model.EnrollmentStatus) error {
	const q = `UPDATE enrollments SET status = ? WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, status, id)
	return err
}

// PromoteTx moves a waitlisted enrollment onto the primary list.
func (r *EnrollmentRepo) PromoteTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	const q = `UPDATE enrollments SET is_waitlisted = ? WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, false, id)
	return err
}

// MarkPaidTx flags an enrollment as paid.
func (r *EnrollmentRepo) MarkPaidTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	const q = `UPDATE enrollments SET is_paid = ? WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, true, id)
	return err
}

// ListActiveByTraining returns the ACTIVE enrollments of a training ordered
// by created_at then id, both tiers mixed.
func (r *EnrollmentRepo) ListActiveByTraining(ctx context.Context, trainingID uint64) ([]model.Enrollment, error) {
	const q = `SELECT ` + enrollmentColumns + ` FROM enrollments
               WHERE training_id = ? AND status = ?
               ORDER BY created_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, q, trainingID, model.EnrollmentActive)
	if err != nil {
		return nil, err
	}
	return scanEnrollments(rows)
}

// ListByUser returns every enrollment of a participant, newest first.
func (r *EnrollmentRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Enrollment, error) {
	const q = `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE user_id = ? ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	return scanEnrollments(rows)
}

// UnpaidCandidate is an ACTIVE unpaid enrollment joined with the fields of
// its training that the autoban sweep needs.
type UnpaidCandidate struct {
	Enrollment model.Enrollment
	StartAt    time.Time
	PriceCents int64
}

// ListUnpaidStartingBetween returns ACTIVE unpaid enrollments, of either
// tier, on non-cancelled trainings starting within [from, to].
func (r *EnrollmentRepo) ListUnpaidStartingBetween(ctx context.Context, from, to time.Time) ([]UnpaidCandidate, error) {
	const q = `SELECT e.id, e.user_id, e.training_id, e.status, e.is_waitlisted, e.is_paid, e.created_at,
                      t.start_at, t.price_cents
               FROM enrollments e
               JOIN trainings t ON t.id = e.training_id
               WHERE e.status = ? AND e.is_paid = ? AND t.is_cancelled = ?
                 AND t.start_at >= ? AND t.start_at <= ?
               ORDER BY t.start_at ASC, e.id ASC`
	rows, err := r.db.QueryContext(ctx, q, model.EnrollmentActive, false, false, toMillis(from), toMillis(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []UnpaidCandidate{}
	for rows.Next() {
		var c UnpaidCandidate
		var createdAt, startAt int64
		e := &c.Enrollment
		if err := rows.Scan(&e.ID, &e.UserID, &e.TrainingID, &e.Status, &e.IsWaitlisted, &e.IsPaid, &createdAt,
			&startAt, &c.PriceCents); err != nil {
			return nil, err
		}
		e.CreatedAt = fromMillis(createdAt)
		c.StartAt = fromMillis(startAt)
		out = append(out, c)
	}
	return out, rows.Err()
}
