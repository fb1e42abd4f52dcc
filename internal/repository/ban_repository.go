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

// BanRepo persists suspensions.  Rows are never deleted; lifting a ban
// clears its active flag.
type BanRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewBanRepo returns a BanRepo bound to db.
func NewBanRepo(db *sql.DB, dialect database.Dialect) *BanRepo {
	return &BanRepo{db: db, dialect: dialect}
}

const banColumns = `id, user_id, type, reason, until_at, active, created_at`

func scanBan(s scanner) (*model.Ban, error) {
	var b model.Ban
	var createdAt int64
	var until sql.NullInt64
	err := s.Scan(&b.ID, &b.UserID, &b.Type, &b.Reason, &until, &b.Active, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	b.CreatedAt = fromMillis(createdAt)
	if until.Valid {
		t := fromMillis(until.Int64)
		b.Until = &t
	}
	return &b, nil
}

func scanBans(rows *sql.Rows) ([]model.Ban, error) {
	defer rows.Close()
	out := []model.Ban{}
	for rows.Next() {
		b, err := scanBan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

const inEffectCond = `user_id = ? AND active = ? AND (until_at IS NULL OR until_at > ?)`

// CountInEffect counts the bans currently blocking a participant.
func (r *BanRepo) CountInEffect(ctx context.Context, userID uint64, now time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bans WHERE `+inEffectCond, userID, true, toMillis(now)).Scan(&n)
	return n, err
}

// CountInEffectTx is CountInEffect inside a transaction.
func (r *BanRepo) CountInEffectTx(ctx context.Context, tx *sql.Tx, userID uint64, now time.Time) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM bans WHERE `+inEffectCond, userID, true, toMillis(now)).Scan(&n)
	return n, err
}

// ListInEffect returns the bans currently blocking a participant, newest
// first.
func (r *BanRepo) ListInEffect(ctx context.Context, userID uint64, now time.Time) ([]model.Ban, error) {
	q := `SELECT ` + banColumns + ` FROM bans WHERE ` + inEffectCond + ` ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, q, userID, true, toMillis(now))
	if err != nil {
		return nil, err
	}
	return scanBans(rows)
}

// LockActiveByUserTx returns every active ban of a participant, expired
// or not, oldest first, and locks them until tx ends.
func (r *BanRepo) LockActiveByUserTx(ctx context.Context, tx *sql.Tx, userID uint64) ([]model.Ban, error) {
	q := `SELECT ` + banColumns + ` FROM bans WHERE user_id = ? AND active = ? ORDER BY created_at ASC, id ASC` + r.dialect.ForUpdate()
	rows, err := tx.QueryContext(ctx, q, userID, true)
	if err != nil {
		return nil, err
	}
	return scanBans(rows)
}

// InsertTx creates an active ban and fills in its ID.  A second active
// AUTO_DEBT ban for the same participant yields ErrDuplicate.
func (r *BanRepo) InsertTx(ctx context.Context, tx *sql.Tx, b *model.Ban) error {
	const q = `INSERT INTO bans (user_id, type, reason, until_at, active, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, b.UserID, b.Type, b.Reason, nullableMillis(b.Until), b.Active, toMillis(b.CreatedAt))
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
	b.ID = uint64(id)
	return nil
}

// UpdateReasonTx rewrites the reason of one ban.
func (r *BanRepo) UpdateReasonTx(ctx context.Context, tx *sql.Tx, id uint64, reason string) error {
	_, err := tx.ExecContext(ctx, `UPDATE bans SET reason = ? WHERE id = ?`, reason, id)
	return err
}

// DeactivateTx clears the active flag of the given bans.
func (r *BanRepo) DeactivateTx(ctx context.Context, tx *sql.Tx, ids ...uint64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, false)
	for _, id := range ids {
		args = append(args, id)
	}
	q := `UPDATE bans SET active = ? WHERE id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`
	_, err := tx.ExecContext(ctx, q, args...)
	return err
}

// BanFilter narrows List.  A nil Active matches both states.
type BanFilter struct {
	UserID uint64
	Type   model.BanType
	Active *bool
}

func (f BanFilter) where() (string, []any) {
	var conds []string
	var args []any
	if f.UserID != 0 {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, f.Type)
	}
	if f.Active != nil {
		conds = append(conds, "active = ?")
		args = append(args, *f.Active)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List returns one page of bans, newest first, and the matching total.
func (r *BanRepo) List(ctx context.Context, f BanFilter, p Page) ([]model.Ban, int, error) {
	p = p.normalize()
	where, args := f.where()

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bans`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	q := `SELECT ` + banColumns + ` FROM bans` + where + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, q, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	items, err := scanBans(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
