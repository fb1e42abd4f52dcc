package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/training-booking/internal/model"
)

// SettingRepo stores runtime policy values keyed by name.
type SettingRepo struct {
	db *sql.DB
}

// NewSettingRepo returns a SettingRepo bound to db.
func NewSettingRepo(db *sql.DB) *SettingRepo { return &SettingRepo{db: db} }

func scanSetting(s scanner) (*model.Setting, error) {
	var st model.Setting
	var updatedAt int64
	err := s.Scan(&st.Key, &st.Value, &st.Description, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	st.UpdatedAt = fromMillis(updatedAt)
	return &st, nil
}

// Get returns a setting or ErrNotFound.
func (r *SettingRepo) Get(ctx context.Context, key string) (*model.Setting, error) {
	const q = `SELECT name, value, description, updated_at FROM settings WHERE name = ?`
	return scanSetting(r.db.QueryRowContext(ctx, q, key))
}

// List returns every setting ordered by name.
func (r *SettingRepo) List(ctx context.Context) ([]model.Setting, error) {
	const q = `SELECT name, value, description, updated_at FROM settings ORDER BY name`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Setting{}
	for rows.Next() {
		st, err := scanSetting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

// Upsert writes a setting, replacing the value of an existing key.  An
// empty description keeps the stored one.
func (r *SettingRepo) Upsert(ctx context.Context, key, value, description string, now time.Time) (*model.Setting, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE settings SET value = ?, description = CASE WHEN ? = '' THEN description ELSE ? END, updated_at = ? WHERE name = ?`,
		value, description, description, toMillis(now), key)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO settings (name, value, description, updated_at) VALUES (?, ?, ?, ?)`,
			key, value, description, toMillis(now)); err != nil {
			if isUniqueViolation(err) {
				return nil, ErrDuplicate
			}
			return nil, err
		}
	}
	st, err := scanSetting(tx.QueryRowContext(ctx,
		`SELECT name, value, description, updated_at FROM settings WHERE name = ?`, key))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return st, nil
}

// InsertIfMissing writes a setting only when the key is absent.  It
// reports whether a row was created.
func (r *SettingRepo) InsertIfMissing(ctx context.Context, key, value, description string, now time.Time) (bool, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO settings (name, value, description, updated_at) VALUES (?, ?, ?, ?)`,
		key, value, description, toMillis(now))
	if isUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
