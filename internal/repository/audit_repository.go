package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/training-booking/internal/model"
)

// AuditRepo writes audit log rows and participant notifications.  The
// event worker is its only writer.
type AuditRepo struct {
	db *sql.DB
}

// NewAuditRepo returns an AuditRepo bound to db.
func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{db: db} }

// DB exposes the underlying handle so callers can open transactions.
func (r *AuditRepo) DB() *sql.DB { return r.db }

// InsertLogTx records one event.  A second row for the same event id
// yields ErrDuplicate, which the worker treats as "already processed".
func (r *AuditRepo) InsertLogTx(ctx context.Context, tx *sql.Tx, l *model.AuditLog) error {
	const q = `INSERT INTO audit_logs (event_id, actor_id, action, entity, entity_id, data, created_at)
               VALUES (?, ?, ?, ?, ?, ?, ?)`
	var actor any
	if l.ActorID != nil {
		actor = *l.ActorID
	}
	res, err := tx.ExecContext(ctx, q, l.EventID, actor, l.Action, l.Entity, l.EntityID, l.Data, toMillis(l.CreatedAt))
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
	l.ID = uint64(id)
	return nil
}

// InsertNotificationTx stores a message for a participant.
func (r *AuditRepo) InsertNotificationTx(ctx context.Context, tx *sql.Tx, n *model.Notification) error {
	const q = `INSERT INTO notifications (user_id, type, title, body, is_read, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, n.UserID, n.Type, n.Title, n.Body, n.IsRead, toMillis(n.CreatedAt))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	n.ID = uint64(id)
	return nil
}

// ListLogsByEntity returns the audit trail of one entity, oldest first.
func (r *AuditRepo) ListLogsByEntity(ctx context.Context, entity string, entityID uint64) ([]model.AuditLog, error) {
	const q = `SELECT id, event_id, actor_id, action, entity, entity_id, data, created_at
               FROM audit_logs WHERE entity = ? AND entity_id = ? ORDER BY created_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, q, entity, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.AuditLog{}
	for rows.Next() {
		var l model.AuditLog
		var actor sql.NullInt64
		var createdAt int64
		if err := rows.Scan(&l.ID, &l.EventID, &actor, &l.Action, &l.Entity, &l.EntityID, &l.Data, &createdAt); err != nil {
			return nil, err
		}
		if actor.Valid {
			a := uint64(actor.Int64)
			l.ActorID = &a
		}
		l.CreatedAt = fromMillis(createdAt)
		out = append(out, l)
	}
	return out, rows.Err()
}

// ListNotifications returns a participant's notifications, newest first.
func (r *AuditRepo) ListNotifications(ctx context.Context, userID uint64) ([]model.Notification, error) {
	const q = `SELECT id, user_id, type, title, body, is_read, created_at
               FROM notifications WHERE user_id = ? ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Notification{}
	for rows.Next() {
		var n model.Notification
		var createdAt int64
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.IsRead, &createdAt); err != nil {
			return nil, err
		}
		n.CreatedAt = fromMillis(createdAt)
		out = append(out, n)
	}
	return out, rows.Err()
}
