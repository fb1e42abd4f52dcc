package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/training-booking/internal/model"
	"github.com/iliyamo/training-booking/internal/repository"
)

// Recorder turns events into audit rows and participant notifications.
// Redelivered events are recognised by their id and skipped.
type Recorder struct {
	audit *repository.AuditRepo
}

// NewRecorder returns a Recorder writing through audit.
func NewRecorder(audit *repository.AuditRepo) *Recorder { return &Recorder{audit: audit} }

// Handle decodes one message body and records it.  It returns an error
// only for malformed payloads and storage failures.
func (r *Recorder) Handle(ctx context.Context, body []byte) error {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.ID == "" || ev.Type == "" {
		return errors.New("event id and type are required")
	}
	return r.Record(ctx, ev)
}

// Record writes the audit row and, for participant-facing events, a
// notification in one transaction.
func (r *Recorder) Record(ctx context.Context, ev Event) error {
	data := "{}"
	if len(ev.Data) > 0 {
		b, err := json.Marshal(ev.Data)
		if err != nil {
			return fmt.Errorf("marshal data: %w", err)
		}
		data = string(b)
	}
	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	entry := &model.AuditLog{
		EventID:   ev.ID,
		Action:    string(ev.Type),
		Entity:    ev.Entity,
		EntityID:  ev.EntityID,
		Data:      data,
		CreatedAt: occurred,
	}
	if ev.ActorID != 0 {
		actor := ev.ActorID
		entry.ActorID = &actor
	}

	tx, err := r.audit.DB().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	err = r.audit.InsertLogTx(ctx, tx, entry)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	if n := notificationFor(ev, occurred); n != nil {
		if err := r.audit.InsertNotificationTx(ctx, tx, n); err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// notificationFor returns the message to store for ev, or nil when the
// participant does not need to be told.
func notificationFor(ev Event, at time.Time) *model.Notification {
	if ev.UserID == 0 {
		return nil
	}
	n := &model.Notification{UserID: ev.UserID, Type: string(ev.Type), CreatedAt: at}
	switch ev.Type {
	case EventEnrollmentPromoted:
		n.Title = "You are off the waitlist"
		n.Body = fmt.Sprintf("A spot opened up on training #%v. You are now on the main list.", ev.Data["training_id"])
	case EventBanApplied:
		n.Title = "Booking suspended"
		n.Body = stringOr(ev.Data["reason"], "Your booking rights are suspended.")
	case EventBanLifted:
		n.Title = "Suspension lifted"
		n.Body = "You can book trainings again."
	case EventDebtClosed:
		n.Title = "Debt settled"
		n.Body = fmt.Sprintf("Debt #%d is closed.", ev.EntityID)
	default:
		return nil
	}
	return n
}

func stringOr(v any, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}
