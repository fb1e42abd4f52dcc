package queue

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/iliyamo/training-booking/internal/database"
	"github.com/iliyamo/training-booking/internal/repository"
)

func openAudit(t *testing.T) *repository.AuditRepo {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.Migrate(context.Background(), db, database.SQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repository.NewAuditRepo(db)
}

func TestRecorderHandleIsIdempotent(t *testing.T) {
	t.Parallel()
	audit := openAudit(t)
	rec := NewRecorder(audit)
	ctx := context.Background()

	ev := NewEvent(EventEnrollmentPromoted, 1, 2, "enrollment", 10, map[string]any{"training_id": 5})
	body, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := rec.Handle(ctx, body); err != nil {
			t.Fatalf("Handle #%d: %v", i+1, err)
		}
	}

	logs, err := audit.ListLogsByEntity(ctx, "enrollment", 10)
	if err != nil {
		t.Fatalf("ListLogsByEntity: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("audit rows = %d, want 1", len(logs))
	}
	if logs[0].Action != string(EventEnrollmentPromoted) || logs[0].ActorID == nil || *logs[0].ActorID != 1 {
		t.Fatalf("audit row = %+v", logs[0])
	}

	notes, err := audit.ListNotifications(ctx, 2)
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notes))
	}
	if notes[0].Body != "A spot opened up on training #5. You are now on the main list." {
		t.Fatalf("body = %q", notes[0].Body)
	}
}

func TestRecorderSkipsNotificationForInternalEvents(t *testing.T) {
	t.Parallel()
	audit := openAudit(t)
	rec := NewRecorder(audit)
	ctx := context.Background()

	if err := rec.Record(ctx, NewEvent(EventEnrollmentBooked, 3, 3, "enrollment", 1, nil)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := rec.Record(ctx, NewEvent(EventAutobanCompleted, 0, 0, "autoban", 0, map[string]any{"processed": 2})); err != nil {
		t.Fatalf("Record: %v", err)
	}
	notes, err := audit.ListNotifications(ctx, 3)
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(notes) != 0 {
		t.Fatalf("notifications = %d, want 0", len(notes))
	}
	logs, err := audit.ListLogsByEntity(ctx, "autoban", 0)
	if err != nil {
		t.Fatalf("ListLogsByEntity: %v", err)
	}
	if len(logs) != 1 || logs[0].ActorID != nil || logs[0].Data != `{"processed":2}` {
		t.Fatalf("autoban audit = %+v", logs)
	}
}

func TestRecorderRejectsMalformed(t *testing.T) {
	t.Parallel()
	rec := NewRecorder(openAudit(t))
	for _, body := range []string{`not json`, `{}`, `{"id":"x"}`} {
		if err := rec.Handle(context.Background(), []byte(body)); err == nil {
			t.Errorf("Handle(%s) err = nil, want error", body)
		}
	}
}

func TestNotificationFor(t *testing.T) {
	t.Parallel()
	ban := NewEvent(EventBanApplied, 0, 4, "ban", 1, map[string]any{"reason": "Unpaid training #3"})
	if n := notificationFor(ban, ban.OccurredAt); n == nil || n.Body != "Unpaid training #3" {
		t.Fatalf("ban.applied notification = %+v", n)
	}
	bare := NewEvent(EventBanApplied, 0, 4, "ban", 1, nil)
	if n := notificationFor(bare, bare.OccurredAt); n == nil || n.Body != "Your booking rights are suspended." {
		t.Fatalf("ban.applied fallback = %+v", n)
	}
	noUser := NewEvent(EventDebtClosed, 1, 0, "debt", 1, nil)
	if n := notificationFor(noUser, noUser.OccurredAt); n != nil {
		t.Fatalf("notification without user = %+v, want nil", n)
	}
}

func TestEmitToleratesNilAndFailingPublishers(t *testing.T) {
	t.Parallel()
	ev := NewEvent(EventDebtClosed, 1, 2, "debt", 3, nil)
	Emit(context.Background(), nil, ev)
	Emit(context.Background(), failingPublisher{}, ev)
	Emit(context.Background(), NopPublisher{}, ev)
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, Event) error { return context.DeadlineExceeded }
