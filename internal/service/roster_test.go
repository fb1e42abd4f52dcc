package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/training-booking/internal/model"
)

func TestBookFillsPrimaryThenWaitlistThenRejects(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Policy{})
	tr := f.training(t, 2, 1, 24*time.Hour)

	a := f.book(t, 1, tr.ID)
	f.advance(time.Second)
	b := f.book(t, 2, tr.ID)
	f.advance(time.Second)
	c := f.book(t, 3, tr.ID)

	if a.IsWaitlisted || b.IsWaitlisted {
		t.Fatalf("first two bookings must be primary: a=%v b=%v", a.IsWaitlisted, b.IsWaitlisted)
	}
	if !c.IsWaitlisted {
		t.Fatalf("third booking IsWaitlisted = false, want true")
	}

	_, err := f.roster.Book(context.Background(), 4, tr.ID)
	if !errors.Is(err, ErrTrainingFull) {
		t.Fatalf("fourth booking err = %v, want %v", err, ErrTrainingFull)
	}
	wantKind(t, err, KindConflict)

	res, err := f.roster.Cancel(context.Background(), 1, a.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if res.Enrollment.Status != model.EnrollmentCancelled {
		t.Fatalf("cancelled status = %s, want %s", res.Enrollment.Status, model.EnrollmentCancelled)
	}
	if res.Promoted == nil || res.Promoted.ID != c.ID {
		t.Fatalf("promoted = %+v, want enrollment %d", res.Promoted, c.ID)
	}

	primary, waitlist, err := f.roster.Roster(context.Background(), tr.ID)
	if err != nil {
		t.Fatalf("Roster: %v", err)
	}
	if len(waitlist) != 0 {
		t.Fatalf("waitlist len = %d, want 0", len(waitlist))
	}
	if len(primary) != 2 || primary[0].ID != b.ID || primary[1].ID != c.ID {
		t.Fatalf("primary = %+v, want [%d %d]", primary, b.ID, c.ID)
	}
}

func TestBookRejectsDuplicate(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Policy{})
	tr := f.training(t, 5, 0, 24*time.Hour)

	f.book(t, 1, tr.ID)
	_, err := f.roster.Book(context.Background(), 1, tr.ID)
	if !errors.Is(err, ErrAlreadyEnrolled) {
		t.Fatalf("err = %v, want %v", err, ErrAlreadyEnrolled)
	}
	wantKind(t, err, KindConflict)
}

func TestBookReactivatesCancelledEnrollment(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Policy{})
	tr := f.training(t, 1, 1, 24*time.Hour)

	first := f.book(t, 1, tr.ID)
	if _, err := f.roster.Cancel(context.Background(), 1, first.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	f.book(t, 2, tr.ID) // takes the freed primary slot
	f.advance(time.Minute)

	again := f.book(t, 1, tr.ID)
	if again.ID != first.ID {
		t.Fatalf("reactivated id = %d, want %d", again.ID, first.ID)
	}
	if again.Status != model.EnrollmentActive || !again.IsWaitlisted || again.IsPaid {
		t.Fatalf("reactivated = %+v, want ACTIVE, waitlisted, unpaid", again)
	}
	if !again.CreatedAt.Equal(f.now) {
		t.Fatalf("CreatedAt = %v, want %v", again.CreatedAt, f.now)
	}

	mine, err := f.roster.ListForUser(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(mine) != 1 {
		t.Fatalf("rows for pair = %d, want 1", len(mine))
	}
}

func TestBookPreconditions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("unknown training", func(t *testing.T) {
		f := newFixture(t, Policy{})
		_, err := f.roster.Book(ctx, 1, 999)
		if !errors.Is(err, ErrTrainingNotFound) {
			t.Fatalf("err = %v, want %v", err, ErrTrainingNotFound)
		}
	})

	t.Run("cancelled training", func(t *testing.T) {
		f := newFixture(t, Policy{})
		tr := &model.Training{Title: "x", StartAt: f.now.Add(time.Hour), CapacityMain: 1, IsCancelled: true, CreatedAt: f.now}
		if err := f.trainings.Create(ctx, tr); err != nil {
			t.Fatalf("create: %v", err)
		}
		_, err := f.roster.Book(ctx, 1, tr.ID)
		if !errors.Is(err, ErrTrainingCancelled) {
			t.Fatalf("err = %v, want %v", err, ErrTrainingCancelled)
		}
		wantKind(t, err, KindInvalidState)
	})

	t.Run("enrollment cutoff", func(t *testing.T) {
		f := newFixture(t, Policy{EnrollCutoff: 3 * time.Hour})
		tr := f.training(t, 5, 0, 2*time.Hour)
		_, err := f.roster.Book(ctx, 1, tr.ID)
		if !errors.Is(err, ErrTooLateToBook) {
			t.Fatalf("err = %v, want %v", err, ErrTooLateToBook)
		}
		wantKind(t, err, KindForbidden)
	})

	t.Run("manual suspension", func(t *testing.T) {
		f := newFixture(t, Policy{})
		tr := f.training(t, 5, 0, 24*time.Hour)
		if _, err := f.gate.ApplyManualSuspension(ctx, 1, "rude", nil); err != nil {
			t.Fatalf("ApplyManualSuspension: %v", err)
		}
		_, err := f.roster.Book(ctx, 1, tr.ID)
		if !errors.Is(err, ErrSuspended) {
			t.Fatalf("err = %v, want %v", err, ErrSuspended)
		}
	})

	t.Run("expired suspension does not block", func(t *testing.T) {
		f := newFixture(t, Policy{})
		tr := f.training(t, 5, 0, 24*time.Hour)
		until := f.now.Add(-time.Minute)
		if _, err := f.gate.ApplyManualSuspension(ctx, 1, "old", &until); err != nil {
			t.Fatalf("ApplyManualSuspension: %v", err)
		}
		f.book(t, 1, tr.ID)
	})

	t.Run("open debt", func(t *testing.T) {
		f := newFixture(t, Policy{})
		past := f.training(t, 5, 0, time.Hour)
		next := f.training(t, 5, 0, 48*time.Hour)
		if _, err := f.ledger.OpenIfMissing(ctx, 1, past.ID); err != nil {
			t.Fatalf("OpenIfMissing: %v", err)
		}
		_, err := f.roster.Book(ctx, 1, next.ID)
		if !errors.Is(err, ErrUnpaidDebt) {
			t.Fatalf("err = %v, want %v", err, ErrUnpaidDebt)
		}
	})
}

func TestCancelRules(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("someone else's enrollment", func(t *testing.T) {
		f := newFixture(t, Policy{})
		tr := f.training(t, 5, 0, 24*time.Hour)
		e := f.book(t, 1, tr.ID)
		_, err := f.roster.Cancel(ctx, 2, e.ID)
		if !errors.Is(err, ErrEnrollmentNotFound) {
			t.Fatalf("err = %v, want %v", err, ErrEnrollmentNotFound)
		}
	})

	t.Run("already cancelled", func(t *testing.T) {
		f := newFixture(t, Policy{})
		tr := f.training(t, 5, 0, 24*time.Hour)
		e := f.book(t, 1, tr.ID)
		if _, err := f.roster.Cancel(ctx, 1, e.ID); err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		_, err := f.roster.Cancel(ctx, 1, e.ID)
		if !errors.Is(err, ErrEnrollmentNotActive) {
			t.Fatalf("err = %v, want %v", err, ErrEnrollmentNotActive)
		}
	})

	t.Run("cancel cutoff", func(t *testing.T) {
		f := newFixture(t, Policy{CancelCutoff: 6 * time.Hour})
		tr := f.training(t, 5, 0, 5*time.Hour)
		e := f.book(t, 1, tr.ID)
		_, err := f.roster.Cancel(ctx, 1, e.ID)
		if !errors.Is(err, ErrTooLateToCancel) {
			t.Fatalf("err = %v, want %v", err, ErrTooLateToCancel)
		}
	})

	t.Run("waitlisted cancel promotes nobody", func(t *testing.T) {
		f := newFixture(t, Policy{})
		tr := f.training(t, 1, 2, 24*time.Hour)
		f.book(t, 1, tr.ID)
		f.advance(time.Second)
		w1 := f.book(t, 2, tr.ID)
		f.advance(time.Second)
		f.book(t, 3, tr.ID)
		res, err := f.roster.Cancel(ctx, 2, w1.ID)
		if err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		if res.Promoted != nil {
			t.Fatalf("promoted = %+v, want nil", res.Promoted)
		}
		primary, waitlist, err := f.roster.Roster(ctx, tr.ID)
		if err != nil {
			t.Fatalf("Roster: %v", err)
		}
		if len(primary) != 1 || len(waitlist) != 1 {
			t.Fatalf("primary=%d waitlist=%d, want 1 and 1", len(primary), len(waitlist))
		}
	})
}

func TestConcurrentBookingsRespectCapacity(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Policy{})
	tr := f.training(t, 3, 2, 24*time.Hour)

	const participants = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		booked   int
		rejected int
	)
	for i := 1; i <= participants; i++ {
		wg.Add(1)
		go func(userID uint64) {
			defer wg.Done()
			_, err := f.roster.Book(context.Background(), userID, tr.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				booked++
			case errors.Is(err, ErrTrainingFull):
				rejected++
			default:
				t.Errorf("Book(user %d): %v", userID, err)
			}
		}(uint64(i))
	}
	wg.Wait()

	if booked != 5 || rejected != participants-5 {
		t.Fatalf("booked=%d rejected=%d, want 5 and %d", booked, rejected, participants-5)
	}
	primary, waitlist, err := f.roster.Roster(context.Background(), tr.ID)
	if err != nil {
		t.Fatalf("Roster: %v", err)
	}
	if len(primary) != 3 || len(waitlist) != 2 {
		t.Fatalf("primary=%d waitlist=%d, want 3 and 2", len(primary), len(waitlist))
	}
}

func TestMarkPaid(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Policy{})
	tr := f.training(t, 5, 0, 24*time.Hour)
	e := f.book(t, 1, tr.ID)

	for i := 0; i < 2; i++ {
		got, err := f.roster.MarkPaid(context.Background(), e.ID)
		if err != nil {
			t.Fatalf("MarkPaid #%d: %v", i+1, err)
		}
		if !got.IsPaid {
			t.Fatalf("IsPaid = false after MarkPaid #%d", i+1)
		}
	}
	if _, err := f.roster.MarkPaid(context.Background(), 404); !errors.Is(err, ErrEnrollmentNotFound) {
		t.Fatalf("unknown enrollment err = %v, want %v", err, ErrEnrollmentNotFound)
	}
}

func TestClosed(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		start  time.Time
		cutoff time.Duration
		want   bool
	}{
		{"disabled", now.Add(time.Minute), 0, false},
		{"negative disables", now.Add(-time.Hour), -time.Hour, false},
		{"before cutoff", now.Add(5 * time.Hour), 4 * time.Hour, false},
		{"exactly at cutoff", now.Add(4 * time.Hour), 4 * time.Hour, false},
		{"inside cutoff", now.Add(3 * time.Hour), 4 * time.Hour, true},
		{"already started", now.Add(-time.Minute), time.Hour, true},
	}
	for _, tt := range tests {
		if got := closed(tt.start, now, tt.cutoff); got != tt.want {
			t.Errorf("%s: closed = %v, want %v", tt.name, got, tt.want)
		}
	}
}
