package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jordanmaier/copperline-backend/pkg/logger"
)

func TestGuestCartCleanupJobUsesCutoff(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	carts := &fakeGuestCartPruner{}
	job := newGuestCartCleanupJob(t, carts, 14*24*time.Hour)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !carts.lastCutoff.Equal(now.Add(-14 * 24 * time.Hour)) {
		t.Fatalf("unexpected cutoff %s", carts.lastCutoff)
	}
	if carts.called != 1 {
		t.Fatalf("expected pruner called once, got %d", carts.called)
	}
}

func TestGuestCartCleanupJobDefaultsMaxAge(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	carts := &fakeGuestCartPruner{}
	job := newGuestCartCleanupJob(t, carts, 0)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !carts.lastCutoff.Equal(now.Add(-defaultGuestCartMaxAge)) {
		t.Fatalf("expected default cutoff, got %s", carts.lastCutoff)
	}
}

func TestGuestCartCleanupJobPropagatesError(t *testing.T) {
	carts := &fakeGuestCartPruner{err: errors.New("boom")}
	job := newGuestCartCleanupJob(t, carts, 0)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func newGuestCartCleanupJob(t *testing.T, carts *fakeGuestCartPruner, maxAge time.Duration) *guestCartCleanupJob {
	t.Helper()
	jobIface, err := NewGuestCartCleanupJob(GuestCartCleanupJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Carts:  carts,
		MaxAge: maxAge,
	})
	if err != nil {
		t.Fatalf("NewGuestCartCleanupJob: %v", err)
	}
	job, ok := jobIface.(*guestCartCleanupJob)
	if !ok {
		t.Fatalf("expected guestCartCleanupJob, got %T", jobIface)
	}
	return job
}

type fakeGuestCartPruner struct {
	lastCutoff time.Time
	called     int
	err        error
}

func (f *fakeGuestCartPruner) DeleteIdleGuestCartsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.called++
	f.lastCutoff = cutoff
	if f.err != nil {
		return 0, f.err
	}
	return 5, nil
}
