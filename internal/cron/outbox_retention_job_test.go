package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jordanmaier/copperline-backend/pkg/logger"
)

func TestOutboxRetentionJobPrunesBothStores(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	outbox := &fakeOutboxPruner{}
	dlq := &fakeDLQPruner{}
	job := newOutboxRetentionJob(t, outbox, dlq)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !outbox.lastCutoff.Equal(now.Add(-defaultOutboxPublishedMaxAge)) {
		t.Fatalf("unexpected published cutoff %s", outbox.lastCutoff)
	}
	if !dlq.lastCutoff.Equal(now.Add(-defaultOutboxDLQMaxAge)) {
		t.Fatalf("unexpected dlq cutoff %s", dlq.lastCutoff)
	}
	if outbox.called != 1 || dlq.called != 1 {
		t.Fatalf("expected each pruner called once, got %d and %d", outbox.called, dlq.called)
	}
}

func TestOutboxRetentionJobRunsSecondPhaseAfterFirstFails(t *testing.T) {
	outbox := &fakeOutboxPruner{err: errors.New("published boom")}
	dlq := &fakeDLQPruner{}
	job := newOutboxRetentionJob(t, outbox, dlq)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if dlq.called != 1 {
		t.Fatalf("dlq phase must still run, called %d times", dlq.called)
	}
}

func TestOutboxRetentionJobCombinesPhaseErrors(t *testing.T) {
	outbox := &fakeOutboxPruner{err: errors.New("published boom")}
	dlq := &fakeDLQPruner{err: errors.New("dlq boom")}
	job := newOutboxRetentionJob(t, outbox, dlq)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "published boom") || !strings.Contains(err.Error(), "dlq boom") {
		t.Fatalf("expected both phase errors, got %v", err)
	}
}

func newOutboxRetentionJob(t *testing.T, outbox *fakeOutboxPruner, dlq *fakeDLQPruner) *outboxRetentionJob {
	t.Helper()
	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		Outbox: outbox,
		DLQ:    dlq,
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	job, ok := jobIface.(*outboxRetentionJob)
	if !ok {
		t.Fatalf("expected outboxRetentionJob, got %T", jobIface)
	}
	return job
}

type fakeOutboxPruner struct {
	lastCutoff time.Time
	called     int
	err        error
}

func (f *fakeOutboxPruner) DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.called++
	f.lastCutoff = cutoff
	if f.err != nil {
		return 0, f.err
	}
	return 7, nil
}

type fakeDLQPruner struct {
	lastCutoff time.Time
	called     int
	err        error
}

func (f *fakeDLQPruner) DeleteFailedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.called++
	f.lastCutoff = cutoff
	if f.err != nil {
		return 0, f.err
	}
	return 2, nil
}
