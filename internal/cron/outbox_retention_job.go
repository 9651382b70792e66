package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/jordanmaier/copperline-backend/pkg/logger"
)

const (
	defaultOutboxPublishedMaxAge = 7 * 24 * time.Hour
	defaultOutboxDLQMaxAge       = 90 * 24 * time.Hour
)

type OutboxRetentionJobParams struct {
	Logger          *logger.Logger
	Outbox          outboxPruner
	DLQ             dlqPruner
	PublishedMaxAge time.Duration
	DLQMaxAge       time.Duration
}

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type dlqPruner interface {
	DeleteFailedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if params.DLQ == nil {
		return nil, fmt.Errorf("dlq repository required")
	}
	publishedMaxAge := params.PublishedMaxAge
	if publishedMaxAge <= 0 {
		publishedMaxAge = defaultOutboxPublishedMaxAge
	}
	dlqMaxAge := params.DLQMaxAge
	if dlqMaxAge <= 0 {
		dlqMaxAge = defaultOutboxDLQMaxAge
	}
	return &outboxRetentionJob{
		logg:            params.Logger,
		outbox:          params.Outbox,
		dlq:             params.DLQ,
		publishedMaxAge: publishedMaxAge,
		dlqMaxAge:       dlqMaxAge,
		now:             time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg            *logger.Logger
	outbox          outboxPruner
	dlq             dlqPruner
	publishedMaxAge time.Duration
	dlqMaxAge       time.Duration
	now             func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run prunes published outbox rows and stale DLQ entries. The phases are
// independent: a failure in one does not block the other.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	var errs []error
	if err := j.prunePublished(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := j.pruneDLQ(ctx); err != nil {
		errs = append(errs, err)
	}
	return multierr.Combine(errs...)
}

func (j *outboxRetentionJob) prunePublished(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.publishedMaxAge)
	deleted, err := j.outbox.DeletePublishedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"max_age":      j.publishedMaxAge.String(),
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "published outbox retention complete")
	return nil
}

func (j *outboxRetentionJob) pruneDLQ(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.dlqMaxAge)
	deleted, err := j.dlq.DeleteFailedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("outbox dlq retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"max_age":      j.dlqMaxAge.String(),
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "outbox dlq retention complete")
	return nil
}
