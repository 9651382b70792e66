package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/jordanmaier/copperline-backend/pkg/logger"
)

const defaultWebhookEventMaxAge = 30 * 24 * time.Hour

type WebhookRetentionJobParams struct {
	Logger *logger.Logger
	Events webhookEventPruner
	MaxAge time.Duration
}

type webhookEventPruner interface {
	DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

func NewWebhookRetentionJob(params WebhookRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("webhook event repository required")
	}
	maxAge := params.MaxAge
	if maxAge <= 0 {
		maxAge = defaultWebhookEventMaxAge
	}
	return &webhookRetentionJob{
		logg:   params.Logger,
		events: params.Events,
		maxAge: maxAge,
		now:    time.Now,
	}, nil
}

type webhookRetentionJob struct {
	logg   *logger.Logger
	events webhookEventPruner
	maxAge time.Duration
	now    func() time.Time
}

func (j *webhookRetentionJob) Name() string { return "webhook-retention" }

// Run prunes processed webhook events past the retention window.
// Unprocessed rows are never touched: they are the crash-retry record.
func (j *webhookRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.maxAge)
	deleted, err := j.events.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("webhook retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"max_age":      j.maxAge.String(),
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "webhook event retention complete")
	return nil
}
