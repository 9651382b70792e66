package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/jordanmaier/copperline-backend/pkg/logger"
)

const defaultGuestCartMaxAge = 30 * 24 * time.Hour

type GuestCartCleanupJobParams struct {
	Logger *logger.Logger
	Carts  guestCartPruner
	MaxAge time.Duration
}

type guestCartPruner interface {
	DeleteIdleGuestCartsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

func NewGuestCartCleanupJob(params GuestCartCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	maxAge := params.MaxAge
	if maxAge <= 0 {
		maxAge = defaultGuestCartMaxAge
	}
	return &guestCartCleanupJob{
		logg:   params.Logger,
		carts:  params.Carts,
		maxAge: maxAge,
		now:    time.Now,
	}, nil
}

type guestCartCleanupJob struct {
	logg   *logger.Logger
	carts  guestCartPruner
	maxAge time.Duration
	now    func() time.Time
}

func (j *guestCartCleanupJob) Name() string { return "guest-cart-cleanup" }

// Run reaps anonymous carts idle past the cutoff. Carts bound to a user
// account are kept indefinitely.
func (j *guestCartCleanupJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.maxAge)
	deleted, err := j.carts.DeleteIdleGuestCartsBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("guest cart cleanup: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"max_age":      j.maxAge.String(),
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "guest cart cleanup complete")
	return nil
}
