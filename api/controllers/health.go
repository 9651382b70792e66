package controllers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/multierr"

	"github.com/jordanmaier/copperline-backend/api/responses"
	pkgerrors "github.com/jordanmaier/copperline-backend/pkg/errors"
	"github.com/jordanmaier/copperline-backend/pkg/logger"
)

const readinessProbeTimeout = 5 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

// HealthLive reports process liveness. It never touches dependencies.
func HealthLive() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports whether the API can serve traffic. The database and
// redis must both answer within the probe timeout.
func HealthReady(db pinger, cache pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessProbeTimeout)
		defer cancel()

		var errs []error
		if db != nil {
			if err := db.Ping(ctx); err != nil {
				errs = append(errs, fmt.Errorf("database: %w", err))
			}
		}
		if cache != nil {
			if err := cache.Ping(ctx); err != nil {
				errs = append(errs, fmt.Errorf("redis: %w", err))
			}
		}

		if combined := multierr.Combine(errs...); combined != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, combined, "not ready"))
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
