package controllers

import (
	"net/http"
	"strings"

	"github.com/jordanmaier/copperline-backend/api/middleware"
	"github.com/jordanmaier/copperline-backend/api/responses"
	"github.com/jordanmaier/copperline-backend/internal/checkout"
	pkgerrors "github.com/jordanmaier/copperline-backend/pkg/errors"
	"github.com/jordanmaier/copperline-backend/pkg/logger"
)

// CheckoutCreateSession snapshots the actor's cart into a hosted payment session.
func CheckoutCreateSession(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		owner, err := actorOwner(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		actor := checkout.Actor{Owner: owner}
		if email := middleware.UserEmailFromContext(r.Context()); email != "" {
			actor.Email = &email
		}

		result, err := svc.CreateSession(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// CheckoutVerifySession reports the post-redirect status of a checkout session.
// The success page polls it while the webhook settles the order.
func CheckoutVerifySession(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
		if sessionID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "session_id is required"))
			return
		}

		result, err := svc.VerifySession(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}
