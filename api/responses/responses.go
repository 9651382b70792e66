// Package responses is the single place HTTP bodies are written. Handlers
// hand it data or errors; it applies the envelope and the per-code
// disclosure policy.
package responses

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	pkgerrors "github.com/jordanmaier/copperline-backend/pkg/errors"
	"github.com/jordanmaier/copperline-backend/pkg/logger"
	"github.com/jordanmaier/copperline-backend/pkg/types"
)

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// WriteError renders err under its code's policy and logs the full chain.
// Unclassified errors render as internal; their text never reaches the
// client.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	logError(ctx, logg, err)
	writeJSON(w, meta.HTTPStatus, types.ErrorEnvelope{Error: publicBody(typed, meta)})
}

// publicBody shapes the client-visible part of a classified error.
func publicBody(typed *pkgerrors.Error, meta pkgerrors.Metadata) types.ErrorBody {
	body := types.ErrorBody{
		Code:    string(typed.Code()),
		Message: meta.PublicMessage,
	}
	if meta.ExposeMessage {
		if msg := typed.Message(); msg != "" {
			body.Message = msg
		}
	}
	if meta.DetailsAllowed {
		body.Details = typed.Details()
	}
	return body
}

func logError(ctx context.Context, logg *logger.Logger, err error) {
	if logg == nil {
		return
	}

	report := pkgerrors.Inspect(err)
	fields := map[string]any{
		"error":      report.Message,
		"error_code": report.Code,
	}
	if len(report.Chain) > 0 {
		fields["error_chain"] = report.Chain
	}
	if report.PG != nil {
		fields["pg"] = report.PG
	}
	logg.Error(logg.WithFields(ctx, fields), "request.error", err)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// The status line is already on the wire; all that is left is a trace.
		log.Printf("response encode failed: %v", err)
	}
}
