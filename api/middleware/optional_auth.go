package middleware

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/jordanmaier/copperline-backend/api/responses"
	"github.com/jordanmaier/copperline-backend/pkg/auth/session"
	"github.com/jordanmaier/copperline-backend/pkg/config"
	pkgerrors "github.com/jordanmaier/copperline-backend/pkg/errors"
	"github.com/jordanmaier/copperline-backend/pkg/logger"
)

// SessionTokenHeader carries the opaque guest identity on cart and checkout routes.
const SessionTokenHeader = "X-Session-Token"

const (
	sessionTokenBytes  = 32
	maxSessionTokenLen = 128
)

// OptionalAuth resolves the request actor as either an authenticated user or an
// anonymous guest session. A presented bearer token is always verified; a bad
// token fails the request rather than silently demoting the caller to a guest.
// Guests without a session token are issued one, echoed in the response header.
func OptionalAuth(cfg config.JWTConfig, verifier session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := bearerToken(r); token != "" {
				claims, err := verifyAccessToken(r.Context(), cfg, verifier, token)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, err)
					return
				}
				next.ServeHTTP(w, r.WithContext(seedUserContext(r.Context(), logg, claims)))
				return
			}

			key := strings.TrimSpace(r.Header.Get(SessionTokenHeader))
			if len(key) > maxSessionTokenLen {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "session token too long"))
				return
			}
			if key == "" {
				minted, err := mintSessionToken()
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint session token"))
					return
				}
				key = minted
			}

			// Echo the key so first-time guests learn their token.
			w.Header().Set(SessionTokenHeader, key)

			next.ServeHTTP(w, r.WithContext(WithSessionKey(r.Context(), key)))
		})
	}
}

func mintSessionToken() (string, error) {
	bytes := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
