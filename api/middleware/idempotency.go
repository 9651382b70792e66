package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/jordanmaier/copperline-backend/api/responses"
	pkgerrors "github.com/jordanmaier/copperline-backend/pkg/errors"
	"github.com/jordanmaier/copperline-backend/pkg/logger"
	pkgredis "github.com/jordanmaier/copperline-backend/pkg/redis"
)

const (
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
)

// idempotentRoutes maps method and route pattern to how long a recorded
// response stays replayable. Checkout session creation gets the long TTL; a
// replayed key must return the original session rather than minting a second
// one at the gateway.
var idempotentRoutes = map[string]map[string]time.Duration{
	http.MethodPost: {
		"/api/v1/auth/register":    defaultIdempotencyTTL,
		"/api/v1/checkout/session": criticalIdempotencyTTL,
	},
}

// idempotencyRecord is the stored outcome of the first request. RequestHash
// ties the key to the exact body it was first used with.
type idempotencyRecord struct {
	Status      int    `json:"status"`
	Body        string `json:"body"`
	ContentType string `json:"content_type,omitempty"`
	RequestHash string `json:"request_hash"`
}

// Idempotency makes the routes in idempotentRoutes replay-safe: the first
// request with a given Idempotency-Key runs and has its response recorded,
// and every later request with that key gets the recording back.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	gate := &idempotencyGate{store: store, logg: logg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := idempotentRoutes[r.Method][routePattern(r)]
			if !ok || gate.store == nil {
				next.ServeHTTP(w, r)
				return
			}
			gate.serve(w, r, next, ttl)
		})
	}
}

type idempotencyGate struct {
	store pkgredis.IdempotencyStore
	logg  *logger.Logger
}

func (g *idempotencyGate) serve(w http.ResponseWriter, r *http.Request, next http.Handler, ttl time.Duration) {
	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey == "" {
		responses.WriteError(r.Context(), g.logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		responses.WriteError(r.Context(), g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	sum := sha256.Sum256(body)
	requestHash := base64.StdEncoding.EncodeToString(sum[:])
	storageKey := g.store.IdempotencyKey(callerScope(r), idempotencyKey)

	if handled := g.replay(w, r, storageKey, requestHash); handled {
		return
	}

	recorder := &replayRecorder{ResponseWriter: w}
	next.ServeHTTP(recorder, r)
	g.record(r.Context(), storageKey, requestHash, recorder, ttl)
}

// replay serves the stored response for storageKey, if one exists. It
// reports whether it wrote anything, error responses included.
func (g *idempotencyGate) replay(w http.ResponseWriter, r *http.Request, storageKey, requestHash string) bool {
	stored, err := g.store.Get(r.Context(), storageKey)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false
		}
		responses.WriteError(r.Context(), g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return true
	}
	if stored == "" {
		return false
	}

	var record idempotencyRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		responses.WriteError(r.Context(), g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return true
	}
	if record.RequestHash != requestHash {
		responses.WriteError(r.Context(), g.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return true
	}

	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.WriteHeader(record.Status)
	if decoded, err := base64.StdEncoding.DecodeString(record.Body); err == nil {
		_, _ = w.Write(decoded)
	}
	return true
}

// record persists the captured response. Server faults are not a settled
// outcome, so they stay unrecorded and the caller's retry runs the handler
// again.
func (g *idempotencyGate) record(ctx context.Context, storageKey, requestHash string, recorder *replayRecorder, ttl time.Duration) {
	status := recorder.status
	if status == 0 {
		status = http.StatusOK
	}
	if status >= http.StatusInternalServerError {
		return
	}

	payload, err := json.Marshal(idempotencyRecord{
		Status:      status,
		Body:        base64.StdEncoding.EncodeToString(recorder.body.Bytes()),
		ContentType: recorder.Header().Get("Content-Type"),
		RequestHash: requestHash,
	})
	if err != nil {
		g.logFailure(ctx, "marshal idempotency record", err)
		return
	}
	if _, err := g.store.SetNX(ctx, storageKey, string(payload), ttl); err != nil {
		g.logFailure(ctx, "persist idempotency record", err)
	}
}

func (g *idempotencyGate) logFailure(ctx context.Context, msg string, err error) {
	if g.logg == nil {
		return
	}
	g.logg.Error(ctx, msg, err)
}

// callerScope isolates keys per caller: guests by their cart session key,
// authenticated shoppers by user ID. A key replay cannot cross callers.
func callerScope(r *http.Request) string {
	return strings.Join([]string{
		UserIDFromContext(r.Context()),
		SessionKeyFromContext(r.Context()),
		r.Method,
		r.URL.Path,
	}, "|")
}

// routePattern prefers the chi template over the raw path so parameterized
// routes share one rule.
func routePattern(r *http.Request) string {
	pattern := r.URL.Path
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		pattern = rctx.RoutePattern()
	}
	if len(pattern) > 1 {
		pattern = strings.TrimSuffix(pattern, "/")
	}
	return pattern
}

// replayRecorder duplicates the response into a buffer while it streams to
// the client.
type replayRecorder struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *replayRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *replayRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
