package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jordanmaier/copperline-backend/api/responses"
	pkgerrors "github.com/jordanmaier/copperline-backend/pkg/errors"
	"github.com/jordanmaier/copperline-backend/pkg/logger"
)

type rateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// AuthRateLimitPolicy caps how often one auth surface may be hit per client
// IP and per normalized email inside a fixed window.
type AuthRateLimitPolicy struct {
	surface    string
	window     time.Duration
	ipLimit    int
	emailLimit int
}

func NewAuthRateLimitPolicy(surface string, window time.Duration, ipLimit, emailLimit int) AuthRateLimitPolicy {
	surface = strings.ToLower(strings.TrimSpace(surface))
	if surface == "" {
		surface = "auth"
	}
	return AuthRateLimitPolicy{
		surface:    surface,
		window:     window,
		ipLimit:    ipLimit,
		emailLimit: emailLimit,
	}
}

func (p AuthRateLimitPolicy) active() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.emailLimit > 0)
}

// probe is one counter a request is checked against.
type probe struct {
	dimension string
	subject   string
	limit     int
}

func (p AuthRateLimitPolicy) probesFor(r *http.Request) ([]probe, error) {
	var probes []probe
	if p.ipLimit > 0 {
		if ip := clientIP(r); ip != "" {
			probes = append(probes, probe{dimension: "ip", subject: ip, limit: p.ipLimit})
		}
	}
	if p.emailLimit > 0 {
		email, err := peekEmail(r)
		if err != nil {
			return nil, err
		}
		if email != "" {
			probes = append(probes, probe{dimension: "email", subject: hashSubject(email), limit: p.emailLimit})
		}
	}
	return probes, nil
}

// AuthRateLimit throttles credential-guessing traffic before it reaches the
// auth handlers. Counters live under the shared redis namespace; emails are
// hashed before they appear in a key.
func AuthRateLimit(policy AuthRateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.active() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			probes, err := policy.probesFor(r)
			if err != nil {
				responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
				return
			}

			for _, pr := range probes {
				scope := fmt.Sprintf("%s:%s:%s", policy.surface, pr.dimension, pr.subject)
				count, err := store.IncrWithTTL(ctx, store.RateLimitKey(scope), policy.window)
				if err != nil {
					responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if count > int64(pr.limit) {
					blockThrottled(ctx, logg, w, policy, pr, count)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func blockThrottled(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy AuthRateLimitPolicy, pr probe, count int64) {
	if logg != nil {
		logCtx := logg.WithFields(ctx, map[string]any{
			"surface":        policy.surface,
			"dimension":      pr.dimension,
			"subject":        pr.subject,
			"attempts":       count,
			"limit":          pr.limit,
			"window_seconds": int(policy.window.Seconds()),
		})
		logg.Warn(logCtx, "auth rate limit tripped")
	}
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
}

// peekEmail sniffs the email field out of the JSON body, then restores the
// body for the handler. A body that is not JSON yields no probe rather
// than an error.
func peekEmail(r *http.Request) (string, error) {
	if r.Body == nil {
		return "", nil
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return "", err
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))

	var payload struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", nil
	}
	return strings.ToLower(strings.TrimSpace(payload.Email)), nil
}

// clientIP prefers proxy headers because the dyno only ever sees the
// router's address.
func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func hashSubject(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
