package middleware

import "context"

// Unexported key type keeps request-scoped values collision-proof against
// other packages writing to the same context.
type contextKey int

const (
	ctxUserID contextKey = iota
	ctxUserEmail
	ctxSessionKey
)

func stringFromContext(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

// UserIDFromContext returns the authenticated user's ID, or "" for guests.
func UserIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxUserID)
}

// UserEmailFromContext returns the authenticated user's email when the
// access token carried one.
func UserEmailFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxUserEmail)
}

// SessionKeyFromContext returns the guest cart session key, or "" when the
// request did not present one.
func SessionKeyFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ctxSessionKey)
}

// WithUserID injects the user identifier for downstream handlers.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUserID, userID)
}

// WithSessionKey injects the guest session key for downstream handlers.
func WithSessionKey(ctx context.Context, sessionKey string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxSessionKey, sessionKey)
}
