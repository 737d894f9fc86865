// Package contextkeys provides centralized context key definitions.
//
// All context keys used across the application are defined here so that
// producers and consumers agree on both the key and the stored type.
//
//	ctx = contextkeys.WithAuth(ctx, claims)
//	claims, _ := ctx.Value(contextkeys.AuthKey).(*auth.Claims)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthKey contains *auth.Claims
	// Set by: middleware.Auth
	// Required by: every /api route
	AuthKey Key = "auth_claims"

	// RequestIDKey contains the request ID string (UUID)
	// Set by: httputil.RequestID
	// Used by: Logger, error responses
	RequestIDKey Key = "request_id"

	// UserIDKey contains the authenticated user ID as int64
	// Set by: middleware.Auth
	// Used by: Logger, user-scoped handlers
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	// Set by: cmd/mindful-api when building the root context
	LoggerKey Key = "logger"
)

// WithAuth adds authentication claims to the context
func WithAuth(ctx context.Context, claims interface{}) context.Context {
	return context.WithValue(ctx, AuthKey, claims)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(UserIDKey).(int64)
	return userID, ok
}
