package id

import (
	"context"
	"strconv"
)

type contextKey string

const (
	userKey contextKey = "marco_user_id"
	logKey  contextKey = "marco_log_id"
)

// WithUserID stores the chat user identifier on the context.
func WithUserID(ctx context.Context, userID int64) context.Context {
	if userID == 0 {
		return ctx
	}
	return context.WithValue(ctx, userKey, userID)
}

// UserIDFromContext returns the chat user identifier, or 0 when absent.
func UserIDFromContext(ctx context.Context) int64 {
	if ctx == nil {
		return 0
	}
	if v, ok := ctx.Value(userKey).(int64); ok {
		return v
	}
	return 0
}

// UserIDString renders a user id for log lines and trace attributes.
func UserIDString(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// WithLogID stores the log identifier on the context.
func WithLogID(ctx context.Context, logID string) context.Context {
	if logID == "" {
		return ctx
	}
	return context.WithValue(ctx, logKey, logID)
}

// LogIDFromContext returns the log identifier, or "" when absent.
func LogIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(logKey).(string); ok {
		return v
	}
	return ""
}

// EnsureLogID returns a context carrying a log id, generating one if needed.
func EnsureLogID(ctx context.Context, generator func() string) (context.Context, string) {
	if logID := LogIDFromContext(ctx); logID != "" {
		return ctx, logID
	}
	if generator == nil {
		generator = NewLogID
	}
	logID := generator()
	return WithLogID(ctx, logID), logID
}
