package logging

import (
	"context"
	"strings"

	id "marco/internal/shared/utils/id"
)

type logIDCapable interface {
	WithLogID(string) Logger
}

// WithLogID returns a logger that tags log lines with a log id.
func WithLogID(logger Logger, logID string) Logger {
	if IsNil(logger) {
		return Nop()
	}
	if logID == "" {
		return logger
	}
	if capable, ok := logger.(logIDCapable); ok {
		return capable.WithLogID(logID)
	}
	return withPrefix(logger, "logid="+logID)
}

// FromContext returns a logger tagged with the log id and chat user found in
// ctx, if any.
func FromContext(ctx context.Context, logger Logger) Logger {
	logger = WithLogID(logger, id.LogIDFromContext(ctx))
	if userID := id.UserIDFromContext(ctx); userID != 0 {
		logger = withPrefix(logger, "user="+id.UserIDString(userID))
	}
	return logger
}

type prefixLogger struct {
	logger Logger
	prefix string
}

// withPrefix escapes verbs in tag since it is spliced into the format string.
func withPrefix(logger Logger, tag string) Logger {
	return &prefixLogger{logger: logger, prefix: strings.ReplaceAll(tag, "%", "%%") + " "}
}

func (l *prefixLogger) Debug(format string, args ...any) {
	l.logger.Debug(l.prefix+format, args...)
}

func (l *prefixLogger) Info(format string, args ...any) {
	l.logger.Info(l.prefix+format, args...)
}

func (l *prefixLogger) Warn(format string, args ...any) {
	l.logger.Warn(l.prefix+format, args...)
}

func (l *prefixLogger) Error(format string, args ...any) {
	l.logger.Error(l.prefix+format, args...)
}
