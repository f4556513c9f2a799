package scheduler

import (
	"context"

	"marco/internal/shared/logging"
)

// LogNotifier writes reminders to the log instead of a chat. It is the
// fallback when no chat transport is configured.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(logger logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logging.OrNop(logger)}
}

func (n *LogNotifier) Notify(_ context.Context, userID int64, task string) error {
	n.logger.Info("Reminder for user %d: %s", userID, task)
	return nil
}
