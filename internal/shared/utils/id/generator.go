package id

import (
	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// NewReminderID returns a sortable reminder identifier. KSUIDs order by
// creation second, which keeps the snapshot file readable.
func NewReminderID() string {
	return "rem-" + ksuid.New().String()
}

// NewLogID returns a time-ordered identifier used to correlate log lines of
// one update or tick.
func NewLogID() string {
	if v7, err := uuid.NewV7(); err == nil {
		return "log-" + v7.String()
	}
	return "log-" + ksuid.New().String()
}
