package storage

import (
	"fmt"
	"strings"
	"time"

	domain "marco/internal/domain/reminder"
)

// document is the on-disk shape shared with the original bot:
// {"scheduled_reminders": [{"task","time","reminder_send_time","user_id","fired"}]}.
type document struct {
	ScheduledReminders []documentReminder `json:"scheduled_reminders"`
}

type documentReminder struct {
	Task             string `json:"task"`
	Time             string `json:"time"`
	ReminderSendTime string `json:"reminder_send_time"`
	UserID           int64  `json:"user_id"`
	Fired            bool   `json:"fired"`
	ID               string `json:"id,omitempty"`
	Attempts         int    `json:"attempts,omitempty"`
	DeadLettered     bool   `json:"dead_lettered,omitempty"`
	CreatedAt        string `json:"created_at,omitempty"`
}

// Timestamps without an offset were written by the original bot in server
// local time.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

func parseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts, nil
	}
	for _, layout := range naiveLayouts {
		if ts, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Format(time.RFC3339Nano)
}

func toDocument(snapshot domain.Snapshot) document {
	doc := document{ScheduledReminders: make([]documentReminder, 0, len(snapshot.Reminders))}
	for _, rem := range snapshot.Reminders {
		doc.ScheduledReminders = append(doc.ScheduledReminders, documentReminder{
			Task:             rem.Task,
			Time:             formatTimestamp(rem.EventTime),
			ReminderSendTime: formatTimestamp(rem.FireTime),
			UserID:           rem.UserID,
			Fired:            rem.Fired,
			ID:               rem.ID,
			Attempts:         rem.Attempts,
			DeadLettered:     rem.DeadLettered,
			CreatedAt:        formatTimestamp(rem.CreatedAt),
		})
	}
	return doc
}

func fromDocument(doc document, loc *time.Location) (domain.Snapshot, error) {
	snapshot := domain.Snapshot{Reminders: make([]domain.Reminder, 0, len(doc.ScheduledReminders))}
	for i, entry := range doc.ScheduledReminders {
		event, err := parseTimestamp(entry.Time, loc)
		if err != nil {
			return domain.Snapshot{}, fmt.Errorf("reminder %d: time: %w", i, err)
		}
		fire, err := parseTimestamp(entry.ReminderSendTime, loc)
		if err != nil {
			return domain.Snapshot{}, fmt.Errorf("reminder %d: reminder_send_time: %w", i, err)
		}
		created, err := parseTimestamp(entry.CreatedAt, loc)
		if err != nil {
			return domain.Snapshot{}, fmt.Errorf("reminder %d: created_at: %w", i, err)
		}
		snapshot.Reminders = append(snapshot.Reminders, domain.Reminder{
			ID:           entry.ID,
			UserID:       entry.UserID,
			Task:         entry.Task,
			EventTime:    event,
			FireTime:     fire,
			Fired:        entry.Fired,
			Attempts:     entry.Attempts,
			DeadLettered: entry.DeadLettered,
			CreatedAt:    created,
		})
	}
	return snapshot, nil
}
