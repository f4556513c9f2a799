package reminder

import (
	"context"
	"io"
	"time"
)

// IntentExtractor turns free text into a ParsedIntent. It never fails outward:
// problems yield a Degraded result.
type IntentExtractor interface {
	Extract(ctx context.Context, rawText, localeHint string) ExtractionResult
}

// Notifier delivers a fired reminder to its user.
type Notifier interface {
	Notify(ctx context.Context, userID int64, task string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, userID int64, task string) error

func (f NotifierFunc) Notify(ctx context.Context, userID int64, task string) error {
	return f(ctx, userID, task)
}

// Transcriber converts a voice note into text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// Clock is the injectable time source.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// ClockOrSystem returns c, or the system clock when c is nil.
func ClockOrSystem(c Clock) Clock {
	if c == nil {
		return SystemClock{}
	}
	return c
}

// SnapshotStore persists the registry as a whole.
type SnapshotStore interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snapshot Snapshot) error
}

// Pending is an intent awaiting a yes/no reply.
type Pending struct {
	Intent    ParsedIntent `json:"intent"`
	CreatedAt time.Time    `json:"created_at"`
}

// PendingStore holds at most one Pending per user. Expired entries are
// reported as absent.
type PendingStore interface {
	Get(ctx context.Context, userID int64) (Pending, bool, error)
	Set(ctx context.Context, userID int64, pending Pending) error
	Delete(ctx context.Context, userID int64) error
}
